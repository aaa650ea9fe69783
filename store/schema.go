package store

const schemaMigrations = `
DROP TABLE IF EXISTS plan_waypoints;
DROP TABLE IF EXISTS telemetry_log;
`

const schema = `
CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    last_login_at TEXT,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS fields (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    field_id   TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL DEFAULT '',
    geometry   TEXT NOT NULL DEFAULT '{}',
    created_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS flight_plans (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid             TEXT NOT NULL UNIQUE,
    field_id         TEXT NOT NULL DEFAULT '',
    pattern          TEXT NOT NULL DEFAULT 'boustrophedon',
    altitude_cm      INTEGER NOT NULL DEFAULT 0,
    overlap_pct      REAL NOT NULL DEFAULT 0,
    waypoint_count   INTEGER NOT NULL DEFAULT 0,
    total_distance_m REAL NOT NULL DEFAULT 0,
    duration_sec     REAL NOT NULL DEFAULT 0,
    battery_pct      REAL NOT NULL DEFAULT 0,
    batteries_needed INTEGER NOT NULL DEFAULT 1,
    coverage_sqm     REAL NOT NULL DEFAULT 0,
    feasible         INTEGER NOT NULL DEFAULT 1,
    waypoints        TEXT NOT NULL DEFAULT '[]',
    warnings         TEXT NOT NULL DEFAULT '[]',
    created_at       TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_flight_plans_field ON flight_plans(field_id);

CREATE TABLE IF NOT EXISTS missions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid            TEXT NOT NULL UNIQUE,
    plan_uuid       TEXT NOT NULL DEFAULT '',
    field_id        TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'created',
    waypoints_total INTEGER NOT NULL DEFAULT 0,
    waypoints_done  INTEGER NOT NULL DEFAULT 0,
    battery_start   INTEGER,
    battery_end     INTEGER,
    detail          TEXT NOT NULL DEFAULT '',
    started_at      TEXT,
    ended_at        TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);
CREATE INDEX IF NOT EXISTS idx_missions_uuid ON missions(uuid);

CREATE TABLE IF NOT EXISTS mission_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    mission_id INTEGER NOT NULL REFERENCES missions(id),
    old_status TEXT NOT NULL,
    new_status TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS recordings (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    mission_uuid TEXT,
    path         TEXT NOT NULL,
    format       TEXT NOT NULL DEFAULT 'h264',
    frames       INTEGER NOT NULL DEFAULT 0,
    bytes        INTEGER NOT NULL DEFAULT 0,
    started_at   TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    ended_at     TEXT
);

CREATE TABLE IF NOT EXISTS outbox (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    topic      TEXT NOT NULL,
    payload    BLOB NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`

func (db *DB) migrate() error {
	// Run cleanup migrations first (drop old tables)
	if _, err := db.Exec(schemaMigrations); err != nil {
		return err
	}
	_, err := db.Exec(schema)
	if err != nil {
		return err
	}
	// Graceful migrations for existing DBs
	db.Exec("ALTER TABLE admin_users ADD COLUMN last_login_at TEXT")
	db.Exec("ALTER TABLE missions ADD COLUMN battery_end INTEGER")
	db.Exec("ALTER TABLE flight_plans ADD COLUMN warnings TEXT NOT NULL DEFAULT '[]'")
	db.Exec("ALTER TABLE recordings ADD COLUMN bytes INTEGER NOT NULL DEFAULT 0")
	return nil
}
