package store

import "database/sql"

// Field is a stored survey area. Geometry holds the field map JSON
// document exactly as it is exchanged with clients.
type Field struct {
	ID        int64  `json:"id"`
	FieldID   string `json:"field_id"`
	Name      string `json:"name"`
	Geometry  string `json:"geometry"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (db *DB) CreateField(fieldID, name, geometry string) (int64, error) {
	res, err := db.Exec(`INSERT INTO fields (field_id, name, geometry) VALUES (?, ?, ?)`,
		fieldID, name, geometry)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpsertField inserts the field or refreshes its name and geometry
// when the field id is already known.
func (db *DB) UpsertField(fieldID, name, geometry string) error {
	_, err := db.Exec(`
		INSERT INTO fields (field_id, name, geometry) VALUES (?, ?, ?)
		ON CONFLICT(field_id) DO UPDATE SET
			name = excluded.name,
			geometry = excluded.geometry,
			updated_at = datetime('now','localtime')`,
		fieldID, name, geometry)
	return err
}

func (db *DB) GetField(fieldID string) (*Field, error) {
	f := &Field{}
	err := db.QueryRow(`SELECT id, field_id, name, geometry, created_at, updated_at FROM fields WHERE field_id = ?`, fieldID).
		Scan(&f.ID, &f.FieldID, &f.Name, &f.Geometry, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (db *DB) ListFields() ([]Field, error) {
	rows, err := db.Query(`SELECT id, field_id, name, geometry, created_at, updated_at FROM fields ORDER BY name, field_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFields(rows)
}

func scanFields(rows *sql.Rows) ([]Field, error) {
	var fields []Field
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.ID, &f.FieldID, &f.Name, &f.Geometry, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func (db *DB) DeleteField(fieldID string) error {
	_, err := db.Exec(`DELETE FROM fields WHERE field_id = ?`, fieldID)
	return err
}
