package store

// Recording is a captured video stream on local disk.
type Recording struct {
	ID          int64   `json:"id"`
	MissionUUID *string `json:"mission_uuid"`
	Path        string  `json:"path"`
	Format      string  `json:"format"`
	Frames      int64   `json:"frames"`
	Bytes       int64   `json:"bytes"`
	StartedAt   string  `json:"started_at"`
	EndedAt     *string `json:"ended_at"`
}

func (db *DB) CreateRecording(missionUUID *string, path, format string) (int64, error) {
	res, err := db.Exec(`INSERT INTO recordings (mission_uuid, path, format) VALUES (?, ?, ?)`,
		missionUUID, path, format)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) FinishRecording(id, frames, bytes int64) error {
	_, err := db.Exec(`UPDATE recordings SET frames=?, bytes=?, ended_at=datetime('now','localtime') WHERE id=?`,
		frames, bytes, id)
	return err
}

// AttachRecordingMission links an in-progress recording to a mission
// that started after the camera was already rolling.
func (db *DB) AttachRecordingMission(id int64, missionUUID string) error {
	_, err := db.Exec(`UPDATE recordings SET mission_uuid=? WHERE id=?`, missionUUID, id)
	return err
}

func (db *DB) ListRecordings() ([]Recording, error) {
	rows, err := db.Query(`SELECT id, mission_uuid, path, format, frames, bytes, started_at, ended_at FROM recordings ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Recording
	for rows.Next() {
		var r Recording
		if err := rows.Scan(&r.ID, &r.MissionUUID, &r.Path, &r.Format, &r.Frames, &r.Bytes, &r.StartedAt, &r.EndedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
