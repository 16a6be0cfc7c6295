package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"gowa-dispatch/internal/model"
)

// PostgresStore keeps the snapshot in a single table, one row per session.
// Save rewrites the whole table in one transaction so a crash never leaves a
// half-written snapshot visible.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dispatch_sessions (
			session_key TEXT PRIMARY KEY,
			data        JSONB NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("ensure dispatch_sessions table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Save(sessions map[string]*model.Session) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM dispatch_sessions`); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO dispatch_sessions (session_key, data) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for key, sess := range sessions {
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session %s: %w", key, err)
		}
		if _, err := stmt.Exec(key, data); err != nil {
			return fmt.Errorf("insert session %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) Load() (map[string]*model.Session, error) {
	rows, err := p.db.Query(`SELECT session_key, data FROM dispatch_sessions`)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	sessions := make(map[string]*model.Session)
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		var sess model.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			log.Printf("⚠ Skipping corrupt session row %s: %v", key, err)
			continue
		}
		sessions[key] = &sess
	}
	return sessions, rows.Err()
}
