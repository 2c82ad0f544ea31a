package store

import (
	"database/sql"
)

// Store persists fetched series payloads, the dataset catalog and a fetch
// audit log in SQLite.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}
