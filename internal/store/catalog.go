package store

import (
	"fmt"
	"time"

	"github.com/lox/jwstcurves/internal/models"
)

// CatalogEntry is a selectable series as last seen in the catalog file.
type CatalogEntry struct {
	Selection   models.Selection
	Position    int
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// UpsertCatalog records the current catalog. Entries keep their first-seen
// time across refreshes; position follows the catalog file order.
func (s *Store) UpsertCatalog(selections []models.Selection) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	now := time.Now().UTC()
	for i, sel := range selections {
		if _, err := tx.Exec(`
			INSERT INTO catalog_entries (id, epoch, r_in, r_out, position, first_seen_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				position = excluded.position,
				last_seen_at = excluded.last_seen_at
		`, sel.ID(), sel.Epoch, sel.RIn, sel.ROut, i, now, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert catalog entry %s: %w", sel.ID(), err)
		}
	}
	return tx.Commit()
}

// GetCatalog returns catalog entries in catalog order. Entries not seen since
// the given time are excluded when since is non-zero.
func (s *Store) GetCatalog(since time.Time) ([]CatalogEntry, error) {
	rows, err := s.db.Query(`
		SELECT epoch, r_in, r_out, position, first_seen_at, last_seen_at
		FROM catalog_entries
		WHERE last_seen_at >= ?
		ORDER BY position, id
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.Selection.Epoch, &e.Selection.RIn, &e.Selection.ROut,
			&e.Position, &e.FirstSeenAt, &e.LastSeenAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
