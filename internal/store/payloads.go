package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// Payload is a cached series file as fetched from a data source.
type Payload struct {
	ID                int64
	Path              string
	Source            string
	PayloadCompressed []byte
	PayloadHash       string
	SizeBytes         int64
	FetchedAt         time.Time
}

// PutPayload stores a compressed copy of a fetched file, replacing any
// previous copy for the same path.
func (s *Store) PutPayload(path, source string, payload []byte) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	_, err := s.db.Exec(`
		INSERT INTO payloads (path, source, payload_compressed, payload_hash, size_bytes, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			payload_compressed = excluded.payload_compressed,
			payload_hash = excluded.payload_hash,
			size_bytes = excluded.size_bytes,
			fetched_at = excluded.fetched_at
	`, path, source, buf.Bytes(), hex.EncodeToString(hash[:]), len(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert payload: %w", err)
	}
	return nil
}

// GetPayload returns the decompressed payload for path if one was stored
// within maxAge. A zero maxAge accepts any age. The boolean is false on a
// miss.
func (s *Store) GetPayload(path string, maxAge time.Duration) ([]byte, time.Time, bool, error) {
	var compressed []byte
	var fetchedAt time.Time
	err := s.db.QueryRow(`SELECT payload_compressed, fetched_at FROM payloads WHERE path = ?`, path).
		Scan(&compressed, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	if maxAge > 0 && time.Since(fetchedAt) > maxAge {
		return nil, fetchedAt, false, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("decompress payload: %w", err)
	}
	return data, fetchedAt, true, nil
}

// GetPayloadByHash looks up a payload by the hash of its uncompressed body.
func (s *Store) GetPayloadByHash(hash string) (*Payload, error) {
	row := s.db.QueryRow(`
		SELECT id, path, source, payload_compressed, payload_hash, size_bytes, fetched_at
		FROM payloads WHERE payload_hash = ?
		ORDER BY fetched_at DESC LIMIT 1
	`, hash)

	var p Payload
	err := row.Scan(&p.ID, &p.Path, &p.Source, &p.PayloadCompressed, &p.PayloadHash, &p.SizeBytes, &p.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PayloadStats contains storage statistics for cached payloads.
type PayloadStats struct {
	TotalCount        int
	TotalSizeBytes    int64
	UncompressedBytes int64
	OldestFetchedAt   time.Time
	NewestFetchedAt   time.Time
	CountBySource     map[string]int
	SizeBySource      map[string]int64
}

func (s *Store) GetPayloadStats() (*PayloadStats, error) {
	stats := &PayloadStats{
		CountBySource: make(map[string]int),
		SizeBySource:  make(map[string]int64),
	}

	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0), COALESCE(SUM(size_bytes), 0),
		       MIN(fetched_at), MAX(fetched_at)
		FROM payloads
	`)
	var oldest, newest sql.NullString
	if err := row.Scan(&stats.TotalCount, &stats.TotalSizeBytes, &stats.UncompressedBytes, &oldest, &newest); err != nil {
		return nil, err
	}
	stats.OldestFetchedAt = parseSQLiteTime(oldest)
	stats.NewestFetchedAt = parseSQLiteTime(newest)

	rows, err := s.db.Query(`
		SELECT source, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM payloads
		GROUP BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		var size int64
		if err := rows.Scan(&source, &count, &size); err != nil {
			return nil, err
		}
		stats.CountBySource[source] = count
		stats.SizeBySource[source] = size
	}

	return stats, rows.Err()
}

// CleanupOldPayloads deletes payloads fetched before the retention window.
// Returns the number of deleted records.
func (s *Store) CleanupOldPayloads(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.Exec(`DELETE FROM payloads WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// parseSQLiteTime reads MIN/MAX aggregates, which the driver returns as text.
func parseSQLiteTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return t
		}
	}
	return time.Time{}
}
