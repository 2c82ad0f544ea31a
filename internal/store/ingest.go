package store

import (
	"database/sql"
	"time"
)

// FetchRun records one payload fetch for auditing.
type FetchRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string
	Path              string
	CacheHit          bool
	ResponseSizeBytes sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

// StartFetchRun creates a fetch run record and returns it.
func (s *Store) StartFetchRun(source, path string) (*FetchRun, error) {
	run := &FetchRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Path:      path,
	}

	result, err := s.db.Exec(`
		INSERT INTO fetch_runs (started_at, source, path, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Path)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteFetchRun updates the fetch run with its outcome.
func (s *Store) CompleteFetchRun(run *FetchRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE fetch_runs SET
			finished_at = ?,
			cache_hit = ?,
			response_size_bytes = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.CacheHit, run.ResponseSizeBytes, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentFetchRuns returns the newest fetch runs first.
func (s *Store) RecentFetchRuns(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, path, cache_hit, response_size_bytes, success, error_message
		FROM fetch_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Path,
			&r.CacheHit, &r.ResponseSizeBytes, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FetchHealth summarises fetch outcomes since a point in time.
type FetchHealth struct {
	Total     int
	Succeeded int
	CacheHits int
	Failed    int
}

func (s *Store) GetFetchHealth(since time.Time) (*FetchHealth, error) {
	var h FetchHealth
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN cache_hit THEN 1 ELSE 0 END), 0)
		FROM fetch_runs
		WHERE started_at >= ?
	`, since.UTC()).Scan(&h.Total, &h.Succeeded, &h.CacheHits)
	if err != nil {
		return nil, err
	}
	h.Failed = h.Total - h.Succeeded
	return &h, nil
}
