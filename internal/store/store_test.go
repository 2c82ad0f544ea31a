package store

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/jwstcurves/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != migrations[len(migrations)-1].Version {
		t.Errorf("version = %d, want %d", version, migrations[len(migrations)-1].Version)
	}
}

func TestPutAndGetPayload(t *testing.T) {
	store := setupTestStore(t)
	body := []byte(`{"psf_flux_time":[1,2,3]}`)

	if err := store.PutPayload("1/sw/3/5.json", "http", body); err != nil {
		t.Fatalf("PutPayload: %v", err)
	}

	got, fetchedAt, ok, err := store.GetPayload("1/sw/3/5.json", time.Hour)
	if err != nil {
		t.Fatalf("GetPayload: %v", err)
	}
	if !ok {
		t.Fatal("GetPayload missed a fresh payload")
	}
	if string(got) != string(body) {
		t.Errorf("payload = %q, want %q", got, body)
	}
	if time.Since(fetchedAt) > time.Minute {
		t.Errorf("fetchedAt = %v, want recent", fetchedAt)
	}

	_, _, ok, err = store.GetPayload("missing.json", 0)
	if err != nil {
		t.Fatalf("GetPayload missing: %v", err)
	}
	if ok {
		t.Error("GetPayload hit for missing path")
	}
}

func TestGetPayload_Expired(t *testing.T) {
	store := setupTestStore(t)
	if err := store.PutPayload("a.json", "dir", []byte("{}")); err != nil {
		t.Fatalf("PutPayload: %v", err)
	}
	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := store.db.Exec(`UPDATE payloads SET fetched_at = ?`, old); err != nil {
		t.Fatalf("age payload: %v", err)
	}

	_, _, ok, err := store.GetPayload("a.json", 24*time.Hour)
	if err != nil {
		t.Fatalf("GetPayload: %v", err)
	}
	if ok {
		t.Error("expired payload returned as hit")
	}

	_, _, ok, _ = store.GetPayload("a.json", 0)
	if !ok {
		t.Error("zero maxAge should accept any age")
	}

	deleted, err := store.CleanupOldPayloads(1)
	if err != nil {
		t.Fatalf("CleanupOldPayloads: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestPutPayload_Replaces(t *testing.T) {
	store := setupTestStore(t)
	store.PutPayload("a.json", "http", []byte("one"))
	store.PutPayload("a.json", "ftp", []byte("two"))

	got, _, _, err := store.GetPayload("a.json", 0)
	if err != nil {
		t.Fatalf("GetPayload: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("payload = %q, want two", got)
	}

	stats, err := store.GetPayloadStats()
	if err != nil {
		t.Fatalf("GetPayloadStats: %v", err)
	}
	if stats.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", stats.TotalCount)
	}
	if stats.CountBySource["ftp"] != 1 {
		t.Errorf("CountBySource[ftp] = %d, want 1", stats.CountBySource["ftp"])
	}
	if stats.UncompressedBytes != 3 {
		t.Errorf("UncompressedBytes = %d, want 3", stats.UncompressedBytes)
	}
}

func TestGetPayloadByHash(t *testing.T) {
	store := setupTestStore(t)
	store.PutPayload("a.json", "http", []byte("hello"))

	// sha256("hello")
	p, err := store.GetPayloadByHash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if err != nil {
		t.Fatalf("GetPayloadByHash: %v", err)
	}
	if p == nil || p.Path != "a.json" {
		t.Fatalf("GetPayloadByHash = %+v, want a.json", p)
	}

	p, err = store.GetPayloadByHash("nope")
	if err != nil || p != nil {
		t.Errorf("GetPayloadByHash(nope) = %v, %v; want nil, nil", p, err)
	}
}

func TestCatalog(t *testing.T) {
	store := setupTestStore(t)
	sels := []models.Selection{
		{Epoch: "2", RIn: "3.5", ROut: "7"},
		{Epoch: "1", RIn: "3.5", ROut: "7"},
	}
	if err := store.UpsertCatalog(sels); err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}
	if err := store.UpsertCatalog(sels[:1]); err != nil {
		t.Fatalf("UpsertCatalog again: %v", err)
	}

	all, err := store.GetCatalog(time.Time{})
	if err != nil {
		t.Fatalf("GetCatalog: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[0].Selection != sels[0] {
		t.Errorf("first entry = %+v, want %+v", all[0].Selection, sels[0])
	}
	if all[0].FirstSeenAt.After(all[0].LastSeenAt) {
		t.Errorf("FirstSeenAt %v after LastSeenAt %v", all[0].FirstSeenAt, all[0].LastSeenAt)
	}
}

func TestFetchRuns(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.StartFetchRun("http", "1/sw/3/5.json")
	if err != nil {
		t.Fatalf("StartFetchRun: %v", err)
	}
	run.Success = true
	run.ResponseSizeBytes = sql.NullInt64{Int64: 1024, Valid: true}
	if err := store.CompleteFetchRun(run); err != nil {
		t.Fatalf("CompleteFetchRun: %v", err)
	}

	failed, _ := store.StartFetchRun("http", "1/lw/3/5.json")
	failed.ErrorMessage = sql.NullString{String: "status 404", Valid: true}
	store.CompleteFetchRun(failed)

	runs, err := store.RecentFetchRuns(10)
	if err != nil {
		t.Fatalf("RecentFetchRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].Path != "1/lw/3/5.json" {
		t.Errorf("newest path = %q, want 1/lw/3/5.json", runs[0].Path)
	}
	if !runs[0].FinishedAt.Valid {
		t.Error("FinishedAt not recorded")
	}

	health, err := store.GetFetchHealth(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetFetchHealth: %v", err)
	}
	if health.Total != 2 || health.Succeeded != 1 || health.Failed != 1 {
		t.Errorf("health = %+v, want 2 total, 1 succeeded, 1 failed", health)
	}
}
