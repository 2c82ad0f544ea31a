package ingest

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/jwstcurves/internal/metrics"
	"github.com/lox/jwstcurves/internal/store"
)

// CachedSource serves payloads from the store while they are younger than
// ttl and falls through to the wrapped source otherwise. Every fetch is
// recorded as a fetch run.
type CachedSource struct {
	src   Source
	store *store.Store
	ttl   time.Duration
}

func NewCachedSource(src Source, st *store.Store, ttl time.Duration) *CachedSource {
	return &CachedSource{src: src, store: st, ttl: ttl}
}

func (c *CachedSource) Name() string { return c.src.Name() }

func (c *CachedSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	run, err := c.store.StartFetchRun(c.src.Name(), path)
	if err != nil {
		log.Printf("cache: start fetch run %s: %v", path, err)
	}

	data, _, ok, err := c.store.GetPayload(path, c.ttl)
	if err != nil {
		log.Printf("cache: read %s: %v", path, err)
	}
	if ok {
		metrics.PayloadCacheTotal.WithLabelValues("hit").Inc()
		c.complete(run, true, len(data), nil)
		return data, nil
	}
	metrics.PayloadCacheTotal.WithLabelValues("miss").Inc()

	data, err = c.src.Fetch(ctx, path)
	if err != nil {
		c.complete(run, false, 0, err)
		return nil, err
	}

	if err := c.store.PutPayload(path, c.src.Name(), data); err != nil {
		log.Printf("cache: store %s: %v", path, err)
	} else {
		log.Printf("cache: stored %s (%s)", path, humanize.Bytes(uint64(len(data))))
	}
	c.complete(run, false, len(data), nil)
	return data, nil
}

func (c *CachedSource) complete(run *store.FetchRun, hit bool, size int, fetchErr error) {
	if run == nil {
		return
	}
	run.CacheHit = hit
	run.Success = fetchErr == nil
	if fetchErr == nil {
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(size), Valid: true}
	} else {
		run.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
	}
	if err := c.store.CompleteFetchRun(run); err != nil {
		log.Printf("cache: complete fetch run %s: %v", run.Path, err)
	}
}

// Observe wraps src so each fetch records call count and latency metrics.
func Observe(src Source) Source {
	return observed{src}
}

type observed struct {
	Source
}

func (o observed) Fetch(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := o.Source.Fetch(ctx, path)
	metrics.FetchLatency.WithLabelValues(o.Name()).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FetchCallsTotal.WithLabelValues(o.Name(), status).Inc()
	return data, err
}
