package ingest

import (
	"context"
	"log"
	"time"

	"github.com/lox/jwstcurves/internal/models"
)

// Scheduler keeps the payload cache warm: it refreshes the catalog and
// fetches every catalogued series in both bands on a fixed interval.
type Scheduler struct {
	loader   *Loader
	interval time.Duration
}

func NewScheduler(loader *Loader, interval time.Duration) *Scheduler {
	return &Scheduler{loader: loader, interval: interval}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.prefetch(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-ticker.C:
			s.prefetch(ctx)
		}
	}
}

func (s *Scheduler) prefetch(ctx context.Context) {
	selections, err := s.loader.LoadCatalog(ctx)
	if err != nil {
		log.Printf("scheduler: catalog: %v", err)
		return
	}
	loaded, failed := Warm(ctx, s.loader, selections)
	log.Printf("scheduler: warmed %d series, %d failed", loaded, failed)
}

// Warm loads every band of selections so their payloads land in the cache.
func Warm(ctx context.Context, loader *Loader, selections []models.Selection) (loaded, failed int) {
	keys := KeysFor(selections)
	sets, _ := loader.LoadMany(ctx, keys)
	return len(sets), len(keys) - len(sets)
}
