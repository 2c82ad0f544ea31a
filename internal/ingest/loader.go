package ingest

import (
	"context"
	"fmt"
	"log"
	"path"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/lox/jwstcurves/internal/metrics"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/store"
)

const (
	DefaultCatalogPath = "dataList.json"
	DefaultRawPrefix   = "rawdata"
	defaultParallelism = 8
)

// Loader fetches and decodes series payloads from a Source.
type Loader struct {
	src         Source
	store       *store.Store
	catalogPath string
	rawPrefix   string
	parallelism int
}

type LoaderOption func(*Loader)

// WithStore records catalog refreshes in st.
func WithStore(st *store.Store) LoaderOption {
	return func(l *Loader) { l.store = st }
}

func WithCatalogPath(p string) LoaderOption {
	return func(l *Loader) { l.catalogPath = p }
}

func WithRawPrefix(p string) LoaderOption {
	return func(l *Loader) { l.rawPrefix = p }
}

// WithParallelism bounds concurrent fetches in LoadMany.
func WithParallelism(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.parallelism = n
		}
	}
}

func NewLoader(src Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		src:         src,
		catalogPath: DefaultCatalogPath,
		rawPrefix:   DefaultRawPrefix,
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SeriesError ties a load failure to the series it belongs to.
type SeriesError struct {
	Key models.SeriesKey
	Err error
}

func (e *SeriesError) Error() string { return fmt.Sprintf("load %s: %v", e.Key, e.Err) }
func (e *SeriesError) Unwrap() error { return e.Err }

func (l *Loader) seriesPath(key models.SeriesKey) string {
	return path.Join(l.rawPrefix, key.Path())
}

// LoadSeries fetches and decodes one series. Fetch and parse failures are
// returned as a *SeriesError, never as an empty set.
func (l *Loader) LoadSeries(ctx context.Context, key models.SeriesKey) (*models.RawSampleSet, error) {
	data, err := l.src.Fetch(ctx, l.seriesPath(key))
	if err != nil {
		return nil, &SeriesError{Key: key, Err: err}
	}
	set, err := DecodeSeries(key, data)
	if err != nil {
		return nil, &SeriesError{Key: key, Err: err}
	}
	if flags := ValidateSamples(set); len(flags) > 0 {
		log.Printf("loader: %s quality flags %s", key, QualityFlagsToJSON(flags))
	}
	metrics.SeriesLoaded.WithLabelValues(string(key.Band)).Inc()
	return set, nil
}

// LoadMany fetches keys concurrently and waits for all of them. Series that
// fail are logged and left out of the result; their errors are returned
// together as a *multierror.Error alongside the sets that did load. A
// cancelled context stops the remaining fetches.
func (l *Loader) LoadMany(ctx context.Context, keys []models.SeriesKey) (map[models.SeriesKey]*models.RawSampleSet, error) {
	var (
		mu     sync.Mutex
		sets   = make(map[models.SeriesKey]*models.RawSampleSet, len(keys))
		result *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallelism)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			set, err := l.LoadSeries(gctx, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("loader: %v", err)
				result = multierror.Append(result, err)
				return nil
			}
			sets[key] = set
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return sets, err
	}
	return sets, result.ErrorOrNil()
}

// LoadCatalog fetches the list of selectable series. Unparseable ids are
// logged and skipped.
func (l *Loader) LoadCatalog(ctx context.Context) ([]models.Selection, error) {
	data, err := l.src.Fetch(ctx, l.catalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	selections, skipped, err := DecodeCatalog(data)
	if err != nil {
		return nil, err
	}
	for _, id := range skipped {
		log.Printf("loader: skipping catalog entry %q", id)
	}
	if l.store != nil {
		if err := l.store.UpsertCatalog(selections); err != nil {
			log.Printf("loader: record catalog: %v", err)
		}
	}
	return selections, nil
}

// KeysFor expands selections into one key per band, in selection order.
func KeysFor(selections []models.Selection, bands ...models.Band) []models.SeriesKey {
	if len(bands) == 0 {
		bands = models.Bands
	}
	keys := make([]models.SeriesKey, 0, len(selections)*len(bands))
	for _, sel := range selections {
		for _, b := range bands {
			keys = append(keys, sel.Key(b))
		}
	}
	return keys
}
