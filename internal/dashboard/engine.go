// Package dashboard composes loading, aggregation, trace building and the
// scatter-matrix statistics into the views the API serves.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"github.com/lox/jwstcurves/internal/aggregate"
	"github.com/lox/jwstcurves/internal/ingest"
	"github.com/lox/jwstcurves/internal/models"
)

const memoCapacity = 32

// SeriesLoader loads a batch of series, returning whatever loaded alongside
// the errors for the rest.
type SeriesLoader interface {
	LoadMany(ctx context.Context, keys []models.SeriesKey) (map[models.SeriesKey]*models.RawSampleSet, error)
}

// ValidationError reports settings that cannot produce a view.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Failure is a series that could not be loaded and is missing from a view.
type Failure struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Engine computes views from view settings. Results are pure functions of
// the settings and the loaded data, memoized by their full input tuple while
// every series loaded. Concurrent requests for the same view are collapsed,
// and of overlapping requests only the most recently started one is retained
// as current.
type Engine struct {
	loader SeriesLoader
	images ImageResolver

	group    singleflight.Group
	curves   *memo[*LightCurve]
	matrices *memo[*MatrixView]

	curveGen  atomic.Uint64
	matrixGen atomic.Uint64

	mu            sync.Mutex
	current       *LightCurve
	currentMatrix *MatrixView
}

func NewEngine(loader SeriesLoader, images ImageResolver) *Engine {
	return &Engine{
		loader:   loader,
		images:   images,
		curves:   newMemo[*LightCurve]("lightcurve", memoCapacity),
		matrices: newMemo[*MatrixView]("matrix", memoCapacity),
	}
}

// Current returns the light curve of the most recently started request that
// has completed, or nil.
func (e *Engine) Current() *LightCurve {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// CurrentMatrix is the matrix counterpart of Current.
func (e *Engine) CurrentMatrix() *MatrixView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentMatrix
}

func (e *Engine) retainCurve(lc *LightCurve, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || gen >= e.current.Generation {
		e.current = lc
		return
	}
	log.Printf("dashboard: discarding superseded light curve (generation %d < %d)", gen, e.current.Generation)
}

func (e *Engine) retainMatrix(mv *MatrixView, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentMatrix == nil || gen >= e.currentMatrix.Generation {
		e.currentMatrix = mv
		return
	}
	log.Printf("dashboard: discarding superseded matrix (generation %d < %d)", gen, e.currentMatrix.Generation)
}

// shared runs fn once for every concurrent caller asking for key. The
// computation does not inherit any one caller's cancellation; each caller
// stops waiting when its own context ends.
func (e *Engine) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := e.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Val, r.Err
	}
}

// load fetches every band of the selections. Individual series failures are
// reported and left out.
func (e *Engine) load(ctx context.Context, selections []models.Selection) (map[models.SeriesKey]*models.RawSampleSet, []Failure) {
	sets, err := e.loader.LoadMany(ctx, ingest.KeysFor(selections))
	return sets, failures(err)
}

func failures(err error) []Failure {
	if err == nil {
		return nil
	}
	var errs []error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}

	out := make([]Failure, 0, len(errs))
	for _, e := range errs {
		f := Failure{Error: e.Error()}
		var se *ingest.SeriesError
		if errors.As(e, &se) {
			f.Key = se.Key.String()
			f.Error = se.Err.Error()
		}
		out = append(out, f)
	}
	return out
}

func paramsKey(v models.ViewSettings) string {
	return v.CacheKey()
}

func matrixKey(v models.ViewSettings) string {
	return v.CacheKey() + "|" + strconv.FormatFloat(v.FocusRangeMax(), 'g', -1, 64) + "|" + strconv.FormatBool(v.FocusRangeMaxManuallySet())
}

func checkSettings(v models.ViewSettings) error {
	if err := v.Validate(); err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	return nil
}

// pointSelection returns the selection a point id belongs to.
func pointSelection(id aggregate.PointID) models.Selection {
	return models.Selection{Epoch: id.Epoch, RIn: id.RIn, ROut: id.ROut}
}

func singleflightKey(view, key string) string {
	return fmt.Sprintf("%s:%s", view, key)
}
