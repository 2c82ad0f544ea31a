package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/jwstcurves/internal/aggregate"
	"github.com/lox/jwstcurves/internal/ingest"
	"github.com/lox/jwstcurves/internal/matrix"
	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/traces"
)

type fakeLoader struct {
	sets  map[models.SeriesKey]*models.RawSampleSet
	calls atomic.Int32
}

func (f *fakeLoader) LoadMany(ctx context.Context, keys []models.SeriesKey) (map[models.SeriesKey]*models.RawSampleSet, error) {
	f.calls.Add(1)
	out := make(map[models.SeriesKey]*models.RawSampleSet)
	var result *multierror.Error
	for _, k := range keys {
		if s, ok := f.sets[k]; ok {
			out[k] = s
			continue
		}
		result = multierror.Append(result, &ingest.SeriesError{Key: k, Err: ingest.ErrNotFound})
	}
	return out, result.ErrorOrNil()
}

// series builds n samples at MJD 60000 + i/100 with flux scaled by gain.
func series(key models.SeriesKey, n int, gain float64) *models.RawSampleSet {
	set := &models.RawSampleSet{Key: key}
	for i := 0; i < n; i++ {
		s := models.RawSample{
			Flux:    gain * (10 + float64(i%4)),
			FluxErr: 0.5,
			Phase:   float64(i) / float64(n),
			MJD:     60000 + float64(i)/100,
			Second:  float64(i) * 864,
			Minute:  float64(i) * 14.4,
			Hour:    float64(i) * 0.24,
			Day:     float64(i) * 0.01,
			Meta:    models.Metadata{"filename": fmt.Sprintf("%s_%d.png", key, i%3)},
		}
		set.Time = append(set.Time, s)
		set.Phase = append(set.Phase, s)
	}
	return set
}

var (
	selA = models.Selection{Epoch: "1", RIn: "3.5", ROut: "7"}
	selB = models.Selection{Epoch: "2", RIn: "3.5", ROut: "7"}
)

func newFakeLoader(sels ...models.Selection) *fakeLoader {
	loader := &fakeLoader{sets: make(map[models.SeriesKey]*models.RawSampleSet)}
	for i, sel := range sels {
		for _, band := range models.Bands {
			k := sel.Key(band)
			loader.sets[k] = series(k, 40, 1+float64(i))
		}
	}
	return loader
}

func newTestEngine(sels ...models.Selection) (*Engine, *fakeLoader) {
	loader := newFakeLoader(sels...)
	return NewEngine(loader, NewImageResolver("")), loader
}

// blockingLoader holds every load until release is closed.
type blockingLoader struct {
	*fakeLoader
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingLoader) LoadMany(ctx context.Context, keys []models.SeriesKey) (map[models.SeriesKey]*models.RawSampleSet, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeLoader.LoadMany(ctx, keys)
}

func settings(sels ...models.Selection) models.ViewSettings {
	return models.DefaultViewSettings().WithSelections(sels).WithBins(10)
}

func TestLightCurve(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	lc, err := e.LightCurve(context.Background(), settings(selA, selB))
	require.NoError(t, err)

	assert.Len(t, lc.Results, 4)
	require.Len(t, lc.Traces, 4)
	assert.Empty(t, lc.Failures)

	sw := lc.TracesFor(models.BandSW)
	lw := lc.TracesFor(models.BandLW)
	require.Len(t, sw, 2)
	require.Len(t, lw, 2)
	for _, tr := range lc.Traces {
		assert.Equal(t, SharedXAxis, tr.XAxis)
	}
	assert.Equal(t, "sw", sw[0].LegendGroup)
	assert.Equal(t, "lw", lw[0].LegendGroup)

	assert.Equal(t, traces.ColorFor(0), lc.ColorOf(selA))
	assert.Equal(t, traces.ColorFor(1), lc.ColorOf(selB))
	assert.Equal(t, traces.ColorFor(0), sw[0].Marker.Color)
	assert.Equal(t, traces.ColorFor(0), lw[0].Marker.Color)

	// 10 bins each holding 4 samples, plus the wrapped copy
	assert.Equal(t, "1.3.5.7 (20)", sw[0].Name)
	assert.Equal(t, 40, lc.Index.Len())
}

func TestLightCurvePhaseBarsPerBand(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	v := settings(selA, selB).
		WithDataType(models.DataTypeAverage).
		WithXAxis(models.XAxisPhase).
		WithBins(100).
		WithErrorBars(models.ErrorBarsBar)
	lc, err := e.LightCurve(context.Background(), v)
	require.NoError(t, err)

	for _, band := range models.Bands {
		ts := lc.TracesFor(band)
		require.Len(t, ts, 2, band)
		for _, tr := range ts {
			require.NotNil(t, tr.ErrorY)
			assert.Len(t, tr.ErrorY.Array, len(tr.Y))
			assert.NoError(t, tr.Validate())
		}
	}
}

func TestLightCurveEveryPlottedPointResolves(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	lc, err := e.LightCurve(context.Background(), settings(selA, selB))
	require.NoError(t, err)

	for _, tr := range lc.Traces {
		for _, c := range tr.Custom {
			cd, ok := c.(aggregate.CustomData)
			require.True(t, ok)
			_, found := lc.Index.Lookup(cd.ID())
			assert.True(t, found, "point %s not indexed", cd.ID())
		}
	}
}

func TestLightCurveMemo(t *testing.T) {
	e, loader := newTestEngine(selA)
	ctx := context.Background()
	v := settings(selA)

	first, err := e.LightCurve(ctx, v)
	require.NoError(t, err)
	second, err := e.LightCurve(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Same(t, first.Index, second.Index)

	_, err = e.LightCurve(ctx, v.WithBins(20))
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
	assert.Equal(t, 2, e.curves.len())
}

func TestLightCurveFailures(t *testing.T) {
	e, loader := newTestEngine(selA)
	delete(loader.sets, selA.Key(models.BandLW))

	lc, err := e.LightCurve(context.Background(), settings(selA, selB))
	require.NoError(t, err)
	assert.Len(t, lc.Results, 1)
	require.Len(t, lc.Failures, 3)

	keys := make([]string, len(lc.Failures))
	for i, f := range lc.Failures {
		keys[i] = f.Key
	}
	assert.ElementsMatch(t, []string{"lw_1_3.5_7", "sw_2_3.5_7", "lw_2_3.5_7"}, keys)
	// selB still takes its colour slot
	assert.Equal(t, traces.ColorFor(1), lc.ColorOf(selB))
}

func TestLightCurveRetriesAfterFailure(t *testing.T) {
	e, loader := newTestEngine(selA)
	ctx := context.Background()
	v := settings(selA)
	lwKey := selA.Key(models.BandLW)
	lw := loader.sets[lwKey]
	delete(loader.sets, lwKey)

	lc, err := e.LightCurve(ctx, v)
	require.NoError(t, err)
	require.Len(t, lc.Failures, 1)
	assert.Equal(t, 0, e.curves.len())

	loader.sets[lwKey] = lw
	lc, err = e.LightCurve(ctx, v)
	require.NoError(t, err)
	assert.Empty(t, lc.Failures)
	assert.Len(t, lc.Results, 2)
	assert.Equal(t, int32(2), loader.calls.Load())

	// a complete figure is memoized
	_, err = e.LightCurve(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestMatrixRetriesAfterFailure(t *testing.T) {
	e, loader := newTestEngine(selA, selB)
	ctx := context.Background()
	v := settings(selA, selB).WithDataType(models.DataTypeRaw)
	swKey := selB.Key(models.BandSW)
	sw := loader.sets[swKey]
	delete(loader.sets, swKey)

	mv, err := e.Matrix(ctx, v)
	require.NoError(t, err)
	require.Len(t, mv.Failures, 1)

	loader.sets[swKey] = sw
	mv, err = e.Matrix(ctx, v)
	require.NoError(t, err)
	assert.Empty(t, mv.Failures)
	band, ok := mv.Band(models.BandSW)
	require.True(t, ok)
	assert.Len(t, band.Dataset.Columns, 2)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestSharedComputationOutlivesCancelledCaller(t *testing.T) {
	loader := &blockingLoader{
		fakeLoader: newFakeLoader(selA),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	e := NewEngine(loader, NewImageResolver(""))
	v := settings(selA)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := e.LightCurve(ctxA, v)
		errA <- err
	}()
	<-loader.started

	type result struct {
		lc  *LightCurve
		err error
	}
	resB := make(chan result, 1)
	go func() {
		lc, err := e.LightCurve(context.Background(), v)
		resB <- result{lc, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(loader.release)
	r := <-resB
	require.NoError(t, r.err)
	assert.Len(t, r.lc.Results, 2)
	assert.Empty(t, r.lc.Failures)
}

func TestLightCurveInvalidSettings(t *testing.T) {
	e, _ := newTestEngine(selA)
	_, err := e.LightCurve(context.Background(), settings(selA).WithBins(1))
	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestLightCurveCancelled(t *testing.T) {
	e, _ := newTestEngine(selA)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.LightCurve(ctx, settings(selA))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCurrentKeepsLatestRequest(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	ctx := context.Background()

	_, err := e.LightCurve(ctx, settings(selA))
	require.NoError(t, err)
	latest := settings(selA, selB)
	_, err = e.LightCurve(ctx, latest)
	require.NoError(t, err)

	cur := e.Current()
	require.NotNil(t, cur)
	assert.Equal(t, uint64(2), cur.Generation)
	assert.Equal(t, latest.CacheKey(), cur.Settings.CacheKey())

	// a late result from an older request is not retained
	e.retainCurve(&LightCurve{Settings: settings(selB), Generation: 1}, 1)
	assert.Equal(t, latest.CacheKey(), e.Current().Settings.CacheKey())
}

func TestDrillDown(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	ctx := context.Background()
	v := settings(selA, selB).WithErrorBars(models.ErrorBarsBar)

	lc, err := e.LightCurve(ctx, v)
	require.NoError(t, err)
	cd := lc.TracesFor(models.BandSW)[1].Custom[0].(aggregate.CustomData)

	dd, ok, err := e.DrillDown(ctx, v, cd.ID())
	require.NoError(t, err)
	require.True(t, ok)

	assert.Len(t, dd.Points, 4)
	assert.Equal(t, "Raw Points for sw at Phase "+cd.Phase, dd.Title)
	assert.Equal(t, traces.ColorFor(1), dd.Color)
	assert.InDelta(t, lc.TracesFor(models.BandSW)[1].Y[0], dd.Y, 1e-9)
	assert.InDelta(t, cd.AvgErr, dd.Err, 1e-9)

	require.Len(t, dd.Traces, 1)
	assert.Equal(t, "Raw Points (4)", dd.Traces[0].Name)
	assert.Empty(t, dd.Traces[0].LegendGroup)
	require.NotNil(t, dd.Traces[0].ErrorY)

	require.NotEmpty(t, dd.Extremes)
	seen := make(map[string]bool)
	for _, img := range dd.Images {
		assert.False(t, seen[img.Thumbnail], "duplicate image %s", img.Thumbnail)
		seen[img.Thumbnail] = true
	}
}

func TestDrillDownKeepsCurrent(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	ctx := context.Background()
	older := settings(selA)
	latest := settings(selA, selB)

	lc, err := e.LightCurve(ctx, older)
	require.NoError(t, err)
	_, err = e.LightCurve(ctx, latest)
	require.NoError(t, err)

	cd := lc.Traces[0].Custom[0].(aggregate.CustomData)
	_, ok, err := e.DrillDown(ctx, older, cd.ID())
	require.NoError(t, err)
	require.True(t, ok)

	cur := e.Current()
	require.NotNil(t, cur)
	assert.Equal(t, latest.CacheKey(), cur.Settings.CacheKey())
	assert.Equal(t, uint64(2), cur.Generation)
}

func TestDrillDownMiss(t *testing.T) {
	e, _ := newTestEngine(selA)
	id := aggregate.PointID{Type: "sw", Epoch: "1", RIn: "3.5", ROut: "7", X: "0.99999"}
	dd, ok, err := e.DrillDown(context.Background(), settings(selA), id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, dd)
}

func TestDrillDownStaleSettingsMiss(t *testing.T) {
	e, _ := newTestEngine(selA)
	ctx := context.Background()
	lc, err := e.LightCurve(ctx, settings(selA))
	require.NoError(t, err)
	cd := lc.Traces[0].Custom[0].(aggregate.CustomData)

	// a point from the 10-bin view does not exist in the 7-bin view
	_, ok, err := e.DrillDown(ctx, settings(selA).WithBins(7), cd.ID())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatrixNeedsTwoSelections(t *testing.T) {
	e, _ := newTestEngine(selA)
	_, err := e.Matrix(context.Background(), settings(selA))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Please select at least 2 items to generate matrix plot.", verr.Msg)
}

func TestMatrix(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	v := settings(selA, selB).WithDataType(models.DataTypeRaw)

	mv, err := e.Matrix(context.Background(), v)
	require.NoError(t, err)
	require.Len(t, mv.Bands, 2)

	sw, ok := mv.Band(models.BandSW)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"SW.1.3.5.7", "SW.2.3.5.7"}, sw.Dataset.Columns)
	assert.Len(t, sw.Dataset.Rows, 40)
	assert.Len(t, sw.Cells, 4)

	ps, ok := sw.Stats.Pair("SW.1.3.5.7", "SW.2.3.5.7")
	require.True(t, ok)
	assert.InDelta(t, 2, ps.Slope, 1e-9)
	assert.False(t, ps.Identity)
	// selB is exactly twice selA: |x-2x| over the mean magnitude 1.5x
	assert.InDelta(t, 200.0/3, ps.Score, 1e-9)
	assert.Equal(t, float64(67), sw.FocusRangeMax)
	assert.Equal(t, sw.FocusRangeMax, sw.ScaleMax)
}

func TestMatrixDistanceScale(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	v := settings(selA, selB).WithColorBy(models.ColorByDistance)

	mv, err := e.Matrix(context.Background(), v)
	require.NoError(t, err)
	lw, ok := mv.Band(models.BandLW)
	require.True(t, ok)
	assert.Equal(t, float64(1), lw.ScaleMax)
	for _, c := range lw.Cells {
		if c.Kind != matrix.CellScatter {
			continue
		}
		for _, col := range c.Colors {
			assert.GreaterOrEqual(t, col, 0.0)
			assert.LessOrEqual(t, col, 1.0)
		}
	}
}

func TestMatrixManualFocusKept(t *testing.T) {
	e, _ := newTestEngine(selA, selB)
	v := settings(selA, selB).WithFocusRangeMax(30)

	mv, err := e.Matrix(context.Background(), v)
	require.NoError(t, err)
	sw, _ := mv.Band(models.BandSW)
	assert.Equal(t, float64(30), sw.FocusRangeMax)
	for _, c := range sw.Cells {
		for _, col := range c.Colors {
			assert.LessOrEqual(t, col, 30.0)
		}
	}
}

func TestImageResolver(t *testing.T) {
	r := NewImageResolver("")
	ref, ok := r.Resolve("jw01 frame.png")
	require.True(t, ok)
	assert.Equal(t, "https://raw.githubusercontent.com/iDataVisualizationLab/jwst-data/main/img/thumbnails/jw01 frame.png", ref.Thumbnail)
	assert.Equal(t, "https://raw.githubusercontent.com/iDataVisualizationLab/jwst-data/main/img/full-size/jw01 frame.png", ref.Full)

	_, ok = r.Resolve("")
	assert.False(t, ok)

	custom := NewImageResolver("http://localhost/img/")
	ref, _ = custom.Resolve("a.png")
	assert.Equal(t, "http://localhost/img/thumbnails/a.png", ref.Thumbnail)
}

func TestMemoEvictsOldest(t *testing.T) {
	m := newMemo[int]("test", 2)
	m.put("a", 1)
	m.put("b", 2)
	m.put("c", 3)
	_, ok := m.get("a")
	assert.False(t, ok)
	v, ok := m.get("c")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, m.len())
}
