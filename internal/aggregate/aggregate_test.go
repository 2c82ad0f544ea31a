package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/jwstcurves/internal/models"
	"github.com/lox/jwstcurves/internal/numeric"
)

var testKey = models.SeriesKey{Epoch: "1", RIn: "3.5", ROut: "7", Band: models.BandSW}

func phaseSet(phases []float64) *models.RawSampleSet {
	set := &models.RawSampleSet{Key: testKey}
	for i, p := range phases {
		set.Phase = append(set.Phase, models.RawSample{
			Flux:    1 + float64(i%5)*0.1,
			FluxErr: 0.05 + float64(i%3)*0.01,
			Phase:   p,
			MJD:     60000 + float64(i)*0.001,
			Second:  float64(i),
			Minute:  float64(i) / 60,
			Hour:    float64(i) / 3600,
			Day:     float64(i) / 86400,
			Meta:    models.Metadata{"filename": "img.png"},
		})
	}
	return set
}

func timeSet(n int) *models.RawSampleSet {
	set := &models.RawSampleSet{Key: testKey}
	for i := 0; i < n; i++ {
		set.Time = append(set.Time, models.RawSample{
			Flux:    2 + math.Sin(float64(i)),
			FluxErr: 0.1 + float64(i%4)*0.02,
			Phase:   math.Mod(float64(i)*0.07, 1),
			MJD:     60100 + float64(i)*0.01,
			Second:  float64(i) * 10,
			Minute:  float64(i) / 6,
			Hour:    float64(i) / 360,
			Day:     float64(i) / 8640,
		})
	}
	return set
}

func TestAggregatePhaseBins(t *testing.T) {
	phases := make([]float64, 200)
	for i := range phases {
		phases[i] = float64(i) / 200
	}
	set := phaseSet(phases)

	res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisPhase, Bins: 10})
	require.NoError(t, err)
	require.True(t, res.Wrapped)
	require.Equal(t, 20, res.Len())
	require.Len(t, res.X, 20)
	require.Len(t, res.Err, 20)
	require.Len(t, res.Custom, 20)

	for i := 0; i < 10; i++ {
		assert.InDelta(t, res.X[i]+1, res.X[i+10], 1e-12)
		assert.Equal(t, res.Y[i], res.Y[i+10])
		assert.Equal(t, res.Err[i], res.Err[i+10])
		assert.Equal(t, res.Custom[i], res.Custom[i+10])
	}
	assert.InDelta(t, 0.05, res.X[0], 1e-12)
	assert.InDelta(t, 0.95, res.X[9], 1e-12)

	cd := res.Custom[0].(CustomData)
	assert.Equal(t, "sw", cd.Type)
	assert.Equal(t, "0.05000", cd.Phase)
	assert.Equal(t, 10, res.Index.Len())
}

func TestAggregatePhaseBinsSkipEmptyAndOutOfRange(t *testing.T) {
	set := phaseSet([]float64{0.01, 0.02, 0.55, 1.0, -0.1, math.NaN()})

	res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisPhase, Bins: 10})
	require.NoError(t, err)

	// only bins 0 and 5 have members; phase 1.0 and negatives fall outside
	assert.Equal(t, []float64{0.05, 0.55, 1.05, 1.55}, roundAll(res.X))
	assert.Equal(t, 2, res.Index.Len())

	members, ok := res.Index.Lookup(NewPointID(testKey, 0.05))
	require.True(t, ok)
	assert.Len(t, members, 2)
}

func TestAggregateBoundaryPhase(t *testing.T) {
	set := phaseSet([]float64{0.1})
	res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisPhase, Bins: 10})
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())
	// 0.1 belongs to the second bin, centred at 0.15
	assert.InDelta(t, 0.15, res.X[0], 1e-12)
}

func TestAggregateTimeChunks(t *testing.T) {
	tests := []struct {
		n, chunk   int
		wantChunks int
		wantLast   int
	}{
		{n: 250, chunk: 100, wantChunks: 3, wantLast: 50},
		{n: 200, chunk: 100, wantChunks: 2, wantLast: 100},
		{n: 7, chunk: 1, wantChunks: 7, wantLast: 1},
		{n: 5, chunk: 10, wantChunks: 1, wantLast: 5},
		{n: 0, chunk: 10, wantChunks: 0},
	}
	for _, tt := range tests {
		set := timeSet(tt.n)
		res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisMJD, Chunk: tt.chunk})
		require.NoError(t, err)
		assert.Equal(t, tt.wantChunks, res.Len(), "n=%d chunk=%d", tt.n, tt.chunk)
		assert.False(t, res.Wrapped)
		if tt.wantChunks == 0 {
			continue
		}

		ids := res.Index.IDs()
		require.Len(t, ids, tt.wantChunks)
		last, ok := res.Index.Lookup(ids[len(ids)-1])
		require.True(t, ok)
		assert.Len(t, last, tt.wantLast)
	}
}

func TestAggregateTimeChunkUsesPlainMeanOfAxis(t *testing.T) {
	set := timeSet(4)
	res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisSecond, Chunk: 4})
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.InDelta(t, 15.0, res.X[0], 1e-12)

	members, ok := res.Index.Lookup(NewPointID(testKey, 15))
	require.True(t, ok)
	assert.Equal(t, []float64{0, 10, 20, 30}, []float64{members[0].X, members[1].X, members[2].X, members[3].X})
}

// assertRoundTrip checks that the first n points resolve in the index and
// that their members reproduce (y, err). It returns the member count.
func assertRoundTrip(t *testing.T, res *Result, n int) int {
	t.Helper()
	total := 0
	for i := 0; i < n; i++ {
		cd := res.Custom[i].(CustomData)
		members, ok := res.Index.Lookup(cd.ID())
		require.True(t, ok, "missing %s", cd.ID())
		total += len(members)

		ys := make([]float64, len(members))
		es := make([]float64, len(members))
		for j, m := range members {
			ys[j], es[j] = m.Y, m.Err
		}
		mean, meanErr := numeric.WeightedAverage(ys, es)
		assert.InDelta(t, res.Y[i], mean, 1e-12)
		assert.InDelta(t, res.Err[i], meanErr, 1e-12)
	}
	return total
}

func TestIndexRoundTrip(t *testing.T) {
	phases := make([]float64, 137)
	for i := range phases {
		phases[i] = math.Mod(float64(i)*0.137, 1)
	}
	set := phaseSet(phases)
	res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisPhase, Bins: 25})
	require.NoError(t, err)

	assert.Equal(t, len(phases), assertRoundTrip(t, res, res.Len()/2))
}

func TestIndexRoundTripTimeChunks(t *testing.T) {
	set := timeSet(250)
	res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisMJD, Chunk: 100})
	require.NoError(t, err)
	require.Equal(t, 3, res.Len())

	assert.Equal(t, 250, assertRoundTrip(t, res, res.Len()))

	// the trailing partial chunk carries the last 50 samples
	last, ok := res.Index.Lookup(res.Custom[2].(CustomData).ID())
	require.True(t, ok)
	require.Len(t, last, 50)
	assert.InDelta(t, set.Time[200].MJD, last[0].MJD, 1e-12)
	assert.InDelta(t, set.Time[249].MJD, last[49].MJD, 1e-12)
}

func TestAggregateRaw(t *testing.T) {
	set := phaseSet([]float64{0.2, 0.4, 0.6})
	set.Time = timeSet(5).Time

	res, err := Aggregate(set, Params{Mode: models.DataTypeRaw, XAxis: models.XAxisPhase})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Len())
	assert.Equal(t, 0, res.Index.Len())
	assert.InDelta(t, 1.2, res.X[3], 1e-12)

	res, err = Aggregate(set, Params{Mode: models.DataTypeRaw, XAxis: models.XAxisHour})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Len())
	assert.False(t, res.Wrapped)
}

func TestAggregateRejectsBadParams(t *testing.T) {
	_, err := Aggregate(phaseSet(nil), Params{Mode: models.DataTypeAverage, XAxis: models.XAxisPhase, Bins: 0})
	assert.Error(t, err)
	_, err = Aggregate(timeSet(3), Params{Mode: models.DataTypeAverage, XAxis: models.XAxisDay, Chunk: 0})
	assert.Error(t, err)
	_, err = Aggregate(timeSet(3), Params{Mode: "median"})
	assert.Error(t, err)
}

func TestNaNPoisonsOnlyItsBin(t *testing.T) {
	set := phaseSet([]float64{0.01, 0.02, 0.51})
	set.Phase[1].Flux = math.NaN()

	res, err := Aggregate(set, Params{Mode: models.DataTypeAverage, XAxis: models.XAxisPhase, Bins: 10})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.Y[0]))
	assert.False(t, math.IsNaN(res.Y[1]))
}

func TestPointID(t *testing.T) {
	id := NewPointID(models.SeriesKey{Epoch: "2", RIn: "4", ROut: "8", Band: models.BandLW}, 0.123456789)
	assert.Equal(t, "lw_2_4_8_0.12346", id.String())

	parsed, err := ParsePointID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, models.BandLW, parsed.SeriesKey().Band)

	_, err = ParsePointID("sw_2_4_0.5")
	assert.Error(t, err)
	_, err = ParsePointID("xx_2_4_8_0.5")
	assert.Error(t, err)
}

func TestExtremePoints(t *testing.T) {
	pts := []RawPoint{
		{X: 0.1, Y: 5},
		{X: 0.2, Y: 1},
		{X: 0.3, Y: 3},
		{X: 0.4, Y: 9},
		{X: 0.5, Y: 4},
		{X: math.NaN(), Y: 2},
	}
	got := ExtremePoints(pts)
	require.Len(t, got, 4)
	assert.Equal(t, 0.1, got[0].X)
	assert.Equal(t, 0.2, got[1].X)
	assert.Equal(t, 0.4, got[2].X)
	assert.Equal(t, 0.5, got[3].X)
	assert.Empty(t, ExtremePoints(nil))
}

func TestCustomDataMarshalsNaNAsNull(t *testing.T) {
	b, err := CustomData{Type: "sw", Phase: "0.05000", AvgErr: math.NaN()}.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"avgErr":null`)
	assert.Contains(t, string(b), `"phase":"0.05000"`)
}

func roundAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Round(x*1e6) / 1e6
	}
	return out
}
