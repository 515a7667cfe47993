package delta

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/models"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestArsenalChelseaEdgeForming(t *testing.T) {
	prev := Snapshot{Name: "resolution_signal_2026-01-01T00-00-00Z.json",
		Data: decode(t, `[{"match": "ARSENAL vs CHELSEA", "volume": 500, "open_interest": 200, "conviction": 0.05}]`)}
	curr := Snapshot{Name: "resolution_signal_2026-01-01T01-00-00Z.json",
		Data: decode(t, `{"matches": [{"match": "ARSENAL vs CHELSEA", "volume": 800, "open_interest": 250, "conviction": 0.18}]}`)}

	res, err := New(DefaultOptions()).Compare(prev, curr)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	r := res.Records[0]
	assert.Equal(t, "ARSENAL vs CHELSEA", r.Match)
	assert.Equal(t, 300.0, r.DeltaVolume)
	assert.Equal(t, 50.0, r.DeltaOpenInterest)
	assert.InDelta(t, 0.13, r.DeltaConviction, 1e-12)
	assert.InDelta(t, 0.000433, r.Velocity, 1e-12)
	assert.Equal(t, models.PhaseEdgeForming, r.Phase)
	assert.Equal(t, 500.0, r.VolumePrev)
	assert.Equal(t, 800.0, r.VolumeCurr)
	assert.False(t, r.NewEntity)
}

func TestClassifyPriority(t *testing.T) {
	e := New(DefaultOptions())
	tests := []struct {
		name              string
		curr, dVol, dConv float64
		want              models.Phase
	}{
		{"edge beats warming", 0.15, 50, 0.02, models.PhaseEdgeForming},
		{"edge without volume", 0.2, -10, 0.01, models.PhaseEdgeForming},
		{"crowded", 0.3, 10, 0, models.PhaseCrowded},
		{"warming with falling conviction", 0.3, 10, -0.05, models.PhaseWarming},
		{"warming below edge", 0.05, 10, 0.02, models.PhaseWarming},
		{"watch", 0.05, 0, 0.02, models.PhaseWatch},
		{"watch falling volume", 0.5, -100, 0, models.PhaseWatch},
		{"edge threshold is strict", 0.1, 0, 0.05, models.PhaseWatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Classify(tt.curr, tt.dVol, tt.dConv))
		})
	}
}

func TestClassifyExhaustive(t *testing.T) {
	e := New(DefaultOptions())
	phases := map[models.Phase]bool{
		models.PhaseEdgeForming: true, models.PhaseCrowded: true,
		models.PhaseWarming: true, models.PhaseWatch: true,
	}
	values := []float64{-1, -0.05, 0, 0.05, 0.1, 0.15, 1}
	for _, curr := range values {
		for _, dVol := range values {
			for _, dConv := range values {
				assert.True(t, phases[e.Classify(curr, dVol*1000, dConv)])
			}
		}
	}
}

func TestVelocityFloor(t *testing.T) {
	assert.Equal(t, 0.05, Velocity(0.05, 0))
	assert.Equal(t, 0.05, Velocity(0.05, 0.5))
	assert.Equal(t, -0.001, Velocity(-0.1, -100))
}

func TestAliasesAndNestedBestSignal(t *testing.T) {
	prev := Snapshot{Name: "p.json", Data: decode(t, `[
	  {"event": "A", "total_volume": 100, "oi": 10, "confidence": 0.2},
	  {"title": "B", "best_signal": {"volume": 50, "open_interest": 5, "conviction": 0.3}},
	  {"volume": 1}
	]`)}
	curr := Snapshot{Name: "c.json", Data: decode(t, `{"matches": [
	  {"event_title": "A", "recent_volume": 100, "openInterest": 20, "signal_strength": 0.2},
	  {"match": "B", "volume": 40, "open_interest": 5, "conviction": 0.3, "best_signal": {"volume": 999}},
	  {"match": "C", "volume": 10, "conviction": 0.5}
	]}`)}

	res, err := New(DefaultOptions()).Compare(prev, curr)
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	a := res.Records[0]
	assert.Equal(t, "A", a.Match)
	assert.Zero(t, a.DeltaVolume)
	assert.Equal(t, 10.0, a.DeltaOpenInterest)
	assert.Zero(t, a.DeltaConviction)
	assert.Equal(t, models.PhaseWatch, a.Phase)

	b := res.Records[1]
	assert.Equal(t, "B", b.Match)
	assert.Equal(t, -10.0, b.DeltaVolume)
	assert.Equal(t, models.PhaseWatch, b.Phase)

	assert.Equal(t, []string{"C"}, res.NewEntities)
	assert.Equal(t, 1, res.Tally.Skipped[models.SkipMissingMatchKey])
}

func TestIncludeNewEntities(t *testing.T) {
	prev := Snapshot{Name: "p.json", Data: decode(t, `[]`)}
	curr := Snapshot{Name: "c.json", Data: decode(t, `[{"match": "C", "volume": 10, "conviction": 0.5}]`)}

	res, err := New(Options{EdgeConviction: 0.1, IncludeNewEntities: true}).Compare(prev, curr)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	r := res.Records[0]
	assert.True(t, r.NewEntity)
	assert.Zero(t, r.VolumePrev)
	assert.Equal(t, 10.0, r.DeltaVolume)
	assert.Equal(t, 0.5, r.DeltaConviction)
	assert.Equal(t, models.PhaseEdgeForming, r.Phase)
}

func TestDuplicateKeysLastWins(t *testing.T) {
	prev := Snapshot{Name: "p.json", Data: decode(t, `[{"match": "A", "volume": 1}]`)}
	curr := Snapshot{Name: "c.json", Data: decode(t, `[{"match": "A", "volume": 5}, {"match": "A", "volume": 9}]`)}
	res, err := New(DefaultOptions()).Compare(prev, curr)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 8.0, res.Records[0].DeltaVolume)
}

func TestUnknownShape(t *testing.T) {
	_, err := New(DefaultOptions()).Compare(
		Snapshot{Name: "p.json", Data: decode(t, `{"rows": []}`)},
		Snapshot{Name: "c.json", Data: decode(t, `[]`)},
	)
	var shape *models.SchemaShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "p.json", shape.File)
}
