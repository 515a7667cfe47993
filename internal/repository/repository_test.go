package repository

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 5, 7, 0, time.UTC)

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		cur := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return cur
	}
}

func TestSeriesNaming(t *testing.T) {
	s := ResolutionSignal
	assert.Equal(t, "resolution_signal_2026-03-01T09-05-07Z.json", s.Name(t0))
	assert.Equal(t, "resolution_signal_*.json", s.Pattern())
	assert.Equal(t, "computed/kalshi", s.Dir())

	_, ok := s.parse("resolution_signal_2026-03-01T09-05-07Z.json")
	assert.True(t, ok)
	_, ok = s.parse("resolution_signal_latest.json")
	assert.False(t, ok)
	_, ok = Arb("TOTAL").parse("arb_TOTAL_GOALS_2026-03-01T09-05-07Z.json")
	assert.False(t, ok)
}

func TestTimestampOrderIsLexicographic(t *testing.T) {
	a := ResolutionSignal.Name(time.Date(2026, 9, 30, 23, 59, 59, 0, time.UTC))
	b := ResolutionSignal.Name(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	assert.Less(t, a, b)
}

func exercise(t *testing.T, repo Repository) {
	t.Helper()

	_, err := repo.Latest(KalshiFlat)
	var missing *models.MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 0, missing.Found)
	assert.Equal(t, "markets_flat_*.json", missing.Pattern)

	h1, err := repo.Write(KalshiFlat, []int{1})
	require.NoError(t, err)
	h2, err := repo.Write(KalshiFlat, []int{2})
	require.NoError(t, err)
	_, err = repo.Write(KalshiClassified, []int{3})
	require.NoError(t, err)

	latest, err := repo.Latest(KalshiFlat)
	require.NoError(t, err)
	assert.Equal(t, h2.Name, latest.Name)

	data, err := repo.Read(latest)
	require.NoError(t, err)
	assert.Equal(t, "[\n  2\n]\n", string(data))

	hs, err := repo.LatestN(KalshiFlat, 2)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, h1.Name, hs[0].Name)
	assert.Equal(t, h2.Name, hs[1].Name)

	_, err = repo.LatestN(KalshiFlat, 3)
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 2, missing.Found)
	assert.Equal(t, 3, missing.Required)
}

func TestMemoryRepository(t *testing.T) {
	exercise(t, NewMemory(t0))
}

func TestFSRepository(t *testing.T) {
	repo := NewFS(t.TempDir()).WithClock(fixedClock(t0, t0.Add(time.Second), t0.Add(2*time.Second)))
	exercise(t, repo)
}

func TestWriteNeverOverwrites(t *testing.T) {
	fs := NewFS(t.TempDir()).WithClock(fixedClock(t0))
	_, err := fs.Write(TimeseriesDelta, map[string]int{"a": 1})
	require.NoError(t, err)
	_, err = fs.Write(TimeseriesDelta, map[string]int{"a": 2})
	assert.ErrorIs(t, err, ErrExists)

	mem := NewMemory(t0).WithClock(fixedClock(t0))
	_, err = mem.Write(TimeseriesDelta, 1)
	require.NoError(t, err)
	_, err = mem.Write(TimeseriesDelta, 2)
	assert.ErrorIs(t, err, ErrExists)
}

func TestFSIgnoresForeignFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "computed", "kalshi")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resolution_signal_notes.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resolution_signal_2026-01-01T00-00-00Z.json"), []byte("[]"), 0o644))

	h, err := NewFS(root).Latest(ResolutionSignal)
	require.NoError(t, err)
	assert.Equal(t, "resolution_signal_2026-01-01T00-00-00Z.json", h.Name)
	assert.Equal(t, filepath.Join(dir, h.Name), h.Path)
}

func TestReadJSON(t *testing.T) {
	mem := NewMemory(t0)
	h := mem.Put(KalshiEvents, "events_2026-01-01T00-00-00Z.json", []byte(`{"events":[]}`))
	v, err := ReadJSON(mem, h)
	require.NoError(t, err)
	assert.Contains(t, v.(map[string]any), "events")

	bad := mem.Put(KalshiEvents, "events_2026-01-02T00-00-00Z.json", []byte(`{`))
	_, err = ReadJSON(mem, bad)
	assert.Error(t, err)
}
