// Package delta compares two adjacent signal snapshots and labels the phase
// of each match's movement.
package delta

import (
	"math"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// Options are the tunable thresholds of the engine.
type Options struct {
	// EdgeConviction is the current conviction above which a rising match is
	// an edge forming.
	EdgeConviction float64
	// IncludeNewEntities reports matches absent from the previous snapshot
	// against a zero baseline instead of dropping them.
	IncludeNewEntities bool
}

// DefaultOptions returns the v1 thresholds.
func DefaultOptions() Options {
	return Options{EdgeConviction: 0.1}
}

// Snapshot is one decoded signal artifact.
type Snapshot struct {
	Name string
	Data any
}

// Result is one comparison.
type Result struct {
	Records     []models.DeltaRecord
	NewEntities []string
	Tally       *models.Tally
}

// Engine computes deltas with fixed options.
type Engine struct {
	opts Options
}

// New returns an engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// observation is the comparable view of one match in one snapshot.
type observation struct {
	volume       float64
	openInterest float64
	conviction   float64
}

// Classify assigns exactly one phase; rules are checked in priority order.
func (e *Engine) Classify(currConviction, deltaVolume, deltaConviction float64) models.Phase {
	switch {
	case currConviction > e.opts.EdgeConviction && deltaConviction > 0:
		return models.PhaseEdgeForming
	case deltaVolume > 0 && deltaConviction == 0:
		return models.PhaseCrowded
	case deltaVolume > 0:
		return models.PhaseWarming
	}
	return models.PhaseWatch
}

// Velocity damps conviction change by volume change, never dividing by
// less than one.
func Velocity(deltaConviction, deltaVolume float64) float64 {
	return deltaConviction / math.Max(math.Abs(deltaVolume), 1)
}

// Compare diffs every match in curr against prev. Output follows curr order.
func (e *Engine) Compare(prev, curr Snapshot) (Result, error) {
	prevObs, _, prevTally, err := observe(prev)
	if err != nil {
		return Result{}, err
	}
	currObs, order, tally, err := observe(curr)
	if err != nil {
		return Result{}, err
	}
	for reason, n := range prevTally.Skipped {
		tally.Skipped[reason] += n
	}

	res := Result{Tally: tally, Records: []models.DeltaRecord{}}
	for _, key := range order {
		c := currObs[key]
		p, seen := prevObs[key]
		if !seen {
			res.NewEntities = append(res.NewEntities, key)
			if !e.opts.IncludeNewEntities {
				continue
			}
		}
		rec := e.record(key, p, c)
		rec.NewEntity = !seen
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (e *Engine) record(key string, p, c observation) models.DeltaRecord {
	dVol := models.Round(c.volume-p.volume, 6)
	dOI := models.Round(c.openInterest-p.openInterest, 6)
	dConv := models.Round(c.conviction-p.conviction, 6)
	return models.DeltaRecord{
		Match:             key,
		VolumePrev:        p.volume,
		VolumeCurr:        c.volume,
		DeltaVolume:       dVol,
		OpenInterestPrev:  p.openInterest,
		OpenInterestCurr:  c.openInterest,
		DeltaOpenInterest: dOI,
		ConvictionPrev:    p.conviction,
		ConvictionCurr:    c.conviction,
		DeltaConviction:   dConv,
		Velocity:          models.Round(Velocity(dConv, dVol), 6),
		Phase:             e.Classify(c.conviction, dVol, dConv),
	}
}

// observe indexes a snapshot by match key. Later duplicates replace earlier
// ones but keep the first position.
func observe(s Snapshot) (map[string]observation, []string, *models.Tally, error) {
	rows, err := schema.Rows(s.Name, s.Data)
	if err != nil {
		return nil, nil, nil, err
	}
	tally := models.NewTally()
	obs := make(map[string]observation, len(rows))
	var order []string
	for _, r := range rows {
		tally.Processed++
		key := schema.String(r, schema.MatchKeys...)
		if key == "" {
			tally.Skip(models.SkipMissingMatchKey)
			continue
		}
		if _, seen := obs[key]; !seen {
			order = append(order, key)
		}
		obs[key] = observation{
			volume:       resolve(r, schema.VolumeKeys),
			openInterest: resolve(r, schema.OpenInterestKeys),
			conviction:   resolve(r, schema.ConvictionKeys),
		}
	}
	return obs, order, tally, nil
}

// resolve reads a metric from the record, then from its best_signal for
// files written before the metrics were lifted to the top level.
func resolve(r schema.Record, aliases []string) float64 {
	if v, ok := schema.Number(r, aliases...); ok {
		return v
	}
	if best, ok := schema.Object(r, "best_signal"); ok {
		if v, ok := schema.Number(best, aliases...); ok {
			return v
		}
	}
	return 0
}
