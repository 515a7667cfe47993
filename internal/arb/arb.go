// Package arb scores a single snapshot's rows by their deviation from the
// mean implied probability of their taxonomy category.
package arb

import (
	"math"
	"sort"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/normalize"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// DefaultTaxonomy is the category scored when none is configured.
const DefaultTaxonomy = "TOTAL_GOALS"

// Result is one scoring pass.
type Result struct {
	Taxonomy string
	Baseline float64
	Rows     []models.ArbRecord
	Tally    *models.Tally
}

type candidate struct {
	event  string
	market string
	prob   float64
	volume float64
}

// Score rates every row tagged taxonomy that carries a usable yes price. No
// qualifying rows is an empty result, not an error.
func Score(rows []schema.Record, taxonomy string) Result {
	tally := models.NewTally()
	var cands []candidate
	for _, r := range rows {
		tally.Processed++
		if schema.String(r, "taxonomy") != taxonomy {
			tally.Skip(models.SkipFiltered)
			continue
		}
		p, ok := schema.Number(r, "yes_price")
		if !ok {
			tally.Skip(models.SkipMissingPrice)
			continue
		}
		prob, ok := normalize.Price(p)
		if !ok {
			tally.Skip(models.SkipBadNumber)
			continue
		}
		cands = append(cands, candidate{
			event:  schema.String(r, "event_title"),
			market: schema.String(r, "market_title"),
			prob:   prob,
			volume: math.Max(0, schema.NumberOr(r, 0, "volume")),
		})
	}

	res := Result{Taxonomy: taxonomy, Tally: tally, Rows: []models.ArbRecord{}}
	if len(cands) == 0 {
		return res
	}

	sum := 0.0
	for _, c := range cands {
		sum += c.prob
	}
	baseline := sum / float64(len(cands))
	res.Baseline = models.Round(baseline, 4)

	for _, c := range cands {
		deviation := math.Abs(c.prob - baseline)
		res.Rows = append(res.Rows, models.ArbRecord{
			Event:       c.event,
			Market:      c.market,
			Probability: models.Round(c.prob, 4),
			Volume:      c.volume,
			Deviation:   models.Round(deviation, 4),
			ArbScore:    models.Round(deviation*math.Log1p(c.volume), 5),
		})
	}
	sort.SliceStable(res.Rows, func(i, j int) bool {
		return res.Rows[i].ArbScore > res.Rows[j].ArbScore
	})
	rank := 0
	for i := range res.Rows {
		if i == 0 || res.Rows[i].ArbScore != res.Rows[i-1].ArbScore {
			rank++
		}
		res.Rows[i].Rank = rank
	}
	return res
}
