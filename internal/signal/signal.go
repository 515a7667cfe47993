// Package signal scores resolution-style markets by conviction, spread
// tightness and liquidity, and picks one representative instance per match.
package signal

import (
	"math"
	"sort"
	"strings"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/normalize"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// Options are the tunable heuristics of the engine.
type Options struct {
	// ResolutionKeyword selects markets by lowercase title substring.
	ResolutionKeyword string
	// MaxSpread is the spread at which tightness reaches zero.
	MaxSpread float64
	// NeutralTightness is used when the spread cannot be measured.
	NeutralTightness float64
	// TopInstances is how many scored instances to keep per match.
	TopInstances int
}

// DefaultOptions returns the v1 heuristics.
func DefaultOptions() Options {
	return Options{
		ResolutionKeyword: " winner?",
		MaxSpread:         0.20,
		NeutralTightness:  0.5,
		TopInstances:      3,
	}
}

// quoteKeys mark a raw market as carrying a tradable quote.
var quoteKeys = []string{"yes_bid", "yes_ask", "last_price", "yes_bid_dollars", "yes_ask_dollars", "last_price_dollars"}

// Result is one engine pass.
type Result struct {
	Matches  []models.MatchSignal
	Unscored []models.MatchSignal
	Tally    *models.Tally
}

// Engine computes signals with fixed options.
type Engine struct {
	opts Options
}

// New returns an engine. Zero-valued options fall back to the defaults.
func New(opts Options) *Engine {
	def := DefaultOptions()
	if opts.ResolutionKeyword == "" {
		opts.ResolutionKeyword = def.ResolutionKeyword
	}
	if opts.MaxSpread <= 0 {
		opts.MaxSpread = def.MaxSpread
	}
	if opts.TopInstances < 1 {
		opts.TopInstances = def.TopInstances
	}
	opts.ResolutionKeyword = strings.ToLower(opts.ResolutionKeyword)
	return &Engine{opts: opts}
}

// MidSpread prefers the bid/ask midpoint when the book is not crossed, then
// the last trade, then whichever single side exists. Spread is only known
// for the midpoint case.
func MidSpread(bid, ask, last *float64) (mid, spread *float64) {
	if bid != nil && ask != nil && *ask >= *bid {
		m := (*bid + *ask) / 2
		s := *ask - *bid
		return &m, &s
	}
	switch {
	case last != nil:
		return last, nil
	case bid != nil:
		return bid, nil
	case ask != nil:
		return ask, nil
	}
	return nil, nil
}

// Conviction is the distance of mid from 0.5, or 0 without a mid.
func Conviction(mid *float64) float64 {
	if mid == nil {
		return 0
	}
	return math.Abs(*mid - 0.5)
}

// Tightness maps spread linearly onto [0,1], hitting 0 at MaxSpread.
func (e *Engine) Tightness(spread *float64) float64 {
	if spread == nil {
		return e.opts.NeutralTightness
	}
	return math.Max(0, 1-*spread/e.opts.MaxSpread)
}

// LiquidityWeight sums log(1+x) over the liquidity measures; negatives count as 0.
func LiquidityWeight(values ...float64) float64 {
	w := 0.0
	for _, v := range values {
		w += math.Log1p(math.Max(0, v))
	}
	return w
}

// Score combines the components. It is zero whenever conviction is zero.
func Score(conviction, liquidityWeight, tightness float64) float64 {
	return conviction * (1 + liquidityWeight) * (0.5 + tightness)
}

// Record scores one normalized market row.
func (e *Engine) Record(event string, row schema.Record) models.SignalRecord {
	raw := rawMarket(row)

	bid := quote(raw, schema.YesBidKeys)
	ask := quote(raw, schema.YesAskKeys)
	last := quote(raw, schema.LastPriceKeys)
	mid, spread := MidSpread(bid, ask, last)

	volume := schema.NumberOr(raw, 0, "volume")
	openInterest := schema.NumberOr(raw, 0, "open_interest")
	liquidity := schema.NumberOr(raw, 0, "liquidity")
	dollarVolume := schema.NumberOr(raw, 0, "dollar_volume")

	conviction := Conviction(mid)
	tightness := e.Tightness(spread)
	weight := LiquidityWeight(volume, openInterest, dollarVolume, liquidity)

	return models.SignalRecord{
		Event:           event,
		MarketID:        schema.String(row, "market_id"),
		MarketTitle:     schema.String(row, "market_title"),
		MidPrice:        models.RoundPtr(mid, 4),
		Spread:          models.RoundPtr(spread, 4),
		Volume:          volume,
		OpenInterest:    openInterest,
		Liquidity:       liquidity,
		DollarVolume:    dollarVolume,
		Conviction:      models.Round(conviction, 4),
		Tightness:       models.Round(tightness, 4),
		LiquidityWeight: models.Round(weight, 6),
		SignalScore:     models.Round(Score(conviction, weight, tightness), 6),
	}
}

// IsResolution reports whether a row is a resolution-style market with a quote.
func (e *Engine) IsResolution(row schema.Record) bool {
	title := strings.ToLower(schema.String(row, "market_title"))
	if !strings.Contains(title, e.opts.ResolutionKeyword) {
		return false
	}
	raw := rawMarket(row)
	for _, k := range quoteKeys {
		if _, ok := raw[k]; ok {
			return true
		}
	}
	return false
}

// Run scores every resolution-style row, groups instances by event, selects
// representatives and ranks matches. An input with no qualifying rows yields
// an empty result, not an error.
func (e *Engine) Run(rows []schema.Record) Result {
	tally := models.NewTally()
	var order []string
	byEvent := make(map[string][]models.SignalRecord)

	for _, row := range rows {
		tally.Processed++
		if !e.IsResolution(row) {
			tally.Skip(models.SkipFiltered)
			continue
		}
		event := schema.String(row, "event_title", "event")
		if event == "" {
			tally.Skip(models.SkipMissingMatchKey)
			continue
		}
		if _, seen := byEvent[event]; !seen {
			order = append(order, event)
		}
		byEvent[event] = append(byEvent[event], e.Record(event, row))
	}

	res := Result{Tally: tally}
	for _, event := range order {
		m := e.summarize(event, byEvent[event])
		if m.BestSignal == nil {
			res.Unscored = append(res.Unscored, m)
			continue
		}
		res.Matches = append(res.Matches, m)
	}
	Rank(res.Matches)
	return res
}

func (e *Engine) summarize(event string, instances []models.SignalRecord) models.MatchSignal {
	var priced, unpriced []models.SignalRecord
	for _, s := range instances {
		if s.Priced() {
			priced = append(priced, s)
		} else {
			unpriced = append(unpriced, s)
		}
	}
	SortInstances(priced)

	m := models.MatchSignal{Event: event, Unpriced: unpriced, TopInstances: []models.SignalRecord{}}
	if len(priced) == 0 {
		return m
	}
	best := priced[0]
	m.BestSignal = &best
	m.Volume = best.Volume
	m.OpenInterest = best.OpenInterest
	m.Conviction = best.Conviction
	if len(priced) > e.opts.TopInstances {
		priced = priced[:e.opts.TopInstances]
	}
	m.TopInstances = priced
	return m
}

// SortInstances orders by (signal_score, dollar_volume, volume) descending.
// Full ties keep input order.
func SortInstances(s []models.SignalRecord) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.SignalScore != b.SignalScore {
			return a.SignalScore > b.SignalScore
		}
		if a.DollarVolume != b.DollarVolume {
			return a.DollarVolume > b.DollarVolume
		}
		return a.Volume > b.Volume
	})
}

// Rank sorts matches by best score descending and assigns 1-based dense
// ranks; equal scores share a rank.
func Rank(matches []models.MatchSignal) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].BestSignal.SignalScore > matches[j].BestSignal.SignalScore
	})
	rank := 0
	for i := range matches {
		if i == 0 || matches[i].BestSignal.SignalScore != matches[i-1].BestSignal.SignalScore {
			rank++
		}
		matches[i].Rank = rank
	}
}

// rawMarket returns the venue payload kept by the normalizer.
func rawMarket(row schema.Record) schema.Record {
	for _, k := range []string{"raw_payload", "raw_market"} {
		if m, ok := schema.Object(row, k); ok {
			return m
		}
	}
	return schema.Record{}
}

// quote returns the first non-zero alias as a probability. A zero quote means
// no resting order on that side.
func quote(raw schema.Record, aliases []string) *float64 {
	for _, k := range aliases {
		v, ok := schema.Number(raw, k)
		if !ok || v == 0 {
			continue
		}
		return normalize.PricePtr(&v)
	}
	return nil
}
