// Package normalize maps raw venue snapshots onto the common row schema.
package normalize

import (
	"math"
	"time"

	"github.com/rewired-gh/polyedge/internal/models"
)

// TimeLayout is the ISO-8601 UTC form used in row timestamps.
const TimeLayout = "2006-01-02T15:04:05Z"

// Price converts a quoted price into a probability. Values in (1, 100] are
// read as hundredths; negatives, NaN and anything above 100 are rejected.
// Applying Price to its own output is a no-op.
func Price(p float64) (float64, bool) {
	switch {
	case math.IsNaN(p) || math.IsInf(p, 0) || p < 0:
		return 0, false
	case p <= 1:
		return p, true
	case p <= 100:
		return p / 100, true
	}
	return 0, false
}

// PricePtr applies Price through a nil-able value; unusable prices become nil.
func PricePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v, ok := Price(*p)
	if !ok {
		return nil
	}
	return &v
}

// MidSpread derives a mid and spread from a book's best levels. A one-sided
// book yields neither.
func MidSpread(bid, ask *float64, places int32) (mid, spread *float64) {
	if bid == nil || ask == nil {
		return nil, nil
	}
	m := models.Round((*bid+*ask)/2, places)
	s := models.Round(*ask-*bid, places)
	return &m, &s
}

// Stamp formats a capture time for row timestamps.
func Stamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// nonNegative clamps counters that upstreams occasionally report as negative.
func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
