package arb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/schema"
)

func tg(market string, yes any, volume float64) schema.Record {
	return schema.Record{
		"taxonomy":     "TOTAL_GOALS",
		"event_title":  "Arsenal vs Chelsea",
		"market_title": market,
		"yes_price":    yes,
		"volume":       volume,
	}
}

func TestScore(t *testing.T) {
	rows := []schema.Record{
		tg("Over 1.5", 80.0, 100),
		tg("Over 2.5", 0.5, 1000),
		tg("Over 3.5", 20.0, 0),
		tg("Over 4.5", nil, 50),
		{"taxonomy": "MATCH_WINNER", "yes_price": 0.4},
		tg("Over 5.5", 250.0, 10),
	}
	res := Score(rows, DefaultTaxonomy)

	assert.Equal(t, 0.5, res.Baseline)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, 6, res.Tally.Processed)
	assert.Equal(t, 1, res.Tally.Skipped[models.SkipFiltered])
	assert.Equal(t, 1, res.Tally.Skipped[models.SkipMissingPrice])
	assert.Equal(t, 1, res.Tally.Skipped[models.SkipBadNumber])

	first := res.Rows[0]
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "Over 1.5", first.Market)
	assert.Equal(t, 0.8, first.Probability)
	assert.Equal(t, 0.3, first.Deviation)
	assert.InDelta(t, models.Round(0.3*math.Log(101), 5), first.ArbScore, 1e-12)

	assert.Equal(t, "Over 2.5", res.Rows[1].Market)
	assert.Zero(t, res.Rows[1].ArbScore)
	assert.Equal(t, 2, res.Rows[1].Rank)
	assert.Equal(t, "Over 3.5", res.Rows[2].Market)
	assert.Zero(t, res.Rows[2].ArbScore)
	assert.Equal(t, 2, res.Rows[2].Rank)

	for i := 1; i < len(res.Rows); i++ {
		assert.GreaterOrEqual(t, res.Rows[i-1].ArbScore, res.Rows[i].ArbScore)
	}
}

func TestScoreEmpty(t *testing.T) {
	res := Score([]schema.Record{{"taxonomy": "MATCH_WINNER", "yes_price": 0.4}}, DefaultTaxonomy)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)
	assert.Zero(t, res.Baseline)
}
