package normalize

import (
	"time"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// Snapshot is one decoded raw artifact with its capture metadata.
type Snapshot struct {
	Name     string
	Captured time.Time
	Data     any
}

// Kalshi flattens events[].markets[] into one row per market. Market semantics
// are left to the classifier; the full market object is kept as raw payload.
func Kalshi(snap Snapshot) ([]models.NormalizedRow, *models.Tally, error) {
	root, ok := snap.Data.(map[string]any)
	if !ok {
		return nil, nil, &models.SchemaShapeError{File: snap.Name, Reason: "expected object with events list"}
	}
	if _, ok := root["events"].([]any); !ok {
		return nil, nil, &models.SchemaShapeError{File: snap.Name, Reason: "missing events list"}
	}

	tally := models.NewTally()
	stamp := Stamp(snap.Captured)
	var rows []models.NormalizedRow

	for _, ev := range schema.Objects(root, "events") {
		eventID := schema.String(ev, "ticker", "event_ticker", "id")
		eventTitle := schema.String(ev, "title")
		eventTime := schema.String(ev, "target_datetime", "strike_date")

		rawMarkets, _ := ev["markets"].([]any)
		for _, item := range rawMarkets {
			tally.Processed++
			m, ok := item.(map[string]any)
			if !ok {
				tally.Skip(models.SkipNotObject)
				continue
			}
			marketID := schema.String(m, "ticker", "id")
			if marketID == "" {
				tally.Skip(models.SkipMissingID)
				continue
			}

			bid := PricePtr(schema.NumberPtr(m, schema.YesBidKeys...))
			ask := PricePtr(schema.NumberPtr(m, schema.YesAskKeys...))
			var mid, spread *float64
			if bid != nil && ask != nil && *ask >= *bid {
				mid, spread = MidSpread(bid, ask, 4)
			}

			rows = append(rows, models.NormalizedRow{
				EntityKey:      marketID,
				Source:         models.SourceKalshi,
				Timestamp:      stamp,
				EventID:        eventID,
				EventTitle:     eventTitle,
				EventTime:      eventTime,
				MarketID:       marketID,
				MarketTitle:    schema.String(m, "title"),
				YesPrice:       PricePtr(schema.NumberPtr(m, "yes_price")),
				NoPrice:        PricePtr(schema.NumberPtr(m, "no_price")),
				BestBid:        bid,
				BestAsk:        ask,
				MidPrice:       mid,
				Spread:         spread,
				LastTradePrice: PricePtr(schema.NumberPtr(m, schema.LastPriceKeys...)),
				Volume:         nonNegative(schema.NumberOr(m, 0, "volume")),
				OpenInterest:   nonNegative(schema.NumberOr(m, 0, "open_interest")),
				Snapshot:       snap.Name,
				RawPayload:     m,
			})
		}
	}

	if len(rows) == 0 {
		return nil, tally, models.ErrNoValidRows
	}
	return rows, tally, nil
}
