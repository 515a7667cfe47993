package normalize

import (
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// Level is one price/size entry of an order book side.
type Level struct {
	Price float64
	Size  float64
}

// bookVariants locate the object holding bids/asks, in priority order.
var bookVariants = []schema.Variant[schema.Record]{
	{Name: "bare", Match: func(d any) (schema.Record, bool) {
		m, ok := d.(map[string]any)
		if !ok {
			return nil, false
		}
		_, bids := m["bids"]
		_, asks := m["asks"]
		_, tok := schema.Lookup(m, schema.TokenIDKeys)
		return m, bids || asks || tok
	}},
	{Name: "data", Match: func(d any) (schema.Record, bool) {
		m, ok := d.(map[string]any)
		if !ok {
			return nil, false
		}
		return schema.Object(m, "data")
	}},
	{Name: "book", Match: func(d any) (schema.Record, bool) {
		m, ok := d.(map[string]any)
		if !ok {
			return nil, false
		}
		return schema.Object(m, "book")
	}},
}

// UnwrapBook returns the book object inside one raw record.
func UnwrapBook(raw any) (schema.Record, bool) {
	book, _, ok := schema.Parse(raw, bookVariants...)
	return book, ok
}

// ParseLevels reads [price, size] pairs or {price, size} objects, with either
// numeric or string values. Unparseable entries are dropped.
func ParseLevels(v any) []Level {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	levels := make([]Level, 0, len(arr))
	for _, item := range arr {
		var p, s any
		switch t := item.(type) {
		case []any:
			if len(t) < 2 {
				continue
			}
			p, s = t[0], t[1]
		case map[string]any:
			p, s = t["price"], t["size"]
		default:
			continue
		}
		price, ok1 := schema.ToFloat(p)
		size, ok2 := schema.ToFloat(s)
		if !ok1 || !ok2 {
			continue
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels
}

// Best returns the highest-priced level for bids and the lowest for asks.
func Best(levels []Level, bid bool) (Level, bool) {
	if len(levels) == 0 {
		return Level{}, false
	}
	best := levels[0]
	for _, l := range levels[1:] {
		if (bid && l.Price > best.Price) || (!bid && l.Price < best.Price) {
			best = l
		}
	}
	return best, true
}

// Books normalizes a captured list of order books into one row per token.
// Records without a token id, or with neither side of the book, are skipped.
func Books(snap Snapshot) ([]models.NormalizedRow, *models.Tally, error) {
	items, ok := bookList(snap.Data)
	if !ok {
		return nil, nil, &models.SchemaShapeError{File: snap.Name, Reason: "expected list of books"}
	}

	tally := models.NewTally()
	stamp := Stamp(snap.Captured)
	var rows []models.NormalizedRow

	for _, item := range items {
		tally.Processed++
		book, ok := UnwrapBook(item)
		if !ok {
			tally.Skip(models.SkipNotObject)
			continue
		}
		tokenID := schema.String(book, schema.TokenIDKeys...)
		if tokenID == "" {
			tally.Skip(models.SkipMissingID)
			continue
		}
		bid, hasBid := Best(ParseLevels(book["bids"]), true)
		ask, hasAsk := Best(ParseLevels(book["asks"]), false)
		if !hasBid && !hasAsk {
			tally.Skip(models.SkipEmptyBook)
			continue
		}

		row := models.NormalizedRow{
			EntityKey:  tokenID,
			Source:     models.SourcePolymarket,
			Timestamp:  stamp,
			MarketID:   schema.String(book, "market", "condition_id"),
			Market:     schema.String(book, "market"),
			Snapshot:   snap.Name,
			RawPayload: book,
		}
		liquidity := 0.0
		if hasBid {
			row.BestBid = models.Float(bid.Price)
			row.TopBidSize = models.Float(bid.Size)
			liquidity += bid.Size
		}
		if hasAsk {
			row.BestAsk = models.Float(ask.Price)
			row.TopAskSize = models.Float(ask.Size)
			liquidity += ask.Size
		}
		row.MidPrice, row.Spread = MidSpread(row.BestBid, row.BestAsk, 6)
		row.Liquidity = models.Float(models.Round(liquidity, 6))
		row.LastTradePrice = schema.NumberPtr(book, "last_trade_price")
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, tally, models.ErrNoValidRows
	}
	return rows, tally, nil
}

func bookList(data any) ([]any, bool) {
	switch t := data.(type) {
	case []any:
		return t, true
	case map[string]any:
		if books, ok := t["books"].([]any); ok {
			return books, true
		}
		return []any{t}, true
	}
	return nil, false
}
