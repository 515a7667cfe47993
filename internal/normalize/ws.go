package normalize

import (
	"bufio"
	"bytes"
	"encoding/json"
	"time"

	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/schema"
)

const maxLine = 8 << 20

// WSBooks reads a JSON-lines websocket capture and emits one row per "book"
// message. Lines may hold a bare message, a list of messages, or the
// recorder envelope {ts, event, payload}.
func WSBooks(name string, captured time.Time, data []byte) ([]models.NormalizedRow, *models.Tally, error) {
	tally := models.NewTally()
	var rows []models.NormalizedRow

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var decoded any
		if err := json.Unmarshal(line, &decoded); err != nil {
			tally.Processed++
			tally.Skip(models.SkipMalformedLine)
			continue
		}
		fallback := captured
		msgs := unwrapEnvelope(decoded, &fallback)
		if msgs == nil {
			tally.Processed++
			tally.Skip(models.SkipMalformedLine)
			continue
		}
		for _, msg := range msgs {
			tally.Processed++
			if schema.String(msg, "event_type") != "book" {
				tally.Skip(models.SkipFiltered)
				continue
			}
			row, reason := wsBookRow(msg, name, fallback)
			if reason != "" {
				tally.Skip(reason)
				continue
			}
			rows = append(rows, row)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, tally, &models.SchemaShapeError{File: name, Reason: err.Error()}
	}

	if len(rows) == 0 {
		return nil, tally, models.ErrNoValidRows
	}
	return rows, tally, nil
}

// unwrapEnvelope returns the messages carried by one decoded line. When the
// line is a recorder envelope its ts replaces *at.
func unwrapEnvelope(v any, at *time.Time) []schema.Record {
	switch t := v.(type) {
	case []any:
		return schema.AsObjects(t)
	case map[string]any:
		payload, ok := t["payload"]
		if !ok {
			return []schema.Record{t}
		}
		if ts, ok := schema.Number(t, "ts"); ok {
			*at = fromEpoch(ts)
		}
		if s, ok := payload.(string); ok {
			var inner any
			if err := json.Unmarshal([]byte(s), &inner); err != nil {
				return nil
			}
			payload = inner
		}
		var discard time.Time
		return unwrapEnvelope(payload, &discard)
	}
	return nil
}

func wsBookRow(msg schema.Record, name string, fallback time.Time) (models.NormalizedRow, string) {
	assetID := schema.String(msg, "asset_id", "token_id")
	if assetID == "" {
		return models.NormalizedRow{}, models.SkipMissingID
	}
	bids := ParseLevels(msg["bids"])
	asks := ParseLevels(msg["asks"])
	if len(bids) == 0 || len(asks) == 0 {
		return models.NormalizedRow{}, models.SkipEmptyBook
	}
	bestBid, _ := Best(bids, true)
	bestAsk, _ := Best(asks, false)

	var bidVol, askVol float64
	for _, l := range bids {
		bidVol += l.Size
	}
	for _, l := range asks {
		askVol += l.Size
	}
	if bidVol+askVol <= 0 {
		return models.NormalizedRow{}, models.SkipEmptyBook
	}

	at := fallback
	if ts, ok := schema.Number(msg, "timestamp"); ok {
		at = fromEpoch(ts)
	}
	row := models.NormalizedRow{
		EntityKey: assetID,
		Source:    models.SourcePolymarket,
		Timestamp: Stamp(at),
		MarketID:  schema.String(msg, "market"),
		Market:    schema.String(msg, "market"),
		BestBid:   models.Float(bestBid.Price),
		BestAsk:   models.Float(bestAsk.Price),
		BidVolume: models.Float(models.Round(bidVol, 2)),
		AskVolume: models.Float(models.Round(askVol, 2)),
		Imbalance: models.Float(models.Round((bidVol-askVol)/(bidVol+askVol), 4)),
		Snapshot:  name,
	}
	row.MidPrice, row.Spread = MidSpread(row.BestBid, row.BestAsk, 4)
	return row, ""
}

// fromEpoch accepts seconds or milliseconds since the Unix epoch.
func fromEpoch(v float64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	return time.Unix(int64(v), int64((v-float64(int64(v)))*1e9)).UTC()
}
