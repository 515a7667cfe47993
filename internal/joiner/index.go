// Package joiner attaches event and outcome metadata to order-book rows by
// exchange token id.
package joiner

import (
	"github.com/rewired-gh/polyedge/internal/models"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// outcomeListKeys name the per-market outcome arrays seen across payloads.
var outcomeListKeys = []string{"outcomes", "tokens", "marketTokens"}

// TokenIndex maps token ids to outcome metadata. It is rebuilt whole from one
// metadata snapshot and never updated in place.
type TokenIndex struct {
	byToken map[string]models.OutcomeMeta
	markets int
}

// Len is the number of token mappings.
func (ix *TokenIndex) Len() int {
	return len(ix.byToken)
}

// Markets is the number of market records that contributed mappings.
func (ix *TokenIndex) Markets() int {
	return ix.markets
}

// Lookup returns the metadata for one token id.
func (ix *TokenIndex) Lookup(tokenID string) (models.OutcomeMeta, bool) {
	m, ok := ix.byToken[tokenID]
	return m, ok
}

// metadataVariants locate the list of event-or-market records in a metadata
// snapshot, in priority order.
var metadataVariants = []schema.Variant[[]schema.Record]{
	{Name: "list", Match: func(d any) ([]schema.Record, bool) {
		if _, ok := d.([]any); !ok {
			return nil, false
		}
		return schema.AsObjects(d), true
	}},
	{Name: "pagination", Match: func(d any) ([]schema.Record, bool) {
		return listUnder(d, "data")
	}},
	{Name: "events", Match: func(d any) ([]schema.Record, bool) {
		return listUnder(d, "events")
	}},
	{Name: "markets", Match: func(d any) ([]schema.Record, bool) {
		return listUnder(d, "markets")
	}},
}

func listUnder(d any, key string) ([]schema.Record, bool) {
	m, ok := d.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, ok := m[key].([]any); !ok {
		return nil, false
	}
	return schema.Objects(m, key), true
}

// BuildIndex reads a metadata snapshot: a Gamma pagination page, a list of
// events with nested markets, a flat list of markets, or a CLOB token listing.
// Outcomes may be objects carrying their own token id, bare token-id strings,
// or a clobTokenIds array paired by position with outcome names. When a token
// appears twice the last occurrence wins.
func BuildIndex(file string, data any) (*TokenIndex, error) {
	records, _, ok := schema.Parse(data, metadataVariants...)
	if !ok {
		return nil, &models.SchemaShapeError{File: file, Reason: "expected event or market listing"}
	}

	ix := &TokenIndex{byToken: make(map[string]models.OutcomeMeta)}
	for _, rec := range records {
		if markets, ok := rec["markets"].([]any); ok {
			for _, m := range schema.AsObjects(markets) {
				ix.addMarket(rec, m)
			}
			continue
		}
		ix.addMarket(nil, rec)
	}
	return ix, nil
}

func (ix *TokenIndex) addMarket(event, market schema.Record) {
	base := models.OutcomeMeta{
		EventID:        schema.String(event, "id", "event_id"),
		EventTitle:     schema.String(event, "title", "event_title"),
		MarketID:       schema.String(market, "condition_id", "conditionId", "market_id", "marketId", "id"),
		MarketQuestion: schema.String(market, "question", "market_question", "title"),
		Category:       firstNonEmpty(schema.String(market, "category"), schema.String(event, "category")),
		Slug:           firstNonEmpty(schema.String(market, "market_slug", "slug"), schema.String(event, "slug")),
	}
	if base.EventTitle == "" {
		base.EventTitle = schema.String(market, "event_title", "title", "question")
	}

	added := 0
	for _, o := range outcomesOf(market) {
		meta := base
		meta.TokenID = o.tokenID
		meta.OutcomeLabel = o.label
		meta.Side = o.side
		ix.byToken[o.tokenID] = meta
		added++
	}
	if added > 0 {
		ix.markets++
	}
}

type outcome struct {
	tokenID string
	label   string
	side    string
}

// outcomesOf normalizes the outcome shapes of one market record.
func outcomesOf(market schema.Record) []outcome {
	if ids := schema.StringList(market["clobTokenIds"]); len(ids) > 0 {
		labels := schema.StringList(market["outcomes"])
		out := make([]outcome, 0, len(ids))
		for i, id := range ids {
			o := outcome{tokenID: id}
			if i < len(labels) {
				o.label = labels[i]
			}
			out = append(out, o)
		}
		return out
	}

	for _, key := range outcomeListKeys {
		items, ok := market[key].([]any)
		if !ok {
			continue
		}
		out := make([]outcome, 0, len(items))
		for _, item := range items {
			switch t := item.(type) {
			case map[string]any:
				id := schema.String(t, schema.ClobIDKeys...)
				if id == "" {
					continue
				}
				out = append(out, outcome{
					tokenID: id,
					label:   schema.String(t, schema.LabelKeys...),
					side:    schema.String(t, "side"),
				})
			default:
				if id := schema.String(schema.Record{"id": t}, "id"); id != "" {
					out = append(out, outcome{tokenID: id})
				}
			}
		}
		return out
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
