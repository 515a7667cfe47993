// Package models defines the pipeline's data shapes: normalized rows, computed
// signal/delta/arb records, the reports that wrap them, and the error taxonomy.
package models

import (
	"encoding/json"
	"errors"
)

// Source identifies the upstream venue a row came from.
type Source string

const (
	SourceKalshi     Source = "kalshi"
	SourcePolymarket Source = "polymarket"
	SourceBookmaker  Source = "bookmaker-365"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceKalshi, SourcePolymarket, SourceBookmaker:
		return true
	}
	return false
}

// TaxonomyUnknown is assigned when no classifier rule matches a title.
const TaxonomyUnknown = "UNKNOWN"

// NormalizedRow is the common currency of the pipeline. Prices are
// probabilities in [0,1]; nil means the upstream value was absent or unusable.
// Taxonomy is added by the classifier and never overwritten afterwards.
type NormalizedRow struct {
	EntityKey   string `json:"entity_key"`
	Source      Source `json:"source"`
	Timestamp   string `json:"timestamp"`
	EventID     string `json:"event_id,omitempty"`
	EventTitle  string `json:"event_title,omitempty"`
	EventTime   string `json:"event_time,omitempty"`
	MarketID    string `json:"market_id,omitempty"`
	MarketTitle string `json:"market_title,omitempty"`

	YesPrice       *float64 `json:"yes_price"`
	NoPrice        *float64 `json:"no_price,omitempty"`
	BestBid        *float64 `json:"best_bid"`
	BestAsk        *float64 `json:"best_ask"`
	MidPrice       *float64 `json:"mid_price,omitempty"`
	Spread         *float64 `json:"spread,omitempty"`
	LastTradePrice *float64 `json:"last_trade_price,omitempty"`

	Volume       float64  `json:"volume"`
	OpenInterest float64  `json:"open_interest"`
	TopBidSize   *float64 `json:"top_bid_size,omitempty"`
	TopAskSize   *float64 `json:"top_ask_size,omitempty"`
	Liquidity    *float64 `json:"liquidity,omitempty"`
	BidVolume    *float64 `json:"bid_volume,omitempty"`
	AskVolume    *float64 `json:"ask_volume,omitempty"`
	Imbalance    *float64 `json:"imbalance,omitempty"`

	Market     string         `json:"market,omitempty"`
	Snapshot   string         `json:"raw_snapshot,omitempty"`
	Taxonomy   string         `json:"taxonomy,omitempty"`
	RawPayload map[string]any `json:"raw_payload,omitempty"`
}

// UnmarshalJSON also accepts the older row layouts: raw_market instead of
// raw_payload, token_id or asset_id instead of entity_key, liquidity_proxy.
func (r *NormalizedRow) UnmarshalJSON(data []byte) error {
	type plain NormalizedRow
	aux := struct {
		*plain
		RawMarket      map[string]any `json:"raw_market"`
		TokenID        string         `json:"token_id"`
		AssetID        string         `json:"asset_id"`
		LiquidityProxy *float64       `json:"liquidity_proxy"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.RawPayload == nil {
		r.RawPayload = aux.RawMarket
	}
	if r.Liquidity == nil {
		r.Liquidity = aux.LiquidityProxy
	}
	for _, k := range []string{aux.TokenID, aux.AssetID, r.MarketID} {
		if r.EntityKey == "" {
			r.EntityKey = k
		}
	}
	return nil
}

// Price returns the row's headline probability: yes_price, else the book mid.
func (r *NormalizedRow) Price() (float64, bool) {
	if r.YesPrice != nil {
		return *r.YesPrice, true
	}
	if r.MidPrice != nil {
		return *r.MidPrice, true
	}
	return 0, false
}

// Validate checks the invariants a row must satisfy before downstream scoring.
func (r *NormalizedRow) Validate() error {
	if r.EntityKey == "" {
		return errors.New("entity key must not be empty")
	}
	if !r.Source.Valid() {
		return errors.New("source must be one of kalshi, polymarket, bookmaker-365")
	}
	p, ok := r.Price()
	if !ok {
		return errors.New("price must not be null")
	}
	if p < 0 || p > 1 {
		return errors.New("price must be between 0.0 and 1.0")
	}
	if r.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	if r.OpenInterest < 0 {
		return errors.New("open interest must not be negative")
	}
	return nil
}

// ThreeWay holds one value per outcome of a home/draw/away market.
type ThreeWay struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// Sum adds the three outcomes.
func (t ThreeWay) Sum() float64 {
	return t.Home + t.Draw + t.Away
}

// BookmakerMatch is one deduplicated full-time-result market from a bookmaker.
type BookmakerMatch struct {
	CanonicalMatch string   `json:"canonical_match"`
	HomeTeam       string   `json:"home_team"`
	AwayTeam       string   `json:"away_team"`
	StartTime      string   `json:"start_time"`
	Bookmaker      string   `json:"bookmaker"`
	Market         string   `json:"market"`
	Odds           ThreeWay `json:"odds"`
	ImpliedProb    ThreeWay `json:"implied_prob"`
	Overround      float64  `json:"overround"`
	Source         Source   `json:"source"`
	Timestamp      string   `json:"timestamp"`
	Snapshot       string   `json:"snapshot"`
}

// OutcomeMeta is the human-readable context for one exchange token id.
type OutcomeMeta struct {
	TokenID        string `json:"asset_id"`
	EventID        string `json:"event_id,omitempty"`
	EventTitle     string `json:"event_title"`
	MarketID       string `json:"market_id,omitempty"`
	MarketQuestion string `json:"market_question,omitempty"`
	OutcomeLabel   string `json:"outcome,omitempty"`
	Side           string `json:"side,omitempty"`
	Category       string `json:"category,omitempty"`
	Slug           string `json:"slug,omitempty"`
}

// JoinedRow is an order-book row enriched with its outcome metadata.
type JoinedRow struct {
	OutcomeMeta
	Source         Source   `json:"source"`
	Timestamp      string   `json:"timestamp"`
	BestBid        *float64 `json:"best_bid"`
	BestAsk        *float64 `json:"best_ask"`
	MidPrice       *float64 `json:"mid_price"`
	Spread         *float64 `json:"spread"`
	Liquidity      *float64 `json:"liquidity"`
	LastTradePrice *float64 `json:"last_trade_price,omitempty"`
}
