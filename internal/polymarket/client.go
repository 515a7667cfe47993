// Package polymarket fetches Gamma event metadata and CLOB order books.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rewired-gh/polyedge/internal/capture"
	"github.com/rewired-gh/polyedge/internal/logger"
)

// Client provides access to the Polymarket Gamma and CLOB APIs
type Client struct {
	gammaAPIURL string
	clobAPIURL  string
	http        *capture.Client
}

// PolymarketEvent is the part of a Gamma event needed to pick tokens
type PolymarketEvent struct {
	ID      string             `json:"id"`
	Title   string             `json:"title"`
	Markets []PolymarketMarket `json:"markets"`
}

// PolymarketMarket is the part of a Gamma market needed to pick tokens
type PolymarketMarket struct {
	ID           string          `json:"id"`
	ConditionID  string          `json:"conditionId"`
	Question     string          `json:"question"`
	Closed       bool            `json:"closed"`
	ClobTokenIds json.RawMessage `json:"clobTokenIds"` // JSON string "[\"t1\",\"t2\"]" or a list
}

// NewClient creates a new Polymarket client
func NewClient(gammaAPIURL, clobAPIURL string, hc *capture.Client) *Client {
	return &Client{
		gammaAPIURL: gammaAPIURL,
		clobAPIURL:  clobAPIURL,
		http:        hc,
	}
}

// FetchEvents pages through active events ordered by 24h volume, limit per
// page, until a short page or maxPages. Events are returned verbatim.
func (c *Client) FetchEvents(ctx context.Context, limit, maxPages int) ([]json.RawMessage, error) {
	if limit < 1 {
		limit = 100
	}
	if maxPages < 1 {
		maxPages = 1
	}

	events := []json.RawMessage{}
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("active", "true")
		q.Set("closed", "false")
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(page*limit))
		q.Set("order", "volume24hr")
		q.Set("ascending", "false")

		body, err := c.http.Get(ctx, c.gammaAPIURL+"/events", q)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events: %w", err)
		}
		// Response is array directly, not wrapped
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode events: %w", err)
		}
		events = append(events, batch...)
		logger.Debug("gamma page %d: %d events", page+1, len(batch))
		if len(batch) < limit {
			break
		}
	}
	return events, nil
}

// FetchBooks requests order books for tokenIDs, chunk ids per POST /books.
func (c *Client) FetchBooks(ctx context.Context, tokenIDs []string, chunk int) ([]json.RawMessage, error) {
	if chunk < 1 {
		chunk = 50
	}
	books := []json.RawMessage{}
	for start := 0; start < len(tokenIDs); start += chunk {
		end := min(start+chunk, len(tokenIDs))
		req := make([]map[string]string, 0, end-start)
		for _, id := range tokenIDs[start:end] {
			req = append(req, map[string]string{"token_id": id})
		}
		payload, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("failed to encode book request: %w", err)
		}
		body, err := c.http.Post(ctx, c.clobAPIURL+"/books", payload)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch books: %w", err)
		}
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode books: %w", err)
		}
		books = append(books, batch...)
	}
	return books, nil
}

// TokenIDs lists the CLOB token ids of open markets in event order, without
// duplicates, stopping at max when max > 0. Undecodable events are skipped.
func TokenIDs(events []json.RawMessage, max int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range events {
		var ev PolymarketEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		for _, m := range ev.Markets {
			if m.Closed {
				continue
			}
			for _, id := range parseStringList(m.ClobTokenIds) {
				if id == "" || seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, id)
				if max > 0 && len(out) == max {
					return out
				}
			}
		}
	}
	return out
}

// parseStringList accepts a JSON list or a JSON string holding a list.
func parseStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil
	}
	return list
}
