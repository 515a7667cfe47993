package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/normalize"
)

// KalshiSnapshot is the raw events_* artifact written by the HTTP capture.
type KalshiSnapshot struct {
	Source    string            `json:"source"`
	League    string            `json:"league,omitempty"`
	FetchedAt string            `json:"fetched_at"`
	Pages     int               `json:"pages"`
	Events    []json.RawMessage `json:"events"`
}

type kalshiPage struct {
	Events []json.RawMessage `json:"events"`
	Cursor string            `json:"cursor"`
}

// KalshiOptions configures one events capture.
type KalshiOptions struct {
	URL      string
	Params   map[string]string
	League   string
	MaxPages int
}

// FetchKalshi pages through the events endpoint following the response
// cursor until it is empty or MaxPages is reached.
func FetchKalshi(ctx context.Context, c *Client, opts KalshiOptions, now time.Time) (*KalshiSnapshot, error) {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	snap := &KalshiSnapshot{
		Source:    "kalshi",
		League:    opts.League,
		FetchedAt: normalize.Stamp(now),
		Events:    []json.RawMessage{},
	}

	cursor := ""
	for snap.Pages < opts.MaxPages {
		params := url.Values{}
		for k, v := range opts.Params {
			params.Set(k, v)
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := c.Get(ctx, opts.URL, params)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch kalshi events: %w", err)
		}
		var page kalshiPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to decode kalshi events: %w", err)
		}
		snap.Pages++
		snap.Events = append(snap.Events, page.Events...)
		logger.Debug("kalshi page %d: %d events", snap.Pages, len(page.Events))

		if page.Cursor == "" || page.Cursor == cursor {
			break
		}
		cursor = page.Cursor
	}
	return snap, nil
}
