package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rewired-gh/polyedge/internal/logger"
	"github.com/rewired-gh/polyedge/internal/normalize"
	"github.com/rewired-gh/polyedge/internal/schema"
)

// WSOptions configures one market-channel recording.
type WSOptions struct {
	URL          string
	Channel      string
	AssetIDs     []string
	Duration     time.Duration
	PingInterval time.Duration
}

// WSStats summarizes a finished recording.
type WSStats struct {
	Messages int
	Pings    int
}

// envelope is one JSON line of the capture log.
type envelope struct {
	TS      float64 `json:"ts"`
	Event   string  `json:"event"`
	Payload any     `json:"payload"`
}

// WSRecorder subscribes to the order-book websocket and appends every
// message it receives to a JSON-lines log.
type WSRecorder struct {
	opts      WSOptions
	dialer    *websocket.Dialer
	now       func() time.Time
	onMessage func()
}

// NewWSRecorder creates a recorder with the default dialer.
func NewWSRecorder(opts WSOptions) *WSRecorder {
	return &WSRecorder{
		opts:      opts,
		dialer:    websocket.DefaultDialer,
		now:       time.Now,
		onMessage: func() {},
	}
}

// WithClock overrides the envelope timestamp source.
func (r *WSRecorder) WithClock(now func() time.Time) *WSRecorder {
	r.now = now
	return r
}

// WithMessageHook registers a callback run after each recorded message.
func (r *WSRecorder) WithMessageHook(fn func()) *WSRecorder {
	if fn != nil {
		r.onMessage = fn
	}
	return r
}

// Record connects, subscribes and writes envelopes to w until the duration
// elapses, ctx is cancelled or the server closes the stream normally.
func (r *WSRecorder) Record(ctx context.Context, w io.Writer) (WSStats, error) {
	var stats WSStats
	if len(r.opts.AssetIDs) == 0 {
		return stats, errors.New("no asset ids to subscribe to")
	}
	if r.opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Duration)
		defer cancel()
	}

	conn, _, err := r.dialer.DialContext(ctx, r.opts.URL, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to connect to %s: %w", r.opts.URL, err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	if err := send(map[string]any{
		"type":      "subscribe",
		"channel":   r.opts.Channel,
		"asset_ids": r.opts.AssetIDs,
	}); err != nil {
		return stats, fmt.Errorf("failed to subscribe: %w", err)
	}
	logger.Info("subscribed to %d assets on %s", len(r.opts.AssetIDs), r.opts.URL)

	done := make(chan error, 1)
	go func() {
		enc := json.NewEncoder(w)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			var payload any = string(msg)
			if json.Valid(msg) {
				payload = json.RawMessage(msg)
			}
			if err := enc.Encode(envelope{TS: epoch(r.now()), Event: "message", Payload: payload}); err != nil {
				done <- fmt.Errorf("failed to write capture: %w", err)
				return
			}
			stats.Messages++
			r.onMessage()
		}
	}()

	var pings <-chan time.Time
	if r.opts.PingInterval > 0 {
		ticker := time.NewTicker(r.opts.PingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			writeMu.Unlock()
			conn.Close()
			<-done
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return stats, nil
			}
			return stats, ctx.Err()
		case err := <-done:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return stats, nil
			}
			return stats, fmt.Errorf("websocket read failed: %w", err)
		case <-pings:
			if err := send(map[string]any{"type": "ping", "ts": epoch(r.now())}); err != nil {
				logger.Warn("failed to send ping: %v", err)
				continue
			}
			stats.Pings++
		}
	}
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// TopAssets returns up to n asset ids from a raw books snapshot, most
// frequent first and first-seen among ties.
func TopAssets(data any, n int) []string {
	var items []any
	switch t := data.(type) {
	case []any:
		items = t
	case map[string]any:
		items, _ = t["books"].([]any)
	}

	counts := make(map[string]int)
	var order []string
	for _, item := range items {
		book, ok := normalize.UnwrapBook(item)
		if !ok {
			continue
		}
		id := schema.String(book, schema.TokenIDKeys...)
		if id == "" {
			continue
		}
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if n > 0 && len(order) > n {
		order = order[:n]
	}
	return order
}
