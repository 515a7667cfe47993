package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/normalize"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSRecorderWritesEnvelopes(t *testing.T) {
	subs := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event_type":"book","asset_id":"111","market":"0xabc","bids":[{"price":"0.40","size":"100"}],"asks":[{"price":"0.44","size":"50"}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`PONG`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var hooked int
	rec := NewWSRecorder(WSOptions{
		URL:      wsURL(srv),
		Channel:  "market",
		AssetIDs: []string{"111", "222"},
		Duration: 5 * time.Second,
	}).WithClock(func() time.Time { return now }).WithMessageHook(func() { hooked++ })

	var buf bytes.Buffer
	stats, err := rec.Record(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Messages)
	assert.Equal(t, 2, hooked)

	sub := <-subs
	assert.Equal(t, "subscribe", sub["type"])
	assert.Equal(t, "market", sub["channel"])
	assert.Equal(t, []any{"111", "222"}, sub["asset_ids"])

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "message", first["event"])
	assert.Equal(t, 1772355600.0, first["ts"])
	assert.Contains(t, lines[1], `"payload":"PONG"`)

	rows, tally, err := normalize.WSBooks("ws_asset_messages_2026-03-01T09-00-00Z.jsonl", now, buf.Bytes())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "111", rows[0].EntityKey)
	assert.Equal(t, 1, tally.SkippedTotal())
}

func TestWSRecorderStopsAfterDuration(t *testing.T) {
	received := make(chan string, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			typ, _ := msg["type"].(string)
			select {
			case received <- typ:
			default:
			}
		}
	}))
	defer srv.Close()

	rec := NewWSRecorder(WSOptions{
		URL:          wsURL(srv),
		Channel:      "market",
		AssetIDs:     []string{"111"},
		Duration:     300 * time.Millisecond,
		PingInterval: 40 * time.Millisecond,
	})
	var buf bytes.Buffer
	stats, err := rec.Record(context.Background(), &buf)
	require.NoError(t, err)
	assert.Zero(t, stats.Messages)
	assert.GreaterOrEqual(t, stats.Pings, 1)
	assert.Empty(t, buf.String())

	assert.Equal(t, "subscribe", <-received)
	assert.Equal(t, "ping", <-received)
}

func TestWSRecorderRequiresAssets(t *testing.T) {
	_, err := NewWSRecorder(WSOptions{URL: "ws://127.0.0.1:1"}).Record(context.Background(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestTopAssets(t *testing.T) {
	data := []any{
		map[string]any{"asset_id": "222"},
		map[string]any{"asset_id": "111"},
		map[string]any{"asset_id": "111"},
		map[string]any{"market": "no id"},
		map[string]any{"asset_id": "333"},
	}
	assert.Equal(t, []string{"111", "222"}, TopAssets(data, 2))
	assert.Equal(t, []string{"111", "222", "333"}, TopAssets(map[string]any{"books": data}, 0))
	assert.Empty(t, TopAssets("nope", 3))
}
