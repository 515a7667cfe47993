package polymarket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/polyedge/internal/capture"
)

func newTestClient(srv *httptest.Server) *Client {
	hc := capture.NewClient(5*time.Second, 1, 1000)
	return NewClient(srv.URL, srv.URL, hc)
}

func TestFetchEventsPaginates(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "volume24hr", r.URL.Query().Get("order"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		offsets = append(offsets, r.URL.Query().Get("offset"))
		if r.URL.Query().Get("offset") == "0" {
			_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"3"}]`))
	}))
	defer srv.Close()

	events, err := newTestClient(srv).FetchEvents(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, []string{"0", "2"}, offsets)
}

func TestFetchEventsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchEvents(context.Background(), 10, 1)
	assert.Error(t, err)
}

func TestFetchBooksChunks(t *testing.T) {
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/books", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req []map[string]string
		assert.NoError(t, json.Unmarshal(body, &req))
		sizes = append(sizes, len(req))
		var out []map[string]any
		for _, q := range req {
			out = append(out, map[string]any{"asset_id": q["token_id"], "bids": []any{}, "asks": []any{}})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	books, err := newTestClient(srv).FetchBooks(context.Background(), []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Len(t, books, 5)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestTokenIDs(t *testing.T) {
	events := []json.RawMessage{
		json.RawMessage(`{"id":"e1","markets":[
			{"id":"m1","clobTokenIds":"[\"111\",\"112\"]"},
			{"id":"m2","closed":true,"clobTokenIds":"[\"999\"]"}
		]}`),
		json.RawMessage(`not json`),
		json.RawMessage(`{"id":"e2","markets":[
			{"id":"m3","clobTokenIds":["112","221"]},
			{"id":"m4"}
		]}`),
	}
	assert.Equal(t, []string{"111", "112", "221"}, TokenIDs(events, 0))
	assert.Equal(t, []string{"111", "112"}, TokenIDs(events, 2))
}
