package capture

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(retries int, outcomes *[]string) *Client {
	return NewClient(5*time.Second, retries, 1000).
		WithBackoff(time.Millisecond).
		WithObserver(func(o string) { *outcomes = append(*outcomes, o) })
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var outcomes []string
	body, err := testClient(3, &outcomes).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{OutcomeRetry, OutcomeOK}, outcomes)
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var outcomes []string
	_, err := testClient(3, &outcomes).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, OutcomeError, outcomes[len(outcomes)-1])
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such market", http.StatusNotFound)
	}))
	defer srv.Close()

	var outcomes []string
	_, err := testClient(3, &outcomes).Get(context.Background(), srv.URL, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Contains(t, se.Body, "no such market")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{OutcomeError}, outcomes)
}

func TestClientGetMergesParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var outcomes []string
	_, err := testClient(1, &outcomes).Get(context.Background(), srv.URL+"?status=open", url.Values{"limit": {"100"}})
	require.NoError(t, err)
}

func TestClientPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	var outcomes []string
	body, err := testClient(1, &outcomes).Post(context.Background(), srv.URL, []byte(`[{"token_id":"111"}]`))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"token_id":"111"}]`, string(body))
}

func TestClientCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var outcomes []string
	_, err := testClient(3, &outcomes).Get(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
