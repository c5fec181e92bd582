package deepstate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/georefresh/internal/testutil"
)

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient(url, append([]Option{WithRetry(3, 0)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClient_FetchLatest(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(testutil.StandardDeepStateResponse()))
	}))
	defer srv.Close()

	snap, err := newTestClient(t, srv.URL, WithUserAgent("test-agent/1.0")).FetchLatest(context.Background())
	require.NoError(t, err)
	require.Equal(t, "test-agent/1.0", gotUA)
	require.Equal(t, int64(1700000000), snap.ID)
	require.Len(t, snap.Map.Features, 5)
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(testutil.StandardDeepStateResponse()))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchLatest(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchLatest(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_BadBodyIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"id": 1}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchLatest(context.Background())
	require.ErrorIs(t, err, ErrNoMap)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, WithTimeout(20*time.Millisecond), WithRetry(1, 0))
	_, err := c.FetchLatest(context.Background())
	require.Error(t, err)
}

func TestWithRetry_Validation(t *testing.T) {
	_, err := NewClient("", WithRetry(0, time.Second))
	require.Error(t, err)
	_, err = NewClient("", WithRetry(1, -time.Second))
	require.Error(t, err)

	c, err := NewClient("")
	require.NoError(t, err)
	require.Equal(t, DefaultURL, c.url)
	require.Equal(t, 3, c.attempts)
	require.Equal(t, 5*time.Second, c.retryDelay)
	require.Equal(t, 10*time.Second, c.httpClient.Timeout)
}
