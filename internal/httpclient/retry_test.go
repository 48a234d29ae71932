package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRetryingClient(t *testing.T, maxRetries int) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClientBuilder(zerolog.Nop()).Build()
	require.NoError(t, err)
	client.retryHandler = NewRetryHandler(RetryHandlerConfig{
		MaxRetries:       maxRetries,
		BaseDelay:        1 * time.Millisecond,
		MaxDelay:         10 * time.Millisecond,
		RetryStatusCodes: []int{http.StatusTooManyRequests, http.StatusServiceUnavailable},
	}, zerolog.Nop())
	return client
}

func TestRetryHandler(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))
		if atomic.AddInt32(&requestCount, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newRetryingClient(t, 3)
	resp, err := client.Do(&HTTPRequest{
		URL:    server.URL,
		Method: "POST",
		Body:   bytes.NewReader([]byte("payload")),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requestCount))
}

func TestRetryHandler_MaxRetriesExceeded(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newRetryingClient(t, 2)
	resp, err := client.Do(&HTTPRequest{URL: server.URL, Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&requestCount))
}

func TestRetryHandler_NonRetryableStatus(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newRetryingClient(t, 3)
	resp, err := client.Do(&HTTPRequest{URL: server.URL, Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
}

func TestRetryHandler_ContextCancelled(t *testing.T) {
	rh := NewRetryHandler(RetryHandlerConfig{
		MaxRetries:       3,
		BaseDelay:        time.Second,
		MaxDelay:         time.Second,
		RetryStatusCodes: []int{http.StatusTooManyRequests},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	do := func(*HTTPRequest) (*HTTPResponse, error) {
		calls++
		cancel()
		return &HTTPResponse{StatusCode: http.StatusTooManyRequests}, nil
	}

	_, err := rh.DoWithRetry(ctx, do, &HTTPRequest{URL: "http://x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateDelay(t *testing.T) {
	rh := NewRetryHandler(RetryHandlerConfig{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
	}, zerolog.Nop())

	assert.Equal(t, 100*time.Millisecond, rh.CalculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, rh.CalculateDelay(1))
	assert.Equal(t, 400*time.Millisecond, rh.CalculateDelay(2))
	assert.Equal(t, 500*time.Millisecond, rh.CalculateDelay(5))

	jittered := NewRetryHandler(RetryHandlerConfig{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		EnableJitter: true,
	}, zerolog.Nop())
	d := jittered.CalculateDelay(0)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.Less(t, d, 110*time.Millisecond)
}

func TestRetryHandler_HonorsRetryAfter(t *testing.T) {
	rh := NewRetryHandler(RetryHandlerConfig{
		MaxRetries:       1,
		BaseDelay:        time.Hour,
		MaxDelay:         20 * time.Millisecond,
		RetryStatusCodes: []int{http.StatusServiceUnavailable},
	}, zerolog.Nop())

	calls := 0
	do := func(*HTTPRequest) (*HTTPResponse, error) {
		calls++
		if calls == 1 {
			return &HTTPResponse{StatusCode: http.StatusServiceUnavailable, Headers: map[string]string{"Retry-After": "30"}}, nil
		}
		return &HTTPResponse{StatusCode: http.StatusOK}, nil
	}

	start := time.Now()
	resp, err := rh.DoWithRetry(context.Background(), do, &HTTPRequest{URL: "http://x"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, calls)
	// Retry-After is capped at the max delay
	assert.Less(t, time.Since(start), 5*time.Second)
}
