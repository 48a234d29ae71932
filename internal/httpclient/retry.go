package httpclient

import (
	"context"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/config"
)

// RetryHandler retries backend calls with exponential backoff. A Retry-After
// header on a retryable response takes precedence over the computed delay,
// capped at maxDelay.
type RetryHandler struct {
	maxRetries       int
	baseDelay        time.Duration
	maxDelay         time.Duration
	enableJitter     bool
	retryStatusCodes map[int]struct{}
	logger           zerolog.Logger
}

// RetryHandlerConfig configuration for retry handler
type RetryHandlerConfig struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	EnableJitter     bool
	RetryStatusCodes []int
}

// RetryHandlerConfigFrom converts the config file section
func RetryHandlerConfigFrom(cfg config.RetryConfig) RetryHandlerConfig {
	return RetryHandlerConfig{
		MaxRetries:       cfg.MaxRetries,
		BaseDelay:        cfg.BaseDelay(),
		MaxDelay:         cfg.MaxDelay(),
		EnableJitter:     cfg.EnableJitter,
		RetryStatusCodes: cfg.RetryStatusCodes,
	}
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(cfg RetryHandlerConfig, logger zerolog.Logger) *RetryHandler {
	codes := make(map[int]struct{}, len(cfg.RetryStatusCodes))
	for _, code := range cfg.RetryStatusCodes {
		codes[code] = struct{}{}
	}

	return &RetryHandler{
		maxRetries:       cfg.MaxRetries,
		baseDelay:        cfg.BaseDelay,
		maxDelay:         cfg.MaxDelay,
		enableJitter:     cfg.EnableJitter,
		retryStatusCodes: codes,
		logger:           logger.With().Str("component", "RetryHandler").Logger(),
	}
}

// ShouldRetry reports whether a response with statusCode on the given
// zero-based attempt is retried
func (rh *RetryHandler) ShouldRetry(statusCode int, attempt int) bool {
	if attempt >= rh.maxRetries {
		return false
	}
	_, ok := rh.retryStatusCodes[statusCode]
	return ok
}

// CalculateDelay returns baseDelay << attempt, capped at maxDelay, plus up to
// 10% jitter when enabled
func (rh *RetryHandler) CalculateDelay(attempt int) time.Duration {
	delay := rh.baseDelay
	for i := 0; i < attempt && (rh.maxDelay <= 0 || delay < rh.maxDelay); i++ {
		delay *= 2
	}
	if rh.maxDelay > 0 && delay > rh.maxDelay {
		delay = rh.maxDelay
	}

	if rh.enableJitter {
		if spread := int64(delay / 10); spread > 0 {
			delay += time.Duration(rand.Int63n(spread))
		}
	}
	return delay
}

// retryAfter parses a Retry-After header given in seconds
func (rh *RetryHandler) retryAfter(resp *HTTPResponse) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	v := resp.Headers[http.CanonicalHeaderKey("Retry-After")]
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs) * time.Second
	if rh.maxDelay > 0 && d > rh.maxDelay {
		d = rh.maxDelay
	}
	return d, true
}

func (rh *RetryHandler) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DoWithRetry runs doFunc until it returns a non-retryable response or the
// attempts run out. Network errors are retried like retryable statuses. When
// attempts run out on a retryable status the last response is returned with
// a nil error so the caller can map the status itself.
func (rh *RetryHandler) DoWithRetry(ctx context.Context, doFunc func(*HTTPRequest) (*HTTPResponse, error), req *HTTPRequest) (*HTTPResponse, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := doFunc(req)
		switch {
		case err != nil:
			if attempt >= rh.maxRetries || ctx.Err() != nil {
				return nil, err
			}
			rh.logger.Debug().Err(err).Str("url", req.URL).Int("attempt", attempt+1).Msg("Request failed, retrying")

		case rh.ShouldRetry(resp.StatusCode, attempt):
			rh.logger.Warn().
				Str("url", req.URL).
				Int("status_code", resp.StatusCode).
				Int("attempt", attempt+1).
				Int("max_retries", rh.maxRetries).
				Msg("Retryable status, backing off")

		default:
			return resp, nil
		}

		delay, ok := rh.retryAfter(resp)
		if !ok {
			delay = rh.CalculateDelay(attempt)
		}
		if err := rh.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}
