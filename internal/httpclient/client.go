package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"

	"github.com/vulnzap/vulnzap-client/internal/common"
)

const defaultErrorBodyLimit = 1024

// HTTPClient talks to the scan backend. Plain calls go through client, which
// carries the request timeout and optional retries. Event streams go through
// streamClient, which shares the transport but has no overall timeout.
type HTTPClient struct {
	client       *http.Client
	streamClient *http.Client
	config       HTTPClientConfig
	logger       zerolog.Logger
	retryHandler *RetryHandler
	bodyBuffers  sync.Pool
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(cfg HTTPClientConfig, logger zerolog.Logger) (*HTTPClient, error) {
	logger = logger.With().Str("component", "HTTPClient").Logger()

	transport, err := newTransport(cfg, logger)
	if err != nil {
		return nil, err
	}

	redirects := redirectPolicy(cfg)
	c := &HTTPClient{
		client:       &http.Client{Transport: transport, Timeout: cfg.Timeout, CheckRedirect: redirects},
		streamClient: &http.Client{Transport: transport, CheckRedirect: redirects},
		config:       cfg,
		logger:       logger,
	}
	c.bodyBuffers.New = func() any {
		return new(bytes.Buffer)
	}

	logger.Debug().
		Dur("timeout", cfg.Timeout).
		Bool("http2", cfg.EnableHTTP2).
		Bool("insecure", cfg.InsecureSkipVerify).
		Msg("HTTP client ready")
	return c, nil
}

func newTransport(cfg HTTPClientConfig, logger zerolog.Logger) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}
	t := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify},
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, common.WrapErrorf(err, "invalid proxy %q", cfg.Proxy)
		}
		t.Proxy = http.ProxyURL(proxyURL)
		logger.Info().Str("proxy", proxyURL.Redacted()).Msg("Using proxy")
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(t); err != nil {
			logger.Warn().Err(err).Msg("HTTP/2 unavailable, using HTTP/1.1")
		}
	}
	return t, nil
}

func redirectPolicy(cfg HTTPClientConfig) func(*http.Request, []*http.Request) error {
	switch {
	case !cfg.FollowRedirects:
		return func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	case cfg.MaxRedirects > 0:
		limit := cfg.MaxRedirects
		return func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	default:
		return nil
	}
}

// Do performs an HTTP request, retrying when a retry handler is configured.
// With retries on the body must be seekable so it can be replayed.
func (c *HTTPClient) Do(req *HTTPRequest) (*HTTPResponse, error) {
	if c.retryHandler == nil {
		return c.roundTrip(req)
	}
	return c.retryHandler.DoWithRetry(requestContext(req), c.roundTrip, req)
}

func (c *HTTPClient) roundTrip(req *HTTPRequest) (*HTTPResponse, error) {
	if s, ok := req.Body.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return nil, common.WrapError(err, "rewind request body")
		}
	}

	httpReq, err := c.newRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(req.URL, httpReq.Method, err)
	}
	defer resp.Body.Close()

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, NewNetworkError(req.URL, "read body", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    headers,
		Body:       body,
	}, nil
}

// readBody drains r through a pooled buffer and returns an owned copy
func (c *HTTPClient) readBody(r io.Reader) ([]byte, error) {
	buf := c.bodyBuffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bodyBuffers.Put(buf)

	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func requestContext(req *HTTPRequest) context.Context {
	if req.Context != nil {
		return req.Context
	}
	return context.Background()
}

func (c *HTTPClient) newRequest(req *HTTPRequest) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(requestContext(req), method, req.URL, req.Body)
	if err != nil {
		return nil, common.WrapErrorf(err, "build %s request", method)
	}

	h := httpReq.Header
	h.Set("Accept", "*/*")
	if c.config.UserAgent != "" {
		h.Set("User-Agent", c.config.UserAgent)
	}
	for k, v := range c.config.CustomHeaders {
		h.Set(k, v)
	}
	for k, v := range req.Headers {
		h.Set(k, v)
	}
	return httpReq, nil
}

// OpenStream opens a server-sent events stream. The caller owns the returned
// body. No overall timeout applies; cancel ctx to end the stream. Non-2xx
// responses are drained, closed and returned as *HTTPError.
func (c *HTTPClient) OpenStream(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	h := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		h[k] = v
	}
	h["Accept"] = "text/event-stream"
	h["Cache-Control"] = "no-cache"

	httpReq, err := c.newRequest(&HTTPRequest{URL: url, Method: http.MethodGet, Headers: h, Context: ctx})
	if err != nil {
		return nil, err
	}

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, NewNetworkError(url, "connect stream", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug().Str("url", url).Str("proto", resp.Proto).Msg("Event stream opened")
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(c.errorBodyLimit())))
	return nil, NewHTTPErrorWithURL(resp.StatusCode, resp.Status, string(body), url)
}

// ErrorBody truncates a response body for inclusion in an error
func (c *HTTPClient) ErrorBody(body []byte) string {
	if limit := c.errorBodyLimit(); len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}

func (c *HTTPClient) errorBodyLimit() int {
	if c.config.MaxErrorBodyBytes > 0 {
		return c.config.MaxErrorBodyBytes
	}
	return defaultErrorBodyLimit
}
