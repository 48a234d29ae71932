package httpclient

import (
	"context"
	"io"
	"time"

	"github.com/vulnzap/vulnzap-client/internal/config"
)

// HTTPClientConfig holds the resolved transport settings
type HTTPClientConfig struct {
	Timeout               time.Duration     // Request timeout, not applied to streams
	InsecureSkipVerify    bool              // Skip TLS verification
	FollowRedirects       bool              // Whether to follow redirects
	MaxRedirects          int               // Maximum number of redirects to follow
	Proxy                 string            // Proxy URL
	CustomHeaders         map[string]string // Headers added to every request
	UserAgent             string            // User-Agent header
	MaxIdleConns          int               // Maximum idle connections
	MaxIdleConnsPerHost   int               // Maximum idle connections per host
	IdleConnTimeout       time.Duration     // Idle connection timeout
	TLSHandshakeTimeout   time.Duration     // TLS handshake timeout
	ExpectContinueTimeout time.Duration     // Expect 100-continue timeout
	DialTimeout           time.Duration     // Connection dial timeout
	KeepAlive             time.Duration     // Keep-alive duration
	EnableHTTP2           bool              // Enable HTTP/2 support
	MaxErrorBodyBytes     int               // Cap on non-2xx bodies carried in errors
}

// DefaultHTTPClientConfig returns the default HTTP client configuration
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:               time.Duration(config.DefaultHTTPTimeoutSecs) * time.Second,
		FollowRedirects:       true,
		MaxRedirects:          5,
		UserAgent:             config.DefaultHTTPUserAgent,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
		EnableHTTP2:           config.DefaultHTTPEnableHTTP2,
		MaxErrorBodyBytes:     1024,
		CustomHeaders:         make(map[string]string),
	}
}

// FromConfig overlays the user facing config section onto the defaults
func FromConfig(cfg config.HTTPClientConfig) HTTPClientConfig {
	out := DefaultHTTPClientConfig()
	if cfg.TimeoutSecs > 0 {
		out.Timeout = cfg.Timeout()
	}
	out.InsecureSkipVerify = cfg.InsecureSkipVerify
	out.EnableHTTP2 = cfg.EnableHTTP2
	out.Proxy = cfg.Proxy
	if cfg.UserAgent != "" {
		out.UserAgent = cfg.UserAgent
	}
	for k, v := range cfg.CustomHeaders {
		out.CustomHeaders[k] = v
	}
	return out
}

// HTTPRequest represents an HTTP request
type HTTPRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    io.Reader
	Context context.Context
}

// HTTPResponse represents a fully read HTTP response
type HTTPResponse struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
}

// IsSuccess reports a 2xx status
func (r *HTTPResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
