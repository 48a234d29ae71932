package httpclient

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/config"
)

// HTTPClientBuilder assembles an HTTPClient. Settings start from
// DefaultHTTPClientConfig; retries stay off unless WithRetry is called.
type HTTPClientBuilder struct {
	cfg    HTTPClientConfig
	retry  *RetryHandlerConfig
	logger zerolog.Logger
}

func NewHTTPClientBuilder(logger zerolog.Logger) *HTTPClientBuilder {
	return &HTTPClientBuilder{cfg: DefaultHTTPClientConfig(), logger: logger}
}

func (b *HTTPClientBuilder) apply(fn func(*HTTPClientConfig)) *HTTPClientBuilder {
	fn(&b.cfg)
	return b
}

// WithConfig replaces every transport setting with the config file section
func (b *HTTPClientBuilder) WithConfig(section config.HTTPClientConfig) *HTTPClientBuilder {
	b.cfg = FromConfig(section)
	return b
}

func (b *HTTPClientBuilder) WithTimeout(d time.Duration) *HTTPClientBuilder {
	return b.apply(func(c *HTTPClientConfig) { c.Timeout = d })
}

func (b *HTTPClientBuilder) WithInsecureSkipVerify(skip bool) *HTTPClientBuilder {
	return b.apply(func(c *HTTPClientConfig) { c.InsecureSkipVerify = skip })
}

func (b *HTTPClientBuilder) WithFollowRedirects(follow bool) *HTTPClientBuilder {
	return b.apply(func(c *HTTPClientConfig) { c.FollowRedirects = follow })
}

func (b *HTTPClientBuilder) WithUserAgent(ua string) *HTTPClientBuilder {
	return b.apply(func(c *HTTPClientConfig) { c.UserAgent = ua })
}

func (b *HTTPClientBuilder) WithHTTP2(enabled bool) *HTTPClientBuilder {
	return b.apply(func(c *HTTPClientConfig) { c.EnableHTTP2 = enabled })
}

// WithHeader adds a header sent on every request
func (b *HTTPClientBuilder) WithHeader(key, value string) *HTTPClientBuilder {
	return b.apply(func(c *HTTPClientConfig) {
		if c.CustomHeaders == nil {
			c.CustomHeaders = make(map[string]string)
		}
		c.CustomHeaders[key] = value
	})
}

// WithRetry turns on retries for Do. OpenStream is never retried.
func (b *HTTPClientBuilder) WithRetry(section config.RetryConfig) *HTTPClientBuilder {
	rc := RetryHandlerConfigFrom(section)
	b.retry = &rc
	return b
}

func (b *HTTPClientBuilder) Build() (*HTTPClient, error) {
	client, err := NewHTTPClient(b.cfg, b.logger)
	if err != nil {
		return nil, err
	}
	if b.retry != nil && b.retry.MaxRetries > 0 {
		client.retryHandler = NewRetryHandler(*b.retry, b.logger)
	}
	return client, nil
}
