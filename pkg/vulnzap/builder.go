package vulnzap

import (
	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/httpclient"
	"github.com/vulnzap/vulnzap-client/internal/metrics"
)

// ClientBuilder assembles a Client from a configuration and optional
// pre-built collaborators
type ClientBuilder struct {
	cfg        *config.GlobalConfig
	logger     zerolog.Logger
	httpClient *httpclient.HTTPClient
	metrics    *metrics.Metrics
	noMetrics  bool
}

// NewClientBuilder starts a builder for cfg. A nil cfg means defaults.
func NewClientBuilder(cfg *config.GlobalConfig) *ClientBuilder {
	if cfg == nil {
		cfg = config.NewDefaultGlobalConfig()
	}
	return &ClientBuilder{cfg: cfg, logger: zerolog.Nop()}
}

// WithLogger sets the parent logger
func (b *ClientBuilder) WithLogger(logger zerolog.Logger) *ClientBuilder {
	b.logger = logger
	return b
}

// WithHTTPClient replaces the transport built from the HTTP client config
func (b *ClientBuilder) WithHTTPClient(client *httpclient.HTTPClient) *ClientBuilder {
	b.httpClient = client
	return b
}

// WithMetrics shares a metrics set between clients
func (b *ClientBuilder) WithMetrics(m *metrics.Metrics) *ClientBuilder {
	b.metrics = m
	return b
}

// WithoutMetrics disables collection regardless of the metrics config
func (b *ClientBuilder) WithoutMetrics() *ClientBuilder {
	b.noMetrics = true
	return b
}

// Build validates the configuration and wires every layer
func (b *ClientBuilder) Build() (*Client, error) {
	if err := config.ValidateConfig(b.cfg); err != nil {
		return nil, common.WrapError(err, "invalid client configuration")
	}

	httpClient := b.httpClient
	if httpClient == nil {
		var err error
		httpClient, err = httpclient.NewHTTPClientBuilder(b.logger).
			WithConfig(b.cfg.HTTPClientConfig).
			WithRetry(b.cfg.RetryConfig).
			Build()
		if err != nil {
			return nil, common.WrapError(err, "failed to create HTTP client")
		}
	}

	m := b.metrics
	if m == nil && !b.noMetrics && b.cfg.MetricsConfig.Enabled {
		m = metrics.NewMetrics(b.cfg.MetricsConfig.Namespace)
	}
	if b.noMetrics {
		m = nil
	}

	return newClient(b.cfg, httpClient, m, b.logger)
}

// New builds a client from cfg with the default transport
func New(cfg *config.GlobalConfig, logger zerolog.Logger) (*Client, error) {
	return NewClientBuilder(cfg).WithLogger(logger).Build()
}
