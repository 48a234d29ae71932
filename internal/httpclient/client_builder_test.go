package httpclient

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnzap/vulnzap-client/internal/config"
)

func TestHTTPClientBuilder(t *testing.T) {
	client, err := NewHTTPClientBuilder(zerolog.Nop()).
		WithTimeout(15 * time.Second).
		WithUserAgent("test-agent").
		WithFollowRedirects(false).
		WithInsecureSkipVerify(true).
		WithHTTP2(false).
		Build()

	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, client.config.Timeout)
	assert.Equal(t, "test-agent", client.config.UserAgent)
	assert.False(t, client.config.FollowRedirects)
	assert.True(t, client.config.InsecureSkipVerify)
	assert.False(t, client.config.EnableHTTP2)
	assert.Nil(t, client.retryHandler)
	assert.Zero(t, client.streamClient.Timeout)
}

func TestHTTPClientBuilder_WithConfig(t *testing.T) {
	cfg := config.NewDefaultHTTPClientConfig()
	cfg.TimeoutSecs = 7
	cfg.UserAgent = "custom"
	cfg.CustomHeaders["X-Team"] = "sec"

	client, err := NewHTTPClientBuilder(zerolog.Nop()).
		WithConfig(cfg).
		WithRetry(config.NewDefaultRetryConfig()).
		Build()

	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, client.config.Timeout)
	assert.Equal(t, "custom", client.config.UserAgent)
	assert.Equal(t, "sec", client.config.CustomHeaders["X-Team"])
	require.NotNil(t, client.retryHandler)
	assert.Equal(t, config.DefaultRetryMaxRetries, client.retryHandler.maxRetries)
}

func TestHTTPClientBuilder_BadProxy(t *testing.T) {
	cfg := config.NewDefaultHTTPClientConfig()
	cfg.Proxy = "://bad"

	_, err := NewHTTPClientBuilder(zerolog.Nop()).WithConfig(cfg).Build()
	assert.Error(t, err)
}
