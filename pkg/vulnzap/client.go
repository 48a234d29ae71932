package vulnzap

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/datastore"
	"github.com/vulnzap/vulnzap-client/internal/events"
	"github.com/vulnzap/vulnzap-client/internal/gateway"
	"github.com/vulnzap/vulnzap-client/internal/httpclient"
	"github.com/vulnzap/vulnzap-client/internal/metrics"
	"github.com/vulnzap/vulnzap-client/internal/stream"
	"github.com/vulnzap/vulnzap-client/internal/watcher"
)

// Client coordinates scan jobs end to end: it initiates them, follows their
// event streams, reconciles outcomes into the local cache and runs watch
// sessions. All layer events are relayed onto one bus exposed by Subscribe.
type Client struct {
	cfg      *config.GlobalConfig
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	cache    *datastore.ScanCacheStore
	gateway  *gateway.Gateway
	listener *stream.Listener
	watcher  *watcher.Watcher
	bus      *events.Bus

	// ctx outlives individual calls; listeners started by a scan run under it
	ctx    context.Context
	cancel context.CancelFunc

	forwards  []func()
	closeOnce sync.Once
}

func newClient(cfg *config.GlobalConfig, httpClient *httpclient.HTTPClient, m *metrics.Metrics, logger zerolog.Logger) (*Client, error) {
	cache := datastore.NewScanCacheStore(cfg.CacheConfig, logger)

	gw, err := gateway.NewGateway(cfg.ClientConfig, gateway.Dependencies{
		HTTPClient: httpClient,
		Cache:      cache,
		Metrics:    m,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		logger:   logger.With().Str("component", "Client").Logger(),
		metrics:  m,
		cache:    cache,
		gateway:  gw,
		listener: stream.NewListener(gw, cache, m, logger),
		watcher:  watcher.NewWatcher(gw, cache, cfg.WatcherConfig, m, logger),
		bus:      events.NewBus("client", logger),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.forwards = []func(){
		events.Forward(gw.Events(), c.bus),
		events.Forward(c.listener.Events(), c.bus),
		events.Forward(c.watcher.Events(), c.bus),
	}

	c.logger.Debug().
		Str("base_url", cfg.ClientConfig.BaseURL).
		Str("cache_root", cache.Root()).
		Msg("Client initialized")
	return c, nil
}

// Subscribe registers handler for every event of every layer and returns a
// function that removes it
func (c *Client) Subscribe(handler EventHandler) func() {
	return c.bus.Subscribe(handler)
}

// Metrics returns the collectors of this client, or nil when disabled
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// ScanCommit submits a commit scan, records it as pending in the cache and
// starts following its event stream
func (c *Client) ScanCommit(ctx context.Context, req CommitScanRequest) (*ScanResponse, error) {
	resp, err := c.gateway.InitiateCommitScan(ctx, req)
	if err != nil {
		return nil, err
	}
	c.follow(stream.Target{
		Mode:       ScanModeCommit,
		JobID:      resp.Data.JobID,
		Repository: req.Repository,
		Identifier: req.CommitHash,
		Branch:     req.Branch,
	})
	return resp, nil
}

// ScanRepository submits a full repository scan, records it as pending in the
// cache and starts following its event stream
func (c *Client) ScanRepository(ctx context.Context, req RepositoryScanRequest) (*ScanResponse, error) {
	resp, err := c.gateway.InitiateRepositoryScan(ctx, req)
	if err != nil {
		return nil, err
	}
	c.follow(stream.Target{
		Mode:       ScanModeRepo,
		JobID:      resp.Data.JobID,
		Repository: req.Repository,
		Branch:     req.Branch,
	})
	return resp, nil
}

func (c *Client) follow(target stream.Target) {
	if _, err := c.listener.Listen(c.ctx, target); err != nil {
		c.logger.Error().Err(err).Str("job_id", target.JobID).Msg("Failed to start event stream listener")
	}
}

// Wait blocks until the listener of jobID is terminal and returns its error,
// if any. Jobs this client never started yield ErrNotFound.
func (c *Client) Wait(ctx context.Context, jobID string) error {
	job, ok := c.listener.Lookup(jobID)
	if !ok {
		return common.WrapErrorf(common.ErrNotFound, "no listener for job %s", jobID)
	}
	return job.Wait(ctx)
}

// GetCompletedScan fetches the authoritative snapshot of a job. The cache is
// not touched.
func (c *Client) GetCompletedScan(ctx context.Context, jobID string) (*JobResult, error) {
	return c.gateway.GetScanFromAPI(ctx, jobID)
}

// GetLatestCachedScan returns the most recently written commit scan of repository
func (c *Client) GetLatestCachedScan(repository string) (*CacheEntry, bool) {
	return c.cache.LatestCommitScan(repository)
}

// GetCachedScan returns one cache entry. identifier is the commit hash in
// commit mode and the job id in repo mode.
func (c *Client) GetCachedScan(mode ScanMode, repository, identifier string) (*CacheEntry, bool) {
	return c.cache.Get(mode, repository, identifier)
}

// ListCachedScans returns every cached scan of repository in mode
func (c *Client) ListCachedScans(mode ScanMode, repository string) ([]CacheEntry, error) {
	return c.cache.ListScans(mode, repository)
}

// ClearCachedScan removes one cache entry. A missing entry is not an error.
func (c *Client) ClearCachedScan(mode ScanMode, repository, identifier string) error {
	return c.cache.Clear(mode, repository, identifier)
}

// ExportHistory writes the cached scans of repository to w as parquet
func (c *Client) ExportHistory(ctx context.Context, repository string, w io.Writer) (int, error) {
	return c.cache.ExportHistory(ctx, repository, w)
}

// SecurityAssistant starts a watch session over dirPath. It returns false when
// the arguments are invalid or the session is already active.
func (c *Client) SecurityAssistant(dirPath, sessionID string, timeout time.Duration) bool {
	if timeout == 0 {
		timeout = c.cfg.WatcherConfig.DefaultTimeout()
	}
	return c.watcher.Start(dirPath, sessionID, timeout)
}

// SessionDone returns a channel closed when the session stops observing
func (c *Client) SessionDone(sessionID string) <-chan struct{} {
	return c.watcher.Done(sessionID)
}

// StopSecurityAssistant ends a watch session and returns the backend's final
// results for it
func (c *Client) StopSecurityAssistant(ctx context.Context, sessionID string) (*IncrementalResults, error) {
	return c.watcher.Stop(ctx, sessionID)
}

// GetIncrementalResults fetches the findings of a session collected so far
func (c *Client) GetIncrementalResults(ctx context.Context, sessionID string) (*IncrementalResults, error) {
	return c.gateway.GetIncrementalResults(ctx, sessionID)
}

// Close stops every listener and watch session and detaches the layer buses.
// Subscribers receive nothing after Close returns.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.listener.Close()
		c.watcher.Close()
		for _, stop := range c.forwards {
			stop()
		}
		c.logger.Debug().Msg("Client closed")
	})
}
