package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/datastore"
	"github.com/vulnzap/vulnzap-client/internal/events"
	"github.com/vulnzap/vulnzap-client/internal/httpclient"
	"github.com/vulnzap/vulnzap-client/internal/metrics"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

const apiKeyHeader = "x-api-key"

// Operation names used in logs, metrics and error events
const (
	OpInitiateCommitScan      = "initiate_commit_scan"
	OpInitiateRepositoryScan  = "initiate_repository_scan"
	OpInitiateIncrementalScan = "initiate_incremental_scan"
	OpGetIncrementalResults   = "get_incremental_results"
	OpStopIncrementalSession  = "stop_incremental_session"
	OpGetScanFromAPI          = "get_scan_from_api"
)

// Dependencies are the collaborators of a Gateway. Metrics may be nil.
type Dependencies struct {
	HTTPClient *httpclient.HTTPClient
	Cache      *datastore.ScanCacheStore
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Gateway performs every remote operation against the scanning backend.
// Failures are returned to the caller and also published on Events().
type Gateway struct {
	baseURL        string
	apiKey         string
	userIdentifier string
	client         *httpclient.HTTPClient
	cache          *datastore.ScanCacheStore
	metrics        *metrics.Metrics
	bus            *events.Bus
	validate       *validator.Validate
	logger         zerolog.Logger
}

// NewGateway creates a gateway for the backend described by cfg
func NewGateway(cfg config.ClientConfig, deps Dependencies) (*Gateway, error) {
	if deps.HTTPClient == nil {
		return nil, common.NewValidationError("http_client", nil, "http client is required")
	}
	if deps.Cache == nil {
		return nil, common.NewValidationError("cache", nil, "cache store is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, common.NewValidationError("base_url", cfg.BaseURL, "must be an absolute URL")
	}

	logger := deps.Logger.With().Str("component", "Gateway").Logger()
	return &Gateway{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		userIdentifier: cfg.UserIdentifier,
		client:         deps.HTTPClient,
		cache:          deps.Cache,
		metrics:        deps.Metrics,
		bus:            events.NewBus("gateway", deps.Logger),
		validate:       validator.New(),
		logger:         logger,
	}, nil
}

// Events returns the bus on which the gateway reports failures
func (g *Gateway) Events() *events.Bus {
	return g.bus
}

// InitiateCommitScan submits a commit for scanning and records a pending
// cache entry keyed by the commit hash
func (g *Gateway) InitiateCommitScan(ctx context.Context, req models.CommitScanRequest) (*models.ScanResponse, error) {
	if err := g.validateRequest(req); err != nil {
		return nil, g.fail(OpInitiateCommitScan, err, nil)
	}
	if req.UserIdentifier == "" {
		req.UserIdentifier = g.userIdentifier
	}
	if req.Files == nil {
		req.Files = []models.FileContent{}
	}

	resp, err := g.initiate(ctx, OpInitiateCommitScan, "/api/scan/commit", req)
	if err != nil {
		return nil, err
	}

	g.metrics.ScanInitiated(string(models.ScanModeCommit))
	g.savePending(models.ScanModeCommit, req.Repository, req.CommitHash, models.CacheEntry{
		JobID:      resp.Data.JobID,
		Status:     resp.Data.Status,
		Repository: req.Repository,
		Branch:     req.Branch,
		CommitHash: req.CommitHash,
	})
	return resp, nil
}

// InitiateRepositoryScan submits a full repository scan and records a
// pending cache entry keyed by the job id
func (g *Gateway) InitiateRepositoryScan(ctx context.Context, req models.RepositoryScanRequest) (*models.ScanResponse, error) {
	if err := g.validateRequest(req); err != nil {
		return nil, g.fail(OpInitiateRepositoryScan, err, nil)
	}
	if req.UserIdentifier == "" {
		req.UserIdentifier = g.userIdentifier
	}

	resp, err := g.initiate(ctx, OpInitiateRepositoryScan, "/api/scan/github", req)
	if err != nil {
		return nil, err
	}

	g.metrics.ScanInitiated(string(models.ScanModeRepo))
	g.savePending(models.ScanModeRepo, req.Repository, resp.Data.JobID, models.CacheEntry{
		JobID:      resp.Data.JobID,
		Status:     resp.Data.Status,
		Repository: req.Repository,
		Branch:     req.Branch,
	})
	return resp, nil
}

// InitiateIncrementalScan forwards one changed file of a watch session
func (g *Gateway) InitiateIncrementalScan(ctx context.Context, req models.IncrementalScanRequest) (*models.ScanResponse, error) {
	if err := g.validateRequest(req); err != nil {
		return nil, g.fail(OpInitiateIncrementalScan, err, nil)
	}

	body, err := g.doJSON(ctx, OpInitiateIncrementalScan, http.MethodPost, "/api/scan/incremental", req)
	if err != nil {
		return nil, err
	}

	var resp models.ScanResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, g.fail(OpInitiateIncrementalScan, common.NewProtocolError(OpInitiateIncrementalScan, "malformed response body: "+err.Error()), nil)
		}
	}
	return &resp, nil
}

// GetIncrementalResults fetches the findings collected so far for a session
func (g *Gateway) GetIncrementalResults(ctx context.Context, sessionID string) (*models.IncrementalResults, error) {
	return g.incrementalResults(ctx, OpGetIncrementalResults, http.MethodGet, sessionID)
}

// StopIncrementalSession ends a session on the backend and returns its final results
func (g *Gateway) StopIncrementalSession(ctx context.Context, sessionID string) (*models.IncrementalResults, error) {
	return g.incrementalResults(ctx, OpStopIncrementalSession, http.MethodDelete, sessionID)
}

// GetScanFromAPI fetches the authoritative snapshot of a job. The body may be
// the snapshot itself or a {success, data} envelope around it. The cache is
// never touched.
func (g *Gateway) GetScanFromAPI(ctx context.Context, jobID string) (*models.JobResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, common.NewValidationError("job_id", jobID, "job id is required")
	}

	body, err := g.doJSON(ctx, OpGetScanFromAPI, http.MethodGet, "/api/scan/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}

	var result models.JobResult
	if err := decodeEnvelope(body, &result); err != nil {
		return nil, g.fail(OpGetScanFromAPI, common.NewProtocolError(OpGetScanFromAPI, "malformed job snapshot: "+err.Error()), map[string]any{"jobId": jobID})
	}
	if result.JobID == "" {
		result.JobID = jobID
	}
	return &result, nil
}

// StreamURL returns the events endpoint of a job
func (g *Gateway) StreamURL(mode models.ScanMode, jobID string) string {
	return g.baseURL + "/api/scan/" + mode.StreamSegment() + "/" + url.PathEscape(jobID) + "/events"
}

// OpenJobStream connects to the events endpoint of a job. Handshake failures
// are returned as *common.ConnectionError and are not published; the stream
// listener reports them.
func (g *Gateway) OpenJobStream(ctx context.Context, mode models.ScanMode, jobID string) (io.ReadCloser, error) {
	streamURL := g.StreamURL(mode, jobID)
	resp, err := g.client.OpenStream(ctx, streamURL, g.authHeaders())
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) {
			return nil, common.NewConnectionError(streamURL, "handshake rejected",
				g.remoteError(httpErr.StatusCode, httpErr.Body, streamURL))
		}
		return nil, common.NewConnectionError(streamURL, "connect failed", err)
	}
	return resp.Body, nil
}

func (g *Gateway) initiate(ctx context.Context, op, path string, payload any) (*models.ScanResponse, error) {
	body, err := g.doJSON(ctx, op, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var resp models.ScanResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, g.fail(op, common.NewProtocolError(op, "malformed response body: "+err.Error()), nil)
	}
	if resp.Data.JobID == "" {
		var bare models.JobHandle
		if json.Unmarshal(body, &bare) == nil && bare.JobID != "" {
			resp = models.ScanResponse{Success: true, Data: bare}
		}
	}
	if strings.TrimSpace(resp.Data.JobID) == "" {
		return nil, g.fail(op, common.NewProtocolError(op, "response did not contain a job id"), nil)
	}

	g.logger.Info().Str("operation", op).Str("job_id", resp.Data.JobID).Str("status", resp.Data.Status).Msg("Scan initiated")
	return &resp, nil
}

func (g *Gateway) incrementalResults(ctx context.Context, op, method, sessionID string) (*models.IncrementalResults, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, common.NewValidationError("session_id", sessionID, "session id is required")
	}

	body, err := g.doJSON(ctx, op, method, "/api/scan/incremental/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}

	results := &models.IncrementalResults{SessionID: sessionID}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := decodeEnvelope(body, results); err != nil {
			return nil, g.fail(op, common.NewProtocolError(op, "malformed results body: "+err.Error()), map[string]any{"sessionId": sessionID})
		}
		results.Raw = json.RawMessage(body)
	}
	if results.SessionID == "" {
		results.SessionID = sessionID
	}
	return results, nil
}

// savePending writes the resolved=false entry of a freshly initiated scan.
// A failed write is logged, never returned.
func (g *Gateway) savePending(mode models.ScanMode, repository, identifier string, entry models.CacheEntry) {
	entry.Mode = mode
	entry.Timestamp = time.Now().UTC()
	entry.Resolved = false

	err := g.cache.Save(mode, repository, identifier, entry)
	g.metrics.CacheWrite(err)
	if err != nil {
		g.logger.Error().Err(err).
			Str("mode", string(mode)).
			Str("repository", repository).
			Str("identifier", identifier).
			Msg("Failed to cache initiated scan")
	}
}

// doJSON sends payload (if any) as JSON and returns the body of a 2xx response
func (g *Gateway) doJSON(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	endpoint := g.baseURL + path
	headers := g.authHeaders()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, common.WrapError(err, "failed to encode request body")
		}
		body = bytes.NewReader(data)
		headers["Content-Type"] = "application/json"
	}
	headers["Accept"] = "application/json"

	start := time.Now()
	resp, err := g.client.Do(&httpclient.HTTPRequest{
		URL:     endpoint,
		Method:  method,
		Headers: headers,
		Body:    body,
		Context: ctx,
	})
	if err != nil {
		g.metrics.ObserveBackendRequest(op, 0, time.Since(start))
		// Cancellation comes from the caller, so it is returned but not published
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, g.fail(op, common.NewConnectionError(endpoint, "request failed", err), nil)
	}
	g.metrics.ObserveBackendRequest(op, resp.StatusCode, time.Since(start))

	if !resp.IsSuccess() {
		return nil, g.fail(op, g.remoteError(resp.StatusCode, g.client.ErrorBody(resp.Body), endpoint), map[string]any{
			"statusCode": resp.StatusCode,
		})
	}

	g.logger.Debug().Str("operation", op).Int("status_code", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("Backend request succeeded")
	return resp.Body, nil
}

func (g *Gateway) remoteError(status int, body, endpoint string) *common.RemoteRequestError {
	err := common.NewRemoteRequestError(status, http.StatusText(status), endpoint)
	err.Body = body
	return err
}

// fail logs err, publishes it as an error event and returns it
func (g *Gateway) fail(op string, err error, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	data["operation"] = op

	g.logger.Error().Err(err).Str("operation", op).Msg("Backend operation failed")
	g.bus.Publish(models.NewErrorEvent(models.SourceGateway, err, data))
	return err
}

func (g *Gateway) authHeaders() map[string]string {
	headers := make(map[string]string, 3)
	if g.apiKey != "" {
		headers[apiKeyHeader] = g.apiKey
	}
	return headers
}

func (g *Gateway) validateRequest(req any) error {
	if err := g.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return common.NewValidationError(first.Field(), first.Value(), "failed '"+first.Tag()+"' rule")
		}
		return common.WrapError(err, "invalid request")
	}
	return nil
}

// decodeEnvelope unmarshals body into out, unwrapping a {success, data}
// envelope when present
func decodeEnvelope(body []byte, out any) error {
	var env struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Success != nil {
		data := bytes.TrimSpace(env.Data)
		if len(data) > 0 && data[0] == '{' {
			return json.Unmarshal(data, out)
		}
	}
	return json.Unmarshal(body, out)
}
