package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/config"
	"github.com/vulnzap/vulnzap-client/internal/datastore"
	"github.com/vulnzap/vulnzap-client/internal/events"
	"github.com/vulnzap/vulnzap-client/internal/httpclient"
	"github.com/vulnzap/vulnzap-client/internal/metrics"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

type fixture struct {
	gw      *Gateway
	root    string
	rec     *events.Recorder
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	retry := config.NewDefaultRetryConfig()
	retry.BaseDelayMs = 1
	client, err := httpclient.NewHTTPClientBuilder(zerolog.Nop()).WithRetry(retry).Build()
	require.NoError(t, err)

	root := t.TempDir()
	m := metrics.NewMetrics("gateway_test")
	gw, err := NewGateway(config.ClientConfig{BaseURL: server.URL, APIKey: "k1", UserIdentifier: "dev@example.com"}, Dependencies{
		HTTPClient: client,
		Cache:      datastore.NewScanCacheStore(config.CacheConfig{RootDir: root}, zerolog.Nop()),
		Metrics:    m,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	rec, unsub := events.NewRecorder(gw.Events())
	t.Cleanup(unsub)
	return &fixture{gw: gw, root: root, rec: rec, metrics: m}
}

func TestInitiateCommitScan_SuccessCachesPending(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/scan/commit", r.URL.Path)
		assert.Equal(t, "k1", r.Header.Get("x-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc123", body["commitHash"])
		assert.Equal(t, "o/r", body["repository"])
		assert.Equal(t, "dev@example.com", body["userIdentifier"])

		_, _ = w.Write([]byte(`{"success":true,"data":{"jobId":"j1","status":"queued"}}`))
	})

	resp, err := f.gw.InitiateCommitScan(context.Background(), models.CommitScanRequest{
		CommitHash: "abc123",
		Repository: "o/r",
		Branch:     "main",
		Files:      []models.FileContent{{Name: "a.go", Content: "package a"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "j1", resp.Data.JobID)
	assert.Equal(t, "queued", resp.Data.Status)

	data, err := os.ReadFile(filepath.Join(f.root, "scans", "o_r", "commits", "abc123.json"))
	require.NoError(t, err)
	var entry models.CacheEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "j1", entry.JobID)
	assert.False(t, entry.Resolved)
	assert.Equal(t, "queued", entry.Status)
	assert.Equal(t, "main", entry.Branch)

	assert.Empty(t, f.rec.Events())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScansInitiated.WithLabelValues("commit")))
}

func TestInitiateRepositoryScan_KeyedByJobID(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/scan/github", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"data":{"jobId":"job-77","status":"queued"}}`))
	})

	resp, err := f.gw.InitiateRepositoryScan(context.Background(), models.RepositoryScanRequest{Repository: "o/r"})
	require.NoError(t, err)
	assert.Equal(t, "job-77", resp.Data.JobID)

	_, err = os.Stat(filepath.Join(f.root, "scans", "o_r", "full", "job-77.json"))
	assert.NoError(t, err)
}

func TestInitiateCommitScan_Non2xx(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	})

	resp, err := f.gw.InitiateCommitScan(context.Background(), models.CommitScanRequest{CommitHash: "abc123", Repository: "o/r"})
	assert.Nil(t, resp)

	var remote *common.RemoteRequestError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
	assert.Equal(t, "Unauthorized", remote.StatusText)
	assert.Contains(t, remote.Body, "bad key")

	errs := f.rec.OfType(models.EventError)
	require.Len(t, errs, 1)
	assert.Equal(t, OpInitiateCommitScan, errs[0].Data["operation"])
	assert.Equal(t, http.StatusUnauthorized, errs[0].Data["statusCode"])

	_, err = os.Stat(filepath.Join(f.root, "scans", "o_r", "commits", "abc123.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestInitiateCommitScan_EmptyJobID(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"status":"queued"}}`))
	})

	_, err := f.gw.InitiateCommitScan(context.Background(), models.CommitScanRequest{CommitHash: "abc123", Repository: "o/r"})

	var protoErr *common.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Len(t, f.rec.OfType(models.EventError), 1)
}

func TestInitiateCommitScan_Validation(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := f.gw.InitiateCommitScan(context.Background(), models.CommitScanRequest{Repository: "o/r"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Zero(t, atomic.LoadInt32(&calls))

	errs := f.rec.OfType(models.EventError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, common.ErrInvalidInput)
	assert.Equal(t, OpInitiateCommitScan, errs[0].Data["operation"])
}

func TestInitiate_ValidationFailuresArePublished(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	ctx := context.Background()

	_, err := f.gw.InitiateRepositoryScan(ctx, models.RepositoryScanRequest{})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = f.gw.InitiateIncrementalScan(ctx, models.IncrementalScanRequest{FilePath: "a.js"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	errs := f.rec.OfType(models.EventError)
	require.Len(t, errs, 2)
	assert.Equal(t, OpInitiateRepositoryScan, errs[0].Data["operation"])
	assert.Equal(t, OpInitiateIncrementalScan, errs[1].Data["operation"])
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestInitiate_CancelledIsNotPublished(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.gw.InitiateCommitScan(ctx, models.CommitScanRequest{CommitHash: "abc123", Repository: "o/r"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.rec.OfType(models.EventError))
}

func TestInitiateScan_RetriesOnUnavailable(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "o/r")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"jobId":"j2","status":"queued"}}`))
	})

	resp, err := f.gw.InitiateRepositoryScan(context.Background(), models.RepositoryScanRequest{Repository: "o/r"})
	require.NoError(t, err)
	assert.Equal(t, "j2", resp.Data.JobID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Empty(t, f.rec.Events())
}

func TestGetScanFromAPI_BareAndEnvelope(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/scan/jobs/bare":
			_, _ = w.Write([]byte(`{"jobId":"bare","status":"completed","progress":100,"results":{"issues":2}}`))
		case "/api/scan/jobs/wrapped":
			_, _ = w.Write([]byte(`{"success":true,"data":{"jobId":"wrapped","status":"completed","results":[1]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	bare, err := f.gw.GetScanFromAPI(context.Background(), "bare")
	require.NoError(t, err)
	assert.Equal(t, "completed", bare.Status)
	assert.Equal(t, 100.0, bare.Progress)
	assert.JSONEq(t, `{"issues":2}`, string(bare.Results))

	wrapped, err := f.gw.GetScanFromAPI(context.Background(), "wrapped")
	require.NoError(t, err)
	assert.Equal(t, "wrapped", wrapped.JobID)
	assert.JSONEq(t, `[1]`, string(wrapped.Results))

	_, err = f.gw.GetScanFromAPI(context.Background(), "missing")
	var remote *common.RemoteRequestError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusNotFound, remote.StatusCode)

	// The cache is never written by a fetch
	_, statErr := os.Stat(filepath.Join(f.root, "scans"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestIncrementalOperations(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k1", r.Header.Get("x-api-key"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/scan/incremental":
			var req models.IncrementalScanRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "s1", req.SessionID)
			assert.Equal(t, models.ChangeTypeNew, req.ChangeType)
			assert.True(t, req.Changed)
			_, _ = w.Write([]byte(`{"success":true}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/scan/incremental/s1":
			_, _ = w.Write([]byte(`{"success":true,"data":{"sessionId":"s1","status":"active","results":[]}}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/scan/incremental/s1":
			_, _ = w.Write([]byte(`{"sessionId":"s1","status":"stopped","results":[{"file":"a.js"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	_, err := f.gw.InitiateIncrementalScan(ctx, models.IncrementalScanRequest{
		SessionID: "s1", FilePath: "a.js", Content: "x", ChangeType: models.ChangeTypeNew, Changed: true,
	})
	require.NoError(t, err)

	res, err := f.gw.GetIncrementalResults(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "active", res.Status)

	stopped, err := f.gw.StopIncrementalSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "stopped", stopped.Status)
	assert.JSONEq(t, `[{"file":"a.js"}]`, string(stopped.Results))
	assert.NotEmpty(t, stopped.Raw)
}

func TestStreamURL(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.Equal(t, f.gw.baseURL+"/api/scan/commit/j1/events", f.gw.StreamURL(models.ScanModeCommit, "j1"))
	assert.Equal(t, f.gw.baseURL+"/api/scan/github/j1/events", f.gw.StreamURL(models.ScanModeRepo, "j1"))
}

func TestOpenJobStream_HandshakeRejected(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	body, err := f.gw.OpenJobStream(context.Background(), models.ScanModeCommit, "j1")
	assert.Nil(t, body)

	var connErr *common.ConnectionError
	require.True(t, errors.As(err, &connErr))
	var remote *common.RemoteRequestError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusInternalServerError, remote.StatusCode)
	// Handshake failures are reported by the listener, not the gateway
	assert.Empty(t, f.rec.Events())
}

func TestNewGateway_RequiresDependencies(t *testing.T) {
	_, err := NewGateway(config.ClientConfig{BaseURL: "http://x"}, Dependencies{Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
