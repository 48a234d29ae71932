package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics is the set of collectors of one client instance. Every method is
// safe on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	ScansInitiated         *prometheus.CounterVec
	BackendRequests        *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	StreamFrames           *prometheus.CounterVec
	StreamsActive          prometheus.Gauge
	StreamsTerminated      *prometheus.CounterVec
	CacheWrites            *prometheus.CounterVec
	WatcherSessionsActive  prometheus.Gauge
	WatcherChanges         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on a private registry
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ScansInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_initiated_total",
			Help:      "Scans accepted by the backend",
		},
		[]string{"mode"},
	)

	m.BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Requests sent to the scanning backend",
		},
		[]string{"operation", "status"},
	)

	m.BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of backend requests in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.StreamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Event stream frames received, by type",
		},
		[]string{"type"},
	)

	m.StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Job event streams not yet terminal",
		},
	)

	m.StreamsTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_terminated_total",
			Help:      "Job event streams that reached a terminal state",
		},
		[]string{"reason"},
	)

	m.CacheWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache entry writes",
		},
		[]string{"result"},
	)

	m.WatcherSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watcher_sessions_active",
			Help:      "Directory watch sessions currently observing",
		},
	)

	m.WatcherChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_changes_total",
			Help:      "File changes forwarded for incremental scanning",
		},
		[]string{"change_type", "result"},
	)

	m.registry.MustRegister(
		m.ScansInitiated,
		m.BackendRequests,
		m.BackendRequestDuration,
		m.StreamFrames,
		m.StreamsActive,
		m.StreamsTerminated,
		m.CacheWrites,
		m.WatcherSessionsActive,
		m.WatcherChanges,
	)

	return m
}

// Registry exposes the private registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveBackendRequest records one gateway call. status is the HTTP status
// code, or 0 when no response was received.
func (m *Metrics) ObserveBackendRequest(operation string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.BackendRequests.WithLabelValues(operation, label).Inc()
	m.BackendRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ScanInitiated(mode string) {
	if m == nil {
		return
	}
	m.ScansInitiated.WithLabelValues(mode).Inc()
}

func (m *Metrics) StreamFrame(frameType string) {
	if m == nil {
		return
	}
	m.StreamFrames.WithLabelValues(frameType).Inc()
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.StreamsActive.Inc()
}

// StreamTerminated records the end of a stream: completed, error or cancelled
func (m *Metrics) StreamTerminated(reason string) {
	if m == nil {
		return
	}
	m.StreamsActive.Dec()
	m.StreamsTerminated.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheWrite(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CacheWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.WatcherSessionsActive.Inc()
}

func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.WatcherSessionsActive.Dec()
}

func (m *Metrics) WatcherChange(changeType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.WatcherChanges.WithLabelValues(changeType, result).Inc()
}

// Handler returns the Prometheus HTTP handler for this instance's registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Starting metrics server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
