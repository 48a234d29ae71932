package stream

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/common"
	"github.com/vulnzap/vulnzap-client/internal/events"
	"github.com/vulnzap/vulnzap-client/internal/metrics"
	"github.com/vulnzap/vulnzap-client/internal/models"
)

// Backend is the part of the gateway a listener needs
type Backend interface {
	OpenJobStream(ctx context.Context, mode models.ScanMode, jobID string) (io.ReadCloser, error)
	GetScanFromAPI(ctx context.Context, jobID string) (*models.JobResult, error)
}

// Cache is where completed jobs are reconciled
type Cache interface {
	Get(mode models.ScanMode, repository, identifier string) (*models.CacheEntry, bool)
	Save(mode models.ScanMode, repository, identifier string, entry models.CacheEntry) error
}

// Listener follows the event streams of scan jobs. Every job runs on its own
// goroutine; the arena of jobs is the only shared state.
type Listener struct {
	backend Backend
	cache   Cache
	metrics *metrics.Metrics
	bus     *events.Bus
	logger  zerolog.Logger

	mu   sync.Mutex
	jobs map[jobKey]*Job
	wg   sync.WaitGroup

	// retention is how long terminal jobs stay available to Lookup
	retention time.Duration
}

// DefaultJobRetention keeps finished jobs around long enough for Wait calls
// that race the stream
const DefaultJobRetention = 10 * time.Minute

// NewListener creates a listener. m may be nil.
func NewListener(backend Backend, cache Cache, m *metrics.Metrics, logger zerolog.Logger) *Listener {
	return &Listener{
		backend: backend,
		cache:   cache,
		metrics: m,
		bus:     events.NewBus("stream", logger),
		logger:  logger.With().Str("component", "StreamListener").Logger(),
		jobs:    make(map[jobKey]*Job),

		retention: DefaultJobRetention,
	}
}

// Events returns the bus carrying update, completed and error events of all jobs
func (l *Listener) Events() *events.Bus {
	return l.bus
}

// Listen starts following target. A job that is already connecting or
// streaming is not started twice; its existing handle is returned.
func (l *Listener) Listen(ctx context.Context, target Target) (*Job, error) {
	if !target.Mode.IsValid() {
		return nil, common.NewValidationError("mode", string(target.Mode), "unknown scan mode")
	}
	if target.JobID == "" {
		return nil, common.NewValidationError("job_id", target.JobID, "job id is required")
	}

	key := jobKey{mode: target.Mode, jobID: target.JobID}

	l.mu.Lock()
	l.pruneLocked(time.Now().Add(-l.retention))
	if existing, ok := l.jobs[key]; ok && existing.State() != StateTerminal {
		l.mu.Unlock()
		return existing, nil
	}
	jobCtx, cancel := context.WithCancel(ctx)
	job := newJob(target, cancel)
	l.jobs[key] = job
	l.wg.Add(1)
	l.mu.Unlock()

	l.metrics.StreamStarted()
	go l.run(jobCtx, job)
	return job, nil
}

// Lookup returns the handle of jobID in any mode. A job still running wins
// over a terminal one; among terminal ones the latest to finish wins.
func (l *Listener) Lookup(jobID string) (*Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best *Job
	for key, job := range l.jobs {
		if key.jobID != jobID {
			continue
		}
		if job.State() != StateTerminal {
			return job, true
		}
		if best == nil || job.finishedTime().After(best.finishedTime()) {
			best = job
		}
	}
	return best, best != nil
}

// pruneLocked drops jobs that turned terminal before cutoff. l.mu must be held.
func (l *Listener) pruneLocked(cutoff time.Time) {
	for key, job := range l.jobs {
		if job.finishedBefore(cutoff) {
			delete(l.jobs, key)
		}
	}
}

// Active returns the number of jobs not yet terminal
func (l *Listener) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, job := range l.jobs {
		if job.State() != StateTerminal {
			n++
		}
	}
	return n
}

// Close cancels every job and waits for their goroutines to exit
func (l *Listener) Close() {
	l.mu.Lock()
	for _, job := range l.jobs {
		job.Cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Listener) run(ctx context.Context, job *Job) {
	defer l.wg.Done()
	defer close(job.done)
	defer job.cancel()

	target := job.target
	log := l.logger.With().Str("job_id", target.JobID).Str("mode", string(target.Mode)).Logger()

	body, err := l.backend.OpenJobStream(ctx, target.Mode, target.JobID)
	if err != nil {
		if ctx.Err() != nil {
			l.terminate(job, OutcomeCancelled, nil, log)
			return
		}
		l.publishError(target.JobID, err, nil)
		l.terminate(job, OutcomeFailed, err, log)
		return
	}
	defer body.Close()
	// Closing the body unblocks a pending read when the caller cancels
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	job.setStreaming()
	log.Debug().Msg("Event stream connected")

	reader := bufio.NewReader(body)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			// A trailing line without newline is incomplete and dropped
			if ctx.Err() != nil {
				l.terminate(job, OutcomeCancelled, nil, log)
				return
			}
			var err error
			if readErr == io.EOF {
				err = common.WrapErrorf(common.ErrStreamClosed, "event stream of job %s", target.JobID)
			} else {
				err = common.WrapErrorf(readErr, "event stream of job %s failed", target.JobID)
			}
			l.publishError(target.JobID, err, nil)
			l.terminate(job, OutcomeFailed, err, log)
			return
		}

		if l.handleLine(ctx, job, line, log) {
			return
		}
	}
}

// handleLine processes one complete line and reports whether the job is terminal
func (l *Listener) handleLine(ctx context.Context, job *Job, line string, log zerolog.Logger) bool {
	frame, ok, err := parseLine(line)
	if !ok {
		return false
	}
	if err != nil {
		log.Warn().Err(err).Msg("Discarding malformed frame")
		l.metrics.StreamFrame("malformed")
		l.publishError(job.target.JobID, err, nil)
		return false
	}

	frameType := models.StreamEventType(frameString(frame, "type"))
	jobID := frameString(frame, "jobId")
	if jobID == "" {
		jobID = job.target.JobID
	}

	switch frameType {
	case models.StreamEventConnected, models.StreamEventProgress:
		l.metrics.StreamFrame(string(frameType))
		l.publish(models.ClientEvent{Type: models.EventUpdate, JobID: jobID, Data: frame})
		return false

	case models.StreamEventError:
		l.metrics.StreamFrame(string(frameType))
		msg := frameString(frame, "message")
		if msg == "" {
			msg = frameString(frame, "error")
		}
		l.publish(models.ClientEvent{Type: models.EventError, JobID: jobID, Data: frame, Message: msg})
		return false

	case models.StreamEventCompleted:
		l.metrics.StreamFrame(string(frameType))
		l.publish(models.ClientEvent{Type: models.EventCompleted, JobID: jobID, Data: frame})
		if err := l.reconcile(ctx, job.target, log); err != nil {
			l.terminate(job, OutcomeFailed, err, log)
			return true
		}
		l.terminate(job, OutcomeCompleted, nil, log)
		return true

	default:
		l.metrics.StreamFrame("unknown")
		l.publish(models.ClientEvent{Type: models.EventError, JobID: jobID, Data: frame, Message: "Unknown event type"})
		return false
	}
}

// reconcile fetches the authoritative snapshot of a completed job and marks
// its cache entry resolved. A failed fetch is published and returned; a failed
// cache write is only logged.
func (l *Listener) reconcile(ctx context.Context, target Target, log zerolog.Logger) error {
	result, err := l.backend.GetScanFromAPI(ctx, target.JobID)
	if err != nil {
		wrapped := common.WrapError(err, "failed to fetch completed scan")
		l.publishError(target.JobID, wrapped, nil)
		return wrapped
	}

	identifier := target.CacheIdentifier()
	now := time.Now().UTC()
	entry := models.CacheEntry{
		JobID:      target.JobID,
		Mode:       target.Mode,
		Timestamp:  now,
		Repository: target.Repository,
		Branch:     target.Branch,
	}
	if existing, ok := l.cache.Get(target.Mode, target.Repository, identifier); ok {
		entry = *existing
	}
	entry.JobID = target.JobID
	entry.Mode = target.Mode
	entry.Status = result.Status
	entry.Resolved = true
	entry.ResolvedTimestamp = &now
	entry.Results = result.Results
	if target.Mode == models.ScanModeCommit {
		entry.CommitHash = identifier
	}
	if entry.Repository == "" {
		entry.Repository = target.Repository
	}

	saveErr := l.cache.Save(target.Mode, target.Repository, identifier, entry)
	l.metrics.CacheWrite(saveErr)
	if saveErr != nil {
		log.Error().Err(saveErr).Msg("Failed to cache completed scan")
	} else {
		log.Info().Str("status", result.Status).Msg("Completed scan reconciled into cache")
	}
	return nil
}

func (l *Listener) terminate(job *Job, outcome Outcome, err error, log zerolog.Logger) {
	if !job.finish(outcome, err) {
		return
	}
	l.metrics.StreamTerminated(string(outcome))
	evt := log.Debug()
	if err != nil {
		evt = log.Warn().Err(err)
	}
	evt.Str("outcome", string(outcome)).Msg("Job listener terminal")
}

func (l *Listener) publish(evt models.ClientEvent) {
	evt.Source = models.SourceStream
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	l.bus.Publish(evt)
}

func (l *Listener) publishError(jobID string, err error, data map[string]any) {
	evt := models.NewErrorEvent(models.SourceStream, err, data)
	evt.JobID = jobID
	l.bus.Publish(evt)
}
