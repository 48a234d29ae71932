package stream

import (
	"context"
	"sync"
	"time"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

// State is the lifecycle position of a job listener
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome says how a terminal job ended
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Target identifies the job to follow and the cache key its outcome is
// reconciled into
type Target struct {
	Mode       models.ScanMode
	JobID      string
	Repository string
	// Identifier is the cache identifier: the commit hash in commit mode,
	// the job id in repo mode. Empty means derive it.
	Identifier string
	Branch     string
}

// CacheIdentifier returns Identifier, or the job id when unset
func (t Target) CacheIdentifier() string {
	if t.Identifier != "" {
		return t.Identifier
	}
	return t.JobID
}

type jobKey struct {
	mode  models.ScanMode
	jobID string
}

// Job is the handle of one listened job. The listener owns its state; the
// handle only reads it.
type Job struct {
	key    jobKey
	target Target
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	state      State
	outcome    Outcome
	err        error
	finishedAt time.Time
}

func newJob(target Target, cancel context.CancelFunc) *Job {
	return &Job{
		key:    jobKey{mode: target.Mode, jobID: target.JobID},
		target: target,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateConnecting,
	}
}

// Target returns what the job follows
func (j *Job) Target() Target {
	return j.target
}

// State returns the current lifecycle state
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Outcome returns how the job ended, empty while not terminal
func (j *Job) Outcome() Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome
}

// Err returns the error that terminated the job, if any
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Done is closed once the job is terminal and its connection released
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel stops listening. The job becomes terminal without an error event.
func (j *Job) Cancel() {
	j.cancel()
}

// Wait blocks until the job is terminal or ctx ends
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) setStreaming() {
	j.mu.Lock()
	if j.state == StateConnecting {
		j.state = StateStreaming
	}
	j.mu.Unlock()
}

// finish moves the job to terminal once; later calls are ignored
func (j *Job) finish(outcome Outcome, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateTerminal {
		return false
	}
	j.state = StateTerminal
	j.outcome = outcome
	j.err = err
	j.finishedAt = time.Now()
	return true
}

// finishedBefore reports whether the job turned terminal before t
func (j *Job) finishedBefore(t time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state == StateTerminal && j.finishedAt.Before(t)
}

func (j *Job) finishedTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt
}
