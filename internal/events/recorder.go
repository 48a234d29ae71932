package events

import (
	"sync"
	"time"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

// Recorder collects events from a bus. It is used by the CLI's --wait mode
// and by tests that need to observe asynchronous emissions.
type Recorder struct {
	mu     sync.Mutex
	events []models.ClientEvent
	notify chan struct{}
}

// NewRecorder subscribes a recorder to bus
func NewRecorder(bus *Bus) (*Recorder, func()) {
	r := &Recorder{notify: make(chan struct{}, 1)}
	return r, bus.Subscribe(r.record)
}

func (r *Recorder) record(evt models.ClientEvent) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []models.ClientEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ClientEvent, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of the given type
func (r *Recorder) OfType(t models.ClientEventType) []models.ClientEvent {
	var out []models.ClientEvent
	for _, evt := range r.Events() {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

// WaitFor blocks until pred matches a recorded event or timeout elapses
func (r *Recorder) WaitFor(timeout time.Duration, pred func(models.ClientEvent) bool) (models.ClientEvent, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		for _, evt := range r.Events() {
			if pred(evt) {
				return evt, true
			}
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return models.ClientEvent{}, false
		}
	}
}
