package models

import "time"

// StreamEventType is the discriminator of frames pushed by the backend
type StreamEventType string

const (
	StreamEventConnected StreamEventType = "connected"
	StreamEventProgress  StreamEventType = "progress"
	StreamEventCompleted StreamEventType = "completed"
	StreamEventError     StreamEventType = "error"
)

// ClientEventType names the events re-emitted to callers
type ClientEventType string

const (
	EventUpdate    ClientEventType = "update"
	EventCompleted ClientEventType = "completed"
	EventError     ClientEventType = "error"
)

// Event sources
const (
	SourceGateway = "gateway"
	SourceStream  = "stream"
	SourceWatcher = "watcher"
)

// ClientEvent is the normalized event delivered on the public event surface.
// Data carries the relayed JSON object verbatim.
type ClientEvent struct {
	Type      ClientEventType `json:"type"`
	Source    string          `json:"source"`
	JobID     string          `json:"jobId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Err       error           `json:"-"`
	Time      time.Time       `json:"time"`
}

// NewErrorEvent builds an error event from err
func NewErrorEvent(source string, err error, data map[string]any) ClientEvent {
	evt := ClientEvent{
		Type:   EventError,
		Source: source,
		Data:   data,
		Err:    err,
		Time:   time.Now(),
	}
	if err != nil {
		evt.Message = err.Error()
	}
	return evt
}
