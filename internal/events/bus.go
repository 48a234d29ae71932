package events

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

// Handler receives published events
type Handler func(models.ClientEvent)

// Bus is the single outbound event channel owned by one component. Other
// components subscribe to it and forward by re-publishing on their own bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
	logger   zerolog.Logger
}

// NewBus creates an empty bus
func NewBus(name string, logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[uint64]Handler),
		logger:   logger.With().Str("component", "EventBus").Str("bus", name).Logger(),
	}
}

// Subscribe registers h and returns a function that removes it
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers evt to every subscriber, in subscription order.
// Handlers run synchronously on the caller's goroutine, outside the lock.
func (b *Bus) Publish(evt models.ClientEvent) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	b.logger.Debug().
		Str("type", string(evt.Type)).
		Str("source", evt.Source).
		Str("job_id", evt.JobID).
		Int("subscribers", len(handlers)).
		Msg("Publishing event")

	for _, h := range handlers {
		h(evt)
	}
}

// Forward re-publishes every event of src onto dst. The returned function
// stops forwarding.
func Forward(src, dst *Bus) func() {
	return src.Subscribe(dst.Publish)
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
