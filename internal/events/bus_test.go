package events

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnzap/vulnzap-client/internal/models"
)

func TestBus_PublishOrderAndUnsubscribe(t *testing.T) {
	bus := NewBus("test", zerolog.Nop())

	var got []string
	unsubA := bus.Subscribe(func(evt models.ClientEvent) { got = append(got, "a:"+evt.JobID) })
	bus.Subscribe(func(evt models.ClientEvent) { got = append(got, "b:"+evt.JobID) })

	bus.Publish(models.ClientEvent{Type: models.EventUpdate, JobID: "j1"})
	unsubA()
	unsubA() // second call is a no-op
	bus.Publish(models.ClientEvent{Type: models.EventUpdate, JobID: "j2"})

	assert.Equal(t, []string{"a:j1", "b:j1", "b:j2"}, got)
	assert.Equal(t, 1, bus.SubscriberCount())
}

func TestForward_PreservesPayload(t *testing.T) {
	src := NewBus("src", zerolog.Nop())
	dst := NewBus("dst", zerolog.Nop())
	stop := Forward(src, dst)

	rec, unsub := NewRecorder(dst)
	defer unsub()

	data := map[string]any{"type": "progress", "jobId": "j1", "progress": 42.0}
	src.Publish(models.ClientEvent{Type: models.EventUpdate, JobID: "j1", Data: data})

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, data, events[0].Data)

	stop()
	src.Publish(models.ClientEvent{Type: models.EventUpdate, JobID: "j2"})
	assert.Len(t, rec.Events(), 1)
}

func TestRecorder_WaitFor(t *testing.T) {
	bus := NewBus("test", zerolog.Nop())
	rec, unsub := NewRecorder(bus)
	defer unsub()

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(models.ClientEvent{Type: models.EventCompleted, JobID: "j1"})
	}()

	evt, ok := rec.WaitFor(2*time.Second, func(e models.ClientEvent) bool { return e.Type == models.EventCompleted })
	require.True(t, ok)
	assert.Equal(t, "j1", evt.JobID)

	_, ok = rec.WaitFor(10*time.Millisecond, func(e models.ClientEvent) bool { return e.Type == models.EventError })
	assert.False(t, ok)
}
