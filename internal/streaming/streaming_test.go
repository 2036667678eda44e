package streaming

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	hub := NewHub(16)
	ch := hub.Subscribe("r1", 4)
	defer hub.Unsubscribe("r1", ch)

	hub.Publish(Event{ResearchID: "r1", Type: EventPlanning})
	hub.Publish(Event{ResearchID: "r2", Type: EventPlanning}) // other call

	evt := <-ch
	assert.Equal(t, EventPlanning, evt.Type)
	assert.Equal(t, uint64(1), evt.Seq)
	assert.Len(t, ch, 0)
}

func TestSequenceNumbersArePerCall(t *testing.T) {
	hub := NewHub(16)
	hub.Publish(Event{ResearchID: "a", Type: EventPlanning})
	hub.Publish(Event{ResearchID: "a", Type: EventSearching})
	hub.Publish(Event{ResearchID: "b", Type: EventPlanning})

	a := hub.ReplaySince("a", 0)
	require.Len(t, a, 2)
	assert.Equal(t, uint64(1), a[0].Seq)
	assert.Equal(t, uint64(2), a[1].Seq)

	b := hub.ReplaySince("b", 0)
	require.Len(t, b, 1)
	assert.Equal(t, uint64(1), b[0].Seq)
}

func TestReplaySince(t *testing.T) {
	hub := NewHub(16)
	for i := 0; i < 5; i++ {
		hub.Publish(Event{ResearchID: "r1", Type: EventSearching, Message: fmt.Sprintf("q%d", i)})
	}

	replay := hub.ReplaySince("r1", 3)
	require.Len(t, replay, 2)
	assert.Equal(t, uint64(4), replay[0].Seq)
	assert.Equal(t, uint64(5), replay[1].Seq)

	assert.Empty(t, hub.ReplaySince("unknown", 0))
}

func TestReplayBufferWrapsAround(t *testing.T) {
	hub := NewHub(3)
	for i := 1; i <= 5; i++ {
		hub.Publish(Event{ResearchID: "r1", Type: EventSearching})
	}

	replay := hub.ReplaySince("r1", 0)
	// Only the last three survive the ring.
	require.Len(t, replay, 3)
	assert.Equal(t, uint64(3), replay[0].Seq)
	assert.Equal(t, uint64(5), replay[2].Seq)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(16)
	ch := hub.Subscribe("r1", 1)
	defer hub.Unsubscribe("r1", ch)

	// Second publish must not block even though the buffer is full.
	hub.Publish(Event{ResearchID: "r1", Type: EventPlanning})
	hub.Publish(Event{ResearchID: "r1", Type: EventSearching})

	evt := <-ch
	assert.Equal(t, EventPlanning, evt.Type)
	// The dropped event is still replayable.
	assert.Len(t, hub.ReplaySince("r1", evt.Seq), 1)
}

func TestForget(t *testing.T) {
	hub := NewHub(16)
	hub.Publish(Event{ResearchID: "r1", Type: EventCompleted})
	require.NotEmpty(t, hub.ReplaySince("r1", 0))

	hub.Forget("r1")
	assert.Empty(t, hub.ReplaySince("r1", 0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(16)
	ch := hub.Subscribe("r1", 1)
	hub.Unsubscribe("r1", ch)

	_, open := <-ch
	assert.False(t, open)
}
