package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.recall/internal/models"
)

func memoryEvent(memType, source string, tags ...string) *Event {
	return &Event{
		Kind:   KindCreated,
		Memory: &models.Memory{ID: "m1", Type: memType, Source: source, Tags: tags},
	}
}

func TestHub_PublishDeliversToMatchingSubscriber(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe(models.StreamFilter{Type: "note"})
	defer sub.Close()

	hub.Publish(memoryEvent("note", ""))
	hub.Publish(memoryEvent("task", ""))

	event := <-sub.Events()
	require.NotNil(t, event.Memory)
	assert.Equal(t, "note", event.Memory.Type)

	select {
	case extra := <-sub.Events():
		t.Fatalf("unexpected extra event: %+v", extra)
	default:
	}
}

func TestHub_EmptyFilterMatchesEverything(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe(models.StreamFilter{})
	defer sub.Close()

	hub.Publish(memoryEvent("note", "cli"))
	hub.Publish(memoryEvent("task", "api"))

	assert.NotNil(t, <-sub.Events())
	assert.NotNil(t, <-sub.Events())
}

func TestHub_TagFilterUsesOverlap(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe(models.StreamFilter{Tags: []string{"work", "urgent"}})
	defer sub.Close()

	hub.Publish(memoryEvent("note", "", "personal"))
	hub.Publish(memoryEvent("note", "", "work", "monday"))

	event := <-sub.Events()
	assert.Contains(t, event.Memory.Tags, "work")
	assert.Equal(t, int64(1), hub.Metrics().Delivered)
}

func TestHub_FullBufferDropsForThatSubscriberOnly(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()

	slow := hub.Subscribe(models.StreamFilter{})
	defer slow.Close()
	fast := hub.Subscribe(models.StreamFilter{})
	defer fast.Close()

	hub.Publish(memoryEvent("note", ""))
	// Drain only the fast subscriber, then publish again.
	<-fast.Events()
	hub.Publish(memoryEvent("note", ""))

	metrics := hub.Metrics()
	assert.Equal(t, int64(1), metrics.Dropped)
	assert.Equal(t, int64(3), metrics.Delivered)
}

func TestSubscription_CloseDetaches(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()

	sub := hub.Subscribe(models.StreamFilter{})
	assert.Equal(t, 1, hub.SubscriberCount())

	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount())

	_, open := <-sub.Events()
	assert.False(t, open)

	// Closing twice is safe.
	sub.Close()
}

func TestHub_CloseClosesAllSubscribers(t *testing.T) {
	hub := NewHub(4)
	first := hub.Subscribe(models.StreamFilter{})
	second := hub.Subscribe(models.StreamFilter{})

	hub.Close()

	_, open := <-first.Events()
	assert.False(t, open)
	_, open = <-second.Events()
	assert.False(t, open)

	// Publishing after close is a no-op.
	hub.Publish(memoryEvent("note", ""))
	assert.Equal(t, int64(0), hub.Metrics().Published)
}

func TestHub_SubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	hub := NewHub(4)
	hub.Close()

	sub := hub.Subscribe(models.StreamFilter{})
	_, open := <-sub.Events()
	assert.False(t, open)
}
