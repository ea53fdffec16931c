package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish(&Event{Type: EventShardDown, Message: "shard-a unreachable"})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, EventShardDown, ev.Type)
			assert.NotEmpty(t, ev.ID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)

	// Double unsubscribe is safe
	b.Unsubscribe(sub)
}

func TestSlowSubscriberSkipsInsteadOfBlocking(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	// Overflow the subscriber buffer without draining it
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(&Event{Type: EventMigrationStarted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish must never block on a slow subscriber")
	}
}

func TestNilBrokerIsSafe(t *testing.T) {
	var b *Broker
	b.Start()
	b.Publish(&Event{Type: EventConfigApplied})
	assert.Nil(t, b.Subscribe())
	assert.Zero(t, b.SubscriberCount())
	b.Unsubscribe(nil)
	b.Stop()
}
