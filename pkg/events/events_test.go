package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewNotification(t *testing.T) {
	n, err := NewNotification("nova-compute:host-1", EventInstanceUpdate, map[string]string{"state": "active"})
	require.NoError(t, err)

	assert.NotEmpty(t, n.ID)
	assert.False(t, n.Timestamp.IsZero())
	assert.JSONEq(t, `{"state":"active"}`, string(n.Payload))
}

func TestBrokerBroadcast(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Notification{EventType: EventServiceUpdate})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case n := <-sub:
			assert.Equal(t, EventServiceUpdate, n.EventType)
			assert.NotEmpty(t, n.ID)
			assert.False(t, n.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}

	b.Unsubscribe(sub1)
	b.Unsubscribe(sub1)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBrokerPublishAfterStop(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop()

	for i := 0; i < 200; i++ {
		b.Publish(&Notification{EventType: EventServiceUpdate})
	}
}
