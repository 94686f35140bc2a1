package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/logging"
)

func receive(t *testing.T, sub *Subscription) domain.Message {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return domain.Message{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected message on %s", msg.Topic)
	default:
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("#", "sensors/motion"))
	assert.True(t, Matches("alerts", "alerts"))
	assert.True(t, Matches("alerts/*", "alerts/CRITICAL"))
	assert.False(t, Matches("alerts/*", "alerts"))
	assert.False(t, Matches("sensors/*", "stats"))
}

func TestPublishRoutesByPattern(t *testing.T) {
	broker := NewBroker(logging.Discard())
	ctx := context.Background()

	all, err := broker.Subscribe("#", 4)
	require.NoError(t, err)
	critical, err := broker.Subscribe(domain.AlertCritical.Topic(), 4)
	require.NoError(t, err)
	sensors, err := broker.Subscribe("sensors/*", 4)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, domain.TopicAlerts, "a"))
	require.NoError(t, broker.Publish(ctx, "alerts/CRITICAL", "b"))
	require.NoError(t, broker.Publish(ctx, domain.SensorMotion.Topic(), "c"))

	assert.Equal(t, "a", receive(t, all).Payload)
	assert.Equal(t, "b", receive(t, all).Payload)
	assert.Equal(t, "c", receive(t, all).Payload)

	msg := receive(t, critical)
	assert.Equal(t, "alerts/CRITICAL", msg.Topic)
	assert.False(t, msg.PublishedAt.IsZero())
	assertEmpty(t, critical)

	assert.Equal(t, "c", receive(t, sensors).Payload)
	assertEmpty(t, sensors)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	broker := NewBroker(logging.Discard())
	sub, err := broker.Subscribe(domain.TopicStats, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, broker.Publish(context.Background(), domain.TopicStats, i))
	}

	assert.EqualValues(t, 4, sub.Dropped())
	assert.EqualValues(t, 4, broker.Dropped())
	assert.Equal(t, 0, receive(t, sub).Payload)
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	broker := NewBroker(logging.Discard())
	sub, err := broker.Subscribe("#", 1)
	require.NoError(t, err)
	require.Equal(t, 1, broker.SubscriberCount())

	sub.Close()
	sub.Close()

	_, open := <-sub.C()
	assert.False(t, open)
	assert.Zero(t, broker.SubscriberCount())
	require.NoError(t, broker.Publish(context.Background(), "stats", 1))
}

func TestBrokerClose(t *testing.T) {
	broker := NewBroker(logging.Discard())
	sub, err := broker.Subscribe("#", 1)
	require.NoError(t, err)

	broker.Close()
	sub.Close()

	_, open := <-sub.C()
	assert.False(t, open)
	assert.ErrorIs(t, broker.Publish(context.Background(), "stats", 1), ErrBrokerClosed)
	_, err = broker.Subscribe("#", 1)
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestSubscribeRejectsMalformedPattern(t *testing.T) {
	broker := NewBroker(logging.Discard())
	_, err := broker.Subscribe("alerts/[", 1)
	assert.Error(t, err)
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	broker := NewBroker(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, broker.Publish(ctx, "stats", 1), context.Canceled)
}
