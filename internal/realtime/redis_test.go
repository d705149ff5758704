package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/teamboard/internal/events"
	"github.com/mschirtzinger/teamboard/internal/schema"
)

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRelayDeliversEnvelopes(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, client, "test-instance")
	require.NoError(t, err)
	defer sub.Close()

	pub := NewRedisPublisher(client, "test-instance")
	ev := events.Event{
		ID:         "e-1",
		Action:     schema.ActionDelete,
		EntityType: schema.KindTask,
		EntityID:   "t-1",
	}
	require.NoError(t, pub.Publish(ctx, events.TopicMutations, ev))
	require.NoError(t, pub.Publish(ctx, events.TopicReload, events.Reload{EntityType: schema.KindTask}))

	select {
	case data := <-sub.Messages():
		got, err := events.DecodeMutation(data)
		require.NoError(t, err)
		assert.Equal(t, "e-1", got.ID)
		assert.Equal(t, schema.ActionDelete, got.Action)
		assert.Equal(t, "t-1", got.EntityID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for mutation")
	}

	select {
	case data := <-sub.Messages():
		topic, err := events.Topic(data)
		require.NoError(t, err)
		assert.Equal(t, events.TopicReload, topic)
	case <-ctx.Done():
		t.Fatal("timed out waiting for reload")
	}
}

func TestRedisRelayIsolatesInstances(t *testing.T) {
	client := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, client, "instance-1", events.TopicMutations)
	require.NoError(t, err)
	defer sub.Close()

	other := NewRedisPublisher(client, "instance-2")
	require.NoError(t, other.Publish(ctx, events.TopicMutations, events.Hello{Clients: 1}))

	select {
	case data := <-sub.Messages():
		t.Fatalf("received message for another instance: %s", data)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	client := setupRedis(t)
	sub, err := Subscribe(context.Background(), client, "x")
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	_, open := <-sub.Messages()
	assert.False(t, open, "messages channel should be closed")
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "teamboard:prod:mutations", ChannelName("prod", events.TopicMutations))
}
