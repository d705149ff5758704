package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mschirtzinger/teamboard/internal/events"
)

// ChannelName returns the Redis channel carrying topic for one deployment.
func ChannelName(instance, topic string) string {
	return fmt.Sprintf("teamboard:%s:%s", instance, topic)
}

// RedisPublisher publishes envelopes to Redis Pub/Sub, so processes other
// than the server can follow mutations.
type RedisPublisher struct {
	client   *redis.Client
	instance string
}

// NewRedisPublisher creates a publisher on client for instance.
func NewRedisPublisher(client *redis.Client, instance string) *RedisPublisher {
	return &RedisPublisher{client: client, instance: instance}
}

// Publish implements events.Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := events.Encode(topic, payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, ChannelName(p.instance, topic), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Subscription is an active Redis subscription delivering raw envelopes.
// Caller must call Close when done.
type Subscription struct {
	messages <-chan []byte
	cancel   func()
	once     sync.Once
	done     chan struct{}
}

// Messages returns the envelope channel. It is closed when the
// subscription ends.
func (s *Subscription) Messages() <-chan []byte {
	return s.messages
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Subscribe follows the given topics of instance. The subscription is
// confirmed before Subscribe returns.
func Subscribe(ctx context.Context, client *redis.Client, instance string, topics ...string) (*Subscription, error) {
	if len(topics) == 0 {
		topics = []string{events.TopicMutations, events.TopicReload}
	}
	channels := make([]string, 0, len(topics))
	for _, topic := range topics {
		channels = append(channels, ChannelName(instance, topic))
	}

	pubsub := client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("failed to subscribe to %v: %w", channels, err)
		}
	}

	messages := make(chan []byte, 10)
	done := make(chan struct{})
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(done)
		defer close(messages)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case messages <- []byte(msg.Payload):
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{messages: messages, cancel: cancel, done: done}, nil
}
