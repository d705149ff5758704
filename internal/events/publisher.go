package events

import (
	"context"
	"errors"
)

// Publisher delivers an envelope to subscribers of topic. Delivery is best
// effort.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, topic string, payload any) error

func (f PublisherFunc) Publish(ctx context.Context, topic string, payload any) error {
	return f(ctx, topic, payload)
}

// MultiPublisher publishes to every wrapped publisher, in order, and joins
// their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
