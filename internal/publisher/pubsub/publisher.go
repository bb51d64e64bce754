// Package pubsub implements a Google Cloud Pub/Sub update publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/amaudy/feedhq/internal/feed"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) (*Publisher, error) {
	if topic == nil {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &Publisher{topic: topic}, nil
}

// Publish marshals the event to JSON and publishes it to the topic.
func (p *Publisher) Publish(ctx context.Context, event feed.UpdateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal update event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"feed_url": event.URL,
		},
	}
	result := p.topic.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish update event: %w", err)
	}
	return nil
}
