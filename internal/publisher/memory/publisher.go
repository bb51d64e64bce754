// Package memory contains an in-memory update publisher for tests.
package memory

import (
	"context"
	"sync"

	"github.com/amaudy/feedhq/internal/feed"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []feed.UpdateEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event.
func (p *Publisher) Publish(_ context.Context, event feed.UpdateEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns the recorded publishes.
func (p *Publisher) Events() []feed.UpdateEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]feed.UpdateEvent, len(p.events))
	copy(out, p.events)
	return out
}
