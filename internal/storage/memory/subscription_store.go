package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/amaudy/feedhq/internal/feed"
)

// SubscriptionStore keeps subscriptions in a map keyed by ID.
type SubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]feed.Subscription
}

// NewSubscriptionStore creates an empty SubscriptionStore.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[string]feed.Subscription)}
}

// Add inserts a subscription, assigning an ID when absent. Test helper; the
// engine itself never creates subscriptions.
func (s *SubscriptionStore) Add(sub feed.Subscription) feed.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	s.subs[sub.ID] = sub
	return sub
}

// Get returns a subscription by ID. Test helper.
func (s *SubscriptionStore) Get(id string) (feed.Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// Remove deletes a subscription by ID. Test helper.
func (s *SubscriptionStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// CountByURL counts subscriptions referencing url.
func (s *SubscriptionStore) CountByURL(_ context.Context, url string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sub := range s.subs {
		if sub.URL == url {
			count++
		}
	}
	return count, nil
}

// ListByURL returns subscriptions referencing url in stable order.
func (s *SubscriptionStore) ListByURL(_ context.Context, url string) ([]feed.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Subscription
	for _, sub := range s.subs {
		if sub.URL == url {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RewriteURL repoints every subscription from oldURL to newURL.
func (s *SubscriptionStore) RewriteURL(_ context.Context, oldURL, newURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		if sub.URL == oldURL {
			sub.URL = newURL
			s.subs[id] = sub
		}
	}
	return nil
}

// ListWithoutIcon returns subscriptions at any of urls that lack an icon.
func (s *SubscriptionStore) ListWithoutIcon(_ context.Context, urls []string) ([]feed.Subscription, error) {
	wanted := make(map[string]struct{}, len(urls))
	for _, url := range urls {
		wanted[url] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Subscription
	for _, sub := range s.subs {
		if _, ok := wanted[sub.URL]; ok && sub.IconURI == "" {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetIcon stamps iconURI onto the given subscriptions.
func (s *SubscriptionStore) SetIcon(_ context.Context, subscriptionIDs []string, iconURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range subscriptionIDs {
		if sub, ok := s.subs[id]; ok {
			sub.IconURI = iconURI
			s.subs[id] = sub
		}
	}
	return nil
}

// SetUnreadCount updates the denormalized unread counter.
func (s *SubscriptionStore) SetUnreadCount(_ context.Context, subscriptionID string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[subscriptionID]; ok {
		sub.UnreadCount = count
		s.subs[subscriptionID] = sub
	}
	return nil
}
