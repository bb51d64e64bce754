package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/amaudy/feedhq/internal/feed"
)

type entryKey struct {
	subscriptionID string
	dedup          string
}

// EntryStore keeps entries in a map keyed by subscription + dedup key.
type EntryStore struct {
	mu      sync.RWMutex
	entries map[entryKey]feed.Entry
}

// NewEntryStore creates an empty EntryStore.
func NewEntryStore() *EntryStore {
	return &EntryStore{entries: make(map[entryKey]feed.Entry)}
}

// CreateIfAbsent inserts the entry unless its dedup key already exists for
// the subscription.
func (s *EntryStore) CreateIfAbsent(_ context.Context, entry feed.Entry) (bool, error) {
	key := entryKey{subscriptionID: entry.SubscriptionID, dedup: entry.DedupKey()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.entries[key] = entry
	return true, nil
}

// CountUnread counts unread entries for a subscription.
func (s *EntryStore) CountUnread(_ context.Context, subscriptionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key, entry := range s.entries {
		if key.subscriptionID == subscriptionID && !entry.Read {
			count++
		}
	}
	return count, nil
}

// All returns every stored entry. Test helper.
func (s *EntryStore) All() []feed.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	return out
}
