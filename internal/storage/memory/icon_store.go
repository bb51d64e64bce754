package memory

import (
	"context"
	"sync"

	"github.com/amaudy/feedhq/internal/feed"
)

// IconStore keeps favicon records in a map keyed by page URL.
type IconStore struct {
	mu    sync.RWMutex
	icons map[string]feed.IconRecord
}

// NewIconStore creates an empty IconStore.
func NewIconStore() *IconStore {
	return &IconStore{icons: make(map[string]feed.IconRecord)}
}

// GetOrCreate returns the record for pageURL, creating an unresolved one if
// absent.
func (s *IconStore) GetOrCreate(_ context.Context, pageURL string) (feed.IconRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.icons[pageURL]; ok {
		return rec, false, nil
	}
	rec := feed.IconRecord{PageURL: pageURL}
	s.icons[pageURL] = rec
	return rec, true, nil
}

// Update persists the record.
func (s *IconStore) Update(_ context.Context, rec feed.IconRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.icons[rec.PageURL] = rec
	return nil
}

// Delete removes the record for pageURL.
func (s *IconStore) Delete(_ context.Context, pageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.icons, pageURL)
	return nil
}

// Get returns the record for pageURL. Test helper.
func (s *IconStore) Get(pageURL string) (feed.IconRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.icons[pageURL]
	return rec, ok
}
