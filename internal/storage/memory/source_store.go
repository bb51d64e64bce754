// Package memory provides in-memory store implementations for tests and
// local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amaudy/feedhq/internal/feed"
)

// SourceStore keeps PolledSource records in a map keyed by URL.
type SourceStore struct {
	mu      sync.RWMutex
	sources map[string]feed.PolledSource
}

// NewSourceStore creates an empty SourceStore.
func NewSourceStore() *SourceStore {
	return &SourceStore{sources: make(map[string]feed.PolledSource)}
}

// GetOrCreate returns the record for url, creating a default one if absent.
func (s *SourceStore) GetOrCreate(_ context.Context, url string) (feed.PolledSource, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[url]; ok {
		return src, false, nil
	}
	src := feed.PolledSource{
		ID:              uuid.NewString(),
		URL:             url,
		SubscriberCount: 1,
		BackoffFactor:   1,
	}
	s.sources[url] = src
	return src, true, nil
}

// Get returns the record for url or feed.ErrNotFound.
func (s *SourceStore) Get(_ context.Context, url string) (feed.PolledSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[url]
	if !ok {
		return feed.PolledSource{}, feed.ErrNotFound
	}
	return src, nil
}

// Exists reports whether a record exists for url.
func (s *SourceStore) Exists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[url]
	return ok, nil
}

// Update persists src by ID, re-keying when the URL changed.
func (s *SourceStore) Update(_ context.Context, src feed.PolledSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for url, existing := range s.sources {
		if existing.ID == src.ID && url != src.URL {
			delete(s.sources, url)
			break
		}
	}
	s.sources[src.URL] = src
	return nil
}

// Delete removes the record for url; deleting a missing record is a no-op.
func (s *SourceStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sources, url)
	return nil
}

// ListURLs returns every known source URL.
func (s *SourceStore) ListURLs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, 0, len(s.sources))
	for url := range s.sources {
		urls = append(urls, url)
	}
	return urls, nil
}

// ListURLsByLink returns the URLs of sources whose page link matches.
func (s *SourceStore) ListURLsByLink(_ context.Context, link string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var urls []string
	for url, src := range s.sources {
		if src.Link == link {
			urls = append(urls, url)
		}
	}
	return urls, nil
}

// SetLastPollCycle stamps the scheduler cycle time on the record.
func (s *SourceStore) SetLastPollCycle(_ context.Context, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[url]
	if !ok {
		return nil
	}
	src.LastPollCycleAt = at
	s.sources[url] = src
	return nil
}
