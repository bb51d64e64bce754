package feed

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// SourceStore persists PolledSource records, keyed by physical URL.
type SourceStore interface {
	// GetOrCreate returns the record for url, creating it with default
	// polling state when absent. The second return reports creation.
	GetOrCreate(ctx context.Context, url string) (PolledSource, bool, error)
	Get(ctx context.Context, url string) (PolledSource, error)
	Exists(ctx context.Context, url string) (bool, error)
	// Update persists the record by ID; the URL may have changed since load.
	Update(ctx context.Context, src PolledSource) error
	Delete(ctx context.Context, url string) error
	// ListURLs returns every known source URL, muted ones included.
	ListURLs(ctx context.Context) ([]string, error)
	// ListURLsByLink returns the URLs of sources whose page link matches.
	ListURLsByLink(ctx context.Context, link string) ([]string, error)
	SetLastPollCycle(ctx context.Context, url string, at time.Time) error
}

// SubscriptionStore exposes the subscription relation to the polling engine.
// The engine never creates or deletes subscriptions; it counts them, lists
// them, repoints them on redirects and stamps resolved icons onto them.
type SubscriptionStore interface {
	CountByURL(ctx context.Context, url string) (int, error)
	ListByURL(ctx context.Context, url string) ([]Subscription, error)
	RewriteURL(ctx context.Context, oldURL, newURL string) error
	// ListWithoutIcon returns subscriptions at any of urls lacking an icon.
	ListWithoutIcon(ctx context.Context, urls []string) ([]Subscription, error)
	SetIcon(ctx context.Context, subscriptionIDs []string, iconURI string) error
	SetUnreadCount(ctx context.Context, subscriptionID string, count int) error
}

// EntryStore persists entries per subscription with at-most-once semantics
// on the dedup key.
type EntryStore interface {
	// CreateIfAbsent inserts the entry unless one with the same dedup key
	// already exists for the subscription; it reports whether a row was
	// created.
	CreateIfAbsent(ctx context.Context, entry Entry) (bool, error)
	CountUnread(ctx context.Context, subscriptionID string) (int, error)
}

// IconStore persists favicon resolution records, keyed by page URL.
type IconStore interface {
	GetOrCreate(ctx context.Context, pageURL string) (IconRecord, bool, error)
	Update(ctx context.Context, rec IconRecord) error
	Delete(ctx context.Context, pageURL string) error
}

// Fetcher performs exactly one HTTP GET. HTTP-level error statuses come back
// as a FetchResult; only transport failures (DNS, connect, timeout) return
// an error.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// Parser normalizes raw feed bytes into a Document. Malformed input yields
// an empty Document, never an error.
type Parser interface {
	Parse(data []byte) Document
}

// BlobStore writes raw icon bytes and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes feed-updated events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, event UpdateEvent) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IconResolver is the registry's hook into favicon resolution, triggered
// when a source's page link changes.
type IconResolver interface {
	Resolve(ctx context.Context, pageURL string, force bool) (*IconRecord, error)
}
