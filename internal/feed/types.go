// Package feed defines the core types and operations of the polling engine:
// the canonical URL registry, the backoff policy, redirect resolution and
// entry fan-out.
package feed

import (
	"net/http"
	"time"
)

// ErrorKind classifies the last failed poll attempt for a source. It is kept
// even when the backoff factor later recovers and is only cleared on a clean
// success.
type ErrorKind string

// Error kinds persisted on a PolledSource.
const (
	ErrorNone    ErrorKind = ""
	ErrorTimeout ErrorKind = "timeout"
	ErrorGone    ErrorKind = "gone"
	Error400     ErrorKind = "400"
	Error401     ErrorKind = "401"
	Error403     ErrorKind = "403"
	Error404     ErrorKind = "404"
	Error500     ErrorKind = "500"
	Error502     ErrorKind = "502"
	Error503     ErrorKind = "503"
)

// MaxBackoff caps the backoff factor. At factor 10 the polling delay is
// roughly 24 hours, which keeps permanently failing feeds polled but cheap
// instead of oscillating between muted and active.
const MaxBackoff = 10

// PolledSource is the single polling state record for one physical feed URL,
// shared by every subscription pointing at that URL.
type PolledSource struct {
	ID              string
	URL             string
	Title           string
	Link            string
	HubURL          string
	ETag            string
	LastModified    string
	SubscriberCount int
	BackoffFactor   int
	Muted           bool
	ErrorKind       ErrorKind
	LastAttemptAt   time.Time
	LastPollCycleAt time.Time
}

// Status is the read-only snapshot of a source exposed to presentation. A
// muted source is terminal until externally un-muted; an active one may
// carry the last error kind.
type Status struct {
	URL             string    `json:"url"`
	Title           string    `json:"title,omitempty"`
	Link            string    `json:"link,omitempty"`
	HubURL          string    `json:"hub_url,omitempty"`
	Muted           bool      `json:"muted"`
	ErrorKind       ErrorKind `json:"error_kind,omitempty"`
	BackoffFactor   int       `json:"backoff_factor"`
	ETag            string    `json:"etag,omitempty"`
	LastModified    string    `json:"last_modified,omitempty"`
	SubscriberCount int       `json:"subscriber_count"`
	LastAttemptAt   time.Time `json:"last_attempt_at,omitzero"`
}

// Status returns the source's current state snapshot.
func (s *PolledSource) Status() Status {
	st := Status{
		URL:             s.URL,
		Title:           s.Title,
		Link:            s.Link,
		HubURL:          s.HubURL,
		Muted:           s.Muted,
		ErrorKind:       s.ErrorKind,
		BackoffFactor:   s.BackoffFactor,
		ETag:            s.ETag,
		LastModified:    s.LastModified,
		SubscriberCount: s.SubscriberCount,
		LastAttemptAt:   s.LastAttemptAt,
	}
	if s.Muted {
		st.ErrorKind = ErrorGone
	}
	return st
}

// Subscription is one user's view of a physical feed URL. Many subscriptions
// may reference the same PolledSource; the URL is a loose, repoint-able
// reference, rewritten in bulk when the source moves.
type Subscription struct {
	ID          string
	UserID      string
	URL         string
	Name        string
	Muted       bool
	UnreadCount int
	IconURI     string
}

// Entry is a cached feed item delivered to exactly one subscription.
type Entry struct {
	ID             string
	SubscriptionID string
	Title          string
	Summary        string
	Link           string
	// Permalink holds the real article URL when Link points at a feed
	// proxy such as FeedBurner.
	Permalink string
	Date      time.Time
	Read      bool
}

// DedupKey identifies an entry within a subscription: the link when present,
// otherwise title plus date.
func (e Entry) DedupKey() string {
	if e.Link != "" {
		return e.Link
	}
	return e.Title + "\x00" + e.Date.UTC().Format(time.RFC3339)
}

// IconRecord holds the favicon resolution state for a page URL. The record
// exists from the first resolution attempt onward; IconURI stays empty while
// unresolved.
type IconRecord struct {
	PageURL     string
	IconURI     string
	ContentType string
}

// Resolved reports whether the record carries usable icon bytes.
func (r IconRecord) Resolved() bool {
	return r.IconURI != ""
}

// Document is a normalized feed document produced by the parser adapter.
// A failed parse yields the zero Document, never an error.
type Document struct {
	Title   string
	Link    string
	SelfURL string
	HubURLs []string
	Entries []DocEntry
}

// DocEntry is one normalized item of a Document.
type DocEntry struct {
	Title     string
	Summary   string
	Link      string
	Permalink string
	Published time.Time
}

// RedirectHop records one followed redirect: the status returned and the URL
// that returned it, in request order.
type RedirectHop struct {
	StatusCode int
	URL        string
}

// FetchRequest captures everything needed for one conditional GET.
type FetchRequest struct {
	URL     string
	Header  http.Header
	Timeout time.Duration
}

// FetchResult is the outcome of one HTTP exchange. A transport failure is
// signalled by the Fetcher's error return, never encoded in here.
type FetchResult struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	History    []RedirectHop
	Duration   time.Duration
}

// UpdateEvent is published after a successful fan-out.
type UpdateEvent struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	NewEntries int       `json:"new_entries"`
	PolledAt   time.Time `json:"polled_at"`
	Pushed     bool      `json:"pushed,omitempty"`
}
