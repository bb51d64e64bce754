package feed_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amaudy/feedhq/internal/feed"
	pubmemory "github.com/amaudy/feedhq/internal/publisher/memory"
	"github.com/amaudy/feedhq/internal/storage/memory"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []feed.FetchRequest
	fn    func(req feed.FetchRequest) (feed.FetchResult, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, req feed.FetchRequest) (feed.FetchResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) lastCall() feed.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type staticParser struct {
	doc feed.Document
}

func (p staticParser) Parse([]byte) feed.Document { return p.doc }

func okResult(url string) feed.FetchResult {
	return feed.FetchResult{
		URL:        url,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/rss+xml"}},
		Body:       []byte("<rss/>"),
		Duration:   50 * time.Millisecond,
	}
}

type registryEnv struct {
	registry  *feed.Registry
	sources   *memory.SourceStore
	subs      *memory.SubscriptionStore
	entries   *memory.EntryStore
	fetcher   *fakeFetcher
	publisher *pubmemory.Publisher
	clock     *stepClock
}

func newRegistryEnv(fetcher *fakeFetcher, parser feed.Parser) *registryEnv {
	sources := memory.NewSourceStore()
	subs := memory.NewSubscriptionStore()
	entries := memory.NewEntryStore()
	publisher := pubmemory.New()
	clk := &stepClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	fanout := feed.NewFanout(entries, subs, clk, nil)
	registry := feed.NewRegistry(sources, subs, fetcher, parser, fanout,
		publisher, nil, clk, feed.RegistryConfig{}, nil)
	return &registryEnv{
		registry:  registry,
		sources:   sources,
		subs:      subs,
		entries:   entries,
		fetcher:   fetcher,
		publisher: publisher,
		clock:     clk,
	}
}

func TestPollSuccessFansOutAndPublishes(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		result := okResult(url)
		result.Header.Set("Etag", `"v1"`)
		result.Header.Set("Last-Modified", "Wed, 01 May 2024 11:00:00 GMT")
		return result, nil
	}}
	parser := staticParser{doc: feed.Document{
		Title:   "Example Feed",
		Link:    "http://example.com",
		HubURLs: []string{"http://hub.example.com"},
		Entries: []feed.DocEntry{
			{Title: "One", Link: "http://example.com/1"},
			{Title: "Two", Link: "http://example.com/2"},
		},
	}}
	env := newRegistryEnv(fetcher, parser)
	ctx := context.Background()

	env.subs.Add(feed.Subscription{UserID: "u1", URL: url})
	env.subs.Add(feed.Subscription{UserID: "u2", URL: url})

	require.NoError(t, env.registry.Poll(ctx, url, true))

	// One physical fetch served both subscriptions.
	require.Equal(t, 1, fetcher.callCount())
	require.Len(t, env.entries.All(), 4)

	src, err := env.sources.Get(ctx, url)
	require.NoError(t, err)
	require.Equal(t, "Example Feed", src.Title)
	require.Equal(t, "http://example.com", src.Link)
	require.Equal(t, "http://hub.example.com", src.HubURL)
	require.Equal(t, `"v1"`, src.ETag)
	require.Equal(t, "Wed, 01 May 2024 11:00:00 GMT", src.LastModified)
	require.Equal(t, 1, src.BackoffFactor)
	require.Equal(t, feed.ErrorNone, src.ErrorKind)
	require.Equal(t, 2, src.SubscriberCount)

	events := env.publisher.Events()
	require.Len(t, events, 1)
	require.Equal(t, url, events[0].URL)
	require.Equal(t, 4, events[0].NewEntries)

	// The request identified itself and its audience.
	req := fetcher.lastCall()
	require.Contains(t, req.Header.Get("User-Agent"), "2 subscribers")
	require.NotEmpty(t, req.Header.Get("Accept"))
}

func TestPollSkipsRecentAttempt(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		return okResult(url), nil
	}}
	env := newRegistryEnv(fetcher, staticParser{})
	ctx := context.Background()
	env.subs.Add(feed.Subscription{UserID: "u1", URL: url})

	require.NoError(t, env.registry.Poll(ctx, url, true))
	require.Equal(t, 1, fetcher.callCount())

	// Too soon: the attempt is skipped without touching the network.
	require.NoError(t, env.registry.Poll(ctx, url, true))
	require.Equal(t, 1, fetcher.callCount())

	// After the factor-1 delay the source is eligible again.
	env.clock.Advance(46 * time.Minute)
	require.NoError(t, env.registry.Poll(ctx, url, true))
	require.Equal(t, 2, fetcher.callCount())
}

func TestPollDeletesOrphanSource(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		return okResult(url), nil
	}}
	env := newRegistryEnv(fetcher, staticParser{})
	ctx := context.Background()

	require.NoError(t, env.registry.Poll(ctx, url, true))

	require.Equal(t, 0, fetcher.callCount())
	_, err := env.sources.Get(ctx, url)
	require.ErrorIs(t, err, feed.ErrNotFound)
}

func TestPollGoneMutesUntilUnmuted(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		result := okResult(url)
		result.StatusCode = http.StatusGone
		return result, nil
	}}
	env := newRegistryEnv(fetcher, staticParser{})
	ctx := context.Background()
	env.subs.Add(feed.Subscription{UserID: "u1", URL: url})

	require.NoError(t, env.registry.Poll(ctx, url, true))

	src, err := env.sources.Get(ctx, url)
	require.NoError(t, err)
	require.True(t, src.Muted)
	require.Equal(t, feed.ErrorGone, src.ErrorKind)

	// Muted sources never reach the network again.
	require.NoError(t, env.registry.Poll(ctx, url, false))
	require.Equal(t, 1, fetcher.callCount())

	// Un-muting is the explicit external action that resumes polling.
	require.NoError(t, env.registry.Unmute(ctx, url))
	require.NoError(t, env.registry.Poll(ctx, url, false))
	require.Equal(t, 2, fetcher.callCount())
}

func TestPollNotModifiedStoresValidatorsWithoutFanout(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		return feed.FetchResult{
			URL:        url,
			StatusCode: http.StatusNotModified,
			Header:     http.Header{"Etag": {`"v2"`}},
			Duration:   20 * time.Millisecond,
		}, nil
	}}
	parser := staticParser{doc: feed.Document{
		Entries: []feed.DocEntry{{Title: "One", Link: "http://example.com/1"}},
	}}
	env := newRegistryEnv(fetcher, parser)
	ctx := context.Background()
	env.subs.Add(feed.Subscription{UserID: "u1", URL: url})

	require.NoError(t, env.registry.Poll(ctx, url, true))

	require.Empty(t, env.entries.All())
	src, err := env.sources.Get(ctx, url)
	require.NoError(t, err)
	require.Equal(t, `"v2"`, src.ETag)

	// The stored validator rides along on the next conditional request.
	env.clock.Advance(46 * time.Minute)
	require.NoError(t, env.registry.Poll(ctx, url, true))
	require.Equal(t, `"v2"`, fetcher.lastCall().Header.Get("If-None-Match"))
}

func TestPollRenamesSourceOnPermanentRedirect(t *testing.T) {
	t.Parallel()

	const (
		oldURL = "http://old.example.com/feed"
		newURL = "http://new.example.com/feed"
	)
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		result := okResult(newURL)
		result.History = []feed.RedirectHop{{StatusCode: 301, URL: oldURL}}
		return result, nil
	}}
	env := newRegistryEnv(fetcher, staticParser{})
	ctx := context.Background()
	sub := env.subs.Add(feed.Subscription{UserID: "u1", URL: oldURL})

	require.NoError(t, env.registry.Poll(ctx, oldURL, true))

	_, err := env.sources.Get(ctx, oldURL)
	require.ErrorIs(t, err, feed.ErrNotFound)
	src, err := env.sources.Get(ctx, newURL)
	require.NoError(t, err)
	require.Equal(t, newURL, src.URL)

	moved, ok := env.subs.Get(sub.ID)
	require.True(t, ok)
	require.Equal(t, newURL, moved.URL)
}

func TestPollRedirectYieldsToExistingTarget(t *testing.T) {
	t.Parallel()

	const (
		oldURL = "http://old.example.com/feed"
		newURL = "http://new.example.com/feed"
	)
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		result := okResult(newURL)
		result.History = []feed.RedirectHop{{StatusCode: 301, URL: oldURL}}
		return result, nil
	}}
	env := newRegistryEnv(fetcher, staticParser{})
	ctx := context.Background()

	_, _, err := env.sources.GetOrCreate(ctx, newURL)
	require.NoError(t, err)
	sub := env.subs.Add(feed.Subscription{UserID: "u1", URL: oldURL})

	require.NoError(t, env.registry.Poll(ctx, oldURL, true))

	// The duplicate record is dropped; the target record survives.
	_, err = env.sources.Get(ctx, oldURL)
	require.ErrorIs(t, err, feed.ErrNotFound)
	_, err = env.sources.Get(ctx, newURL)
	require.NoError(t, err)

	moved, ok := env.subs.Get(sub.ID)
	require.True(t, ok)
	require.Equal(t, newURL, moved.URL)
}

func TestPollTransportErrorBacksOff(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		return feed.FetchResult{}, errors.New("dial tcp: connection refused")
	}}
	env := newRegistryEnv(fetcher, staticParser{})
	ctx := context.Background()
	env.subs.Add(feed.Subscription{UserID: "u1", URL: url})

	for i := 0; i < 12; i++ {
		require.NoError(t, env.registry.Poll(ctx, url, false))
	}

	src, err := env.sources.Get(ctx, url)
	require.NoError(t, err)
	require.Equal(t, feed.MaxBackoff, src.BackoffFactor)
	require.Equal(t, feed.ErrorTimeout, src.ErrorKind)
	require.False(t, src.Muted)
}

func TestPollTransientStatusBacksOff(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		result := okResult(url)
		result.StatusCode = http.StatusServiceUnavailable
		return result, nil
	}}
	env := newRegistryEnv(fetcher, staticParser{})
	ctx := context.Background()
	env.subs.Add(feed.Subscription{UserID: "u1", URL: url})

	require.NoError(t, env.registry.Poll(ctx, url, true))

	src, err := env.sources.Get(ctx, url)
	require.NoError(t, err)
	require.Equal(t, 2, src.BackoffFactor)
	require.Equal(t, feed.Error503, src.ErrorKind)
	require.Empty(t, env.entries.All())
}

func TestPollUnexpectedStatusStillParses(t *testing.T) {
	t.Parallel()

	const url = "http://example.com/feed"
	fetcher := &fakeFetcher{fn: func(feed.FetchRequest) (feed.FetchResult, error) {
		result := okResult(url)
		result.StatusCode = http.StatusTeapot
		return result, nil
	}}
	parser := staticParser{doc: feed.Document{
		Entries: []feed.DocEntry{{Title: "One", Link: "http://example.com/1"}},
	}}
	env := newRegistryEnv(fetcher, parser)
	ctx := context.Background()
	env.subs.Add(feed.Subscription{UserID: "u1", URL: url})

	require.NoError(t, env.registry.Poll(ctx, url, true))

	require.Len(t, env.entries.All(), 1)
	src, err := env.sources.Get(ctx, url)
	require.NoError(t, err)
	require.Equal(t, 1, src.BackoffFactor)
}
