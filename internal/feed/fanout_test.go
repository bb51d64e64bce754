package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amaudy/feedhq/internal/feed"
	"github.com/amaudy/feedhq/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func testDoc(entries ...feed.DocEntry) feed.Document {
	return feed.Document{
		Title:   "Example Feed",
		Link:    "http://example.com",
		Entries: entries,
	}
}

func TestFanoutCreatesEntriesPerSubscription(t *testing.T) {
	t.Parallel()

	entries := memory.NewEntryStore()
	subs := memory.NewSubscriptionStore()
	clk := fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	fanout := feed.NewFanout(entries, subs, clk, nil)

	subA := subs.Add(feed.Subscription{UserID: "u1", URL: "http://example.com/feed"})
	subB := subs.Add(feed.Subscription{UserID: "u2", URL: "http://example.com/feed"})

	doc := testDoc(
		feed.DocEntry{Title: "One", Link: "http://example.com/1"},
		feed.DocEntry{Title: "Two", Link: "http://example.com/2"},
	)

	created, err := fanout.Apply(context.Background(), doc, []feed.Subscription{subA, subB})
	require.NoError(t, err)
	require.Equal(t, 4, created)

	// Re-applying the same document creates nothing.
	created, err = fanout.Apply(context.Background(), doc, []feed.Subscription{subA, subB})
	require.NoError(t, err)
	require.Equal(t, 0, created)

	gotA, ok := subs.Get(subA.ID)
	require.True(t, ok)
	require.Equal(t, 2, gotA.UnreadCount)
}

func TestFanoutSkipsMutedSubscriptions(t *testing.T) {
	t.Parallel()

	entries := memory.NewEntryStore()
	subs := memory.NewSubscriptionStore()
	fanout := feed.NewFanout(entries, subs, fixedClock{now: time.Now()}, nil)

	active := subs.Add(feed.Subscription{UserID: "u1", URL: "http://example.com/feed"})
	muted := subs.Add(feed.Subscription{UserID: "u2", URL: "http://example.com/feed", Muted: true})

	doc := testDoc(feed.DocEntry{Title: "One", Link: "http://example.com/1"})

	created, err := fanout.Apply(context.Background(), doc, []feed.Subscription{active, muted})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	for _, entry := range entries.All() {
		require.Equal(t, active.ID, entry.SubscriptionID)
	}
}

func TestFanoutSkipsEmptyItemsAndDefaultsDate(t *testing.T) {
	t.Parallel()

	entries := memory.NewEntryStore()
	subs := memory.NewSubscriptionStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fanout := feed.NewFanout(entries, subs, fixedClock{now: now}, nil)

	sub := subs.Add(feed.Subscription{UserID: "u1", URL: "http://example.com/feed"})

	doc := testDoc(
		feed.DocEntry{},
		feed.DocEntry{Title: "Undated", Link: "http://example.com/undated"},
	)

	created, err := fanout.Apply(context.Background(), doc, []feed.Subscription{sub})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	all := entries.All()
	require.Len(t, all, 1)
	require.Equal(t, now, all[0].Date)
	require.False(t, all[0].Read)
}

func TestApplyPushRequiresSelfLinkAndSubscribers(t *testing.T) {
	t.Parallel()

	entries := memory.NewEntryStore()
	subs := memory.NewSubscriptionStore()
	fanout := feed.NewFanout(entries, subs, fixedClock{now: time.Now()}, nil)

	doc := testDoc(feed.DocEntry{Title: "One", Link: "http://example.com/1"})

	// No self link: dropped.
	created, err := fanout.ApplyPush(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	// Self link but no subscribers: dropped.
	doc.SelfURL = "http://example.com/feed"
	created, err = fanout.ApplyPush(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, 0, created)

	// Subscriber present: delivered.
	subs.Add(feed.Subscription{UserID: "u1", URL: "http://example.com/feed"})
	created, err = fanout.ApplyPush(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, 1, created)
}
