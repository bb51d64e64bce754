package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amaudy/feedhq/internal/feed"
)

func TestSourceStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewSourceStore()
	ctx := context.Background()
	const url = "http://example.com/feed"

	src, created, err := store.GetOrCreate(ctx, url)
	if err != nil || !created {
		t.Fatalf("GetOrCreate() src=%+v created=%v err=%v", src, created, err)
	}
	if src.ID == "" || src.BackoffFactor != 1 || src.SubscriberCount != 1 {
		t.Fatalf("unexpected defaults: %+v", src)
	}

	again, created, err := store.GetOrCreate(ctx, url)
	if err != nil || created || again.ID != src.ID {
		t.Fatalf("second GetOrCreate() again=%+v created=%v err=%v", again, created, err)
	}

	src.Title = "Example"
	src.BackoffFactor = 3
	if err := store.Update(ctx, src); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := store.Get(ctx, url)
	if err != nil || got.Title != "Example" || got.BackoffFactor != 3 {
		t.Fatalf("Get() got=%+v err=%v", got, err)
	}

	exists, err := store.Exists(ctx, url)
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v", exists, err)
	}

	if err := store.Delete(ctx, url); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, url); !errors.Is(err, feed.ErrNotFound) {
		t.Fatalf("Get() after delete error = %v, want ErrNotFound", err)
	}
	// Deleting an absent source is a no-op.
	if err := store.Delete(ctx, url); err != nil {
		t.Fatalf("Delete() absent error = %v", err)
	}
}

func TestSourceStoreRename(t *testing.T) {
	t.Parallel()

	store := NewSourceStore()
	ctx := context.Background()
	const (
		oldURL = "http://old.example.com/feed"
		newURL = "http://new.example.com/feed"
	)

	src, _, err := store.GetOrCreate(ctx, oldURL)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	src.URL = newURL
	if err := store.Update(ctx, src); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, err := store.Get(ctx, oldURL); !errors.Is(err, feed.ErrNotFound) {
		t.Fatalf("old URL still resolves, err = %v", err)
	}
	moved, err := store.Get(ctx, newURL)
	if err != nil || moved.ID != src.ID {
		t.Fatalf("Get(new) moved=%+v err=%v", moved, err)
	}
}

func TestSourceStoreListing(t *testing.T) {
	t.Parallel()

	store := NewSourceStore()
	ctx := context.Background()

	a, _, _ := store.GetOrCreate(ctx, "http://a.example.com/feed")
	b, _, _ := store.GetOrCreate(ctx, "http://b.example.com/feed")
	a.Link = "http://site.example.com"
	b.Link = "http://site.example.com"
	_ = store.Update(ctx, a)
	_ = store.Update(ctx, b)

	urls, err := store.ListURLs(ctx)
	if err != nil || len(urls) != 2 {
		t.Fatalf("ListURLs() = %v, %v", urls, err)
	}
	byLink, err := store.ListURLsByLink(ctx, "http://site.example.com")
	if err != nil || len(byLink) != 2 {
		t.Fatalf("ListURLsByLink() = %v, %v", byLink, err)
	}

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := store.SetLastPollCycle(ctx, a.URL, at); err != nil {
		t.Fatalf("SetLastPollCycle() error = %v", err)
	}
	got, _ := store.Get(ctx, a.URL)
	if !got.LastPollCycleAt.Equal(at) {
		t.Fatalf("LastPollCycleAt = %v, want %v", got.LastPollCycleAt, at)
	}
}
