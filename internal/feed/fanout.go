package feed

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Fanout distributes one parsed document's entries to every subscription of
// its physical URL. The fetch and parse happened once; fan-out must be safe
// to run once per subscription, so entry creation is idempotent on the
// dedup key.
type Fanout struct {
	entries EntryStore
	subs    SubscriptionStore
	clock   Clock
	logger  *zap.Logger
}

// NewFanout constructs a Fanout.
func NewFanout(entries EntryStore, subs SubscriptionStore, clock Clock, logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{
		entries: entries,
		subs:    subs,
		clock:   clock,
		logger:  logger,
	}
}

// Apply creates the document's entries for each subscription, defaulting
// them unread, then refreshes each subscription's unread counter. Muted
// subscriptions are skipped; their owners asked for no timeline updates.
// It returns the number of entries created across all subscriptions.
func (f *Fanout) Apply(ctx context.Context, doc Document, subscriptions []Subscription) (int, error) {
	created := 0
	for _, sub := range subscriptions {
		if sub.Muted {
			continue
		}
		n, err := f.applyOne(ctx, doc, sub)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (f *Fanout) applyOne(ctx context.Context, doc Document, sub Subscription) (int, error) {
	created := 0
	for _, item := range doc.Entries {
		if item.Title == "" && item.Link == "" {
			continue
		}
		date := item.Published
		if date.IsZero() {
			date = f.clock.Now()
		}
		entry := Entry{
			SubscriptionID: sub.ID,
			Title:          item.Title,
			Summary:        item.Summary,
			Link:           item.Link,
			Permalink:      item.Permalink,
			Date:           date,
			Read:           false,
		}
		isNew, err := f.entries.CreateIfAbsent(ctx, entry)
		if err != nil {
			return created, fmt.Errorf("create entry: %w", err)
		}
		if isNew {
			created++
		}
	}
	if created > 0 {
		unread, err := f.entries.CountUnread(ctx, sub.ID)
		if err != nil {
			return created, fmt.Errorf("count unread: %w", err)
		}
		if err := f.subs.SetUnreadCount(ctx, sub.ID, unread); err != nil {
			return created, fmt.Errorf("set unread count: %w", err)
		}
	}
	return created, nil
}

// ApplyPush routes an already-parsed document straight to fan-out, bypassing
// the fetch executor and backoff entirely. The document must carry its
// self-referencing URL; documents without one, or without subscribers, are
// dropped. This is the inbound PubSubHubbub path.
func (f *Fanout) ApplyPush(ctx context.Context, doc Document) (int, error) {
	if doc.SelfURL == "" {
		f.logger.Debug("push notification without self link, ignoring")
		return 0, nil
	}
	subscriptions, err := f.subs.ListByURL(ctx, doc.SelfURL)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subscriptions) == 0 {
		f.logger.Debug("push notification without subscribers", zap.String("url", doc.SelfURL))
		return 0, nil
	}
	return f.Apply(ctx, doc, subscriptions)
}
