package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/amaudy/feedhq/internal/feed"
)

// EntryStore persists entries in the entries table. A unique index on
// (subscription_id, dedup_key) enforces per-subscription deduplication.
type EntryStore struct {
	db Conn
}

// NewEntryStore creates an EntryStore over the given connection.
func NewEntryStore(db Conn) *EntryStore {
	return &EntryStore{db: db}
}

// CreateIfAbsent inserts the entry unless its dedup key already exists for
// the subscription. Returns whether a row was inserted.
func (s *EntryStore) CreateIfAbsent(ctx context.Context, entry feed.Entry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO entries (id, subscription_id, dedup_key, title, summary,
			link, permalink, date, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (subscription_id, dedup_key) DO NOTHING`,
		entry.ID, entry.SubscriptionID, entry.DedupKey(), entry.Title,
		entry.Summary, entry.Link, entry.Permalink, entry.Date, entry.Read)
	if err != nil {
		return false, fmt.Errorf("insert entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountUnread counts unread entries for a subscription.
func (s *EntryStore) CountUnread(ctx context.Context, subscriptionID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM entries
		WHERE subscription_id = $1 AND NOT read`, subscriptionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread entries: %w", err)
	}
	return count, nil
}
