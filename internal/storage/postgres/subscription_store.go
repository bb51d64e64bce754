package postgres

import (
	"context"
	"fmt"

	"github.com/amaudy/feedhq/internal/feed"
)

// SubscriptionStore persists subscriptions in the subscriptions table.
type SubscriptionStore struct {
	db Conn
}

// NewSubscriptionStore creates a SubscriptionStore over the given connection.
func NewSubscriptionStore(db Conn) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// CountByURL counts subscriptions referencing url.
func (s *SubscriptionStore) CountByURL(ctx context.Context, url string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE url = $1`, url).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return count, nil
}

// ListByURL returns subscriptions referencing url in stable order.
func (s *SubscriptionStore) ListByURL(ctx context.Context, url string) ([]feed.Subscription, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, url, name, muted, unread_count, icon_uri
		FROM subscriptions
		WHERE url = $1
		ORDER BY id`, url)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []feed.Subscription
	for rows.Next() {
		var sub feed.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.URL, &sub.Name,
			&sub.Muted, &sub.UnreadCount, &sub.IconURI); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}

// RewriteURL repoints every subscription from oldURL to newURL.
func (s *SubscriptionStore) RewriteURL(ctx context.Context, oldURL, newURL string) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE subscriptions SET url = $2 WHERE url = $1`, oldURL, newURL); err != nil {
		return fmt.Errorf("rewrite subscription url: %w", err)
	}
	return nil
}

// ListWithoutIcon returns subscriptions at any of urls that lack an icon.
func (s *SubscriptionStore) ListWithoutIcon(ctx context.Context, urls []string) ([]feed.Subscription, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, url, name, muted, unread_count, icon_uri
		FROM subscriptions
		WHERE url = ANY($1) AND icon_uri = ''
		ORDER BY id`, urls)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions without icon: %w", err)
	}
	defer rows.Close()

	var out []feed.Subscription
	for rows.Next() {
		var sub feed.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.URL, &sub.Name,
			&sub.Muted, &sub.UnreadCount, &sub.IconURI); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}

// SetIcon stamps iconURI onto the given subscriptions.
func (s *SubscriptionStore) SetIcon(ctx context.Context, subscriptionIDs []string, iconURI string) error {
	if len(subscriptionIDs) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE subscriptions SET icon_uri = $2 WHERE id = ANY($1)`,
		subscriptionIDs, iconURI); err != nil {
		return fmt.Errorf("set subscription icon: %w", err)
	}
	return nil
}

// SetUnreadCount updates the denormalized unread counter.
func (s *SubscriptionStore) SetUnreadCount(ctx context.Context, subscriptionID string, count int) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE subscriptions SET unread_count = $2 WHERE id = $1`,
		subscriptionID, count); err != nil {
		return fmt.Errorf("set unread count: %w", err)
	}
	return nil
}
