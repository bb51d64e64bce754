package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amaudy/feedhq/internal/feed"
)

// SourceStore persists polled sources in the polled_sources table.
type SourceStore struct {
	db Conn
}

// NewSourceStore creates a SourceStore over the given connection.
func NewSourceStore(db Conn) *SourceStore {
	return &SourceStore{db: db}
}

const sourceColumns = `id, url, title, link, hub_url, etag, last_modified,
	subscriber_count, backoff_factor, muted, error_kind,
	last_attempt_at, last_poll_cycle_at`

// GetOrCreate returns the source for url, inserting a fresh row when absent.
// The second return value reports whether a row was created.
func (s *SourceStore) GetOrCreate(ctx context.Context, url string) (feed.PolledSource, bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO polled_sources (`+sourceColumns+`)
		VALUES ($1, $2, '', '', '', '', '', 1, 1, FALSE, '', $3, $4)
		ON CONFLICT (url) DO NOTHING`,
		uuid.NewString(), url, time.Time{}, time.Time{})
	if err != nil {
		return feed.PolledSource{}, false, fmt.Errorf("insert source: %w", err)
	}
	created := tag.RowsAffected() == 1

	src, err := s.Get(ctx, url)
	if err != nil {
		return feed.PolledSource{}, false, err
	}
	return src, created, nil
}

// Get returns the source for url, or feed.ErrNotFound.
func (s *SourceStore) Get(ctx context.Context, url string) (feed.PolledSource, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+sourceColumns+`
		FROM polled_sources
		WHERE url = $1`, url)
	src, err := scanSource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.PolledSource{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.PolledSource{}, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// Exists reports whether a source row exists for url.
func (s *SourceStore) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM polled_sources WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("source exists: %w", err)
	}
	return exists, nil
}

// Update persists every mutable field of the source, keyed by ID so that the
// URL itself may change.
func (s *SourceStore) Update(ctx context.Context, src feed.PolledSource) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE polled_sources
		SET url = $2, title = $3, link = $4, hub_url = $5, etag = $6,
		    last_modified = $7, subscriber_count = $8, backoff_factor = $9,
		    muted = $10, error_kind = $11, last_attempt_at = $12,
		    last_poll_cycle_at = $13
		WHERE id = $1`,
		src.ID, src.URL, src.Title, src.Link, src.HubURL, src.ETag,
		src.LastModified, src.SubscriberCount, src.BackoffFactor,
		src.Muted, string(src.ErrorKind), src.LastAttemptAt, src.LastPollCycleAt)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

// Delete removes the source for url. Deleting an absent source is not an
// error.
func (s *SourceStore) Delete(ctx context.Context, url string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM polled_sources WHERE url = $1`, url); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

// ListURLs returns every source URL.
func (s *SourceStore) ListURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT url FROM polled_sources ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("list source urls: %w", err)
	}
	defer rows.Close()
	return scanURLs(rows)
}

// ListURLsByLink returns the URLs of sources whose site link matches.
func (s *SourceStore) ListURLsByLink(ctx context.Context, link string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT url FROM polled_sources WHERE link = $1 ORDER BY url`, link)
	if err != nil {
		return nil, fmt.Errorf("list source urls by link: %w", err)
	}
	defer rows.Close()
	return scanURLs(rows)
}

// SetLastPollCycle stamps the time the scheduler last handed url to a worker.
func (s *SourceStore) SetLastPollCycle(ctx context.Context, url string, at time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE polled_sources SET last_poll_cycle_at = $2 WHERE url = $1`, url, at); err != nil {
		return fmt.Errorf("set last poll cycle: %w", err)
	}
	return nil
}

func scanSource(row pgx.Row) (feed.PolledSource, error) {
	var (
		src       feed.PolledSource
		errorKind string
	)
	err := row.Scan(&src.ID, &src.URL, &src.Title, &src.Link, &src.HubURL,
		&src.ETag, &src.LastModified, &src.SubscriberCount, &src.BackoffFactor,
		&src.Muted, &errorKind, &src.LastAttemptAt, &src.LastPollCycleAt)
	if err != nil {
		return feed.PolledSource{}, err
	}
	src.ErrorKind = feed.ErrorKind(errorKind)
	return src, nil
}

func scanURLs(rows pgx.Rows) ([]string, error) {
	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate urls: %w", err)
	}
	return urls, nil
}
