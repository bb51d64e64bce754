package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/amaudy/feedhq/internal/feed"
)

// IconStore persists favicon records in the icon_records table.
type IconStore struct {
	db Conn
}

// NewIconStore creates an IconStore over the given connection.
func NewIconStore(db Conn) *IconStore {
	return &IconStore{db: db}
}

// GetOrCreate returns the record for pageURL, inserting an unresolved one
// when absent. The second return value reports whether a row was created.
func (s *IconStore) GetOrCreate(ctx context.Context, pageURL string) (feed.IconRecord, bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO icon_records (page_url, icon_uri, content_type)
		VALUES ($1, '', '')
		ON CONFLICT (page_url) DO NOTHING`, pageURL)
	if err != nil {
		return feed.IconRecord{}, false, fmt.Errorf("insert icon record: %w", err)
	}
	created := tag.RowsAffected() == 1

	var rec feed.IconRecord
	err = s.db.QueryRow(ctx, `
		SELECT page_url, icon_uri, content_type
		FROM icon_records
		WHERE page_url = $1`, pageURL).
		Scan(&rec.PageURL, &rec.IconURI, &rec.ContentType)
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.IconRecord{}, false, feed.ErrNotFound
	}
	if err != nil {
		return feed.IconRecord{}, false, fmt.Errorf("get icon record: %w", err)
	}
	return rec, created, nil
}

// Update persists the record.
func (s *IconStore) Update(ctx context.Context, rec feed.IconRecord) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE icon_records SET icon_uri = $2, content_type = $3
		WHERE page_url = $1`,
		rec.PageURL, rec.IconURI, rec.ContentType); err != nil {
		return fmt.Errorf("update icon record: %w", err)
	}
	return nil
}

// Delete removes the record for pageURL.
func (s *IconStore) Delete(ctx context.Context, pageURL string) error {
	if _, err := s.db.Exec(ctx, `
		DELETE FROM icon_records WHERE page_url = $1`, pageURL); err != nil {
		return fmt.Errorf("delete icon record: %w", err)
	}
	return nil
}
