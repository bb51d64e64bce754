package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSourceStatus(t *testing.T) {
	t.Parallel()

	src := PolledSource{
		URL:           "http://example.com/feed",
		Title:         "Example",
		BackoffFactor: 3,
		ErrorKind:     Error503,
	}
	status := src.Status()
	require.False(t, status.Muted)
	require.Equal(t, Error503, status.ErrorKind)
	require.Equal(t, 3, status.BackoffFactor)

	// Muted overrides whatever error preceded the mute.
	src.Muted = true
	status = src.Status()
	require.True(t, status.Muted)
	require.Equal(t, ErrorGone, status.ErrorKind)
}

func TestEntryDedupKey(t *testing.T) {
	t.Parallel()

	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	withLink := Entry{Title: "One", Link: "http://example.com/1", Date: date}
	require.Equal(t, "http://example.com/1", withLink.DedupKey())

	// Without a link, title and date identify the entry; different dates
	// under the same title stay distinct.
	linkless := Entry{Title: "One", Date: date}
	other := Entry{Title: "One", Date: date.Add(time.Hour)}
	require.NotEqual(t, linkless.DedupKey(), other.DedupKey())
}
