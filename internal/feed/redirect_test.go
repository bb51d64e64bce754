package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeedContentType(t *testing.T) {
	t.Parallel()

	require.True(t, feedContentType("application/rss+xml"))
	require.True(t, feedContentType("application/atom+xml; charset=utf-8"))
	require.True(t, feedContentType("application/xml"))
	require.True(t, feedContentType("text/xml"))
	require.True(t, feedContentType("text/rss+xml"))
	require.False(t, feedContentType("text/html"))
	require.False(t, feedContentType(""))
}

func TestPermanentRedirectTarget(t *testing.T) {
	t.Parallel()

	// Single 301: target is the final response URL.
	target := permanentRedirectTarget([]RedirectHop{
		{StatusCode: 301, URL: "http://old.example.com/feed"},
	}, "http://new.example.com/feed")
	require.Equal(t, "http://new.example.com/feed", target)

	// Chain of 301s: target is still the final URL.
	target = permanentRedirectTarget([]RedirectHop{
		{StatusCode: 301, URL: "http://a.example.com/feed"},
		{StatusCode: 301, URL: "http://b.example.com/feed"},
	}, "http://c.example.com/feed")
	require.Equal(t, "http://c.example.com/feed", target)

	// 301 followed by 302: the move stops at the last permanent hop, so the
	// target is the URL that served the temporary redirect.
	target = permanentRedirectTarget([]RedirectHop{
		{StatusCode: 301, URL: "http://a.example.com/feed"},
		{StatusCode: 302, URL: "http://b.example.com/feed"},
	}, "http://c.example.com/feed")
	require.Equal(t, "http://b.example.com/feed", target)

	// Purely temporary redirects never move the source.
	target = permanentRedirectTarget([]RedirectHop{
		{StatusCode: 302, URL: "http://a.example.com/feed"},
	}, "http://b.example.com/feed")
	require.Equal(t, "", target)

	require.Equal(t, "", permanentRedirectTarget(nil, "http://a.example.com/feed"))
}
