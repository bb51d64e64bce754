package feed

import "strings"

// feedContentType reports whether a Content-Type header looks like a feed
// document rather than an HTML landing page. Redirect chains are only
// resolved when the target actually served a feed.
func feedContentType(ctype string) bool {
	if ctype == "" {
		return false
	}
	return strings.HasPrefix(ctype, "application") ||
		strings.HasPrefix(ctype, "text/xml") ||
		strings.HasPrefix(ctype, "text/rss")
}

// permanentRedirectTarget walks the redirect history and returns the URL the
// source should move to, or "" when no move applies. Only the contiguous
// prefix of permanent (301) redirects counts; the walk stops at the first
// non-301 hop. The effective target is the URL requested after the last 301
// in that prefix, which is the final response URL when the 301 was the last
// hop.
func permanentRedirectTarget(history []RedirectHop, finalURL string) string {
	target := ""
	for i, hop := range history {
		if hop.StatusCode != 301 {
			break
		}
		if i+1 < len(history) {
			target = history[i+1].URL
		} else {
			target = finalURL
		}
	}
	return target
}
