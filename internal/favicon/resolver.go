package favicon

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/amaudy/feedhq/internal/feed"
	"github.com/amaudy/feedhq/internal/metrics"
)

// DefaultUserAgent identifies the favicon fetcher, distinct from the feed
// poller's User-Agent.
const DefaultUserAgent = "FeedHQ-Favicon-Fetcher/1.0 (+https://github.com/amaudy/feedhq)"

const fetchTimeout = 10 * time.Second

// Config controls Resolver behavior.
type Config struct {
	UserAgent string
	// BlobPrefix is prepended to stored icon paths.
	BlobPrefix string
}

// Resolver fetches pages and icons, sniffs icon bytes and propagates the
// result to subscriptions. It owns all IconRecord state.
type Resolver struct {
	icons   feed.IconStore
	sources feed.SourceStore
	subs    feed.SubscriptionStore
	blobs   feed.BlobStore
	fetcher feed.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(
	icons feed.IconStore,
	sources feed.SourceStore,
	subs feed.SubscriptionStore,
	blobs feed.BlobStore,
	fetcher feed.Fetcher,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "favicons"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		icons:   icons,
		sources: sources,
		subs:    subs,
		blobs:   blobs,
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// Resolve finds and stores the icon for pageURL. Transport failures and
// unusable icon payloads leave the record unchanged; an unrecognized payload
// deletes the record so a later attempt starts fresh. A nil record with nil
// error means the URL was rejected or the record was deleted.
func (r *Resolver) Resolve(ctx context.Context, pageURL string, force bool) (*feed.IconRecord, error) {
	base, err := url.Parse(pageURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, nil
	}

	rec, created, err := r.icons.GetOrCreate(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("get or create icon record: %w", err)
	}

	if !created && !force {
		if !rec.Resolved() {
			return &rec, nil
		}
		// Already resolved: only propagate to newcomers without an icon.
		if err := r.propagate(ctx, pageURL, rec.IconURI); err != nil {
			return nil, err
		}
		return &rec, nil
	}

	page, fetchErr := r.fetcher.Fetch(ctx, feed.FetchRequest{
		URL:     pageURL,
		Header:  r.header(),
		Timeout: fetchTimeout,
	})
	if fetchErr != nil || len(page.Body) == 0 {
		metrics.ObserveFavicon(metrics.FaviconFailed)
		return &rec, nil
	}

	iconURL := extractIconURL(page.Body, base)

	icon, fetchErr := r.fetcher.Fetch(ctx, feed.FetchRequest{
		URL:     iconURL,
		Header:  r.header(),
		Timeout: fetchTimeout,
	})
	if fetchErr != nil || icon.StatusCode != http.StatusOK {
		metrics.ObserveFavicon(metrics.FaviconFailed)
		return &rec, nil
	}

	iconType := Sniff(icon.Body)
	switch {
	case iconType.Ignored():
		r.logger.Debug("ignored icon content type",
			zap.String("page", pageURL),
			zap.Stringer("type", iconType),
		)
		metrics.ObserveFavicon(metrics.FaviconUnsupported)
		return &rec, nil
	case !iconType.Accepted():
		r.logger.Info("unknown icon content type",
			zap.String("page", pageURL),
			zap.Stringer("type", iconType),
		)
		metrics.ObserveFavicon(metrics.FaviconUnknown)
		if err := r.icons.Delete(ctx, pageURL); err != nil {
			return nil, fmt.Errorf("delete icon record: %w", err)
		}
		return nil, nil
	}

	filename := fmt.Sprintf("%s.%s", base.Host, iconType.Ext())
	uri, err := r.blobs.PutObject(ctx, r.cfg.BlobPrefix+"/"+filename, iconType.ContentType(), icon.Body)
	if err != nil {
		return nil, fmt.Errorf("store icon bytes: %w", err)
	}

	rec.IconURI = uri
	rec.ContentType = iconType.ContentType()
	if err := r.icons.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update icon record: %w", err)
	}
	metrics.ObserveFavicon(metrics.FaviconResolved)

	if err := r.propagate(ctx, pageURL, rec.IconURI); err != nil {
		return nil, err
	}
	return &rec, nil
}

// propagate stamps the icon onto every subscription whose source links to
// this page and that has no icon yet. The update is idempotent.
func (r *Resolver) propagate(ctx context.Context, pageURL, iconURI string) error {
	urls, err := r.sources.ListURLsByLink(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("list sources by link: %w", err)
	}
	if len(urls) == 0 {
		return nil
	}
	subscriptions, err := r.subs.ListWithoutIcon(ctx, urls)
	if err != nil {
		return fmt.Errorf("list subscriptions without icon: %w", err)
	}
	if len(subscriptions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(subscriptions))
	for _, sub := range subscriptions {
		ids = append(ids, sub.ID)
	}
	if err := r.subs.SetIcon(ctx, ids, iconURI); err != nil {
		return fmt.Errorf("set subscription icons: %w", err)
	}
	return nil
}

func (r *Resolver) header() http.Header {
	header := http.Header{}
	header.Set("User-Agent", r.cfg.UserAgent)
	return header
}

// extractIconURL returns the first <link rel="icon"|"shortcut icon"> href
// resolved to an absolute URL, falling back to /favicon.ico at the page's
// origin.
func extractIconURL(page []byte, base *url.URL) string {
	href := iconHref(page)
	if href == "" {
		return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/favicon.ico"}).String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/favicon.ico"}).String()
	}
	if ref.IsAbs() {
		return ref.String()
	}
	path := ref.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: path}).String()
}

// iconHref scans the page for the first icon link tag.
func iconHref(page []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if !bytes.Equal(name, []byte("link")) || !hasAttr {
				continue
			}
			var rel, href string
			for {
				key, value, more := tokenizer.TagAttr()
				switch string(key) {
				case "rel":
					rel = strings.ToLower(string(value))
				case "href":
					href = string(value)
				}
				if !more {
					break
				}
			}
			if (rel == "icon" || rel == "shortcut icon") && href != "" {
				return href
			}
		}
	}
}
