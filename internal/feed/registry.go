package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/amaudy/feedhq/internal/metrics"
)

// acceptHeader mirrors the Accept header universal feed parsers send.
const acceptHeader = "application/atom+xml,application/rdf+xml,application/rss+xml," +
	"application/xml;q=0.9,text/xml;q=0.2,*/*;q=0.1"

// DefaultUserAgent is the descriptive client identifier sent on every poll.
// The %s placeholder receives the subscriber count.
const DefaultUserAgent = "FeedHQ/1.0 (+https://github.com/amaudy/feedhq; %s)"

// RegistryConfig controls Registry behavior.
type RegistryConfig struct {
	// UserAgent must contain one %s placeholder for the subscriber count.
	UserAgent string
}

// Registry is the canonical URL registry and poll orchestrator. It owns all
// PolledSource state; subscriptions read that state but never mutate it
// outside a poll cycle.
//
// Poll assumes at most one in-flight attempt per URL. That precondition is
// enforced by the caller (the scheduler's in-flight guard), not here.
type Registry struct {
	sources   SourceStore
	subs      SubscriptionStore
	fetcher   Fetcher
	parser    Parser
	fanout    *Fanout
	publisher Publisher
	icons     IconResolver
	clock     Clock
	cfg       RegistryConfig
	logger    *zap.Logger
}

// NewRegistry constructs a Registry. publisher and icons may be nil.
func NewRegistry(
	sources SourceStore,
	subs SubscriptionStore,
	fetcher Fetcher,
	parser Parser,
	fanout *Fanout,
	publisher Publisher,
	icons IconResolver,
	clock Clock,
	cfg RegistryConfig,
	logger *zap.Logger,
) *Registry {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sources:   sources,
		subs:      subs,
		fetcher:   fetcher,
		parser:    parser,
		fanout:    fanout,
		publisher: publisher,
		icons:     icons,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Poll runs one polling attempt for url. Network and parse failures are
// absorbed into the source's state (backoff, error kind, mute flag); only
// persistence failures are returned. Exactly one outcome path executes per
// call.
func (r *Registry) Poll(ctx context.Context, url string, useValidators bool) error {
	src, created, err := r.sources.GetOrCreate(ctx, url)
	if err != nil {
		return fmt.Errorf("get or create source: %w", err)
	}

	now := r.clock.Now()
	if !created && useValidators && !ShouldPoll(src.LastAttemptAt, src.BackoffFactor, now) {
		r.logger.Debug("last attempt too recent, skipping", zap.String("url", src.URL))
		metrics.ObservePoll(metrics.PollSkipped, 0)
		return nil
	}
	src.LastAttemptAt = now

	count, err := r.subs.CountByURL(ctx, url)
	if err != nil {
		return fmt.Errorf("count subscribers: %w", err)
	}
	src.SubscriberCount = count
	if count == 0 {
		r.logger.Debug("no subscribers, deleting", zap.String("url", src.URL))
		metrics.ObservePoll(metrics.PollDeleted, 0)
		if err := r.sources.Delete(ctx, url); err != nil {
			return fmt.Errorf("delete orphan source: %w", err)
		}
		return nil
	}

	if src.Muted {
		r.logger.Debug("source is muted", zap.String("url", src.URL))
		metrics.ObservePoll(metrics.PollMuted, 0)
		return nil
	}

	result, fetchErr := r.fetcher.Fetch(ctx, FetchRequest{
		URL:     url,
		Header:  r.buildHeader(src, useValidators),
		Timeout: RequestTimeout(src.BackoffFactor),
	})
	if fetchErr != nil {
		if src.BackoffFactor == MaxBackoff-1 {
			r.logger.Info("reached max backoff period (timeout)", zap.String("url", src.URL))
		}
		src.BackoffFactor = NextFactorOnFailure(src.BackoffFactor)
		src.ErrorKind = ErrorTimeout
		r.logger.Debug("fetch failed", zap.String("url", src.URL), zap.Error(fetchErr))
		metrics.ObservePoll(metrics.PollTimeout, 0)
		return r.persist(ctx, src)
	}

	// Redirect resolution: a contiguous prefix of permanent redirects onto
	// a URL that served feed content repoints every subscription and either
	// renames this source or yields to an existing record at the target.
	if len(result.History) > 0 && result.URL != src.URL && feedContentType(result.Header.Get("Content-Type")) {
		target := permanentRedirectTarget(result.History, result.URL)
		if target != "" && target != src.URL {
			r.logger.Debug("source moved", zap.String("from", src.URL), zap.String("to", target))
			if err := r.subs.RewriteURL(ctx, src.URL, target); err != nil {
				return fmt.Errorf("rewrite subscription urls: %w", err)
			}
			exists, err := r.sources.Exists(ctx, target)
			if err != nil {
				return fmt.Errorf("check redirect target: %w", err)
			}
			if exists {
				metrics.ObservePoll(metrics.PollRedirected, result.Duration)
				if err := r.sources.Delete(ctx, src.URL); err != nil {
					return fmt.Errorf("delete redirected source: %w", err)
				}
				return nil
			}
			src.URL = target
		}
	}

	switch {
	case result.StatusCode == http.StatusGone:
		r.logger.Info("feed gone", zap.String("url", src.URL))
		src.Muted = true
		src.ErrorKind = ErrorGone
		metrics.ObservePoll(metrics.PollGone, result.Duration)
		return r.persist(ctx, src)

	case transientStatus(result.StatusCode):
		if src.BackoffFactor == MaxBackoff-1 {
			r.logger.Info("reached max backoff period",
				zap.String("url", src.URL),
				zap.Int("status", result.StatusCode),
			)
		}
		src.BackoffFactor = NextFactorOnFailure(src.BackoffFactor)
		src.ErrorKind = ErrorKind(strconv.Itoa(result.StatusCode))
		metrics.ObservePoll(metrics.PollTransientError, result.Duration)
		return r.persist(ctx, src)

	case result.StatusCode == http.StatusOK ||
		result.StatusCode == http.StatusNoContent ||
		result.StatusCode == http.StatusNotModified:
		// Success never raises the factor, and a slow response keeps it
		// from snapping straight back to the minimum.
		src.BackoffFactor = NextFactorOnSuccess(src.BackoffFactor, result.Duration)
		src.ErrorKind = ErrorNone

	default:
		// Best-effort success: log and fall through to validator and body
		// handling.
		r.logger.Debug("unexpected status",
			zap.String("url", src.URL),
			zap.Int("status", result.StatusCode),
		)
	}

	// Keep validators fresh regardless of status.
	if etag := result.Header.Get("Etag"); etag != "" {
		src.ETag = etag
	}
	if modified := result.Header.Get("Last-Modified"); modified != "" {
		src.LastModified = modified
	}

	if result.StatusCode == http.StatusNotModified {
		r.logger.Debug("feed not modified", zap.String("url", src.URL))
		metrics.ObservePoll(metrics.PollNotModified, result.Duration)
		return r.persist(ctx, src)
	}

	body := result.Body
	if len(body) == 0 {
		// Downstream encoding detection chokes on empty input.
		body = []byte(" ")
	}
	doc := r.parser.Parse(body)

	previousLink := src.Link
	if doc.Link != "" {
		src.Link = doc.Link
	}
	if doc.Title != "" {
		src.Title = doc.Title
	}
	if len(doc.HubURLs) > 0 {
		src.HubURL = doc.HubURLs[0]
	}
	if err := r.persist(ctx, src); err != nil {
		return err
	}

	subscriptions, err := r.subs.ListByURL(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	createdEntries, err := r.fanout.Apply(ctx, doc, subscriptions)
	if err != nil {
		return fmt.Errorf("fan out entries: %w", err)
	}
	metrics.ObservePoll(metrics.PollSuccess, result.Duration)
	metrics.ObserveEntriesCreated(createdEntries)

	if r.publisher != nil && createdEntries > 0 {
		event := UpdateEvent{
			URL:        src.URL,
			Title:      src.Title,
			NewEntries: createdEntries,
			PolledAt:   now,
		}
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.Warn("publish update event failed", zap.String("url", src.URL), zap.Error(err))
		}
	}

	if r.icons != nil && src.Link != "" && src.Link != previousLink {
		if _, err := r.icons.Resolve(ctx, src.Link, false); err != nil {
			r.logger.Warn("favicon resolution failed", zap.String("link", src.Link), zap.Error(err))
		}
	}
	return nil
}

// Unmute clears the mute flag and error state so normal scheduling resumes.
// There is no automatic un-mute; this is the explicit external action.
func (r *Registry) Unmute(ctx context.Context, url string) error {
	src, err := r.sources.Get(ctx, url)
	if err != nil {
		return err
	}
	src.Muted = false
	src.ErrorKind = ErrorNone
	src.BackoffFactor = 1
	return r.persist(ctx, src)
}

// SourceStatus exposes a source's read-only state to presentation.
func (r *Registry) SourceStatus(ctx context.Context, url string) (Status, error) {
	src, err := r.sources.Get(ctx, url)
	if err != nil {
		return Status{}, err
	}
	return src.Status(), nil
}

func (r *Registry) persist(ctx context.Context, src PolledSource) error {
	if err := r.sources.Update(ctx, src); err != nil {
		return fmt.Errorf("persist source: %w", err)
	}
	return nil
}

func (r *Registry) buildHeader(src PolledSource, useValidators bool) http.Header {
	subscribers := "1 subscriber"
	if src.SubscriberCount != 1 {
		subscribers = fmt.Sprintf("%d subscribers", src.SubscriberCount)
	}
	header := http.Header{}
	header.Set("User-Agent", fmt.Sprintf(r.cfg.UserAgent, subscribers))
	header.Set("Accept", acceptHeader)
	if useValidators {
		if src.LastModified != "" {
			header.Set("If-Modified-Since", src.LastModified)
		}
		if src.ETag != "" {
			header.Set("If-None-Match", src.ETag)
		}
	}
	return header
}

func transientStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404, 500, 502, 503:
		return true
	}
	return false
}
