// Package scheduler drives the polling cadence: it periodically enumerates
// known source URLs and hands them to a worker pool, guaranteeing at most
// one in-flight poll attempt per physical URL.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amaudy/feedhq/internal/feed"
	"github.com/amaudy/feedhq/internal/metrics"
	"github.com/amaudy/feedhq/internal/ratelimit"
)

// Config controls Scheduler behavior.
type Config struct {
	// Interval between cycles over the whole source set.
	Interval time.Duration
	// Concurrency is the worker pool size.
	Concurrency int
	// UseValidators toggles conditional requests; the registry's own
	// eligibility gate makes redundant cycles cheap no-ops either way.
	UseValidators bool
}

// Scheduler runs the poll loop. The registry requires its caller to
// serialize attempts per URL; inflight is that guard.
type Scheduler struct {
	registry *feed.Registry
	sources  feed.SourceStore
	limiter  *ratelimit.Limiter
	clock    feed.Clock
	cfg      Config
	logger   *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs a Scheduler. limiter may be nil.
func New(
	registry *feed.Registry,
	sources feed.SourceStore,
	limiter *ratelimit.Limiter,
	clock feed.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry: registry,
		sources:  sources,
		limiter:  limiter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Run blocks, executing poll cycles until the context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	urls, err := s.sources.ListURLs(ctx)
	if err != nil {
		s.logger.Error("list source urls failed", zap.Error(err))
		return
	}
	if len(urls) == 0 {
		return
	}
	s.logger.Debug("poll cycle started", zap.Int("sources", len(urls)))

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range work {
				s.pollOne(ctx, url)
			}
		}()
	}

	now := s.clock.Now()
	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		if err := s.sources.SetLastPollCycle(ctx, url, now); err != nil {
			s.logger.Warn("mark poll cycle failed", zap.String("url", url), zap.Error(err))
		}
		select {
		case <-ctx.Done():
		case work <- url:
		}
	}
	close(work)
	wg.Wait()
}

// pollOne runs a single attempt, skipping URLs that already have one in
// flight.
func (s *Scheduler) pollOne(ctx context.Context, url string) {
	if !s.acquire(url) {
		s.logger.Debug("poll already in flight, skipping", zap.String("url", url))
		return
	}
	defer s.release(url)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, url); err != nil {
			return
		}
	}

	metrics.IncActivePollers()
	defer metrics.DecActivePollers()

	if err := s.registry.Poll(ctx, url, s.cfg.UseValidators); err != nil {
		s.logger.Error("poll failed", zap.String("url", url), zap.Error(err))
	}
}

func (s *Scheduler) acquire(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[url]; busy {
		return false
	}
	s.inflight[url] = struct{}{}
	return true
}

func (s *Scheduler) release(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, url)
}
