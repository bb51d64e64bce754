// Command feedhq runs the feed polling service: the HTTP API, the poll
// scheduler, and the favicon resolver, wired to the configured storage and
// messaging providers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/amaudy/feedhq/internal/api"
	"github.com/amaudy/feedhq/internal/clock/system"
	"github.com/amaudy/feedhq/internal/config"
	"github.com/amaudy/feedhq/internal/favicon"
	"github.com/amaudy/feedhq/internal/feed"
	"github.com/amaudy/feedhq/internal/fetcher/httpfetch"
	"github.com/amaudy/feedhq/internal/logging"
	"github.com/amaudy/feedhq/internal/metrics"
	"github.com/amaudy/feedhq/internal/parser/gofeedparser"
	pubpublisher "github.com/amaudy/feedhq/internal/publisher/pubsub"
	"github.com/amaudy/feedhq/internal/ratelimit"
	"github.com/amaudy/feedhq/internal/scheduler"
	"github.com/amaudy/feedhq/internal/storage/gcs"
	"github.com/amaudy/feedhq/internal/storage/local"
	"github.com/amaudy/feedhq/internal/storage/memory"
	"github.com/amaudy/feedhq/internal/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		sources feed.SourceStore
		subs    feed.SubscriptionStore
		entries feed.EntryStore
		icons   feed.IconStore
	)
	switch cfg.DB.Provider {
	case "postgres":
		pool, perr := postgres.NewPool(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if perr != nil {
			return fmt.Errorf("init postgres: %w", perr)
		}
		defer pool.Close()
		sources = postgres.NewSourceStore(pool)
		subs = postgres.NewSubscriptionStore(pool)
		entries = postgres.NewEntryStore(pool)
		icons = postgres.NewIconStore(pool)
	default:
		sources = memory.NewSourceStore()
		subs = memory.NewSubscriptionStore()
		entries = memory.NewEntryStore()
		icons = memory.NewIconStore()
	}

	var blobs feed.BlobStore
	switch cfg.Storage.Provider {
	case "local":
		blobs, err = local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
	case "gcs":
		client, cerr := gstorage.NewClient(ctx)
		if cerr != nil {
			return fmt.Errorf("init gcs client: %w", cerr)
		}
		defer func() { _ = client.Close() }()
		blobs, err = gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
	default:
		blobs = memory.NewBlobStore()
	}

	var publisher feed.Publisher
	if cfg.PubSub.Enabled {
		client, cerr := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if cerr != nil {
			return fmt.Errorf("init pubsub client: %w", cerr)
		}
		defer func() { _ = client.Close() }()
		topic := client.Topic(cfg.PubSub.TopicName)
		defer topic.Stop()
		publisher, err = pubpublisher.New(topic)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
	}

	clk := system.New()
	fetcher := httpfetch.New(httpfetch.Config{MaxBodyBytes: cfg.Poll.MaxBodyBytes})
	parser := gofeedparser.New()
	fanout := feed.NewFanout(entries, subs, clk, logger.Named("fanout"))

	var resolver feed.IconResolver
	if cfg.Favicon.Enabled {
		resolver = favicon.NewResolver(icons, sources, subs, blobs, fetcher,
			favicon.Config{BlobPrefix: cfg.Favicon.BlobPrefix},
			logger.Named("favicon"))
	}

	registry := feed.NewRegistry(sources, subs, fetcher, parser, fanout,
		publisher, resolver, clk,
		feed.RegistryConfig{UserAgent: cfg.Poll.UserAgent},
		logger.Named("registry"))

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Poll.PerHostRPS,
		DefaultBurst: cfg.Poll.PerHostBurst,
	})

	sched := scheduler.New(registry, sources, limiter, clk, scheduler.Config{
		Interval:      cfg.PollInterval(),
		Concurrency:   cfg.Poll.Concurrency,
		UseValidators: cfg.Poll.UseValidators,
	}, logger.Named("scheduler"))

	server := api.NewServer(registry, parser, fanout, cfg, logger.Named("api"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	go sched.Run(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr := <-errCh:
		return fmt.Errorf("http server: %w", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
