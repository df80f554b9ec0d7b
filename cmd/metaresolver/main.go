// Package main wires together the metadata resolver service binary.
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
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/curator/metadata-resolver/internal/api"
	"github.com/curator/metadata-resolver/internal/clock/system"
	"github.com/curator/metadata-resolver/internal/config"
	"github.com/curator/metadata-resolver/internal/fetch"
	"github.com/curator/metadata-resolver/internal/fetch/headless"
	"github.com/curator/metadata-resolver/internal/id/uuid"
	"github.com/curator/metadata-resolver/internal/logging"
	"github.com/curator/metadata-resolver/internal/metrics"
	memoryPublisher "github.com/curator/metadata-resolver/internal/publisher/memory"
	pubsubPublisher "github.com/curator/metadata-resolver/internal/publisher/pubsub"
	"github.com/curator/metadata-resolver/internal/resolver"
	"github.com/curator/metadata-resolver/internal/review"
	storageMemory "github.com/curator/metadata-resolver/internal/storage/memory"
	storagePostgres "github.com/curator/metadata-resolver/internal/storage/postgres"
	"github.com/curator/metadata-resolver/internal/video/batch"
	"github.com/curator/metadata-resolver/internal/video/youtube"
	"github.com/curator/metadata-resolver/internal/videocache"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.New()

	var rendered fetch.RenderedFetcher
	if cfg.Headless.Enabled {
		renderer, err := headless.NewRenderer(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("rendered fetcher init failed", zap.Error(err))
		} else {
			defer renderer.Close()
			rendered = renderer
		}
	}

	rotator := fetch.NewRotator(fetch.IdentitiesFromUserAgents(cfg.Identities.UserAgents))
	fetchClient := fetch.New(fetch.Config{
		Timeout:     cfg.FetchTimeout(),
		BackoffBase: time.Duration(cfg.HTTP.BackoffBaseMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
	}, rotator, rendered, logger.Named("fetch"))

	engine := resolver.NewEngine(
		fetchClient,
		resolver.NewPatternRegistry(),
		clock,
		resolver.Thresholds{
			Structured:    cfg.Resolver.StructuredThreshold,
			URLPattern:    cfg.Resolver.URLPatternThreshold,
			Heuristic:     cfg.Resolver.HeuristicThreshold,
			BestAvailable: cfg.Resolver.BestAvailableFloor,
		},
		logger.Named("resolver"),
	)

	provider := youtube.New(youtube.Config{
		APIKey:    cfg.Provider.APIKey,
		Endpoint:  cfg.Provider.Endpoint,
		BatchSize: cfg.Provider.BatchSize,
		Timeout:   time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		RateLimit: cfg.Provider.RateLimit,
	}, logger.Named("provider"))
	batchFetcher := batch.NewFetcher(provider, clock, logger.Named("batch"))

	cacheStore, err := buildCacheStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("cache store init failed", zap.Error(err))
	}
	videos := videocache.NewService(
		cacheStore,
		batchFetcher,
		cfg.Videos,
		cfg.CacheTTL(),
		clock,
		logger.Named("videocache"),
	)

	reviewStore, closeStore, err := buildReviewStore(ctx, cfg)
	if err != nil {
		logger.Fatal("review store init failed", zap.Error(err))
	}
	defer closeStore()

	// Without a Pub/Sub project alerts are recorded in memory, which keeps
	// escalation observable in development.
	var alertPublisher review.Publisher = memoryPublisher.New()
	if cfg.PubSub.ProjectID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Warn("pubsub client init failed, using in-memory alerts", zap.Error(err))
		} else {
			defer psClient.Close()
			alertPublisher = pubsubPublisher.New(psClient)
		}
	}

	policy := review.Policy{
		VolumeThreshold: cfg.Review.VolumeThreshold,
		Bands: review.Bands{
			HighBelow:    cfg.Review.HighBelow,
			LowAtOrAbove: cfg.Review.LowAtOrAbove,
		},
	}
	escalator := review.NewEscalator(
		reviewStore,
		policy,
		alertPublisher,
		cfg.PubSub.TopicName,
		clock,
		logger.Named("review"),
	)
	go escalator.RunDigestLoop(ctx, time.Duration(cfg.Review.DigestIntervalHours)*time.Hour)

	apiServer := api.NewServer(engine, videos, escalator, reviewStore, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Warm the video cache so the first request is not a cold miss.
	videos.RefreshInBackground(ctx)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

// buildCacheStore selects the durable cache tier: GCS when a bucket is
// configured, the local JSON file otherwise.
func buildCacheStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (videocache.Store, error) {
	if cfg.Cache.GCSBucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := videocache.NewGCSStore(client, cfg.Cache.GCSBucket, cfg.Cache.GCSObject)
		if err != nil {
			return nil, err
		}
		logger.Info("using gcs cache store", zap.String("bucket", cfg.Cache.GCSBucket))
		return store, nil
	}
	return videocache.NewFileStore(cfg.Cache.FilePath)
}

// buildReviewStore selects Postgres when a DSN is configured, the in-memory
// store otherwise.
func buildReviewStore(ctx context.Context, cfg config.Config) (review.Store, func(), error) {
	if cfg.DB.DSN == "" {
		return storageMemory.NewReviewStore(), func() {}, nil
	}
	store, err := storagePostgres.NewReviewStore(ctx, storagePostgres.ReviewStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
