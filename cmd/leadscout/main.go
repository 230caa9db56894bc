// Package main wires together the lead-discovery service binary.
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
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/acquisition"
	"github.com/growthsignal/leadscout/internal/api"
	"github.com/growthsignal/leadscout/internal/apify"
	"github.com/growthsignal/leadscout/internal/clock/system"
	"github.com/growthsignal/leadscout/internal/config"
	"github.com/growthsignal/leadscout/internal/dispatcher"
	"github.com/growthsignal/leadscout/internal/id/uuid"
	"github.com/growthsignal/leadscout/internal/leadgen"
	"github.com/growthsignal/leadscout/internal/logging"
	"github.com/growthsignal/leadscout/internal/metrics"
	"github.com/growthsignal/leadscout/internal/progress"
	"github.com/growthsignal/leadscout/internal/progress/sinks"
	memorypublisher "github.com/growthsignal/leadscout/internal/publisher/memory"
	pubsubpublisher "github.com/growthsignal/leadscout/internal/publisher/pubsub"
	"github.com/growthsignal/leadscout/internal/queries"
	queueMemory "github.com/growthsignal/leadscout/internal/queue/memory"
	"github.com/growthsignal/leadscout/internal/runner"
	"github.com/growthsignal/leadscout/internal/storage/gcs"
	"github.com/growthsignal/leadscout/internal/storage/local"
	memoryStorage "github.com/growthsignal/leadscout/internal/storage/memory"
	"github.com/growthsignal/leadscout/internal/storage/postgres"
	"github.com/growthsignal/leadscout/internal/worker"
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

	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		sinks.NewPrometheusSink(),
	)

	providers := buildProviders(cfg, logger)
	generator := queries.NewGenerator(
		providers,
		time.Duration(cfg.Providers.TimeoutSeconds)*time.Second,
		logger.Named("queries"),
	)

	crawlClient, err := apify.New(apify.Config{
		BaseURL:  cfg.Crawl.BaseURL,
		ActorID:  cfg.Crawl.ActorID,
		Token:    cfg.Crawl.Token,
		Language: cfg.Crawl.Language,
		Timeout:  time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Fatal("crawl client init failed", zap.Error(err))
	}

	controller := acquisition.New(
		crawlClient,
		clock,
		clock,
		cfg.PollInterval(),
		logger.Named("acquisition"),
		hub,
	)

	runSink, results, sinkCleanup, err := buildSink(ctx, cfg)
	if err != nil {
		logger.Fatal("sink init failed", zap.Error(err))
	}
	defer sinkCleanup()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	publisher, pubCleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer pubCleanup()

	runStore := memoryStorage.NewRunStore()
	queue := queueMemory.NewQueue(cfg.Runs.QueueDepth)

	completionTopic := cfg.Publisher.TopicName
	if completionTopic == "" {
		completionTopic = "run-completed"
	}
	exec := runner.New(
		runner.Config{
			DefaultSector:     cfg.Runs.DefaultSector,
			DefaultMaxResults: cfg.Runs.DefaultMaxResults,
			TimeBudget:        cfg.TimeBudget(),
			Language:          cfg.Crawl.Language,
			GuardEnabled:      cfg.Guard.Enabled,
			MinCreditsUSD:     cfg.Guard.MinCreditsUSD,
			CompletionTopic:   completionTopic,
		},
		generator,
		controller,
		crawlClient,
		runSink,
		blobs,
		publisher,
		clock,
		logger.Named("runner"),
		hub,
	)

	var workers []*worker.Worker
	for i := 0; i < cfg.Runs.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			runStore,
			exec,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(runStore, results, dispatch, idGen, clock, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Runs.Concurrency))
		dispatch.Run(ctx)
	}()

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
	queue.Close()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildProviders assembles the query-provider chain in configured priority
// order. A provider without a credential is skipped, not fatal.
func buildProviders(cfg config.Config, logger *zap.Logger) []queries.Provider {
	var providers []queries.Provider
	for _, name := range cfg.Providers.Order {
		var (
			p   queries.Provider
			err error
		)
		switch name {
		case "openai":
			p, err = queries.NewOpenAI(queries.OpenAIConfig{
				Name:    "openai",
				APIKey:  cfg.Providers.OpenAIKey,
				BaseURL: cfg.Providers.OpenAIBaseURL,
				Model:   cfg.Providers.OpenAIModel,
			})
		case "groq":
			p, err = queries.NewOpenAI(queries.OpenAIConfig{
				Name:    "groq",
				APIKey:  cfg.Providers.GroqKey,
				BaseURL: cfg.Providers.GroqBaseURL,
				Model:   cfg.Providers.GroqModel,
			})
		case "gemini":
			p, err = queries.NewGemini(queries.GeminiConfig{
				APIKey:  cfg.Providers.GeminiKey,
				BaseURL: cfg.Providers.GeminiBaseURL,
				Model:   cfg.Providers.GeminiModel,
			})
		default:
			logger.Warn("unknown query provider in order, skipping", zap.String("provider", name))
			continue
		}
		if err != nil {
			if errors.Is(err, queries.ErrMissingAPIKey) {
				logger.Warn("query provider skipped, no api key", zap.String("provider", name))
			} else {
				logger.Warn("query provider init failed", zap.String("provider", name), zap.Error(err))
			}
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		logger.Warn("no query providers configured, runs will use the static fallback")
	}
	return providers
}

func buildSink(ctx context.Context, cfg config.Config) (leadgen.Sink, leadgen.ResultReader, func(), error) {
	switch cfg.Sink.Provider {
	case "postgres":
		pgSink, err := postgres.NewSink(ctx, postgres.SinkConfig{
			DSN:      cfg.Sink.DSN,
			MaxConns: cfg.Sink.MaxConns,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return pgSink, pgSink, pgSink.Close, nil
	case "memory", "":
		memSink := memoryStorage.NewSink()
		return memSink, memSink, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown sink provider %q", cfg.Sink.Provider)
	}
}

func buildBlobStore(ctx context.Context, cfg config.Config) (leadgen.BlobStore, error) {
	switch cfg.Blob.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{Bucket: cfg.Blob.GCSBucket})
	case "local":
		return local.New(local.Config{BaseDir: cfg.Blob.BaseDir})
	case "memory", "":
		return memoryStorage.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.Blob.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (leadgen.Publisher, func(), error) {
	switch cfg.Publisher.Provider {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Publisher.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Publisher.TopicName)
		cleanup := func() {
			topic.Stop()
			if closeErr := client.Close(); closeErr != nil {
				zap.L().Error("pubsub client close error", zap.Error(closeErr))
			}
		}
		return pubsubpublisher.New(topic), cleanup, nil
	case "memory", "":
		return memorypublisher.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown publisher provider %q", cfg.Publisher.Provider)
	}
}
