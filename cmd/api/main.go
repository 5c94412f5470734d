package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/atelierhq/quoting/internal/di"
	"github.com/atelierhq/quoting/internal/handlers"
	"github.com/atelierhq/quoting/internal/platform/config"
	pfirestore "github.com/atelierhq/quoting/internal/platform/firestore"
	"github.com/atelierhq/quoting/internal/platform/jobs"
	"github.com/atelierhq/quoting/internal/platform/observability"
	"github.com/atelierhq/quoting/internal/platform/requestctx"
	"github.com/atelierhq/quoting/internal/platform/secrets"
	"github.com/atelierhq/quoting/internal/repositories"
	firestoreRepo "github.com/atelierhq/quoting/internal/repositories/firestore"
	"github.com/atelierhq/quoting/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	resolver, err := newSecretResolver(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var vErr *config.ValidationError
		if errors.As(err, &vErr) {
			logger.Fatal("invalid configuration", zap.Strings("fields", vErr.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)

	var extraChecks []repositories.DependencyCheck
	var publisher services.PackingPlanPublisher
	if topicID := strings.TrimSpace(cfg.PubSub.PackingPlanTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()

		packingPublisher, err := jobs.NewPubSubPackingPlanPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise packing plan publisher", zap.Error(err))
		}
		publisher = packingPublisher
		extraChecks = append(extraChecks, repositories.DependencyCheck{
			Name:  "pubsub",
			Check: topicCheck(topic),
		})
		logger.Info("packing plan publishing enabled", zap.String("topic", topicID))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, extraChecks...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	metrics, err := observability.NewQuoteMetrics(otel.Meter("github.com/atelierhq/quoting"))
	if err != nil {
		logger.Fatal("failed to initialise metrics", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithEventLogger(func(component string) func(context.Context, string, map[string]any) {
			return observability.EventLogger(logger.Named(component))
		}),
		di.WithMetrics(metrics),
		di.WithBuildInfo(buildInfo),
	}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithPackingPlanPublisher(publisher))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if container.Services.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(container.Services.System))
	}
	quoteHandlers := handlers.NewQuoteHandlers(container.Services.Quotes)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithQuoteMiddlewares(handlers.QuoteRateLimitMiddleware(cfg.Server.RateLimit, nil)),
		handlers.WithQuoteRoutes(quoteHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(
		zap.String("addr", server.Addr),
		zap.String("origin", cfg.Quote.OriginCountry),
		zap.String("currency", cfg.Quote.Currency),
		zap.String("rateProvider", cfg.Quote.RateProvider),
	)
	go func() {
		serverLogger.Info("quoting api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter("github.com/atelierhq/quoting/secrets")),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	return secrets.NewResolver(ctx, opts...)
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	return services.BuildInfo{
		Version:   version,
		StartedAt: started,
	}
}

func traceProjectID(cfg config.Config) string {
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

// topicCheck fails readiness when the packing plan topic is missing.
func topicCheck(topic *pubsub.Topic) func(context.Context) error {
	return func(ctx context.Context) error {
		exists, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("topic %s does not exist", topic.ID())
		}
		return nil
	}
}
