package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/agrilogistic/search/internal/analysis"
	"github.com/agrilogistic/search/internal/catalog"
	"github.com/agrilogistic/search/internal/config"
	"github.com/agrilogistic/search/internal/engine"
	esengine "github.com/agrilogistic/search/internal/engine/elasticsearch"
	"github.com/agrilogistic/search/internal/engine/memory"
	"github.com/agrilogistic/search/internal/event"
	handler "github.com/agrilogistic/search/internal/handler/http"
	"github.com/agrilogistic/search/internal/service"
	"github.com/agrilogistic/search/pkg/database"
	apperrors "github.com/agrilogistic/search/pkg/errors"
	"github.com/agrilogistic/search/pkg/health"
	pkgkafka "github.com/agrilogistic/search/pkg/kafka"
	"github.com/agrilogistic/search/pkg/middleware"
	"github.com/agrilogistic/search/pkg/tracing"
)

const (
	ensureIndexAttempts = 5
	idempotencyPrefix   = "search:event:"
)

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	searchService  *service.SearchService
	redis          *redis.Client
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
// The search index is created if missing before NewApp returns.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.closeClients()
		}
	}()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	tables, err := analysis.LoadTables(cfg.AnalysisTables)
	if err != nil {
		return nil, fmt.Errorf("load analysis tables: %w", err)
	}
	analyzer := analysis.New(tables)

	eng, err := buildEngine(cfg, analyzer, logger)
	if err != nil {
		return nil, err
	}

	var source service.CatalogSource
	if cfg.CatalogServiceURL != "" {
		client, err := catalog.New(catalog.Config{
			BaseURL:    cfg.CatalogServiceURL,
			Timeout:    cfg.CatalogTimeout,
			MaxRetries: cfg.CatalogMaxRetries,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init catalog client: %w", err)
		}
		source = client
	}

	a.searchService = service.NewSearchService(eng, source, cfg.ServiceConfig(), logger)
	if err := ensureIndexWithRetry(ctx, a.searchService, logger); err != nil {
		return nil, err
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical(cfg.SearchEngine, a.searchService.Ping)

	if cfg.RedisEnabled() {
		redisCfg := database.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		a.redis, err = database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		registerCollector(database.NewRedisPoolCollector(a.redis, cfg.ServiceName))
		healthHandler.RegisterNonCritical("redis", database.PingRedis(a.redis))
		logger.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
	}

	if cfg.KafkaEnabled {
		a.consumer, a.dlq = a.buildConsumer(cfg, logger)
		brokers := cfg.KafkaBrokers
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, brokers)
		})
		logger.Info("kafka consumer initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Any("topics", event.Topics()),
			slog.String("group_id", cfg.KafkaGroupID),
		)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	cors.Environment = cfg.Environment

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:       cfg.ServiceName,
		RequestTimeout:    cfg.RequestTimeout,
		AutocompleteCache: cfg.AutocompleteCache,
		CORS:              cors,
		PprofEnabled:      cfg.PprofEnabled,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, a.searchService, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

func buildEngine(cfg *config.Config, analyzer *analysis.Analyzer, logger *slog.Logger) (engine.SearchEngine, error) {
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		client, err := esengine.NewClient(esengine.ClientConfig{
			Addresses:  cfg.ElasticsearchURLs,
			Username:   cfg.ElasticsearchUsername,
			Password:   cfg.ElasticsearchPassword,
			MaxRetries: cfg.ElasticsearchMaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng := esengine.New(client, analyzer, esengine.Config{
			Index:    cfg.ElasticsearchIndex,
			Shards:   cfg.ElasticsearchShards,
			Replicas: cfg.ElasticsearchReplicas,
		}, cfg.EngineOptions(), logger)
		logger.Info("elasticsearch search engine initialized",
			slog.Any("urls", cfg.ElasticsearchURLs),
			slog.String("index", eng.IndexName()),
		)
		return eng, nil
	case config.EngineMemory:
		logger.Info("in-memory search engine initialized")
		return memory.New(analyzer, cfg.EngineOptions(), logger), nil
	default:
		return nil, fmt.Errorf("unknown search engine %q", cfg.SearchEngine)
	}
}

func (a *App) buildConsumer(cfg *config.Config, logger *slog.Logger) (*pkgkafka.Consumer, *pkgkafka.DLQProducer) {
	var store pkgkafka.IdempotencyStore
	if a.redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.redis, idempotencyPrefix, cfg.IdempotencyTTL)
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	}

	var (
		opts []pkgkafka.ConsumerOption
		dlq  *pkgkafka.DLQProducer
	)
	if cfg.KafkaDLQEnabled {
		dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		opts = append(opts, pkgkafka.WithDeadLetterQueue(dlq))
	}

	eventConsumer := event.NewConsumer(a.searchService, logger)
	consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:      cfg.KafkaBrokers,
		GroupID:      cfg.KafkaGroupID,
		Topics:       event.Topics(),
		MinBytes:     1,
		MaxBytes:     10e6,
		MaxRetries:   cfg.KafkaMaxRetries,
		RetryBackoff: cfg.KafkaRetryBackoff,
	}, pkgkafka.IdempotentHandler(store, eventConsumer.Handle, logger), logger, opts...)

	return consumer, dlq
}

// registerCollector registers c, tolerating a collector that is already
// registered under the same descriptors.
func registerCollector(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}

// Run starts the HTTP server and the Kafka consumer, blocking until the
// context is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed, shutting down", slog.String("error", runErr.Error()))
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown stops components in order: HTTP server (drain in-flight
// requests), Kafka consumer, DLQ producer, Redis, then the tracer so spans
// from the drained work are flushed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpCtx, httpCancel := context.WithTimeout(context.Background(), timeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.closeClients()...)

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeClients() []error {
	var errs []error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			a.logger.Error(name+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		closeOne("kafka consumer", a.consumer.Close)
	}
	if a.dlq != nil {
		closeOne("kafka dlq producer", a.dlq.Close)
	}
	if a.redis != nil {
		closeOne("redis", a.redis.Close)
	}
	return errs
}

// ensureIndexWithRetry creates the index, retrying retryable store failures with exponential backoff (1s, 2s, 4s... with ±25% jitter).
func ensureIndexWithRetry(ctx context.Context, svc *service.SearchService, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < ensureIndexAttempts; attempt++ {
		if lastErr = svc.EnsureIndex(ctx); lastErr == nil {
			return nil
		}
		if !apperrors.IsRetryable(lastErr) {
			return fmt.Errorf("ensure index: %w", lastErr)
		}
		if attempt == ensureIndexAttempts-1 {
			break
		}
		base := time.Duration(1<<uint(attempt)) * time.Second
		wait := base + time.Duration(float64(base)*0.25*(2*rand.Float64()-1)) // #nosec G404 -- retry jitter
		logger.Warn("ensure index failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", ensureIndexAttempts),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ensure index: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("ensure index failed after %d attempts: %w", ensureIndexAttempts, lastErr)
}
