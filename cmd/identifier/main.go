// The identifier service exposes the species-identification engine over
// HTTP. On startup it builds the reference index from PostgreSQL, then
// serves single and batch identification, reference stats, and reload
// endpoints, publishing usage events to Kafka and caching results in Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marinedata/edna-platform/internal/events"
	"github.com/marinedata/edna-platform/internal/identify"
	"github.com/marinedata/edna-platform/internal/identify/cache"
	"github.com/marinedata/edna-platform/internal/identify/handler"
	"github.com/marinedata/edna-platform/internal/refdata"
	"github.com/marinedata/edna-platform/pkg/config"
	"github.com/marinedata/edna-platform/pkg/health"
	"github.com/marinedata/edna-platform/pkg/kafka"
	"github.com/marinedata/edna-platform/pkg/logger"
	"github.com/marinedata/edna-platform/pkg/metrics"
	"github.com/marinedata/edna-platform/pkg/middleware"
	"github.com/marinedata/edna-platform/pkg/postgres"
	pkgredis "github.com/marinedata/edna-platform/pkg/redis"
	"github.com/marinedata/edna-platform/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := slog.Default().With("component", "identifier")
	log.Info("starting identifier service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Reference store.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	provider := refdata.NewPostgresProvider(db)

	engine, err := identify.New(cfg.Engine, provider, m)
	if err != nil {
		log.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	// Initial index build. The service starts even if this fails: readiness
	// stays down and the reference-updated consumer retries later.
	err = resilience.Retry(ctx, "initial-index-build", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
	}, func() error {
		return engine.Rebuild(ctx)
	})
	if err != nil {
		log.Error("initial index build failed, serving not-ready", "error", err)
	}

	// Result cache. Redis being down degrades to uncached queries.
	var resultCache *cache.ResultCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		resultCache = cache.New(redisClient, cfg.Redis, m)
	}

	// Event pipeline.
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IdentificationEvents)
	defer producer.Close()
	collector := events.NewCollector(producer, 100, 5*time.Second)
	collector.Start(ctx)

	var invalidator events.CacheInvalidator
	if resultCache != nil {
		invalidator = resultCache
	}
	reloadConsumer := events.NewReloadConsumer(cfg.Kafka, engine, invalidator)
	go func() {
		if err := reloadConsumer.Start(ctx); err != nil {
			log.Error("reference-reload consumer stopped", "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("reference_index", func(ctx context.Context) health.ComponentHealth {
		idx := engine.Index()
		if idx == nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no reference index built"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d species, build %s", idx.SpeciesCount(), idx.BuildID()),
		}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := provider.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		if err := kafka.Ping(ctx, cfg.Kafka.Brokers); err != nil {
			// Events are buffered and retried, so a broker outage degrades
			// rather than downs the service.
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port)
	}

	h := handler.New(engine, resultCache, provider, collector, m)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/species/identify", h.Identify)
	mux.HandleFunc("POST /api/v1/species/batch-identify", h.BatchIdentify)
	mux.HandleFunc("GET /api/v1/reference/stats", h.ReferenceStats)
	mux.HandleFunc("POST /api/v1/reference/reload", h.ReferenceReload)
	mux.HandleFunc("GET /health", checker.LiveHandler())
	mux.HandleFunc("GET /ready", checker.ReadyHandler())

	chain := middleware.Timeout(cfg.Server.WriteTimeout)(
		middleware.RequestID(
			middleware.Metrics(m)(mux),
		),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	if shutdownMetrics != nil {
		if err := shutdownMetrics(shutdownCtx); err != nil {
			log.Error("metrics server shutdown error", "error", err)
		}
	}
	collector.Close()
	log.Info("shutdown complete")
}
