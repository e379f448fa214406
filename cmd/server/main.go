package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"riskpulse/internal/adapter"
	"riskpulse/internal/cache"
	"riskpulse/internal/config"
	"riskpulse/internal/db"
	"riskpulse/internal/handler"
	"riskpulse/internal/ingest"
	"riskpulse/internal/job"
	"riskpulse/internal/ratelimit"
	"riskpulse/internal/risk"
	"riskpulse/internal/store"
	"riskpulse/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "riskpulse/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	connectDBFunc          = db.Connect
	connectRedisFunc       = cache.ConnectRedis
	startSchedulerFunc     = func(s *job.Scheduler) error { return s.Start() }
	stopSchedulerFunc      = func(s *job.Scheduler) { s.Stop() }
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           RiskPulse API
// @version         1.0
// @description     Digital-asset metrics ingestion and risk scoring service with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	pool, err := connectDBFunc(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	var assetStore store.AssetStore
	if pool != nil {
		pgStore := store.NewPostgresStore(pool, tracer)
		if err := pgStore.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		assetStore = pgStore
	} else {
		log.Println("no database configured, using in-memory asset store")
		assetStore = store.NewMemoryStore()
	}

	cacheStore := buildCache(ctx, cfg, pool)

	limiter := ratelimit.New()
	requestTimeout := time.Duration(cfg.RequestTimeoutSecs) * time.Second
	for service, override := range cfg.RateLimits {
		limiter.Configure(service, ratelimit.ServiceConfig{
			CallsPerInterval: override.CallsPerMinute,
			Interval:         time.Minute,
			MaxRetries:       override.MaxRetries,
			RequestTimeout:   requestTimeout,
		})
	}

	// Fixed-catalog adapters register ahead of the CoinGecko catch-all so
	// they win catalog overlaps.
	registry := adapter.NewRegistry(
		adapter.NewTether(tracer, limiter, cacheStore, 0),
		adapter.NewOndo(tracer, limiter, cacheStore, 0),
		adapter.NewHyperliquid(tracer, limiter, cacheStore, 0, cfg.HyperliquidAssets...),
		adapter.NewCoinGecko(tracer, limiter, cacheStore, adapter.CoinGeckoConfig{
			APIKey:      cfg.CoinGeckoAPIKey,
			PageSize:    cfg.CoinGeckoPageSize,
			AssetsLimit: cfg.CoinGeckoAssetsLimit,
		}),
	)

	orchestrator := ingest.NewOrchestrator(tracer, registry, assetStore, cacheStore, ingest.Config{
		MetricLookback:     time.Duration(cfg.MetricLookbackHrs) * time.Hour,
		AdapterConcurrency: cfg.AdapterConcurrency,
	})
	engine := risk.NewEngine(tracer, assetStore, cfg.RiskLookbackDays)

	scheduler := job.NewScheduler(tracer, ctx, orchestrator, engine, cfg.IngestIntervalSecs)
	if err := startSchedulerFunc(scheduler); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer stopSchedulerFunc(scheduler)

	h := handler.New(tracer, orchestrator, engine, assetStore)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("riskpulse"))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// buildCache selects the configured cache backend, falling back to memory
// when the backend's dependencies are missing. Cache loss only costs
// latency, so a degraded backend is a warning, not a fatal error.
func buildCache(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) cache.Store {
	switch cfg.CacheBackend {
	case "redis":
		client, err := connectRedisFunc(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: redis cache unavailable (%v), falling back to memory", err)
			break
		}
		return cache.NewRedis(client)
	case "postgres":
		if pool == nil {
			log.Println("Warning: postgres cache requested without DATABASE_URL, falling back to memory")
			break
		}
		pgCache := cache.NewPostgres(pool)
		if err := pgCache.RunMigrations(ctx); err != nil {
			log.Printf("Warning: postgres cache migration failed (%v), falling back to memory", err)
			break
		}
		pgCache.StartSweeper(ctx, time.Hour)
		return pgCache
	}

	mem := cache.NewMemory()
	mem.StartSweeper(ctx, time.Minute)
	return mem
}
