package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"riskpulse/internal/config"
	"riskpulse/internal/job"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubServerDeps()
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func stubServerDeps() func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origConnectDB := connectDBFunc
	origConnectRedis := connectRedisFunc
	origStartScheduler := startSchedulerFunc
	origStopScheduler := stopSchedulerFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			Port:               "8080",
			CacheBackend:       "memory",
			IngestIntervalSecs: 300,
			RiskLookbackDays:   90,
			MetricLookbackHrs:  24,
			AdapterConcurrency: 2,
			RequestTimeoutSecs: 5,
			RateLimits:         map[string]config.RateLimitOverride{},
		}
	}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	connectDBFunc = func(context.Context, string) (*pgxpool.Pool, error) { return nil, nil }
	connectRedisFunc = func(context.Context, string) (*redis.Client, error) { return nil, errors.New("redis unavailable") }
	startSchedulerFunc = func(*job.Scheduler) error { return nil }
	stopSchedulerFunc = func(*job.Scheduler) {}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		connectDBFunc = origConnectDB
		connectRedisFunc = origConnectRedis
		startSchedulerFunc = origStartScheduler
		stopSchedulerFunc = origStopScheduler
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
