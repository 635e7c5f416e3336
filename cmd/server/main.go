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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/tscv-go/internal/api"
	"github.com/irfndi/tscv-go/internal/cache"
	"github.com/irfndi/tscv-go/internal/config"
	"github.com/irfndi/tscv-go/internal/database"
	"github.com/irfndi/tscv-go/internal/logging"
	"github.com/irfndi/tscv-go/internal/metrics"
	"github.com/irfndi/tscv-go/internal/services"
	"github.com/irfndi/tscv-go/internal/telemetry"
)

const serviceName = "tscv-server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; the environment and config.yaml still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer flush(logger, "tracing", shutdownTracing)

	shutdownLogs, err := logging.AttachOTLP(ctx, logger, logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		Endpoint:       hostPort(cfg.Telemetry.OTLPEndpoint),
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: telemetry.ServiceVersion,
		Environment:    cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OTLP logging: %w", err)
	}
	defer flush(logger, "log export", shutdownLogs)

	recorder := metrics.NewRecorder()
	deps, closeBackends, err := buildDependencies(ctx, cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer closeBackends()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := api.NewRouter(deps)
	if err != nil {
		return fmt.Errorf("failed to set up routes: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	return serve(newHTTPServer(cfg, router), logger, quit, cfg.ShutdownTimeout(), deps.Timeouts.Shutdown)
}

// buildDependencies connects the optional backends. The returned function
// closes whatever was opened.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *logrus.Logger, recorder *metrics.Recorder) (api.Dependencies, func(), error) {
	deps := api.Dependencies{
		Config:   cfg,
		Logger:   logger,
		Recorder: recorder,
		Breakers: services.NewCircuitBreakerManager(services.CircuitBreakerConfig{}, logger),
		Timeouts: services.NewTimeoutManager(runTimeouts(cfg.Server.RunTimeouts), logger),
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Database.Enabled {
		var db *database.PostgresDB
		connect := services.ExecuteWithRetry(ctx, logger, "postgres", services.ConnectRetryPolicy(cfg.Database.ConnectRetries), func(ctx context.Context) error {
			var err error
			db, err = database.NewPostgresConnection(ctx, cfg.Database, logger)
			return err
		})
		if connect.Error != nil {
			return api.Dependencies{}, nil, connect.Error
		}
		closers = append(closers, db.Close)

		runs := database.NewRunRepository(database.NewTracedPool(db.Pool))
		if err := runs.EnsureSchema(ctx); err != nil {
			closeAll()
			return api.Dependencies{}, nil, fmt.Errorf("failed to prepare run storage: %w", err)
		}
		deps.DB = db
		deps.Runs = runs
	}

	if cfg.Redis.Enabled {
		var client *database.RedisClient
		connect := services.ExecuteWithRetry(ctx, logger, "redis", services.ConnectRetryPolicy(cfg.Redis.ConnectRetries), func(ctx context.Context) error {
			var err error
			client, err = database.NewRedisConnection(ctx, cfg.Redis, logger)
			return err
		})
		if connect.Error != nil {
			closeAll()
			return api.Dependencies{}, nil, connect.Error
		}
		closers = append(closers, client.Close)

		results := cache.NewResultCache(client.Client, cfg.CacheTTL(), logger, recorder)
		closers = append(closers, results.LogStats)
		deps.Redis = client
		deps.Cache = results
	}

	logger.WithFields(logrus.Fields{
		"database": cfg.Database.Enabled,
		"redis":    cfg.Redis.Enabled,
		"auth":     cfg.Security.AuthEnabled,
	}).Info("Backends initialized")
	return deps, closeAll, nil
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// runTimeouts converts the validated per-route budgets.
func runTimeouts(cfg config.RunTimeoutsConfig) *services.TimeoutConfig {
	parse := func(s string) time.Duration {
		d, _ := time.ParseDuration(s)
		return d
	}
	return &services.TimeoutConfig{
		Train:         parse(cfg.Train),
		CrossValidate: parse(cfg.CrossValidate),
		Backtest:      parse(cfg.Backtest),
	}
}

// serve runs srv until it fails or a value arrives on quit, then shuts it
// down within timeout. beforeShutdown, if set, runs first and cancels the
// evaluations in flight.
func serve(srv *http.Server, logger *logrus.Logger, quit <-chan os.Signal, timeout time.Duration, beforeShutdown func()) error {
	errCh := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, serviceName, telemetry.ServiceVersion, portOf(srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case sig := <-quit:
		logging.LogShutdown(logger, serviceName, "signal received: "+sig.String())
	}
	if beforeShutdown != nil {
		beforeShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited gracefully")
	return nil
}

func flush(logger *logrus.Logger, what string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.WithError(err).Warnf("Failed to flush %s", what)
	}
}

// hostPort strips the scheme and path from an OTLP endpoint URL.
func hostPort(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	if i := strings.IndexByte(endpoint, '/'); i >= 0 {
		endpoint = endpoint[:i]
	}
	return endpoint
}

func portOf(addr string) int {
	var port int
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		_, _ = fmt.Sscanf(addr[i+1:], "%d", &port)
	}
	return port
}
