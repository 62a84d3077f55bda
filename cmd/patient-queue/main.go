package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qms/patient-queue/internal/config"
	"qms/patient-queue/internal/db"
	"qms/patient-queue/internal/httpapi"
	"qms/patient-queue/internal/hub"
	"qms/patient-queue/internal/identity"
	"qms/patient-queue/internal/metrics"
	"qms/patient-queue/internal/patients"
	"qms/patient-queue/internal/queue"
	"qms/patient-queue/internal/source"
	"qms/patient-queue/internal/store"
	"qms/patient-queue/internal/store/memory"
	"qms/patient-queue/internal/store/postgres"
	"qms/patient-queue/internal/telemetry"
)

const serviceName = "patient-queue"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Walk-in patient queue server",
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(seedCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient queue API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	shutdownTelemetry := telemetry.Setup(serviceName, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	fixture, err := source.LoadFixture(cfg.FixturePath, source.FixtureOptions{Latency: cfg.FixtureLatency()})
	if err != nil {
		return err
	}

	ctx := context.Background()
	var (
		queueStore store.QueueStore
		health     httpapi.HealthCheck
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			DSN:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		queueStore = postgres.NewStore(pool, postgres.Options{})
		health = func(ctx context.Context) (interface{}, error) {
			return db.Check(ctx, pool)
		}
	default:
		queueStore = memory.NewStore(fixture, memory.Options{})
	}

	collector := metrics.New()
	svc := queue.NewService(queueStore, queue.Options{
		Patients: patients.NewMemory(fixture.Patients()),
		Hub:      hub.New(logger),
		Metrics:  collector,
		Logger:   logger,
	})
	// A failed initial load leaves an empty queue; clients can retry via reload.
	if _, err := svc.Load(ctx); err != nil {
		logger.Error().Err(err).Msg("initial queue load failed")
	}

	accounts, err := identity.NewDemoDirectory(cfg.DemoPassword, 0)
	if err != nil {
		return err
	}
	issuer := identity.NewIssuer(cfg.JWTSigningKey, cfg.TokenTTL())
	handler := httpapi.NewHandler(svc, httpapi.Options{
		Issuer:   issuer,
		Accounts: accounts,
		Metrics:  collector,
		Health:   health,
		Logger:   logger,
		Refresh:  cfg.WaitTimeRefresh(),
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})

	chain := httpapi.AuthMiddleware(issuer, limiter.Middleware(handler.Routes()))
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(httpapi.LoggingMiddleware(logger, collector, chain), serviceName),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: realtime streaming responses stay open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("store", cfg.StoreBackend).Msg("patient-queue listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}
