package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oxsidee/traidetrain/internal/engine"
	"github.com/oxsidee/traidetrain/internal/fx"
	"github.com/oxsidee/traidetrain/internal/identity"
	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/market"
	"github.com/oxsidee/traidetrain/internal/observability"
	"github.com/oxsidee/traidetrain/internal/persistence"
	"github.com/oxsidee/traidetrain/internal/server"
	"github.com/oxsidee/traidetrain/internal/stream"
)

// Config holds all application configuration, loaded from environment
// variables. An empty Postgres DSN selects the in-memory store for local
// runs; NATS is optional and degrades to log-only publishing.
type Config struct {
	PostgresDSN string
	NATSURL     string

	HTTPAddr    string
	MetricsAddr string

	JWTSecret    string
	BaseCurrency string

	RateTTL      time.Duration
	QuoteTimeout time.Duration

	MigrationsDir string
}

func DefaultConfig() Config {
	return Config{
		PostgresDSN:   envOrDefault("TRAIDE_POSTGRES_DSN", ""),
		NATSURL:       envOrDefault("TRAIDE_NATS_URL", "nats://localhost:4222"),
		HTTPAddr:      envOrDefault("TRAIDE_HTTP_ADDR", ":8080"),
		MetricsAddr:   envOrDefault("TRAIDE_METRICS_ADDR", ":9091"),
		JWTSecret:     envOrDefault("TRAIDE_JWT_SECRET", ""),
		BaseCurrency:  envOrDefault("TRAIDE_BASE_CURRENCY", "USD"),
		RateTTL:       time.Duration(envIntOrDefault("TRAIDE_RATE_TTL_SECONDS", 300)) * time.Second,
		QuoteTimeout:  time.Duration(envIntOrDefault("TRAIDE_QUOTE_TIMEOUT_SECONDS", 8)) * time.Second,
		MigrationsDir: envOrDefault("TRAIDE_MIGRATIONS_DIR", "migrations"),
	}
}

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("traidetrain starting")

	cfg := DefaultConfig()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "traidetrain-dev-secret"
		log.Warn().Msg("TRAIDE_JWT_SECRET not set, using development secret")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Stores ---
	var (
		store     ledger.Store
		userStore identity.UserStore
	)
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open")
		}
		defer db.Close()

		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping")
		}
		log.Info().Msg("postgres connected")

		migrator := persistence.NewMigrator(db, cfg.MigrationsDir, observability.NewLogger("migrator"))
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}

		store = persistence.NewPostgresStore(db, observability.NewLogger("store"), metrics)
		userStore = persistence.NewUserStore(db)
	} else {
		log.Warn().Msg("TRAIDE_POSTGRES_DSN not set, using in-memory store")
		store = ledger.NewMemoryStore()
		userStore = identity.NewMemoryUserStore()
	}

	// --- NATS (optional) ---
	var js jetstream.JetStream
	if cfg.NATSURL != "" {
		nc, conn, err := stream.ConnectNATS(cfg.NATSURL, observability.NewLogger("nats"))
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable, events will not be published")
		} else {
			defer nc.Close()
			if err := stream.EnsureEventStream(ctx, conn); err != nil {
				log.Warn().Err(err).Msg("ensure event stream failed")
			} else {
				js = conn
				log.Info().Msg("NATS connected")
			}
		}
	}
	publisher := stream.NewPublisher(js, observability.NewLogger("publisher"), metrics)

	// --- Market data ---
	yahoo := market.NewYahooProvider(cfg.QuoteTimeout, observability.NewLogger("yahoo"))
	moex := market.NewMoexProvider(cfg.QuoteTimeout, observability.NewLogger("moex"))
	router := market.NewRouter(yahoo, moex, metrics)

	rateSource := market.NewYahooRateSource(yahoo, observability.NewLogger("rates"))
	rates := market.NewCachedRates(rateSource, cfg.BaseCurrency, cfg.RateTTL, observability.NewLogger("rates"), metrics)

	converter := fx.NewConverter(cfg.BaseCurrency, observability.NewLogger("fx"), metrics.FXFailOpenTotal)

	// --- Services ---
	identitySvc := identity.NewService(userStore, store, []byte(cfg.JWTSecret), cfg.BaseCurrency, observability.NewLogger("identity"))
	engineSvc := engine.NewService(store, router, rates, converter, publisher, metrics, observability.NewLogger("engine"), cfg.QuoteTimeout)

	api := server.New(engineSvc, identitySvc, router, yahoo, rates, metrics, observability.NewLogger("server"))

	errChan := make(chan error, 4)

	// 1. API server
	apiServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("api server: %w", err)
		}
	}()

	// 2. Metrics and health server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/healthz", healthChecker.LivenessHandler)
	metricsMux.HandleFunc("/readyz", healthChecker.ReadinessHandler)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	log.Info().Str("http", cfg.HTTPAddr).Str("metrics", cfg.MetricsAddr).Msg("traidetrain ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("server failed, shutting down")
	}

	healthChecker.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api server shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown")
	}

	log.Info().Msg("traidetrain shutdown complete")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}
