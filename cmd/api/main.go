package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medinotes/internal/config"
	"github.com/jwalitptl/medinotes/internal/handler/auth"
	"github.com/jwalitptl/medinotes/internal/handler/health"
	"github.com/jwalitptl/medinotes/internal/handler/prometheus"
	summaryhandler "github.com/jwalitptl/medinotes/internal/handler/summary"
	"github.com/jwalitptl/medinotes/internal/handler/web"
	"github.com/jwalitptl/medinotes/internal/identity"
	"github.com/jwalitptl/medinotes/internal/middleware"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/repository"
	"github.com/jwalitptl/medinotes/internal/repository/memory"
	"github.com/jwalitptl/medinotes/internal/repository/postgres"
	"github.com/jwalitptl/medinotes/internal/router"
	"github.com/jwalitptl/medinotes/internal/summary"
	"github.com/jwalitptl/medinotes/pkg/logger"
	"github.com/jwalitptl/medinotes/pkg/metrics"
	"github.com/jwalitptl/medinotes/pkg/security"
)

const echoDelay = 25 * time.Millisecond

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})
	appLog.SetGlobal()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler := prometheus.New()
	m := metrics.New(cfg.Metrics.Namespace, metricsHandler.Registry())
	checks := map[string]health.Pinger{}

	// Initialize repositories
	var (
		accounts    repository.AccountRepository
		revocations identity.Revocations
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		base := postgres.NewBaseRepository(db)
		accounts = postgres.NewAccountRepository(base)
		revocations = postgres.NewTokenRepository(base)
	default:
		accounts = memory.NewAccountRepository()
		revocations = identity.NewMemoryRevocations()
	}
	checks["database"] = accounts

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		redisRevocations := identity.NewRedisRevocations(client)
		revocations = redisRevocations
		checks["redis"] = redisRevocations
	}

	// Initialize services
	identitySvc := identity.NewService(
		accounts,
		security.NewBcryptHasher(bcrypt.DefaultCost),
		identity.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL()),
		revocations,
		identity.WithMetrics(m),
		identity.WithLogger(appLog),
	)
	if cfg.Database.Driver == "memory" && cfg.Demo.Email != "" {
		if _, err := identitySvc.SeedAccount(ctx, cfg.Demo.Name, cfg.Demo.Email, cfg.Demo.Password, cfg.Demo.Plan); err != nil {
			log.Fatal().Err(err).Msg("failed to seed demo account")
		}
		log.Info().Str("email", cfg.Demo.Email).Str("plan", cfg.Demo.Plan).Msg("demo account ready")
	}
	summarizer := newSummarizer(cfg.Summary, appLog)

	// Initialize middleware and handlers
	authMiddleware := middleware.NewAuthMiddleware(identitySvc, identitySvc, cfg.Session.CookieName)
	webHandler, err := web.NewHandler(identitySvc, authMiddleware,
		web.CookieConfig{Name: cfg.Session.CookieName, Secure: cfg.Session.Secure},
		model.PlanPremium, appLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pages")
	}

	var limit rate.Limit
	if cfg.RateLimit.Enabled {
		limit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
	}
	r := router.NewRouter(authMiddleware, router.Handlers{
		Web:     webHandler,
		Auth:    auth.NewHandler(identitySvc, authMiddleware),
		Summary: summaryhandler.NewHandler(summarizer, m, appLog),
		Health:  health.NewHandler(checks),
		Metrics: metricsHandler,
	}, m, router.RouterConfig{
		Mode:         cfg.Server.Mode,
		RateLimit:    limit,
		RateBurst:    cfg.RateLimit.Burst,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		TLS:          cfg.Session.Secure,
		Plan:         model.PlanPremium,
	})
	if err := r.Setup(); err != nil {
		log.Fatal().Err(err).Msg("failed to set up routes")
	}

	// Create server. No write timeout: summary streams stay open for as
	// long as the model keeps talking.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("summarizer", summarizer.Name()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

func newSummarizer(cfg config.SummaryConfig, l *logger.Logger) summary.Summarizer {
	if cfg.Provider == "openai" && cfg.APIKey != "" {
		return summary.NewOpenAI(summary.OpenAIConfig{
			APIKey:             cfg.APIKey,
			BaseURL:            cfg.BaseURL,
			Model:              cfg.Model,
			BreakerMaxFailures: cfg.BreakerMaxFailures,
			BreakerTimeout:     time.Duration(cfg.BreakerTimeoutSeconds) * time.Second,
		}, l)
	}
	if cfg.Provider == "openai" {
		l.Warn("no summary.api_key set, using the offline echo summarizer")
	}
	return summary.Echo{Delay: echoDelay}
}
