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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/medinotes/internal/config"
	"github.com/jwalitptl/medinotes/internal/handler/health"
	"github.com/jwalitptl/medinotes/internal/handler/prometheus"
	"github.com/jwalitptl/medinotes/internal/repository/postgres"
	"github.com/jwalitptl/medinotes/internal/worker"
	"github.com/jwalitptl/medinotes/pkg/logger"
	"github.com/jwalitptl/medinotes/pkg/metrics"
)

// The worker only has something to do when revocations live in postgres;
// memory and redis stores expire entries on their own.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})
	appLog.SetGlobal()

	if cfg.Database.Driver != "postgres" {
		log.Info().Str("driver", cfg.Database.Driver).Msg("no postgres revocation store configured, nothing to sweep")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	base := postgres.NewBaseRepository(db)
	metricsHandler := prometheus.New()
	m := metrics.New(cfg.Metrics.Namespace, metricsHandler.Registry())

	sweeper := worker.NewRevocationSweeper(
		postgres.NewTokenRepository(base),
		cfg.Worker.SweepInterval(),
		cfg.Worker.Grace(),
		appLog,
		m,
	)

	srv := setupHealthCheck(cfg.Worker.HealthPort, metricsHandler, health.PingFunc(db.PingContext))

	sweeper.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	log.Info().Msg("worker exited properly")
}

func setupHealthCheck(port int, metricsHandler *prometheus.Handler, db health.Pinger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	health.NewHandler(map[string]health.Pinger{"database": db}).RegisterRoutes(r)
	metricsHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}
