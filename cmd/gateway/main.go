// Package main runs the settlement layer gateway: the REST API over the
// marketplace, staking, and factory services.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/MarketForge/settlement_layer/internal/app"
	"github.com/MarketForge/settlement_layer/internal/app/httpapi"
	"github.com/MarketForge/settlement_layer/internal/app/metrics"
	"github.com/MarketForge/settlement_layer/internal/app/storage/postgres"
	"github.com/MarketForge/settlement_layer/internal/config"
	"github.com/MarketForge/settlement_layer/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "gateway")

	policy, err := config.LoadMarketPolicyOrDefault(cfg.PolicyPath)
	if err != nil {
		log.WithError(err).Error("load market policy")
		os.Exit(1)
	}

	var stores app.Stores
	if cfg.Database.DSN != "" {
		db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			log.WithError(err).Error("connect database")
			os.Exit(1)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
		defer db.Close()

		if err := postgres.Migrate(context.Background(), db); err != nil {
			log.WithError(err).Error("apply migrations")
			os.Exit(1)
		}

		store := postgres.New(db, log)
		stores = app.Stores{
			Assets:   store,
			Listings: store,
			Pools:    store,
			Registry: store,
			Ledger:   store,
			Events:   store,
		}
		log.Info("using postgres storage")
	} else {
		log.Info("DATABASE_DSN not set; using in-memory storage")
	}

	application, err := app.New(stores, policy, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", httpapi.NewHandler(application))

	var handler http.Handler = mux
	handler = httpapi.WithAdminGate(handler, cfg.AdminToken)
	handler = httpapi.WithRateLimit(handler, float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	handler = metrics.InstrumentHandler(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application shutdown")
	}
	log.Info("gateway stopped")
}
