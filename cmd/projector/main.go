package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"credible/internal/platform/config"
	"credible/internal/platform/database"
	"credible/internal/platform/health"
	"credible/internal/platform/httpserver"
	"credible/internal/platform/kafka"
	"credible/internal/platform/logger"
	"credible/internal/platform/metrics"
	"credible/internal/platform/tracer"
	"credible/internal/projector"
	"credible/internal/projector/consumer"
	projstore "credible/internal/projector/store"
)

// main runs the chain-event ingestion worker: a Kafka consumer feeding the
// projector, plus a small listener for health and metrics.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	log.Info("initializing projector",
		"brokers", cfg.Kafka.Brokers,
		"topics", cfg.Kafka.Topics,
		"group_id", cfg.Kafka.GroupID,
		"postgres", cfg.DatabaseURL != "",
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	var store projstore.Store = projstore.New()
	if pool != nil {
		store = projstore.NewPostgres(pool.DB())
	}

	svc := projector.NewService(store, log,
		projector.WithMetrics(m),
		projector.WithTracer(tracer.NewOTel("credible/projector")),
	)
	handler := consumer.NewHandler(svc, log)

	kc, err := kafka.NewConsumer(kafka.Config{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		AutoOffsetReset: "earliest",
	}, handler, log)
	if err != nil {
		log.Error("kafka init failed", "error", err)
		os.Exit(1)
	}
	if err := kc.Subscribe(cfg.Kafka.Topics); err != nil {
		log.Error("kafka subscribe failed", "error", err)
		os.Exit(1)
	}

	healthHandler := health.New()
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	ops := chi.NewRouter()
	healthHandler.Register(ops)
	ops.Handle("/metrics", promhttp.Handler())
	opsSrv := httpserver.New(cfg.MetricsAddr, ops)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kc.Start()
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return kc.Stop(shutdownCtx)
	})
	g.Go(func() error {
		log.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return opsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("projector stopped with error", "error", err)
		os.Exit(1)
	}

	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Error("database close failed", "error", err)
		}
	}
	log.Info("projector stopped")
}
