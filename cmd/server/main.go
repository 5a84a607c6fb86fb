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

	"credible/internal/audit"
	enrollservice "credible/internal/enrollment/service"
	enrollstore "credible/internal/enrollment/store"
	grantservice "credible/internal/grant/service"
	grantstore "credible/internal/grant/store"
	"credible/internal/mint"
	packservice "credible/internal/pack/service"
	packstore "credible/internal/pack/store"
	"credible/internal/platform/config"
	"credible/internal/platform/database"
	"credible/internal/platform/health"
	"credible/internal/platform/httpserver"
	"credible/internal/platform/logger"
	"credible/internal/platform/metrics"
	"credible/internal/platform/tracer"
	projstore "credible/internal/projector/store"
	reviewservice "credible/internal/review/service"
	reviewstore "credible/internal/review/store"
	httptransport "credible/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	log.Info("initializing credible",
		"addr", cfg.Addr,
		"metrics_addr", cfg.MetricsAddr,
		"postgres", cfg.DatabaseURL != "",
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	// In-memory stores back everything when no DATABASE_URL is set.
	// Enrollments and reviews are memory-resident either way; their durable
	// truth is the chain projection. After a restart, minted state that has
	// not yet been projected is recovered from the PackMinted event once the
	// projector catches up; until then mintChecker answers from the
	// projection alone.
	var (
		packs       packstore.Store  = packstore.New()
		grants      grantstore.Store = grantstore.New()
		projections projstore.Store  = projstore.New()
	)
	enrollments := enrollstore.New()
	reviews := reviewstore.New()
	if pool != nil {
		packs = packstore.NewPostgres(pool.DB())
		grants = grantstore.NewPostgres(pool.DB())
		projections = projstore.NewPostgres(pool.DB())
	}

	auditor := audit.NewPublisher(audit.NewInMemoryStore(),
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditor.Close()

	packSvc := packservice.NewService(packs, projections, auditor, log, packservice.WithMetrics(m))
	enrollSvc := enrollservice.NewService(enrollments, packSvc, reviews, auditor, log, enrollservice.WithMetrics(m))
	reviewSvc := reviewservice.NewService(reviews, packSvc, enrollSvc, auditor, log,
		reviewservice.WithMetrics(m),
		reviewservice.WithTracer(tracer.NewOTel("credible/review")),
	)
	mintSvc := mint.NewService(enrollSvc, auditor, log, mint.WithMetrics(m))

	checker := &mintChecker{enrollments: enrollments, projections: projections}
	grantSvc := grantservice.NewService(grants, checker, reviewSvc, auditor, log, grantservice.WithMetrics(m))

	handler := httptransport.NewHandler(packSvc, enrollSvc, reviewSvc, mintSvc, grantSvc, projections, auditor, log)
	router := httptransport.NewRouter(handler, cfg.JWTSigningKey, m, log)
	srv := httpserver.New(cfg.Addr, router)

	// Operational listener: health checks and Prometheus metrics.
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

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		log.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := opsSrv.Shutdown(ctx); err != nil {
		log.Error("metrics shutdown failed", "error", err)
	}
	if pool != nil {
		if err := pool.Close(); err != nil {
			log.Error("database close failed", "error", err)
		}
	}

	log.Info("server stopped")
}
