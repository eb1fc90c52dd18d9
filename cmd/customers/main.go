package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jirikrizz/erihub-dev-sub006/config"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/startup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := newService(cfg, logger)
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	for _, dep := range svc.dependencies() {
		boot.AddDependency(dep)
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start service")
		shutdown(boot, logger)
		os.Exit(1)
	}

	svc.health.SetReady(true)
	metricsServer := serveMetrics(cfg.MetricsAddr, svc, logger)
	logger.WithField("app", cfg.AppName).Info("Service started")

	<-ctx.Done()
	logger.Info("Shutting down")
	svc.health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to stop metrics server")
	}
	shutdown(boot, logger)
}

func shutdown(boot *startup.Startup, logger ectologger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := boot.Stop(ctx); err != nil {
		logger.WithError(err).Error("Failed to stop dependencies")
	}
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build(zap.Fields(zap.String("app", cfg.AppName)))
}

func serveMetrics(addr string, svc *service, logger ectologger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", svc.health.LivenessHandler)
	mux.HandleFunc("/readyz", svc.health.ReadinessHandler)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server stopped")
		}
	}()
	return server
}
