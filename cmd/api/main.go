package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/timmy/sentiscope/internal/api"
	"github.com/timmy/sentiscope/internal/app"
	"github.com/timmy/sentiscope/internal/config"
	"github.com/timmy/sentiscope/internal/logger"
)

func main() {
	// CONFIG_PATH selects the config file in deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	log := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	ctx := context.Background()

	var registerer prometheus.Registerer
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		registerer = prometheus.DefaultRegisterer
		gatherer = prometheus.DefaultGatherer
	}

	application, err := app.New(ctx, cfg, app.Options{WithSink: true, Registerer: registerer})
	if err != nil {
		logger.Fatal("Failed to initialize application: %v", err)
	}

	router := api.SetupRouter(application.Harvest, api.RouterConfig{
		Mode:        cfg.Server.Mode,
		CORS:        cfg.Server.CORS,
		MetricsPath: cfg.Metrics.Path,
		Gatherer:    gatherer,
		Logger:      log,
		Adapters:    application.Chain.Adapters(),
	})

	// request contexts derive from baseCtx so shutdown can cancel running harvests
	baseCtx, cancelRequests := context.WithCancel(ctx)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	go func() {
		log.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	cancelRequests()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := application.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to close sinks")
	}

	log.Info("Server exited")
}
