package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/msl/internal/api"
	"github.com/kenneth/msl/internal/audit"
	"github.com/kenneth/msl/internal/config"
	"github.com/kenneth/msl/internal/crypto"
	"github.com/kenneth/msl/internal/debug"
	"github.com/kenneth/msl/internal/metrics"
	"github.com/kenneth/msl/internal/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	bindAddr string
	logLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MSL receive pipeline behind an HTTP ingress",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&bindAddr, "bind", ":8443", "address to bind the HTTP ingress")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logrus.New()
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("msl-gateway: parse log level: %w", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})
	debug.InitFromLogLevel(logLevel)

	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(configPath(), func(next *config.Config) {
		logger.Info("config reloaded")
	})
	if err != nil {
		return fmt.Errorf("msl-gateway: start config watcher: %w", err)
	}
	defer watcher.Close()

	redisClient := buildRedisClient(cfg)
	defer redisClient.Close()

	mctx, kmipManager, err := buildContext(cfg, redisClient)
	if err != nil {
		return err
	}
	if kmipManager != nil {
		defer kmipManager.Close(context.Background())
	}

	auditLogger, err := audit.NewLoggerFromConfig(cfg.Audit)
	if err != nil {
		return fmt.Errorf("msl-gateway: build audit logger: %w", err)
	}
	defer auditLogger.Close()

	m := metrics.NewMetricsWithConfig(metrics.Config{EnableSchemeLabel: true})
	metrics.SetVersion(Version)
	m.StartSystemMetricsCollector()

	hwInfo := crypto.GetHardwareAccelerationInfo(&cfg.Encryption.Hardware)
	if active, ok := hwInfo["hardware_acceleration_active"].(bool); ok {
		m.SetHardwareAccelerationStatus("aes-ni", active)
	}

	handler := api.NewHandler(mctx, logger, m, auditLogger)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         bindAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		logger.WithField("addr", bindAddr).Info("msl-gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
			return
		}
		serverDone <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("msl-gateway: graceful shutdown: %w", err)
		}
		return nil
	case err := <-serverDone:
		return err
	}
}
