package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kumarabd/gokit/logger"

	"github.com/kumarabd/console-brief/internal/config"
	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/server"
	"github.com/kumarabd/console-brief/pkg/service"
)

// main is the entry point of the application
func main() {
	// A missing .env is fine outside local development
	_ = godotenv.Load()

	log, err := logger.New(config.ApplicationName, logger.Options{
		Format: logger.SyslogLogFormat,
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	configHandler, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("")
		os.Exit(1)
	}

	metricsHandler, err := metrics.New(config.ApplicationName)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceHandler, err := service.New(ctx, log, metricsHandler, configHandler.Service())
	if err != nil {
		log.Error().Err(err).Msg("service initialization failed")
		os.Exit(1)
	}
	if err := serviceHandler.Start(); err != nil {
		log.Error().Err(err).Msg("service start failed")
		os.Exit(1)
	}
	log.Info().Str("version", config.ApplicationVersion).Msg("service initialized")

	srv, err := server.New(log, metricsHandler, configHandler.Server, serviceHandler)
	if err != nil {
		log.Error().Err(err).Msg("server initialization failed")
		os.Exit(1)
	}
	log.Info().Msg("server initialized")

	ch := make(chan struct{}, 2)
	srv.Start(ch)
	select {
	case <-ch:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")

	if err := serviceHandler.Stop(); err != nil {
		log.Error().Err(err).Msg("service stop failed")
	}
	log.Info().Msg("service stopped")
}
