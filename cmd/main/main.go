package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resilient-feed/src/config"
	"resilient-feed/src/logger"
	"resilient-feed/src/shield"
)

func main() {
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.NewLogger(cfg, cfg.Name)

	app, err := shield.New(cfg, appLogger)
	if err != nil {
		appLogger.Critical("failed to build services: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		appLogger.Critical("failed to start: %v", err)
		os.Exit(1)
	}

	appLogger.Info("%s running. status api: %t (%s:%d), gRPC: %t (%s:%d)", cfg.Name,
		cfg.StatusAPI.Enabled, cfg.StatusAPI.Host, cfg.StatusAPI.Port,
		cfg.GRPC.Enabled, cfg.GRPC.Host, cfg.GRPC.Port)
	appLogger.Info("Press Ctrl+C to stop.")

	<-ctx.Done()
	appLogger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()

	if err := app.Stop(shutdownCtx); err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}
}
