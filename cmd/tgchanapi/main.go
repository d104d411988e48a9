// Package main contains the entrypoint for the Telegram channel API
// serving process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/edgard/tgchanapi/internal/api"
	"github.com/edgard/tgchanapi/internal/app"
	"github.com/edgard/tgchanapi/internal/config"
	"github.com/edgard/tgchanapi/internal/logger"
	"github.com/edgard/tgchanapi/internal/metrics"
	"github.com/edgard/tgchanapi/internal/peerstore"
	"github.com/edgard/tgchanapi/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config,
// logger, peer cache, telegram session, HTTP server, scheduler),
// handles graceful shutdown, and returns an exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	// Credentials conventionally live in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format == "json")
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	peers, err := peerstore.New(cfg.Database.Path, log)
	if err != nil {
		log.Error("Failed to open peer cache", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer func() {
		if err := peers.Close(); err != nil {
			log.Error("Error closing peer cache", "error", err)
		}
	}()

	session := telegram.NewSession(log, cfg, peers)

	startCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	err = session.Start(startCtx)
	cancel()
	if err != nil {
		// Unauthorized or unreachable: the process cannot serve traffic.
		log.Error("Failed to start telegram session", "error", err)
		return 1
	}

	m := metrics.New()
	server := api.NewServer(log, cfg.Server, session, m)

	var scheduler *app.Scheduler
	if cfg.Refresh.Enabled {
		scheduler, err = app.NewScheduler(log, cfg.Refresh.Interval, session)
		if err != nil {
			log.Error("Failed to create scheduler", "error", err)
			return 1
		}
	}

	application := app.New(log, cfg, session, server, scheduler)

	log.Info("Starting application...", "addr", cfg.Server.Addr)
	if err := application.Run(ctx); err != nil {
		log.Error("Application stopped due to error", "error", err)
		return 1
	}

	log.Info("Application stopped gracefully.")
	return 0
}
