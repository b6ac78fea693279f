package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rewired-gh/runesync/internal/config"
	"github.com/rewired-gh/runesync/internal/dashboard"
	"github.com/rewired-gh/runesync/internal/logger"
	"github.com/rewired-gh/runesync/internal/models"
	"github.com/rewired-gh/runesync/internal/runewiki"
	"github.com/rewired-gh/runesync/internal/scheduler"
	"github.com/rewired-gh/runesync/internal/server"
	"github.com/rewired-gh/runesync/internal/storage"
	"github.com/rewired-gh/runesync/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()
	logger.Info("Configuration loaded from %s", *configPath)

	item := models.TrackedItem{Name: strings.TrimSpace(cfg.Tracker.Item), Unit: cfg.Tracker.Unit}

	// samples are bucketed by the refresh interval
	store, err := storage.New(cfg.Storage.DBPath, cfg.Scheduler.Interval)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	wikiClient := runewiki.NewClient(
		cfg.RuneWiki.BaseURL,
		cfg.RuneWiki.UserAgent,
		cfg.RuneWiki.Timeout,
		cfg.RuneWiki.ItemsFile,
	)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	var reporter scheduler.Reporter
	if telegramClient != nil {
		reporter = telegramClient
	}
	sched := scheduler.New(wikiClient, store, reporter, item, scheduler.Config{
		Interval:         cfg.Scheduler.Interval,
		Jitter:           cfg.Scheduler.Jitter,
		Retention:        cfg.Storage.Retention,
		Backfill:         cfg.Scheduler.Backfill,
		BackfillTimestep: cfg.Scheduler.BackfillTimestep,
	})
	snapshots := dashboard.NewService(store, sched, cfg.Storage.ChartWindow)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, snapshots, item)
	}

	var httpServer *server.Server
	if cfg.Server.Enabled {
		httpServer = server.New(ctx, cfg.Server.Addr, cfg.Server.Mode, snapshots, sched, item)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil {
				logger.Error("HTTP server failed: %v", err)
				cancel()
			}
		}()
	}

	if err := sched.Run(ctx); err != nil {
		logger.Error("Refresh scheduler failed: %v", err)
		cancel()
	}

	// an unknown item stops refreshing but keeps serving until shutdown
	<-ctx.Done()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown: %v", err)
		}
	}
	logger.Info("Service stopped")
}
