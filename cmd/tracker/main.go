package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leozw/domain-tracker/internal/api"
	"github.com/leozw/domain-tracker/internal/bot"
	"github.com/leozw/domain-tracker/internal/checker"
	"github.com/leozw/domain-tracker/internal/config"
	"github.com/leozw/domain-tracker/internal/gate"
	"github.com/leozw/domain-tracker/internal/metrics"
	"github.com/leozw/domain-tracker/internal/notify"
	"github.com/leozw/domain-tracker/internal/scheduler"
	"github.com/leozw/domain-tracker/internal/state"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	store := state.Open(cfg.State.FilePath, logger)

	var sink notify.Sink
	var telegramSink *notify.TelegramSink
	if cfg.Telegram.BotToken != "" {
		telegramSink = notify.NewTelegramSink(cfg.Telegram, logger)
		sink = telegramSink
	} else {
		logger.Warn("no telegram bot token configured, notifications go to the log only")
		sink = &notify.LogSink{Logger: logger}
	}

	g := gate.New(cfg.Monitor.Concurrency, cfg.Monitor.MinCallSpacing, logger)
	chk := checker.New(cfg.Checker, g, logger)
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	sched := scheduler.New(store, chk, g, sink, collector, cfg.Monitor, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if telegramSink != nil {
		controlBot := bot.New(cfg.Telegram, store, telegramSink, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			controlBot.Run(ctx)
		}()
	}

	server := api.NewServer(store, cfg.Server.Mode, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	logger.Info("domain tracker started",
		zap.String("port", cfg.Server.Port),
		zap.String("state_file", cfg.State.FilePath),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	wg.Wait()
	logger.Info("Tracker exited")
}
