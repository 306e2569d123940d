package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vendora/internal/config"
	"vendora/internal/database"
	"vendora/internal/domain"
	"vendora/internal/events"
	"vendora/internal/logging"
	"vendora/internal/metrics"
	"vendora/internal/notify"
	"vendora/internal/sweeper"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	runOnce := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	if err := run(*runOnce); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(once bool) error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := baseLogger.With().Str("component", "sweeper-main").Logger()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	metrics.Register()

	notifier := initNotifier(cfg, &logger)
	s := sweeper.New(db, notifier, events.NewEventBus(), &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// -once is for external schedulers that own the cadence themselves.
	if once {
		count, err := s.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("promoted", count).Msg("single sweep done")
		return nil
	}

	if cfg.Sweeper.RunOnStart {
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("initial sweep failed")
		}
	}

	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Sweeper.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", cfg.Sweeper.Schedule, err)
	}

	scheduler.Start()
	logger.Info().Str("schedule", cfg.Sweeper.Schedule).Msg("sweeper started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	logger.Info().Msg("sweeper stopped")
	return nil
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notifications.TelegramToken == "" || cfg.Notifications.TelegramChatID == 0 {
		return notify.NewLogNotifier(logger)
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Notifications, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, falling back to log notifier")
		return notify.NewLogNotifier(logger)
	}
	return notifier
}
