package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"campaign_scheduler/internal/config"
	"campaign_scheduler/internal/platform/x"
	"campaign_scheduler/internal/publisher"
	"campaign_scheduler/internal/ratelimit"
	"campaign_scheduler/internal/scheduler"
	"campaign_scheduler/internal/service"
	"campaign_scheduler/internal/storage/postgres"
	"campaign_scheduler/internal/token"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	draftStore := postgres.NewDraftStore(db)
	scheduleStore := postgres.NewScheduleStore(db)
	campaignStore := postgres.NewCampaignStore(db)
	accountStore := postgres.NewAccountStore(db)
	actionLogStore := postgres.NewActionLogStore(db)

	platform := x.New(x.Config{
		BaseURL:      cfg.Platform.BaseURL,
		TokenURL:     cfg.Platform.TokenURL,
		ClientID:     cfg.Platform.ClientID,
		ClientSecret: cfg.Platform.ClientSecret,
		Timeout:      cfg.Platform.Timeout,
		Mock:         cfg.Platform.Mock,
	}, logger)

	tokens := token.NewManager(accountStore, platform, cfg.Token.RefreshMargin, logger)
	limiter := ratelimit.NewLimiter(draftStore)
	executor := service.NewExecutor(platform, cfg.Executor, logger)

	dispatcher := service.NewDispatcher(
		draftStore,
		scheduleStore,
		campaignStore,
		accountStore,
		executor,
		tokens,
		limiter,
		actionLogStore,
		rabbitMQ,
		cfg.Dispatcher,
		logger,
	)

	sched := scheduler.NewScheduler(dispatcher, cfg.Dispatcher.Interval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting post dispatcher",
		"interval", cfg.Dispatcher.Interval,
		"batch_size", cfg.Dispatcher.BatchSize,
		"mock_platform", cfg.Platform.Mock,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
