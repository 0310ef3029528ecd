package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotkeeper/internal/api"
	"slotkeeper/internal/config"
	"slotkeeper/internal/database"
	"slotkeeper/internal/events"
	"slotkeeper/internal/logging"
	"slotkeeper/internal/metrics"
	"slotkeeper/internal/repository"
	"slotkeeper/internal/service"
	"slotkeeper/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return err
	}
	defer db.Close()

	if err := applySeed(ctx, db, seedPath(), logger); err != nil {
		return err
	}

	shared, redisClient := initSharedStore(cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus()
	if err := startNotifications(ctx, cfg, bus, logger); err != nil {
		return err
	}

	settingsSvc := service.NewSettingsService(db, shared, cfg.Booking.StoreTimeout, logging.Component(logger, "settings"))
	bookingSvc := service.NewBookingService(db, db, settingsSvc, shared, bus, service.Options{
		Retry: worker.RetryPolicy{
			MaxRetries:   cfg.Booking.MaxRetries,
			InitialDelay: cfg.Booking.RetryInitialDelay,
			MaxDelay:     cfg.Booking.RetryMaxDelay,
		},
		StoreTimeout: cfg.Booking.StoreTimeout,
		LockTTL:      cfg.Booking.LockTTL,
		LockWait:     cfg.Booking.LockWait,
	}, logging.Component(logger, "allocator"))
	resourceSvc := service.NewResourceService(db, cfg.Booking.StoreTimeout, logging.Component(logger, "resources"))

	checks := map[string]api.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return repository.Ping(ctx, redisClient) }
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings:  bookingSvc,
		Settings:  settingsSvc,
		Resources: resourceSvc,
	}, shared, checks, logging.Component(logger, "http"))

	backup := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
	go backup.Start(ctx)

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

// initSharedStore returns Redis with an in-memory fallback, or memory only
// when Redis is not configured.
func initSharedStore(cfg *config.Config, logger *zerolog.Logger) (repository.SharedStore, *redis.Client) {
	memory := repository.NewMemoryStore(cfg.Redis.SettingsTTL)
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis is not configured, using in-memory locks and cache")
		return memory, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		// FailoverStore переключится на память и будет пробовать Redis раз в минуту
		logger.Warn().Err(err).Msg("redis connection failed, starting on in-memory fallback")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primary := repository.NewRedisStore(client, cfg.Redis.SettingsTTL)
	return repository.NewFailoverStore(primary, memory, logging.Component(logger, "shared-store")), client
}

func startNotifications(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) error {
	if !cfg.Telegram.Enabled {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	bot.Debug = cfg.Telegram.Debug

	notifyLogger := logging.Component(logger, "notifications")
	notifier := service.NewTelegramService(service.NewBotWrapper(bot), cfg.Telegram.ManagerChatIDs, notifyLogger)
	w := worker.NewNotificationWorker(notifier, worker.RetryPolicy{}, cfg.Telegram.QueueSize, notifyLogger)
	w.Subscribe(bus)
	go w.Start(ctx)

	notifyLogger.Info().Str("bot", bot.Self.UserName).Int("managers", len(cfg.Telegram.ManagerChatIDs)).Msg("telegram notifications enabled")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if !cfg.API.HTTP.Enabled {
			logger.Warn().Msg("HTTP API is disabled in config")
			return
		}
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
