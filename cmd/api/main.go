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
	"path/filepath"
	"syscall"
	"time"

	"rentals/internal/api"
	"rentals/internal/config"
	"rentals/internal/database"
	"rentals/internal/domain"
	"rentals/internal/events"
	"rentals/internal/google"
	"rentals/internal/logging"
	"rentals/internal/metrics"
	"rentals/internal/notify"
	"rentals/internal/repository"
	"rentals/internal/search"
	"rentals/internal/service"
	"rentals/internal/storage"
	"rentals/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	sessions := initSessionStore(redisClient, &logger)

	eventBus := events.NewEventBus(logging.Component(&logger, "events"))
	subscribeAuditLog(eventBus, &logger)

	sheetsWorker := initSheetsWorker(ctx, cfg, db, redisClient, &logger)

	blobs, err := storage.NewFileStore(cfg.Storage.BasePath, cfg.Storage.PublicBaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("init blob storage")
		return err
	}

	var botAPI *tgbotapi.BotAPI
	if cfg.Telegram.Enabled {
		botAPI, err = notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
		if err != nil {
			logger.Error().Err(err).Msg("create telegram bot api")
			return err
		}
		logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram notifications enabled")
	}

	svcs := buildServices(cfg, db, sessions, redisClient, blobs, eventBus, sheetsWorker, botAPI, &logger)

	if botAPI != nil {
		linker := notify.NewChatLinker(botAPI, botAPI, svcs.Sessions, svcs.Users, logging.Component(&logger, "telegram-linker"))
		go linker.Run(ctx)
	}

	if path := os.Getenv("SEED_PATH"); path != "" {
		if err := seedFromFile(ctx, path, db, svcs.Properties, &logger); err != nil {
			logger.Error().Err(err).Str("seed_path", path).Msg("seed failed")
			return err
		}
	}

	checker := api.NewHealthChecker(logging.Component(&logger, "health"))
	checker.Register("database", db.PingContext)
	if redisClient != nil {
		checker.RegisterOptional("redis", func(ctx context.Context) error { return repository.Ping(ctx, redisClient) })
	}
	svcs.Health = checker

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, nil, checker, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(&cfg.API, svcs, logging.Component(&logger, "http"))

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	dirs := []string{cfg.Storage.BasePath, cfg.Exports.Path}
	if cfg.Database.Path != ":memory:" {
		dirs = append(dirs, filepath.Dir(cfg.Database.Path))
	}
	if cfg.Backup.Enabled && cfg.Backup.StoragePath != "" {
		dirs = append(dirs, cfg.Backup.StoragePath)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("create directory")
			return err
		}
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// the failover store keeps sessions in memory until redis comes back
		logger.Warn().Err(err).Msg("redis unavailable at startup")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return redisClient
}

func initSessionStore(redisClient *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSessionRepository(repository.NewRedisSessionRepository(redisClient), memory, logger)
}

func initSheetsWorker(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) domain.SyncWorker {
	if !cfg.Google.Enabled {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
		cfg.Google.SheetName,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		evt := logger.Warn().Err(err)
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.GoogleCredentialsFile); emailErr == nil {
			evt = evt.Str("share_with", email)
		}
		evt.Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}
	go sheetsService.StartCacheRefresh(ctx, 10*time.Minute)

	retryPolicy := worker.NewRetryPolicy(cfg.Google.Retry)
	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, logging.Component(logger, "sheets-worker"))
	if n, err := sheetsWorker.Requeue(ctx); err != nil {
		logger.Warn().Err(err).Msg("requeue failed sync tasks")
	} else if n > 0 {
		logger.Info().Int64("count", n).Msg("requeued failed sync tasks")
	}
	go sheetsWorker.Start(ctx)

	logger.Info().Msg("google sheets sync enabled")
	return sheetsWorker
}

func buildServices(
	cfg *config.Config,
	db *database.DB,
	sessions domain.SessionRepository,
	redisClient *redis.Client,
	blobs *storage.FileStore,
	eventBus *events.EventBus,
	sheetsWorker domain.SyncWorker,
	botAPI *tgbotapi.BotAPI,
	logger *zerolog.Logger,
) api.Services {
	var notifier domain.Notifier
	if botAPI != nil {
		notifier = notify.NewTelegramNotifier(botAPI, db, logging.Component(logger, "telegram"))
	}

	alerts := service.NewAlertService(db, notifier, logging.Component(logger, "alerts"))
	conversations := service.NewConversationService(db, alerts, eventBus, logging.Component(logger, "conversations"))
	properties := service.NewPropertyService(db, blobs, eventBus, logging.Component(logger, "properties"))
	bookings := service.NewBookingService(db, sessions, alerts, conversations, eventBus, sheetsWorker,
		cfg.Booking, logging.Component(logger, "bookings"))

	svcs := api.Services{
		Users:         service.NewUserService(db, logging.Component(logger, "users")),
		Sessions:      service.NewSessionService(sessions, db, cfg.Session.TTL, logging.Component(logger, "sessions")),
		Properties:    properties,
		Bookings:      bookings,
		Alerts:        alerts,
		Conversations: conversations,
		Analytics:     service.NewAnalyticsService(db, cfg.Exports.Path, logging.Component(logger, "analytics")),
		Files:         http.FileServer(http.Dir(blobs.Root())),
	}

	if cfg.Search.Enabled {
		client := search.NewClient(cfg.Search.URL, cfg.Search.APIKey, cfg.Search.Timeout)
		if redisClient != nil {
			client.UseRedisCache(redisClient, cfg.Search.CacheTTL)
		}
		svcs.Search = client
	}
	return svcs
}

// subscribeAuditLog writes one line per domain event.
func subscribeAuditLog(bus *events.EventBus, logger *zerolog.Logger) {
	audit := logging.Component(logger, "audit")
	handler := func(ev *events.Event) error {
		audit.Info().Str("event", ev.Type).RawJSON("payload", ev.Payload).Msg("domain event")
		return nil
	}
	for _, eventType := range []string{
		events.EventBookingCreated,
		events.EventBookingSubmitted,
		events.EventTenantInvited,
		events.EventInvitationAnswered,
		events.EventViewingApproved,
		events.EventBookingConfirmed,
		events.EventBookingDeclined,
		events.EventBookingCompleted,
		events.EventTenantEvicted,
		events.EventReviewSubmitted,
		events.EventPropertyStatusChanged,
		events.EventConversationMessageSent,
	} {
		bus.Subscribe(eventType, handler)
	}
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

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(ctx); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC enabled")
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

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
