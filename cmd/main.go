package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cronos-live/attendance-system/config"
	"github.com/cronos-live/attendance-system/db"
	"github.com/cronos-live/attendance-system/handlers"
	"github.com/cronos-live/attendance-system/middleware"
	api "github.com/cronos-live/attendance-system/routes"
	"github.com/cronos-live/attendance-system/services"
	"github.com/cronos-live/attendance-system/storage"
	"github.com/cronos-live/attendance-system/store"
	"github.com/cronos-live/attendance-system/stream"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	if err := db.EnsureSchema(context.Background(), dbConn); err != nil {
		logger.Error("failed to ensure schema", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database connection established")

	// Redis — хранилище верификационных челленджей
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("redis connection established")

	// Каталог событий — статическая конфигурация, только чтение
	catalog, err := services.LoadEventCatalog(cfg.EventsFile)
	if err != nil {
		logger.Error("failed to load event catalog", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("event catalog loaded", slog.Int("events", len(catalog.List())))

	// Загрузчик постеров (Cloudflare R2)
	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}

	// Хранилище документов: сырое для провайдера идентичности,
	// охраняемое для всего, что пишет от имени пользователя
	documentStore := store.NewPostgresStore(dbConn, logger)
	guardedStore := store.NewGuardedStore(documentStore)

	// Инициализация сервисов
	smsGateway, err := services.NewTwilioGateway(services.TwilioGatewayConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize SMS gateway", slog.Any("error", err))
		os.Exit(1)
	}
	challengeStore := services.NewRedisChallengeStore(redisClient)
	identityService := services.NewIdentityService(documentStore, challengeStore, smsGateway, catalog, cfg.JWTSecretKey, logger)
	teamService := services.NewTeamService(guardedStore)
	aggregatorService := services.NewAggregatorService(documentStore, logger)
	reservationService := services.NewReservationService(guardedStore, catalog, teamService, identityService, smsGateway, logger)
	pickService := services.NewPickService(guardedStore, catalog)
	profileService := services.NewProfileService(guardedStore, catalog, teamService)
	logger.Info("services initialized")

	// WebSocket Hub — живые счётчики по комнатам событий
	hub := stream.NewHub(logger)

	// Инициализация обработчиков HTTP
	auth := middleware.NewAuth(identityService)
	authHandler := handlers.NewAuthHandler(identityService)
	eventHandler := handlers.NewEventHandler(catalog, aggregatorService, teamService, documentStore)
	reservationHandler := handlers.NewReservationHandler(reservationService)
	webSocketHandler := handlers.NewWebSocketHandler(hub, catalog, aggregatorService, cfg.AllowedOrigin, logger)
	profileHandler := handlers.NewProfileHandler(profileService)
	pickHandler := handlers.NewPickHandler(pickService)
	adminHandler := handlers.NewAdminHandler(uploader, catalog, documentStore, cfg.AdminSubjects)

	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.AllowedOrigin, auth, authHandler, eventHandler, reservationHandler,
		webSocketHandler, profileHandler, pickHandler, adminHandler)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return hub.Run(groupCtx)
	})
	group.Go(func() error {
		// Фиды счётчиков живут столько же, сколько процесс
		return aggregatorService.RunEventFeeds(groupCtx, catalog, hub)
	})
	group.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case <-groupCtx.Done():
		logger.Error("background worker failed", slog.Any("error", groupCtx.Err()))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("failed to force close server", slog.Any("error", closeErr))
		}
	}

	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shutdown finished with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}
