package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/shenikar/sos_broadcasting_system/internal/broadcast"
	"github.com/shenikar/sos_broadcasting_system/internal/config"
	v1 "github.com/shenikar/sos_broadcasting_system/internal/handler/http/v1"
	"github.com/shenikar/sos_broadcasting_system/internal/ratelimit"
	"github.com/shenikar/sos_broadcasting_system/internal/repository"
	"github.com/shenikar/sos_broadcasting_system/internal/service"
	"github.com/shenikar/sos_broadcasting_system/internal/telemetry"
	"github.com/shenikar/sos_broadcasting_system/internal/webhook"
	"github.com/shenikar/sos_broadcasting_system/pkg/logger"
	"github.com/shenikar/sos_broadcasting_system/pkg/postgres"
	redisclient "github.com/shenikar/sos_broadcasting_system/pkg/redis"

	_ "github.com/shenikar/sos_broadcasting_system/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	rateLimitSweepInterval = time.Minute
	shutdownTimeout        = 10 * time.Second
)

// @title SOS Broadcasting System API
// @version 1.0
// @description Campus emergency alarm and real-time broadcast API.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// newRateLimitStore выбирает хранилище счетчиков по RATE_LIMIT_BACKEND
func newRateLimitStore(
	ctx context.Context,
	cfg *config.Config,
	dbpool *pgxpool.Pool,
	redisClient *goredis.Client,
	clock clockwork.Clock,
	log *logrus.Logger,
) ratelimit.Store {
	switch cfg.RateLimitBackend {
	case config.BackendRedis:
		return ratelimit.NewRedisStore(redisClient, clock)
	case config.BackendPostgres:
		repo := repository.NewRateLimitRepository(dbpool, clock)
		go func() {
			ticker := clock.NewTicker(rateLimitSweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.Chan():
					if n, err := repo.DeleteExpired(ctx); err != nil {
						log.WithError(err).Warn("Failed to delete expired rate limits")
					} else if n > 0 {
						log.WithField("deleted", n).Debug("Expired rate limits deleted")
					}
				}
			}
		}()
		return repo
	default:
		store := ratelimit.NewMemoryStore(clock)
		store.StartJanitor(ctx, rateLimitSweepInterval)
		return store
	}
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	clock := clockwork.NewRealClock()

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск миграций
	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.Options{MaxConns: int32(cfg.DatabaseMaxConns)})
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	// Хаб каналов. При нескольких экземплярах сообщения идут через Redis pub/sub.
	hub := broadcast.NewHub(log,
		broadcast.WithQueueSize(cfg.BroadcastQueueSize),
		broadcast.WithSendTimeout(cfg.BroadcastSendTimeout),
	)
	var publisher broadcast.Publisher = hub
	if cfg.BroadcastBackend == config.BackendRedis {
		relay := broadcast.NewRelay(redisClient, hub, log)
		if err := relay.Start(ctx); err != nil {
			log.Fatalf("Failed to start broadcast relay: %v", err)
		}
		publisher = relay
	}

	// Лимитеры
	store := newRateLimitStore(ctx, cfg, dbpool, redisClient, clock, log)
	limiters := v1.Limiters{
		Auth: ratelimit.NewLimiter(store, cfg.AuthRateLimit, cfg.AuthRateWindow, clock, "auth:"),
		SOS:  ratelimit.NewLimiter(store, cfg.SOSRateLimit, cfg.SOSRateWindow, clock, "sos:"),
	}

	// Инициализация издателя и воркера вебхуков
	var webhookPublisher webhook.WebhookPublisher
	webhookWorker := webhook.NewWebhookWorker(redisClient, log, cfg)
	if cfg.WebhookURL != "" {
		webhookPublisher = webhook.NewRedisWebhookPublisher(redisClient)
		webhookWorker.Start(ctx)
	}

	// Инициализация репозиториев и сервисов
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient)
	incidentService := service.NewIncidentService(incidentRepo, log)
	dispatchService := service.NewDispatchService(incidentRepo, publisher, webhookPublisher, clock, log, cfg)
	feedService := service.NewFeedService(publisher, clock, log)

	// Датчики столовой
	var consumer *telemetry.MQTTConsumer
	if cfg.MQTTBrokerURL != "" {
		consumer = telemetry.NewMQTTConsumer(cfg, feedService, log)
		if err := consumer.Start(); err != nil {
			log.WithError(err).Error("MQTT telemetry unavailable, continuing without it")
		}
	}
	simulator := telemetry.NewMessSimulator(feedService, cfg.MessSimulatorInterval, clock, log)
	simulator.Start(ctx)

	// Инициализация хэндлеров
	handler := v1.NewHandler(incidentService, dispatchService, feedService, hub, limiters, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	// WriteTimeout не задан: SSE-потоки долгоживущие, запись ограничивает хаб
	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Потоки SSE не завершаются сами, поэтому хаб закрывается до Shutdown
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Дожидаемся оповещений по уже принятым тревогам
	dispatchService.Wait()
	if consumer != nil {
		consumer.Stop()
	}
	cancel()
	simulator.Wait()
	webhookWorker.Wait()

	log.Info("Server gracefully stopped")
}
