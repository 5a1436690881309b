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

	"eventdraw/api/routes"
	"eventdraw/internal/lottery"
	"eventdraw/internal/notifications"
	"eventdraw/internal/shared/config"
	"eventdraw/internal/shared/database"
	"eventdraw/pkg/logger"
	"eventdraw/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	envErr := godotenv.Load()

	// Rebuild the logger now that LOG_LEVEL may have come from .env
	appLogger := logger.New()
	logger.SetDefault(appLogger)
	if envErr != nil {
		appLogger.Info("No .env file found, using system environment variables")
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		appLogger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(rootCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsManager := metrics.NewManager(metrics.WithPrometheusRegistry(registry))

	dispatcher, shutdownNotifications, err := setupNotifications(rootCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("failed to start notification pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer shutdownNotifications()

	router := setupRouter(rootCtx, cfg, db, appLogger, metricsManager, dispatcher)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("api_base", cfg.GetAPIBasePath()),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.String("store", cfg.StoreDriver),
			slog.Bool("redis", db.Redis != nil),
			slog.Bool("kafka_notifications", cfg.Notifications.Enabled),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-rootCtx.Done()
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

// setupNotifications returns the dispatcher the lottery engine publishes to. With Kafka
// enabled the engine publishes to the topic and a consumer pool delivers; otherwise
// messages are written straight to the log.
func setupNotifications(ctx context.Context, cfg *config.Config, log *logger.Logger) (lottery.NotificationDispatcher, func(), error) {
	if !cfg.Notifications.Enabled {
		log.Info("Kafka notifications disabled, logging outcome messages instead")
		return notifications.NewLogDispatcher(log), func() {}, nil
	}

	producerCfg := notifications.DefaultKafkaProducerConfig()
	producerCfg.Brokers = cfg.Notifications.Brokers
	producerCfg.NotificationTopic = cfg.Notifications.Topic
	producer, err := notifications.NewKafkaNotificationProducer(producerCfg, log)
	if err != nil {
		return nil, nil, err
	}

	consumerCfg := notifications.DefaultConsumerConfig()
	consumerCfg.Brokers = cfg.Notifications.Brokers
	consumerCfg.Topics = []string{cfg.Notifications.Topic}
	consumerCfg.GroupID = cfg.Notifications.ConsumerGroupID
	consumerCfg.MaxRetries = cfg.Notifications.MaxRetries
	consumerCfg.RetryBackoffDuration = cfg.Notifications.RetryBackoff
	consumer, err := notifications.NewKafkaNotificationConsumer(consumerCfg, notifications.NewLogSender(log), log)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}

	consumerCtx, cancel := context.WithCancel(ctx)
	consumer.Start(consumerCtx, cfg.Notifications.NumWorkers)

	shutdown := func() {
		log.Info("Stopping notification pipeline...")
		cancel()
		if err := consumer.Stop(); err != nil {
			log.Error("Error stopping notification consumer", slog.Any("error", err))
		}
		if err := producer.Close(); err != nil {
			log.Error("Error closing notification producer", slog.Any("error", err))
		}
	}
	return notifications.NewKafkaDispatcher(producer), shutdown, nil
}

func setupRouter(ctx context.Context, cfg *config.Config, db *database.DB, log *logger.Logger, m *metrics.Manager, dispatcher lottery.NotificationDispatcher) *gin.Engine {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error("invalid TRUSTED_PROXIES, trusting none", slog.Any("error", err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(log.GinMiddleware(), m.GinMiddleware(), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: !containsWildcard(cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))

	routes.NewRouter(ctx, cfg, db, log, m, dispatcher).SetupRoutes(engine)
	return engine
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
