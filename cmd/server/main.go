package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"gowork_messaging/internal/config"
	"gowork_messaging/internal/handler"
	"gowork_messaging/internal/middleware"
	"gowork_messaging/internal/notify"
	"gowork_messaging/internal/repository"
	"gowork_messaging/internal/service"
	"gowork_messaging/internal/ws"
	"gowork_messaging/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Invalid database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	hub := ws.NewHub(appLogger)

	// Every gateway is best-effort: Kafka for downstream consumers, the hub
	// for connected clients.
	gateways := []notify.Notifier{hub}
	if cfg.Kafka.Enabled {
		producer := notify.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		gateways = append(gateways, producer)
		appLogger.Info("Kafka notification gateway enabled", "topic", cfg.Kafka.Topic)
	}
	notifier := notify.NewFanout(appLogger, gateways...)

	services := service.NewServices(repos, notifier, cfg, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer, repos.User, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(
		services.RateLimit, cfg.RateLimit.SendLimit, cfg.RateLimit.WindowSeconds, appLogger,
	)

	handlers := handler.NewHandlers(services, repos, hub, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Check)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())
	{
		conversations := v1.Group("/conversations")
		{
			conversations.POST("", rateLimitMiddleware.Limit(), handlers.Conversation.Create)
			conversations.GET("", handlers.Conversation.List)
			conversations.GET("/:id", handlers.Conversation.Get)
			conversations.GET("/:id/messages", handlers.Message.List)
			conversations.POST("/:id/messages", rateLimitMiddleware.Limit(), handlers.Message.Send)
			conversations.POST("/:id/read", handlers.Message.MarkRead)
		}
	}

	// Push delivery for connected clients
	router.GET("/ws", authMiddleware.RequireAuth(), handlers.WebSocket.Connect)

	return router
}
