package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/directory"
	"messaging-service/internal/grpcserver"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logger"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/service"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
		shutdownTracing = func(context.Context) error { return nil }
	}

	database, err := db.Connect(cfg.DatabaseDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid redis url")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, directory cache reads will fall through")
		}
		defer redisClient.Close()
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	reportPublisher(log, publisher)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, log)

	validate := validator.New()
	tokens := auth.NewJWTValidator(cfg.JWTSecret, cfg.ServiceName)

	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	dir := directory.NewCachedDirectory(directory.NewSQLDirectory(database), redisClient, "", cfg.DirectoryTTL, log)

	hub := ws.NewHub(log)

	notifier := service.NewNotifier(notificationRepo, dir, hub, publisher, audit, validate, log)
	messages := service.NewMessageService(messageRepo, dir, notifier, validate, cfg.MaxMessageLength, log)

	messageHandler := handlers.NewMessageHandler(messages, log)
	notificationHandler := handlers.NewNotificationHandler(notifier, log)
	directoryHandler := handlers.NewDirectoryHandler(dir, log)
	userWS := ws.NewUserWebSocketHandler(hub, tokens, cfg.WSSendBuffer, cfg.WSPingInterval, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestLogger(log))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.POST("/messages", authMiddleware, messageHandler.PostMessage)
	router.GET("/messages", authMiddleware, messageHandler.GetMessages)
	router.PUT("/messages/read", authMiddleware, messageHandler.MarkRead)
	router.GET("/conversations", authMiddleware, messageHandler.ListConversations)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.PATCH("/notifications/:id/alerts", authMiddleware, notificationHandler.ToggleAlerts)
	router.PUT("/notifications/read-all", authMiddleware, notificationHandler.MarkAllRead)
	router.PUT("/notifications/:id/read", authMiddleware, notificationHandler.MarkRead)
	router.DELETE("/notifications/:id", authMiddleware, notificationHandler.Delete)

	internal := router.Group("/internal", middleware.InternalAuth(cfg.InternalToken))
	internal.GET("/notifications/:id", notificationHandler.InternalGet)
	internal.POST("/notifications", notificationHandler.InternalCreate)
	internal.DELETE("/directory/:kind/:id", directoryHandler.Invalidate)

	router.GET("/ws", userWS.Handle)

	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := grpcserver.New(cfg.ServiceName, log)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddress())
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPCAddress()).Msg("failed to listen for grpc")
	}
	go func() {
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("grpc server error")
		}
	}()

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	grpcServer.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown failed")
	}
}

func reportPublisher(log zerolog.Logger, publisher rabbitmq.Publisher) {
	mode := rabbitmq.PublisherMode(publisher)
	if reason := rabbitmq.PublisherNoopReason(publisher); reason != "" {
		log.Warn().Str("mode", mode).Str("noop_reason", reason).Msg("event publisher disabled")
		return
	}
	log.Info().Str("mode", mode).Msg("event publisher ready")
}
