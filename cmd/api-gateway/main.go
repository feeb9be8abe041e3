package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/clatprep/clat-prep-api/api/swagger"
	"github.com/clatprep/clat-prep-api/internal/handler"
	"github.com/clatprep/clat-prep-api/internal/llm"
	"github.com/clatprep/clat-prep-api/internal/middleware"
	"github.com/clatprep/clat-prep-api/internal/models"
	"github.com/clatprep/clat-prep-api/internal/realtime"
	"github.com/clatprep/clat-prep-api/internal/repository"
	"github.com/clatprep/clat-prep-api/internal/service"
	"github.com/clatprep/clat-prep-api/pkg/cache"
	"github.com/clatprep/clat-prep-api/pkg/config"
	"github.com/clatprep/clat-prep-api/pkg/database"
	"github.com/clatprep/clat-prep-api/pkg/logger"
	corsmiddleware "github.com/clatprep/clat-prep-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clatprep/clat-prep-api/pkg/middleware/requestid"
)

// @title CLAT Prep API
// @version 1.0.0
// @description Doubt resolution backend for the CLAT preparation platform
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, running without cache and relay", "error", err)
			redisClient = nil
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	// Repositories.
	doubtRepo := repository.NewDoubtRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	ratingRepo := repository.NewRatingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	specializationRepo := repository.NewSpecializationRepository(db)
	relationshipRepo := repository.NewRelationshipRepository(db)
	userRepo := repository.NewUserRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close()
	}

	// Realtime hub, with cross-instance relay when redis is up.
	hub := realtime.NewHub(redisClient, logr)
	go hub.Run(ctx)

	// Services.
	authService := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
	})
	activityService := service.NewActivityService(activityRepo, logr)
	userService := service.NewUserService(userRepo, logr)
	var notificationService *service.NotificationService
	if cacheRepo != nil {
		notificationService = service.NewNotificationService(notificationRepo, cacheRepo, hub, metrics, logr, cfg.Notifications.UnreadCacheTTL)
	} else {
		notificationService = service.NewNotificationService(notificationRepo, nil, hub, metrics, logr, cfg.Notifications.UnreadCacheTTL)
	}

	assignmentService := service.NewAssignmentService(doubtRepo, specializationRepo, activityService, notificationService, metrics, logr, cfg.Assignment)

	var generator llm.Client
	if cfg.AI.Enabled {
		generator, err = llm.NewClient(cfg.AI, logr)
		if err != nil {
			logr.Sugar().Warnw("ai responder disabled", "error", err)
			generator = nil
		}
	}
	aiResponder := service.NewAIResponderService(generator, responseRepo, doubtRepo, activityService, logr,
		cfg.AI.RequestTimeout, cfg.AI.ConfidenceScore)

	sideEffects := service.NewSideEffects(cfg.Jobs, logr)
	sideEffects.Start(ctx)
	defer sideEffects.Stop()

	policy := service.NewAccessPolicy(relationshipRepo)
	doubtService := service.NewDoubtService(doubtRepo, responseRepo, ratingRepo, policy,
		assignmentService, aiResponder, activityService, notificationService, sideEffects, validate, logr)

	notificationService.StartPurgeLoop(ctx, cfg.Notifications.PurgeInterval, cfg.Notifications.RetentionDays)

	// Handlers.
	doubtHandler := handler.NewDoubtHandler(doubtService)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	userHandler := handler.NewUserHandler(userService)
	wsHandler := handler.NewWSHandler(hub, metrics, logr, nil)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authService))
	{
		doubts := api.Group("/doubts")
		{
			doubts.POST("", middleware.RequireRoles(models.RoleStudent), doubtHandler.Create)
			doubts.GET("", doubtHandler.List)
			doubts.GET("/:id", doubtHandler.Get)
			doubts.PATCH("/:id", doubtHandler.Update)
			doubts.POST("/:id/responses", doubtHandler.AddResponse)
			doubts.POST("/:id/rating", middleware.RequireRoles(models.RoleStudent), doubtHandler.Rate)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/mark-read", notificationHandler.MarkRead)
		}

		api.GET("/me", userHandler.Me)
		api.GET("/ws", wsHandler.Connect)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
