package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/skillforge/skillforge-api/api/swagger"
	"github.com/skillforge/skillforge-api/internal/gateway"
	"github.com/skillforge/skillforge-api/internal/handler"
	"github.com/skillforge/skillforge-api/internal/middleware"
	"github.com/skillforge/skillforge-api/internal/models"
	"github.com/skillforge/skillforge-api/internal/repository"
	"github.com/skillforge/skillforge-api/internal/service"
	"github.com/skillforge/skillforge-api/pkg/cache"
	"github.com/skillforge/skillforge-api/pkg/config"
	"github.com/skillforge/skillforge-api/pkg/database"
	"github.com/skillforge/skillforge-api/pkg/logger"
	"github.com/skillforge/skillforge-api/pkg/mailer"
	corsmiddleware "github.com/skillforge/skillforge-api/pkg/middleware/cors"
	reqidmiddleware "github.com/skillforge/skillforge-api/pkg/middleware/requestid"
	"github.com/skillforge/skillforge-api/pkg/pdfgen"
	"github.com/skillforge/skillforge-api/pkg/storage"
)

// @title SkillForge API
// @version 0.1.0
// @description Course marketplace: checkout, enrollment, progress, certification
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, true)
		defer cacheRepo.Close() //nolint:errcheck
	}

	artifactStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init certificate storage", "error", err)
	}

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	checkoutClient := gateway.NewCheckoutClient(cfg.Checkout, logr)

	notificationSvc := service.NewNotificationService(mailer.NewSendGrid(cfg.Notifications), cfg.Notifications, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	catalogSvc := service.NewCatalogService(courseRepo, lessonRepo, cacheSvc, cfg.Catalog.CacheTTL, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, transactionRepo, userRepo, notificationSvc, logr)
	paymentSvc := service.NewPaymentService(transactionRepo, courseRepo, userRepo, enrollmentRepo, enrollmentSvc, checkoutClient, notificationSvc, validate, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, courseRepo, userRepo, pdfgen.NewCertificateRenderer(), artifactStore, notificationSvc, cfg.Certificates, logr)
	progressSvc := service.NewProgressService(progressRepo, enrollmentRepo, lessonRepo, courseRepo, certificateSvc, logr)
	quizSvc := service.NewQuizService(quizRepo, lessonRepo, courseRepo, progressSvc, validate, logr)
	reviewSvc := service.NewReviewService(reviewRepo, enrollmentRepo, courseRepo, cacheSvc, validate, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()
	certificateSvc.Start(rootCtx)
	defer certificateSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc, reviewSvc)
	checkoutHandler := handler.NewCheckoutHandler(paymentSvc, metricsSvc)
	webhookHandler := handler.NewWebhookHandler(paymentSvc, metricsSvc, cfg.Checkout.WebhookSecret, logr)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, progressSvc)
	quizHandler := handler.NewQuizHandler(quizSvc, enrollmentSvc, metricsSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	api.GET("/courses", catalogHandler.List)
	api.GET("/courses/:id", catalogHandler.Get)
	api.GET("/courses/:id/reviews", catalogHandler.ListReviews)
	api.GET("/certificates/verify/:code", certificateHandler.Verify)
	api.POST("/webhooks/checkout", webhookHandler.HandleCheckout)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	instructor := authed.Group("/instructor")
	instructor.Use(middleware.RequireRoles(models.RoleInstructor))
	instructor.POST("/courses/:id/publish", catalogHandler.Publish)
	instructor.POST("/courses/:id/unpublish", catalogHandler.Unpublish)
	instructor.POST("/lessons/:id/quiz", quizHandler.Create)
	instructor.PUT("/lessons/:id/quiz", quizHandler.Update)

	authed.POST("/checkout", checkoutHandler.Create)
	authed.GET("/transactions", checkoutHandler.List)
	authed.POST("/transactions/:id/refund", checkoutHandler.Refund)

	authed.POST("/courses/:id/enroll", enrollmentHandler.Enroll)
	authed.GET("/enrollments", enrollmentHandler.List)
	authed.PUT("/enrollments/:id/lessons/:lessonID/position", enrollmentHandler.UpdatePosition)
	authed.POST("/enrollments/:id/lessons/:lessonID/complete", enrollmentHandler.CompleteLesson)
	authed.GET("/enrollments/:id/progress", enrollmentHandler.Progress)

	authed.GET("/lessons/:id/quiz", quizHandler.GetForStudent)
	authed.POST("/enrollments/:id/quizzes/:quizID/attempts", quizHandler.SubmitAttempt)
	authed.GET("/enrollments/:id/quizzes/:quizID/attempts", quizHandler.ListAttempts)

	authed.GET("/certificates", certificateHandler.List)

	authed.POST("/courses/:id/reviews", reviewHandler.Create)
	authed.PUT("/reviews/:id", reviewHandler.Update)
	authed.DELETE("/reviews/:id", reviewHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
