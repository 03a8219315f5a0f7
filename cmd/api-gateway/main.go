package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/aims-enrollment-api/api/swagger"
	"github.com/noah-isme/aims-enrollment-api/internal/handler"
	"github.com/noah-isme/aims-enrollment-api/internal/repository"
	"github.com/noah-isme/aims-enrollment-api/internal/service"
	"github.com/noah-isme/aims-enrollment-api/pkg/cache"
	"github.com/noah-isme/aims-enrollment-api/pkg/config"
	"github.com/noah-isme/aims-enrollment-api/pkg/database"
	"github.com/noah-isme/aims-enrollment-api/pkg/jobs"
	"github.com/noah-isme/aims-enrollment-api/pkg/logger"
	"github.com/noah-isme/aims-enrollment-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/aims-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/aims-enrollment-api/pkg/middleware/requestid"
)

// @title AIMS Enrollment API
// @version 1.0.0
// @description Course enrollment requests with instructor and advisor approval.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logr); err != nil {
			logr.Sugar().Fatalw("migrations failed", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	otpRepo := repository.NewOTPRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Courses.CacheTTL, logr, cfg.Courses.CacheTTL > 0)

	notificationSvc := service.NewNotificationService(mailer.New(cfg.Mail, logr), metricsSvc, logr)
	notificationQueue := jobs.NewQueue("notifications", notificationSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnGiveUp:   notificationSvc.GiveUp,
	})
	notificationSvc.AttachQueue(notificationQueue)
	// Stopped only after the HTTP server has drained.
	notificationQueue.Start(context.Background())

	authSvc := service.NewAuthService(userRepo, otpRepo, auditRepo, notificationSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		OTPTTL:            cfg.OTP.TTL,
		OTPLength:         cfg.OTP.Length,
		OTPRateLimit:      cfg.OTP.RateLimit,
		OTPRateWindow:     cfg.OTP.RateWindow,
		OTPMaxAttempts:    cfg.OTP.MaxAttempts,
	})
	userSvc := service.NewUserService(userRepo, auditRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, cacheSvc, auditRepo, validate, logr, service.CourseServiceConfig{
		CacheTTL:        cfg.Courses.CacheTTL,
		DefaultMaxSeats: cfg.Courses.DefaultMaxSeats,
	})
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, auditRepo, notificationSvc, metricsSvc, validate, logr,
		service.WithCatalogueCache(cacheSvc), service.WithAuditTrail(auditRepo))
	exportSvc := service.NewExportService(enrollmentSvc, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	registerRoutes(r, cfg, routeDeps{
		auth:        authSvc,
		redis:       redisClient,
		logger:      logr,
		metrics:     metricsSvc,
		authH:       handler.NewAuthHandler(authSvc, userSvc),
		userH:       handler.NewUserHandler(userSvc),
		courseH:     handler.NewCourseHandler(courseSvc),
		enrollmentH: handler.NewEnrollmentHandler(enrollmentSvc, exportSvc),
		metricsH:    handler.NewMetricsHandler(metricsSvc, db),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	notificationQueue.Stop()
}
