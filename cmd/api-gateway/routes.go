package main

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/aims-enrollment-api/internal/handler"
	"github.com/noah-isme/aims-enrollment-api/internal/middleware"
	"github.com/noah-isme/aims-enrollment-api/internal/models"
	"github.com/noah-isme/aims-enrollment-api/internal/service"
	"github.com/noah-isme/aims-enrollment-api/pkg/config"
)

type routeDeps struct {
	auth    *service.AuthService
	redis   *redis.Client
	logger  *zap.Logger
	metrics *service.MetricsService

	authH       *handler.AuthHandler
	userH       *handler.UserHandler
	courseH     *handler.CourseHandler
	enrollmentH *handler.EnrollmentHandler
	metricsH    *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, d routeDeps) {
	r.Use(middleware.Metrics(d.metrics))

	r.GET("/health", d.metricsH.Health)
	r.GET("/ready", d.metricsH.Ready)
	r.GET("/metrics", d.metricsH.Prometheus)

	api := r.Group(cfg.APIPrefix)
	limited := middleware.RateLimit(d.redis, cfg.RateLimit.Requests, cfg.RateLimit.Window, d.logger)
	authenticated := middleware.JWT(d.auth)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	auth := api.Group("/auth")
	auth.POST("/send-otp", limited, d.authH.SendOTP)
	auth.POST("/verify-otp", limited, d.authH.VerifyOTP)
	auth.GET("/check-user/:email", limited, d.authH.CheckUser)
	auth.GET("/me", authenticated, d.authH.Me)

	users := api.Group("/users", authenticated)
	users.GET("/role/:role", d.userH.ListByRole)
	users.GET("", adminOnly, d.userH.List)
	users.GET("/:id", middleware.RequireSelfOrRoles("id", models.RoleAdmin), d.userH.Get)
	users.POST("", adminOnly, d.userH.Create)
	users.PUT("/:id", adminOnly, d.userH.Update)
	users.DELETE("/:id", adminOnly, d.userH.Delete)

	courses := api.Group("/courses", authenticated)
	courses.GET("", d.courseH.List)
	courses.GET("/open", middleware.ResponseMeta(), d.courseH.ListOpen)
	courses.GET("/:id", d.courseH.Get)
	courses.POST("", adminOnly, d.courseH.Create)
	courses.PUT("/:id", adminOnly, d.courseH.Update)
	courses.PATCH("/:id/toggle-status", adminOnly, d.courseH.ToggleStatus)
	courses.DELETE("/:id", adminOnly, d.courseH.Delete)

	enrollments := api.Group("/enrollments", authenticated)
	enrollments.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), d.enrollmentH.Create)
	enrollments.GET("", adminOnly, d.enrollmentH.List)
	enrollments.GET("/export", adminOnly, d.enrollmentH.Export)
	enrollments.GET("/student/:id", middleware.RequireSelfOrRoles("id", models.RoleAdmin), d.enrollmentH.ListForStudent)
	enrollments.GET("/instructor/:id", middleware.RequireSelfOrRoles("id", models.RoleAdmin), d.enrollmentH.ListForInstructor)
	enrollments.GET("/advisor/:id", middleware.RequireSelfOrRoles("id", models.RoleAdmin), d.enrollmentH.ListForAdvisor)
	enrollments.GET("/:id", d.enrollmentH.Get)
	enrollments.GET("/:id/history", adminOnly, d.enrollmentH.History)
	enrollments.PATCH("/:id/instructor-action", middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), d.enrollmentH.InstructorAction)
	enrollments.PATCH("/:id/advisor-action", middleware.RequireRoles(models.RoleAdvisor, models.RoleAdmin), d.enrollmentH.AdvisorAction)

	api.GET("/metrics/summary", authenticated, adminOnly, d.metricsH.Snapshot)
}
