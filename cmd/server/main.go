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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/rollcall-dev/rollcall-api/api/swagger"
	"github.com/rollcall-dev/rollcall-api/internal/handler"
	"github.com/rollcall-dev/rollcall-api/internal/middleware"
	"github.com/rollcall-dev/rollcall-api/internal/models"
	"github.com/rollcall-dev/rollcall-api/internal/realtime"
	"github.com/rollcall-dev/rollcall-api/internal/repository"
	"github.com/rollcall-dev/rollcall-api/internal/service"
	"github.com/rollcall-dev/rollcall-api/pkg/cache"
	"github.com/rollcall-dev/rollcall-api/pkg/config"
	"github.com/rollcall-dev/rollcall-api/pkg/database"
	"github.com/rollcall-dev/rollcall-api/pkg/logger"
	"github.com/rollcall-dev/rollcall-api/pkg/mail"
	corsmiddleware "github.com/rollcall-dev/rollcall-api/pkg/middleware/cors"
	reqidmiddleware "github.com/rollcall-dev/rollcall-api/pkg/middleware/requestid"
)

// @title Rollcall API
// @version 0.1.0
// @description Classroom attendance service with live sessions, OTP and QR check-in
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, report caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Attendance.StatusCacheTTL, logr, cfg.Redis.Enabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	hub := realtime.NewHub(logr)
	reportSvc := service.NewReportService(attendanceRepo, cacheSvc, logr, cfg.Attendance.StatusCacheTTL)
	notifier := &invalidatingNotifier{hub: hub, reports: reportSvc}

	otpSvc := service.NewOTPService(service.OTPConfig{
		SecretKey:   cfg.Attendance.OTPSecretKey,
		Window:      cfg.Attendance.OTPWindow,
		SkewWindows: uint(cfg.Attendance.OTPSkewWindows),
	})
	qrSvc := service.NewQRService(cfg.Attendance.QRImageSize)

	sessionCache := service.NewSessionCache()
	sweeper := service.NewSweeper(sessionCache, attendanceRepo, notifier, metrics, logr, service.SweeperConfig{
		Interval:         cfg.Attendance.SweepInterval,
		IdleConfirmation: cfg.Attendance.IdleConfirmation,
	})

	var mailer mail.Mailer = mail.NopMailer{}
	if cfg.Mail.Enabled {
		mailer = mail.NewSMTPMailer(cfg.Mail, logr)
	}

	coordinator := service.NewCoordinator(
		courseRepo, attendanceRepo, notifier, sessionCache, otpSvc, qrSvc, sweeper,
		mailer, metrics, nil, logr, nil,
		service.CoordinatorDefaults{
			SessionDuration: cfg.Attendance.DefaultDuration,
			GeofenceRadiusM: cfg.Attendance.DefaultRadiusM,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sweeper.Start(ctx)
	defer sweeper.Stop()
	defer hub.Close()

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(coordinator)
	reportHandler := handler.NewReportHandler(reportSvc)
	liveHandler := handler.NewLiveHandler(hub, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	courses := authed.Group("/courses/:courseId/attendance")
	courses.POST("/sessions", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), sessionHandler.Open)
	courses.DELETE("/sessions/current", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), sessionHandler.Close)
	courses.GET("/sessions/current", sessionHandler.Current)
	courses.GET("/sessions/current/qr.png", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), sessionHandler.QRImage)
	courses.POST("/sessions/current/students/:studentId/check-in", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), sessionHandler.ManualCheckIn)
	courses.POST("/check-in", middleware.RequireRoles(models.RoleStudent), sessionHandler.CheckIn)

	authed.GET("/attendance", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), reportHandler.List)
	if cfg.Reports.ExportEnabled {
		authed.GET("/attendance/export", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), reportHandler.Export)
	}
	authed.GET("/attendance/live", liveHandler.Subscribe)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

// invalidatingNotifier forwards updates to the websocket hub and drops the
// course's cached report listings once an entry reaches a terminal status.
type invalidatingNotifier struct {
	hub     *realtime.Hub
	reports *service.ReportService
}

func (n *invalidatingNotifier) Broadcast(courseID string, update models.AttendanceUpdate) {
	n.hub.Broadcast(courseID, update)
	if update.Status.Terminal() {
		go n.reports.InvalidateCourse(context.Background(), courseID)
	}
}
