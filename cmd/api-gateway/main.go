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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/academia-platform/academia-api/api/swagger"
	"github.com/academia-platform/academia-api/internal/handler"
	"github.com/academia-platform/academia-api/internal/middleware"
	"github.com/academia-platform/academia-api/internal/models"
	"github.com/academia-platform/academia-api/internal/notifier"
	"github.com/academia-platform/academia-api/internal/repository"
	"github.com/academia-platform/academia-api/internal/service"
	"github.com/academia-platform/academia-api/pkg/cache"
	"github.com/academia-platform/academia-api/pkg/config"
	"github.com/academia-platform/academia-api/pkg/database"
	"github.com/academia-platform/academia-api/pkg/logger"
	corsmiddleware "github.com/academia-platform/academia-api/pkg/middleware/cors"
	reqidmiddleware "github.com/academia-platform/academia-api/pkg/middleware/requestid"
	"github.com/academia-platform/academia-api/pkg/storage"
)

// @title Academia API
// @version 1.0.0
// @description Enrollment and payment lifecycle backend
// @BasePath /
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	voucherStore, err := storage.NewLocalStorage(cfg.Vouchers.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init voucher storage", "error", err)
	}
	voucherSigner := storage.NewSignedURLSigner(cfg.Vouchers.SignedURLSecret, cfg.Vouchers.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	txRunner := repository.NewTxRunner(db)

	// Services.
	metricsSvc := service.NewMetricsService()

	gateway := notifier.NewWhatsAppClient(cfg.Notifier.GatewayURL, cfg.Notifier.Timeout, logr)
	notificationSvc := service.NewNotificationService(gateway, gateway, notificationRepo, metricsSvc, cfg.Notifier.Workers, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	catalogSvc := service.NewCatalogService(catalogRepo, redisClient, cfg.Catalog.CacheTTL, metricsSvc, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, paymentRepo, catalogSvc, txRunner, metricsSvc, logr)
	paymentSvc := service.NewPaymentService(paymentRepo, enrollmentSvc, voucherStore, voucherSigner, studentRepo, notificationSvc, txRunner,
		service.VoucherPolicy{
			MaxSizeBytes: cfg.Vouchers.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Vouchers.AllowedMIMEs,
		}, metricsSvc, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, notificationSvc, cfg.Notifier.AbsenceThreshold, logr)
	authSvc := service.NewAuthService(userRepo, studentRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     "academia-api",
	})
	exportSvc := service.NewExportService(paymentSvc, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, exportSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/register", authHandler.Register)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		}

		// Signed links carry their own auth.
		api.GET("/vouchers/:token", paymentHandler.DownloadVoucher)

		student := api.Group("", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleStudent))
		{
			student.GET("/students/me", studentHandler.MyProfile)
			student.POST("/enrollments", enrollmentHandler.Create)
			student.GET("/enrollments", enrollmentHandler.ListMine)
			student.DELETE("/enrollments/:id", enrollmentHandler.Cancel)
			student.GET("/enrollments/:id/payment-plan", paymentHandler.Plan)
			student.POST("/installments/:id/voucher", paymentHandler.UploadVoucher)
		}

		teacher := api.Group("/teacher", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleTeacher))
		{
			teacher.POST("/attendance", attendanceHandler.Mark)
			teacher.GET("/attendance", attendanceHandler.List)
		}

		admin := api.Group("/admin", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), middleware.Audit(logr))
		{
			admin.GET("/students/:id", studentHandler.Get)
			admin.PUT("/students/:id", studentHandler.Update)

			admin.GET("/enrollments", enrollmentHandler.ListAdmin)
			admin.GET("/enrollments/by-offering", enrollmentHandler.ListByOffering)
			admin.PUT("/enrollments/:id/status", enrollmentHandler.SetStatus)
			admin.DELETE("/enrollments/:id", enrollmentHandler.Delete)
			admin.GET("/enrollments/:id/payment-plan", paymentHandler.Plan)

			admin.GET("/installments", paymentHandler.List)
			admin.GET("/installments/pending", paymentHandler.PendingReview)
			admin.GET("/installments/export", paymentHandler.Export)
			admin.PUT("/installments/:id/approve", paymentHandler.Approve)
			admin.PUT("/installments/:id/reject", paymentHandler.Reject)
			admin.GET("/installments/:id/voucher-link", paymentHandler.VoucherLink)

			admin.POST("/notifications/session", notificationHandler.InitSession)
			admin.GET("/notifications/session", notificationHandler.SessionStatus)
			admin.DELETE("/notifications/session", notificationHandler.CloseSession)
			admin.POST("/notifications/test", notificationHandler.SendTest)
			admin.GET("/notifications/students/:id", notificationHandler.History)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
