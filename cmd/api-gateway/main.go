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
	"go.uber.org/zap"

	_ "github.com/noah-isme/lms-gradebook-api/api/swagger"
	"github.com/noah-isme/lms-gradebook-api/internal/handler"
	"github.com/noah-isme/lms-gradebook-api/internal/repository"
	"github.com/noah-isme/lms-gradebook-api/internal/router"
	"github.com/noah-isme/lms-gradebook-api/internal/service"
	"github.com/noah-isme/lms-gradebook-api/pkg/cache"
	"github.com/noah-isme/lms-gradebook-api/pkg/config"
	"github.com/noah-isme/lms-gradebook-api/pkg/database"
	"github.com/noah-isme/lms-gradebook-api/pkg/export"
	"github.com/noah-isme/lms-gradebook-api/pkg/jobs"
	"github.com/noah-isme/lms-gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-gradebook-api/pkg/middleware/requestid"
)

// @title LMS Gradebook API
// @version 1.0.0
// @description Course grade calculation, quiz auto-grading and gradebook management
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	metrics := service.NewMetricsService()
	probes := map[string]handler.Probe{"postgres": db.PingContext}

	var cacheRepo service.CacheRepository
	if cfg.Gradebook.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, gradebook cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			repo := repository.NewCacheRepository(redisClient)
			cacheRepo = repo
			probes["redis"] = repo.Ping
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Gradebook.CacheTTL, logr, cacheRepo != nil)

	validate := validator.New()

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	gradeConfigRepo := repository.NewGradeConfigRepository(db)
	courseGradeRepo := repository.NewCourseGradeRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	authSvc := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	accessSvc := service.NewAccessService(courseRepo, enrollmentRepo, assignmentRepo, submissionRepo)
	notificationSvc := service.NewNotificationService(notificationRepo, courseRepo, logr)
	courseGradeSvc := service.NewCourseGradeService(courseGradeRepo, submissionRepo, gradeConfigRepo, enrollmentRepo, notificationSvc, cacheSvc, metrics, validate, logr)
	gradebookSvc := service.NewGradebookService(courseRepo, enrollmentRepo, courseGradeRepo, courseGradeSvc, gradeConfigRepo, assignmentRepo, submissionRepo, cacheSvc, cfg.Gradebook.CacheTTL, logr)
	gradeConfigSvc := service.NewGradeConfigService(gradeConfigRepo, cacheSvc, validate, logr)
	submissionSvc := service.NewSubmissionService(assignmentRepo, submissionRepo, enrollmentRepo, courseGradeSvc, validate, logr)
	quizSvc := service.NewQuizService(quizRepo, assignmentRepo, enrollmentRepo, courseGradeSvc, metrics, validate, logr)
	exportSvc := service.NewExportService(gradebookSvc, courseRepo, service.ExportConfig{PDFTitlePrefix: cfg.Export.PDFTitlePrefix}, logr, export.NewCSVExporter(), export.NewPDFExporter())

	recalcSvc := service.NewRecalculationService(courseGradeSvc, metrics, logr)
	recalcSvc.NotifyByDefault(cfg.Recalculation.NotifyStudents)
	recalcQueue := jobs.NewQueue("course-recalculation", recalcSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Recalculation.Workers,
		BufferSize: cfg.Recalculation.BufferSize,
		MaxRetries: cfg.Recalculation.MaxRetries,
		RetryDelay: cfg.Recalculation.RetryDelay,
		Logger:     logr,
	})
	recalcSvc.SetQueue(recalcQueue)
	recalcQueue.Start(ctx)
	defer recalcQueue.Stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	router.Register(r, cfg, router.Dependencies{
		Auth:               authSvc,
		Access:             accessSvc,
		Metrics:            metrics,
		MetricsHandler:     handler.NewMetricsHandler(metrics, probes),
		GradebookHandler:   handler.NewGradebookHandler(gradebookSvc, exportSvc, recalcSvc),
		GradeConfigHandler: handler.NewGradeConfigHandler(gradeConfigSvc),
		CourseGradeHandler: handler.NewCourseGradeHandler(courseGradeSvc),
		SubmissionHandler:  handler.NewSubmissionHandler(submissionSvc),
		QuizHandler:        handler.NewQuizHandler(quizSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
