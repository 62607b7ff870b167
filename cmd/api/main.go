package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	natsio "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Y04ash/Projexx/internal/config"
	"github.com/Y04ash/Projexx/internal/database"
	"github.com/Y04ash/Projexx/internal/handler"
	"github.com/Y04ash/Projexx/internal/middleware"
	"github.com/Y04ash/Projexx/internal/models"
	"github.com/Y04ash/Projexx/internal/repository"
	"github.com/Y04ash/Projexx/internal/router"
	"github.com/Y04ash/Projexx/internal/service"
	"github.com/Y04ash/Projexx/internal/upload"
	cloud "github.com/Y04ash/Projexx/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Student{},
		&models.Faculty{},
		&models.Team{},
		&models.Task{},
		&models.Submission{},
		&models.SubmissionReview{},
		&models.SubmissionView{},
		&models.Notification{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *natsio.Conn
	if cfg.NATSURL != "" {
		natsConn, err = natsio.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, taskRepo, studentRepo, uploader, notificationService, validate, logger)
	gradingService := service.NewGradingService(submissionRepo, taskRepo, facultyRepo, notificationService, validate, logger)

	retryPolicy := upload.RetryPolicy{
		MaxAttempts: cfg.UploadMaxAttempts,
		BaseDelay:   cfg.UploadRetryBaseDelay,
		Multiplier:  2,
	}
	uploadRules := service.DefaultUploadRules()
	uploadRules.MaxFileSize = cfg.UploadMaxFileSizeBytes
	uploadRules.MaxFiles = cfg.UploadMaxFiles
	uploadService := service.NewUploadService(uploader, taskRepo, retryPolicy, uploadRules, logger)

	submissionHandler := handler.NewSubmissionHandler(submissionService, gradingService, logger)
	uploadHandler := handler.NewUploadHandler(uploadService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger, cfg.StreamKeepAlive)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxFileSizeBytes) * cfg.UploadMaxFiles,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler:   submissionHandler,
		UploadHandler:       uploadHandler,
		NotificationHandler: notificationHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	serviceCtx, stopServices := context.WithCancel(context.Background())
	defer stopServices()
	notificationService.Start(serviceCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
