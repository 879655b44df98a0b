package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"alcyxob/fitness-sessions/internal/api"
	"alcyxob/fitness-sessions/internal/config"
	"alcyxob/fitness-sessions/internal/jobs"
	"alcyxob/fitness-sessions/internal/logger"
	"alcyxob/fitness-sessions/internal/metrics"
	"alcyxob/fitness-sessions/internal/notify"
	"alcyxob/fitness-sessions/internal/repository/mongo"
	"alcyxob/fitness-sessions/internal/service"
	"alcyxob/fitness-sessions/internal/storage"
)

// @title Fitness Sessions API
// @version 1.0
// @description Trainer availability, session booking and video call rooms.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}

	appLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("FATAL: Could not build logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	loc, err := cfg.Schedule.Location()
	if err != nil {
		appLogger.Fatal("invalid schedule timezone", zap.Error(err))
	}
	appMetrics := metrics.New()

	// --- Database Connection ---
	dbClient, err := mongo.ConnectDB(cfg.Database.URI)
	if err != nil {
		appLogger.Fatal("could not connect to MongoDB", zap.Error(err))
	}
	defer func() {
		appLogger.Info("disconnecting MongoDB")
		if err := mongo.DisconnectDB(dbClient); err != nil {
			appLogger.Error("failed to disconnect MongoDB", zap.Error(err))
		}
	}()
	appDB := dbClient.Database(cfg.Database.Name)

	// --- Ensure Indexes ---
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()
		mongo.EnsureIndexes(ctx, appDB, appLogger)
		appLogger.Info("index creation completed")
	}()

	// --- Initialize Storage ---
	var fileStorage storage.FileStorage
	if cfg.S3.BucketName != "" {
		fileStorage, err = storage.NewS3Storage(context.Background(), cfg.S3, appLogger)
		if err != nil {
			appLogger.Fatal("failed to initialize S3 storage", zap.Error(err))
		}
	} else {
		appLogger.Warn("s3 bucket not configured, recordings are disabled")
	}

	// --- Initialize Repositories ---
	userRepo := mongo.NewMongoUserRepository(appDB)
	planRepo := mongo.NewMongoPlanRepository(appDB)
	slotRepo := mongo.NewMongoSlotRepository(appDB)
	scheduleRepo := mongo.NewMongoScheduleRepository(appDB)
	sessionRepo := mongo.NewMongoSessionRepository(appDB)
	directory := service.NewDirectory(userRepo)

	// --- Notifications ---
	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
	taskClient := asynq.NewClient(redisOpt)
	defer taskClient.Close()
	notifier := notify.NewTaskNotifier(taskClient, cfg.Notify.Queue, cfg.Notify.MaxRetry)

	taskServer := startNotificationWorker(cfg, redisOpt, directory, appMetrics, appLogger)

	// --- Initialize Services ---
	opts := service.Options{Logger: appLogger, Metrics: appMetrics, Location: loc}
	scheduleService := service.NewScheduleService(scheduleRepo, slotRepo, opts)
	bookingService := service.NewBookingService(slotRepo, planRepo, notifier, directory,
		service.BookingConfig{BaseURL: cfg.Server.BaseURL, BasePath: cfg.Video.BasePath}, opts)
	videoCallService := service.NewVideoCallService(sessionRepo, slotRepo, fileStorage, cfg.Video.JoinLeadTime, opts)

	// --- Weekly roll-forward ---
	weeklyReset, err := jobs.NewWeeklyReset(cfg.Schedule.ResetCron, loc, scheduleService, appLogger)
	if err != nil {
		appLogger.Fatal("invalid reset schedule", zap.String("cron", cfg.Schedule.ResetCron), zap.Error(err))
	}
	weeklyReset.Start()
	appLogger.Info("weekly reset scheduled", zap.Time("next", weeklyReset.Next()))

	// --- Initialize Gin Engine ---
	if cfg.Log.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(appLogger))

	api.SetupRoutes(router, api.RouterConfig{
		JWTSecret: cfg.JWT.Secret,
		Location:  loc,
		Metrics:   appMetrics,
	}, scheduleService, bookingService, videoCallService)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		appLogger.Info("server starting", zap.String("addr", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("ListenAndServe error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("server forced to shutdown", zap.Error(err))
	}
	weeklyReset.Stop(ctxShutdown)
	if taskServer != nil {
		taskServer.Shutdown()
	}

	appLogger.Info("server exiting")
}

// startNotificationWorker runs the asynq consumer when email delivery is configured.
// Without it tasks stay queued in Redis until a worker with credentials picks them up.
func startNotificationWorker(
	cfg config.Config,
	redisOpt asynq.RedisClientOpt,
	users notify.UserLookup,
	m *metrics.Metrics,
	appLogger *zap.Logger,
) *asynq.Server {
	mailer, err := notify.NewSendGridMailer(cfg.SendGrid)
	if err != nil {
		appLogger.Warn("notification worker disabled", zap.Error(err))
		return nil
	}

	var texter notify.Texter
	if twilioTexter, err := notify.NewTwilioTexter(cfg.Twilio); err != nil {
		appLogger.Info("sms delivery disabled", zap.Error(err))
	} else {
		texter = twilioTexter
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Notify.Concurrency,
		Queues:      map[string]int{cfg.Notify.Queue: 1},
		Logger:      appLogger.Sugar(),
	})
	mux := asynq.NewServeMux()
	notify.NewWorker(users, mailer, texter, m, appLogger.Named("notify")).Register(mux)

	if err := srv.Start(mux); err != nil {
		appLogger.Error("failed to start notification worker", zap.Error(err))
		return nil
	}
	return srv
}
