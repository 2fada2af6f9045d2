package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/detection"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/reporting"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/scheduler"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/scoring"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/service"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/storage"
	"github.com/Aidin1998/amlwatch/internal/config"
	"github.com/Aidin1998/amlwatch/internal/database"
	"github.com/Aidin1998/amlwatch/internal/messaging"
	"github.com/Aidin1998/amlwatch/internal/redis"
	"github.com/Aidin1998/amlwatch/pkg/logger"
	"github.com/Aidin1998/amlwatch/pkg/tracing"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to amlwatch.yaml")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	profile, err := aml.LoadConfig(cfg.Detection.ThresholdsFile)
	if err != nil {
		zapLogger.Fatal("Failed to load detection thresholds",
			zap.String("path", cfg.Detection.ThresholdsFile), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		zapLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	if err := storage.AutoMigrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate activity store", zap.Error(err))
	}
	go database.ReportPoolStats(ctx, cfg.Database.Driver, db, 30*time.Second)

	var locker aml.ScanLocker = scheduler.NewLocalLocker()
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(&cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		locker = redis.NewScanLease(redisClient, "amlwatch:lease:")
	}

	var publisher aml.EventPublisher = aml.NopPublisher{}
	var kafkaPublisher *messaging.KafkaPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher = messaging.NewKafkaPublisher(&cfg.Kafka, zapLogger)
		publisher = kafkaPublisher
	}

	store := storage.NewActivityStore(db)
	engine := detection.NewEngine(storage.NewTradeReader(db), profile.Detection, zapLogger)
	sars := reporting.NewSarGenerator(store, publisher, nil, zapLogger)
	svc := service.New(service.Deps{
		Detector:    engine,
		Store:       store,
		Scorer:      scoring.NewRiskScorer(store, profile.Scoring, nil),
		Sars:        sars,
		Publisher:   publisher,
		DedupWindow: profile.DedupWindow,
		Logger:      zapLogger,
	})

	orch := scheduler.NewOrchestrator(storage.NewUserDirectory(db), svc, svc, locker, cfg.Scheduler, zapLogger)
	sched, err := scheduler.NewScheduler(orch, cfg.Scheduler, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create scheduler", zap.Error(err))
	}
	sched.Start()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      newRouter(cfg, svc, db, redisClient, zapLogger),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		zapLogger.Info("Starting API server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Scheduler did not stop in time", zap.Error(err))
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			zapLogger.Error("Failed to close Kafka publisher", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			zapLogger.Error("Failed to close Redis client", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zapLogger.Error("Failed to flush traces", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	zapLogger.Info("Server exited properly")
}
