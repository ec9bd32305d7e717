package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopledger/config"
	"shopledger/internal/api"
	"shopledger/internal/broker"
	"shopledger/internal/redisclient"
	"shopledger/internal/service"
	"shopledger/internal/store/postgres"
	"shopledger/internal/util"
	"shopledger/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shop ledger service")

	tp, err := util.InitTracer("shopledger", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := postgres.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicLedger)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	ledgerService := service.NewLedgerService(db, redisClient, eventPublisher, cfg.Business.ActiveBatchLimit)
	recorderService := service.NewRecorderService(db, redisClient, eventPublisher)
	reportService := service.NewReportService(db, redisClient,
		time.Duration(cfg.Business.SummaryCacheTTLSeconds)*time.Second)

	ctx := context.Background()
	if err := ledgerService.SyncStockToRedis(ctx); err != nil {
		log.Printf("Failed to sync stock to Redis: %v", err)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	projectionConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicLedger, cfg.Kafka.ConsumerGroup)
	projectionWorker := worker.NewProjectionWorker(projectionConsumer, db, redisClient)
	go func() {
		if err := projectionWorker.Start(workerCtx); err != nil {
			log.Printf("Projection worker error: %v", err)
		}
	}()

	reconcileWorker := worker.NewReconcileWorker(recorderService, redisClient,
		time.Duration(cfg.Business.ReconcileIntervalSeconds)*time.Second)
	go func() {
		if err := reconcileWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Reconcile worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(ledgerService, recorderService, reportService)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	projectionWorker.Stop()
	reconcileWorker.Stop()

	log.Println("Server exited")
}
