package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"knowledge-platform/internal/config"
	"knowledge-platform/internal/logger"
	"knowledge-platform/internal/queue"
	"knowledge-platform/internal/scheduler"
	"knowledge-platform/internal/store"
	"knowledge-platform/internal/telemetry"
)

// The scheduler process decides which sources are due and enqueues poll
// tasks. Extraction and ingestion run in the worker process.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("knowledge-scheduler", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracer:", err)
		}
		defer shutdown()
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	st := store.NewMongoStore(mongoClient.Database(cfg.DBName))

	asynqClient := asynq.NewClient(queue.RedisConnOpt(cfg))
	defer asynqClient.Close()

	poller := scheduler.NewPoller(st.Sources, asynqClient, cfg.PollTick)
	if err := poller.Start(); err != nil {
		log.Fatal("Failed to start source poller:", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Scheduler shutting down")
	poller.Stop()
}
