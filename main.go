package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"oncall-service/internal/api"
	"oncall-service/internal/config"
	"oncall-service/internal/db"
	"oncall-service/internal/escalation"
	"oncall-service/internal/events"
	"oncall-service/internal/kafka"
	"oncall-service/internal/logging"
	"oncall-service/internal/notifier"
	"oncall-service/internal/providers"
	"oncall-service/internal/schedule"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Logger init failed:", err)
	}

	// Connect to DB and ensure schema
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("DB connect failed: %v", err)
		log.Fatal("DB connect failed:", err)
	}
	defer dbConn.Close()
	if err := dbConn.EnsureSchema(ctx); err != nil {
		logger.Errorf("Schema init failed: %v", err)
		log.Fatal("Schema init failed:", err)
	}

	hub := events.NewHub(logger)
	var wg sync.WaitGroup

	// Schedule service keeps rotation timelines materialized ahead of now
	scheduleSvc := schedule.New(dbConn, logger, cfg.Schedule.HorizonWeeks)
	extender := schedule.NewExtender(scheduleSvc, logger, cfg.Schedule.ExtendInterval)
	extender.Start(ctx, &wg)

	// Escalation worker advances open incidents on step timeouts
	escalationWorker := escalation.NewWorker(dbConn, scheduleSvc, hub, logger, cfg.Escalation.ScanInterval)
	escalationWorker.Start(ctx, &wg)

	// Notification worker delivers queued requests through channel senders
	senders := []notifier.Sender{
		providers.NewEmail(cfg),
		providers.NewTelegram(cfg),
		providers.NewSMS(cfg),
	}
	notifyWorker := notifier.NewWorker(dbConn, senders, hub, logger, notifier.Options{
		Workers:      cfg.Notify.MaxWorkers,
		PollInterval: cfg.Notify.PollInterval,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		Backoff:      cfg.Notify.Backoff,
	})
	notifyWorker.Start(ctx, &wg)

	// Kafka consumer turns monitoring events into incidents
	consumer := kafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID, dbConn, logger)
	consumer.Start(ctx, &wg)

	// API server
	r := api.NewRouter(dbConn, scheduleSvc, hub, logger, cfg)
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := r.Run(cfg.API.Port); err != nil {
			logger.Errorf("API run failed: %v", err)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down...")
	cancel()
	if err := consumer.Close(); err != nil {
		logger.Errorf("Kafka close failed: %v", err)
	}
	wg.Wait()
	logger.Info("Service stopped")
}
