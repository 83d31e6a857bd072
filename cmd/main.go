package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Stealph7/AgriConnect/internal/config"
	"github.com/Stealph7/AgriConnect/internal/db"
	httpapi "github.com/Stealph7/AgriConnect/internal/http"
	"github.com/Stealph7/AgriConnect/internal/inventory"
	"github.com/Stealph7/AgriConnect/internal/notify"
	"github.com/Stealph7/AgriConnect/internal/order"
	"github.com/Stealph7/AgriConnect/internal/sms"
	"github.com/Stealph7/AgriConnect/internal/user"
	"github.com/Stealph7/AgriConnect/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "[agriconnect] ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			logger.Fatalf("run migrations: %v", err)
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	// RabbitMQ
	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatalf("connect to RabbitMQ: %v", err)
	}
	defer rabbitConn.Close()

	smsPublisher, err := sms.NewPublisher(rabbitConn)
	if err != nil {
		logger.Fatalf("sms publisher: %v", err)
	}
	defer smsPublisher.Close()

	smsProvider, err := sms.NewProvider(cfg.SMS)
	if err != nil {
		logger.Fatalf("sms provider: %v", err)
	}
	if err := sms.StartConsumer(ctx, rabbitConn, smsProvider, logger); err != nil {
		logger.Fatalf("start sms consumer: %v", err)
	}

	// Fulfillment engine
	webhooks := webhook.NewRepository(pool, cfg.Webhook.MaxRetries)
	notifications := notify.NewNotificationRepository(pool)
	dispatcher := notify.NewDispatcher(notifications, smsPublisher, webhooks, logger)
	svc := order.NewService(
		pool,
		order.NewPostgresRepository(pool),
		inventory.NewLedger(pool),
		user.NewPostgresDirectory(pool),
		dispatcher,
		cfg.LargeTransactionThreshold,
		logger,
	)

	webhook.NewWorker(webhooks, cfg.Webhook, logger).Start(ctx)

	// HTTP
	router := httpapi.NewRouter(
		httpapi.NewTransactionHandler(svc, notifications),
		httpapi.NewWebhookHandler(webhooks),
	)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	cancel()
}
