package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"aaroh-orders/internal/auth"
	"aaroh-orders/internal/config"
	"aaroh-orders/internal/database/migrations"
	"aaroh-orders/internal/gateway"
	appkafka "aaroh-orders/internal/kafka"
	"aaroh-orders/internal/logger"
	"aaroh-orders/internal/models"
	"aaroh-orders/internal/notify"
	"aaroh-orders/internal/order"
	"aaroh-orders/internal/order/db"
	"aaroh-orders/internal/order/order_api"
	orderredis "aaroh-orders/internal/order/redis"
	"aaroh-orders/internal/payment/storage"
	"aaroh-orders/internal/security"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	appLogger := logger.NewLogger()
	defer appLogger.Close()

	ctx := context.Background()

	// --- PostgreSQL Setup ---
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Database.Username, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	connector := pgdriver.NewConnector(pgdriver.WithDSN(dsn))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	// Run migrations
	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	// --- Kafka Setup ---
	var producer *appkafka.Producer
	var alertConsumer *appkafka.AlertConsumer
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.OrderCreated,
			cfg.Kafka.Topics.PaymentConfirmed,
			cfg.Kafka.Topics.PaymentFailed,
			cfg.Kafka.Topics.SecurityAlerts,
		}
		if err := appkafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			appLogger.Warn("KAFKA", fmt.Sprintf("Topic setup failed, continuing: %v", err))
		}
		producer = appkafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		alertConsumer = appkafka.NewAlertConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.SecurityAlerts, cfg.Kafka.GroupID)
		defer alertConsumer.Close()
	}

	// --- Payment attempt audit store ---
	attemptStore, err := storage.NewPostgreSQLStore(cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("DATABASE", fmt.Sprintf("Failed to initialize attempt store: %v", err))
	}
	defer attemptStore.Close()

	// --- Initialize Dependencies ---
	dbLayer := &db.DB{Bun: bunDB}
	locks := orderredis.NewLock(redisClient, appLogger)
	gatewayClient := gateway.NewRazorpayClient(gateway.Config{
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Timeout:   cfg.Gateway.Timeout,
	})
	dispatcher := notify.NewSMTPDispatcher(cfg.Email, appLogger)

	var monitorPublisher security.Publisher
	var servicePublisher order.Publisher
	if producer != nil {
		monitorPublisher = producer
		servicePublisher = producer
	}
	monitor := security.NewAlertMonitor(monitorPublisher, cfg.Kafka.Topics.SecurityAlerts, appLogger)

	service := order.NewOrderService(dbLayer, gatewayClient, locks, servicePublisher,
		dispatcher, monitor, attemptStore, order.Settings{
			SignatureSecret:      cfg.Gateway.KeySecret,
			Currency:             cfg.Gateway.Currency,
			OperatorEmail:        cfg.Orders.OperatorEmail,
			SongUnlockFeeMinor:   cfg.Orders.SongUnlockFeeMinor,
			SongStandardFeeMinor: cfg.Orders.SongStandardFeeMinor,
			SongExpressFeeMinor:  cfg.Orders.SongExpressFeeMinor,
			Topics:               cfg.Kafka.Topics,
		}, appLogger)
	handler := order_api.NewHandler(service, appLogger)

	// Forward consumed security alerts to the operator mailbox.
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if alertConsumer != nil {
		go alertConsumer.Start(consumerCtx, func(alert models.SecurityAlert) {
			subject := fmt.Sprintf("Security alert: %s on order %s", alert.Kind, alert.OrderID)
			body := fmt.Sprintf("Kind: %s\nOrder: %s\nGateway order: %s\nPayment: %s\nActor: %s\nDetail: %s\nAt: %s",
				alert.Kind, alert.OrderID, alert.GatewayOrderID, alert.PaymentID,
				alert.ActorEmail, alert.Detail, alert.Timestamp.Format(time.RFC3339))
			if err := dispatcher.Send(cfg.Orders.OperatorEmail, subject, body); err != nil {
				appLogger.Error("SECURITY", fmt.Sprintf("Failed to mail alert for order %s: %v", alert.OrderID, err))
			}
		})
	}

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.JWTSecret))
		handler.Routes(r)
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLogger.Info("SERVER", "Order service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("SERVER", "Shutdown signal received, cleaning up")

	stopConsumer()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	appLogger.Info("SERVER", "Server exited gracefully")
}
