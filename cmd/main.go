/**
 * @description
 * This is the main entry point for the payment-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * the banking connector, message brokers, repositories, the core orchestration engine,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/connector, internal/store: Internal packages for the service.
 * - pkg/bdcclient: Client for the Banco de Comercio API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pagoflex/payment-service/internal/api"
	"github.com/pagoflex/payment-service/internal/app"
	"github.com/pagoflex/payment-service/internal/config"
	"github.com/pagoflex/payment-service/internal/connector"
	"github.com/pagoflex/payment-service/internal/store"
	"github.com/pagoflex/payment-service/pkg/bdcclient"
	"github.com/pagoflex/payment-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s backend=%s connector=%s", cfg.ServerPort, cfg.PersistenceBackend, cfg.Connector)

	// Initialize the data access layer (repository).
	var repository store.TransferRepository
	if cfg.PersistenceBackend == config.BackendPostgres {
		poolConfig, parseErr := pgxpool.ParseConfig(cfg.DatabaseURL)
		if parseErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", parseErr)
		}

		poolConfig.MaxConns = 50
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		// Disable prepared statement caching to prevent conflicts
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, poolErr := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if poolErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", poolErr)
		}
		defer dbpool.Close()
		log.Println("level=info component=bootstrap msg=\"database connected\"")

		repository = store.NewPostgresRepository(dbpool)
	} else {
		log.Println("level=warn component=bootstrap msg=\"using in-memory repository; transfers will not survive restarts\"")
		repository = store.NewMemoryRepository()
	}

	// Initialize the RabbitMQ producer to publish payment state transitions.
	// Broker unavailability degrades to a no-op publisher rather than failing boot.
	var producer rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; event publishing disabled\" env=RABBITMQ_URL")
	} else if eventProducer, prodErr := rabbitmq.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
	} else {
		producer = eventProducer
		defer eventProducer.Close()
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Select the banking connector.
	var conn connector.Connector
	if cfg.Connector == config.ConnectorBancoComercio {
		client := bdcclient.NewClient(cfg.BDCBaseURL, cfg.BDCClientID, cfg.BDCClientSecret, cfg.BDCSecretKey)
		conn = connector.NewBancoComercio(client)
	} else {
		behaviour := connector.DefaultMockBehaviour()
		if concepts := cfg.MockFailureConceptList(); len(concepts) > 0 {
			behaviour.FailureConcepts = concepts
		}
		if raw := strings.TrimSpace(cfg.MockFailureAmountThreshold); raw != "" {
			if threshold, thrErr := decimal.NewFromString(raw); thrErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"invalid MOCK_FAILURE_AMOUNT_THRESHOLD; ignoring\" value=%q err=%v", raw, thrErr)
			} else {
				behaviour.FailureAmountThreshold = &threshold
			}
		}
		conn = connector.NewMock(behaviour)
	}

	// Initialize the core orchestration engine with its dependencies.
	paymentService := app.NewService(repository, conn, nil, producer, cfg.PaymentEventExchange)
	if raw := strings.TrimSpace(cfg.KYCAmountThreshold); raw != "" {
		if threshold, thrErr := decimal.NewFromString(raw); thrErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"invalid KYC_AMOUNT_THRESHOLD; using default\" value=%q err=%v", raw, thrErr)
		} else {
			paymentService.SetKYCThreshold(threshold)
		}
	}

	// Distributed rate limiting is optional and requires redis.
	if cfg.TransferRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; registration rate limiting disabled\" env=REDIS_URL")
		} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; registration rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; registration rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
				paymentService.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.TransferRateLimitPerMinute)
			}
		}
	}

	// Initialize the API handlers and router.
	handlers := api.NewTransferHandlers(paymentService)
	router := api.TransferRoutes(handlers, strings.TrimSpace(cfg.DatabaseSchema))

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
