package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/fulfillment"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/store/memstore"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backend is what the services need from persistence
type backend interface {
	service.CartStore
	service.OrderStore
	service.ProductStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel, cfg.Server.ServiceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	tp, err := util.InitTracer(cfg.Server.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Warn("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := openBackend(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer db.Close()

	checks := map[string]api.HealthChecker{"database": db}

	var (
		cache       service.ProductCache
		idempotency service.IdempotencyStore
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Business.ProductCacheTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache, idempotency = redisClient, redisClient
		checks["redis"] = redisClient
		logger.Info("Redis connected")
	} else {
		logger.Info("Redis disabled: product cache and idempotency keys are off")
	}

	var events service.EventPublisher = broker.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	var warehouse service.FulfillmentPublisher
	if cfg.RabbitMQ.URL != "" {
		pool, err := fulfillment.NewChannelPool(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, cfg.RabbitMQ.PoolSize)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer pool.Close()
		warehouse = fulfillment.NewPublisher(pool, cfg.RabbitMQ.Queue)
		checks["rabbitmq"] = pool
	}

	productService := service.NewProductService(db, cache)
	cartService := service.NewCartService(db, productService, events, cfg.Business.CartMaxAttempts)
	orderService := service.NewOrderService(db, productService, events, idempotency, warehouse,
		service.OrderServiceConfig{
			OrderNumberAttempts: cfg.Business.OrderNumberAttempts,
			IdempotencyTTL:      cfg.Business.IdempotencyTTL,
		})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var checkoutWorker *worker.CheckoutWorker
	if len(cfg.Kafka.Brokers) > 0 && cfg.Business.ClearCartOnOrder {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		checkoutWorker = worker.NewCheckoutWorker(consumer, cartService)
		go func() {
			if err := checkoutWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Checkout worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cartService, orderService, productService, api.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Checks:         checks,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if checkoutWorker != nil {
		if err := checkoutWorker.Stop(); err != nil {
			logger.Warn("Error stopping checkout worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func openBackend(cfg config.DatabaseConfig) (backend, error) {
	switch cfg.Driver {
	case "memory":
		util.GetLogger().Info("Using in-memory store")
		return memstore.New(), nil
	case "postgres", "":
		db, err := store.NewStore(cfg.URL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
		}
		util.GetLogger().Info("Database connected")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
