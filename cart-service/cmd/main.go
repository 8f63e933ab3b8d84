package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	c "github.com/fjod/amasampo/cart-service/internal/cache"
	"github.com/fjod/amasampo/cart-service/internal/catalog"
	h "github.com/fjod/amasampo/cart-service/internal/http"
	"github.com/fjod/amasampo/cart-service/internal/poller"
	"github.com/fjod/amasampo/cart-service/internal/repository"
	s "github.com/fjod/amasampo/cart-service/internal/service"
	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/fjod/amasampo/pkg/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type Config struct {
	HTTPPort          string
	MongoURI          string
	MongoDBName       string
	RedisAddr         string
	RedisPassword     string
	CacheTTL          time.Duration
	CatalogDBPath     string
	CatalogMigrations string
	KafkaBrokers      []string
	PricingRulesFile  string
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8081"),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:       getEnv("MONGO_DB_NAME", "cartdb"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		CacheTTL:          getDuration("CACHE_TTL", 15*time.Minute),
		CatalogDBPath:     getEnv("CATALOG_DB_PATH", "./catalog.db"),
		CatalogMigrations: getEnv("CATALOG_MIGRATIONS", "./internal/catalog/migrations"),
		KafkaBrokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		PricingRulesFile:  getEnv("PRICING_RULES_FILE", ""),
		RequestTimeout:    10 * time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}

func main() {
	log, err := logger.New("cart-service")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cfg := loadConfig()

	rules, err := pricing.LoadRules(cfg.PricingRulesFile)
	if err != nil {
		log.Fatal("failed to load pricing rules", zap.Error(err))
	}

	// Set up MongoDB connection
	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	repo := repository.NewMongoRepository(mongoDB)
	if err := repo.CreateIndexes(ctx); err != nil {
		log.Fatal("failed to create indexes", zap.Error(err))
	}
	log.Info("connected to MongoDB", zap.String("db", cfg.MongoDBName))

	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatal("failed to open catalog", zap.Error(err))
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrations); err != nil {
		log.Fatal("failed to migrate catalog", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	cache := c.NewRedisCache(redisClient, cfg.CacheTTL)
	service := s.NewCartService(repo, cache, products, log)

	// Clear carts once their orders are placed
	pollCtx, stopPoller := context.WithCancel(context.Background())
	cartPoller := poller.NewPoller(service, log.Named("poller"), cfg.KafkaBrokers...)
	go cartPoller.Run(pollCtx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", httpapi.Health)
	h.NewCartHandler(service, rules, cfg.RequestTimeout, log).Routes(r)
	h.NewProductHandler(products, cfg.RequestTimeout).Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "cart-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("cart service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down cart service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	stopPoller()
	cartPoller.Close()
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.Warn("mongo disconnect failed", zap.Error(err))
	}
	log.Info("cart service stopped")
}
