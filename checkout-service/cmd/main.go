package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	h "github.com/fjod/amasampo/checkout-service/internal/http"
	"github.com/fjod/amasampo/checkout-service/internal/publisher"
	"github.com/fjod/amasampo/checkout-service/internal/repository"
	"github.com/fjod/amasampo/checkout-service/internal/service"
	"github.com/fjod/amasampo/pkg/apiclient"
	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/fjod/amasampo/pkg/pricing"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

type Config struct {
	HTTPPort         string
	DB               repository.Credentials
	CartServiceURL   string
	KafkaBrokers     []string
	PricingRulesFile string
	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
}

func loadConfig() *Config {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return &Config{
		HTTPPort: getEnv("HTTP_PORT", "8082"),
		DB: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              port,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "checkout"),
			MigrationsDirPath: getEnv("MIGRATIONS_PATH", "./internal/repository/migrations"),
		},
		CartServiceURL:   getEnv("CART_SERVICE_URL", "http://localhost:8081"),
		KafkaBrokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		PricingRulesFile: getEnv("PRICING_RULES_FILE", ""),
		RequestTimeout:   10 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log, err := logger.New("checkout-service")
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

	repo, err := repository.NewRepository(&cfg.DB)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.DB); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("connected to database", zap.String("db", cfg.DB.DBName))

	carts := apiclient.New(apiclient.Config{
		BaseURL: cfg.CartServiceURL,
		Timeout: cfg.RequestTimeout,
	})
	checkout := service.NewCheckoutService(repo, carts, rules, log)

	pollCtx, stopPoller := context.WithCancel(context.Background())
	outbox := publisher.NewOutboxPoller(repo, log.Named("outbox"), cfg.KafkaBrokers...)
	go outbox.Run(pollCtx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", httpapi.Health)
	h.NewCheckoutHandler(checkout, cfg.RequestTimeout, log).Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "checkout-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("checkout service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down checkout service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	stopPoller()
	if err := outbox.Close(); err != nil {
		log.Warn("kafka writer close failed", zap.Error(err))
	}
	log.Info("checkout service stopped")
}
