package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/amasampo/pkg/httpapi"
	"github.com/fjod/amasampo/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	h "github.com/fjod/amasampo/api-gateway/internal/http"
)

type Config struct {
	HTTPPort           string
	CartServiceURL     string
	CheckoutServiceURL string
	OrdersServiceURL   string
	Tokens             string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		CartServiceURL:     getEnv("CART_SERVICE_URL", "http://localhost:8081"),
		CheckoutServiceURL: getEnv("CHECKOUT_SERVICE_URL", "http://localhost:8082"),
		OrdersServiceURL:   getEnv("ORDERS_SERVICE_URL", "http://localhost:8083"),
		Tokens:             getEnv("GATEWAY_TOKENS", ""),
		RequestTimeout:     30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 1 << 20, // 1MB
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log, err := logger.New("api-gateway")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cfg := loadConfig()

	tokens, err := h.ParseTokens(cfg.Tokens)
	if err != nil {
		log.Fatal("invalid GATEWAY_TOKENS", zap.Error(err))
	}
	if len(tokens) == 0 {
		log.Warn("GATEWAY_TOKENS is empty, every API request will be rejected")
	}

	gateway, err := h.NewGateway(h.Upstreams{
		Cart:     cfg.CartServiceURL,
		Checkout: cfg.CheckoutServiceURL,
		Orders:   cfg.OrdersServiceURL,
	}, nil, log)
	if err != nil {
		log.Fatal("failed to configure upstreams", zap.Error(err))
	}

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(h.RequestIDMiddleware)
	r.Use(logger.Middleware(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(h.MaxBodySize(cfg.MaxRequestBodySize))

	r.Get("/health", httpapi.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.TokenAuth(tokens))
		gateway.Routes(r)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "api-gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api gateway listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down api gateway")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("api gateway stopped")
}
