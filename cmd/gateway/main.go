// cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	consul "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"libhub/internal/discovery"
	"libhub/internal/gateway"
	"libhub/internal/middleware"
	"libhub/internal/tracing"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "gateway").Logger()

	consulConfig := consul.DefaultConfig()
	consulConfig.Address = getEnv("CONSUL_ADDR", "localhost:8500")
	consulClient, err := consul.NewClient(consulConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create consul client")
	}

	shutdownTracing, err := tracing.Init(context.Background(), "gateway", os.Getenv("OTLP_ENDPOINT"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}

	routes := []gateway.Route{
		{Prefix: "/api/loans", Service: getEnv("LOANS_SERVICE_NAME", "loans-service")},
		{Prefix: "/api/books", Service: getEnv("CATALOG_SERVICE_NAME", "catalog-service")},
		{Prefix: "/api/users", Service: getEnv("USERS_SERVICE_NAME", "user-service")},
	}

	maxRetries, err := strconv.Atoi(getEnv("FORWARD_MAX_RETRIES", "2"))
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid FORWARD_MAX_RETRIES")
	}

	resolver := discovery.NewConsulResolver(consulClient, logger)
	policy := gateway.NewPolicy(nil, maxRetries)
	proxy := gateway.NewProxy(resolver, policy, routes, logger)

	router := chi.NewRouter()
	router.Use(middleware.Correlation(logger))
	router.Use(gateway.RateLimit(rate.Limit(100), 200))
	router.Get("/health", handleHealth)
	router.Handle("/api/*", proxy)

	port := getEnv("PORT", "8080")
	server := &http.Server{Addr: ":" + port, Handler: router}
	go func() {
		logger.Info().Str("port", port).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown failed")
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
