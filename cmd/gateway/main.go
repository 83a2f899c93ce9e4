package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Argus/internal/config"
	"Argus/internal/database/mongo"
	"Argus/internal/database/redis"
	"Argus/internal/gateway/api"
	"Argus/internal/gateway/publisher"
	"Argus/internal/gateway/service"
	"Argus/internal/gateway/store"
	"Argus/internal/llm"
	"Argus/internal/models"
	"Argus/internal/safety"
	"Argus/pkg/circuitbreaker"
	"Argus/pkg/logger"
	"Argus/pkg/ratelimiter"
	"Argus/pkg/resilience"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := os.Getenv("GATEWAY_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logLevel, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Invalid logger level: %v", err)
	}
	logger.Init(logLevel)
	serviceLogger := logger.New("Gateway", "")

	// Select storage. The "memory" driver runs the gateway as a single
	// binary with no external stores; anything else uses Mongo for job
	// records and Redis for agent configuration.
	var jobStore store.JobStore
	var configStore store.ConfigStore
	if cfg.Gateway.StorageDriver == "memory" {
		serviceLogger.Info("Using in-memory storage")
		jobStore = store.NewMemoryJobStore()
		configStore = store.NewMemoryConfigStore()
	} else {
		mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to MongoDB")
		}
		jobStore = store.NewMongoJobStore(mongoClient.Database(cfg.Databases.MongoDB.Database), cfg.Gateway.JobCollection)
		serviceLogger.Info("Successfully connected to MongoDB")

		redisClient, err := redis.GetClient(&cfg.Databases.Redis)
		if err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("Failed to connect to Redis")
		}
		configStore = store.NewRedisConfigStore(redisClient)
		serviceLogger.Info("Successfully connected to Redis")
	}

	// Outbound resilience: a single breaker guards every call to the model
	// backend, wrapped around the retry policy.
	breaker := circuitbreaker.New(cfg.Resilience.CircuitBreaker.FailureThreshold, parseDurationOr(cfg.Resilience.CircuitBreaker.Cooldown, time.Minute, serviceLogger))
	resilient := resilience.NewClient(breaker, resilience.Options{
		MaxRetries: cfg.Resilience.Retry.MaxRetries,
		BaseDelay:  parseDurationOr(cfg.Resilience.Retry.BaseDelay, 0, serviceLogger),
		MaxDelay:   parseDurationOr(cfg.Resilience.Retry.MaxDelay, 0, serviceLogger),
	})

	// Lifecycle eventing is optional; a nil publisher drops every event.
	var events *publisher.EventPublisher
	if cfg.Databases.Kafka.Enabled {
		events = publisher.NewEventPublisher(cfg.Databases.Kafka.Brokers, cfg.Databases.Kafka.EventsTopic, serviceLogger)
		serviceLogger.Info("Kafka job event publisher enabled")
	}

	engine := safety.NewEngine()
	resolver := service.NewResolver(configStore, cfg.Backend.AgentConfig(), cfg.Auth.APIKey, serviceLogger)
	backend := llm.NewBackend(resilient, serviceLogger)
	orchestrator := service.NewOrchestrator(jobStore, resolver, backend, engine, events, serviceLogger, service.Options{
		Scope:             cfg.Gateway.Scope,
		ModerationEnabled: cfg.Gateway.ModerationEnabled,
		ValidationEnabled: cfg.Gateway.ValidationEnabled,
	})

	// Setup HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	apiHandler := api.NewAPI(orchestrator, resolver, engine, serviceLogger)
	api.RegisterRoutes(router, apiHandler, buildRateLimiter(cfg.Middleware.RateLimiter, serviceLogger))

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	// Start server
	go func() {
		serviceLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	serviceLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Server forced to shutdown")
	}

	// Drain in-flight jobs so every accepted job reaches a terminal state.
	serviceLogger.Info("Waiting for in-flight jobs to settle...")
	orchestrator.Wait()

	if err := events.Close(); err != nil {
		serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error closing Kafka publisher")
	}
	if cfg.Gateway.StorageDriver != "memory" {
		if err := redis.Close(); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from Redis")
		}
		if err := mongo.Close(context.Background()); err != nil {
			serviceLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error disconnecting from MongoDB")
		}
	}

	serviceLogger.Info("Server gracefully stopped")
}

// buildRateLimiter constructs the configured inbound limiter, or nil when
// rate limiting is disabled.
func buildRateLimiter(cfg config.RateLimiterConfig, log *logger.Logger) ratelimiter.RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	switch cfg.Algorithm {
	case "fixedWindow":
		return ratelimiter.NewFixedWindowCounter(cfg.Limit, parseDurationOr(cfg.Window, time.Minute, log))
	case "tokenBucket", "":
		return ratelimiter.NewTokenBucket(cfg.Rate, cfg.Capacity)
	default:
		log.WithPayload(map[string]interface{}{"algorithm": cfg.Algorithm}).Fatal("Unknown rate limiter algorithm")
		return nil
	}
}

// parseDurationOr parses a duration string, falling back to def when the
// value is empty and failing fast when it is malformed.
func parseDurationOr(value string, def time.Duration, log *logger.Logger) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"value": value}).Fatal("Invalid duration in configuration")
	}
	return d
}
