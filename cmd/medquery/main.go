package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/medquery/internal/aggregate"
	"github.com/nidhogg/medquery/internal/api"
	"github.com/nidhogg/medquery/internal/assistant"
	"github.com/nidhogg/medquery/internal/config"
	"github.com/nidhogg/medquery/internal/provider"
	"github.com/nidhogg/medquery/internal/record"
	"github.com/nidhogg/medquery/internal/registry"
	"github.com/nidhogg/medquery/internal/resolve"
	"github.com/nidhogg/medquery/internal/route"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/medquery.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}

	logger := buildLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting medquery", zap.String("config", cfgPath))

	// Initialize provider router
	provRouter := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
			Timeout: time.Duration(pc.TimeoutSeconds) * time.Second,
		}
		switch pc.Type {
		case "openai":
			provRouter.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "gemini":
			provRouter.Register(provider.NewGeminiProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	if provRouter.Len() == 0 {
		logger.Fatal("no usable provider configured")
	}
	// Every provider after the default joins the fallback chain in config order.
	var fallbacks []string
	for _, pc := range cfg.Providers {
		if pc.ID != provRouter.DefaultID() {
			fallbacks = append(fallbacks, pc.ID)
		}
	}
	provRouter.SetFallbacks(fallbacks)

	// Initialize the record store from the configured source
	store := record.NewStore(logger)
	var pgSource *record.PostgresSource
	switch cfg.Data.Source {
	case "postgres":
		ps, pgErr := record.NewPostgresSource(cfg.Data.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Fatal("PostgreSQL unavailable", zap.Error(pgErr))
		}
		if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
			logger.Fatal("migration failed", zap.Error(mErr))
		}
		pgSource = ps
		if err := store.Load(context.Background(), ps); err != nil {
			logger.Fatal("failed to load records from postgres", zap.Error(err))
		}
	default:
		src := record.NewFileSource(cfg.Data.ClinicDir, cfg.Data.DeviceDir, logger)
		if err := store.Load(context.Background(), src); err != nil {
			logger.Fatal("failed to load record files", zap.Error(err))
		}
	}

	// Rate limiter: Redis when configured, in-memory otherwise
	var limiter registry.Limiter
	if cfg.Redis.URL != "" {
		rl, rlErr := registry.NewRedisLimiter(cfg.Redis.URL)
		if rlErr != nil {
			logger.Warn("Redis unavailable, using in-memory rate limits", zap.Error(rlErr))
		} else {
			limiter = rl
			logger.Info("Redis rate limiter connected")
		}
	}

	reg := registry.Default(limiter, logger)
	resolver := resolve.New(store, logger)
	router := route.New(reg, resolver, cfg.Query.DefaultWindowDays, logger)
	aggregator := aggregate.New(store, logger)
	service := assistant.New(store, reg, resolver, router, aggregator, provRouter, 0, logger)

	// Build HTTP handler
	handler := api.NewHandler(service, store, reg, provRouter, logger)

	// Start server
	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("medquery listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down medquery...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if pgSource != nil {
		pgSource.Close()
	}
}

func buildLogger(level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil && level != "" {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}
