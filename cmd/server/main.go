// Package main is the entry point for the docforge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docforge/internal/domain"
	"docforge/internal/infrastructure/cache"
	v1 "docforge/internal/infrastructure/http/v1"
	"docforge/internal/infrastructure/http/v1/handlers"
	"docforge/internal/schema"
	"docforge/pkg/logger"
)

var version = "dev"

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	cfg := loadConfig()
	log.Infow("starting docforge server", "backend", cfg.Backend, "version", version)

	// --- Storage ---
	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to open storage backend", "backend", cfg.Backend, "error", err)
	}
	defer be.Close()

	// --- Doctypes ---
	if err := loadDoctypes(ctx, be.store, cfg.DoctypesDir); err != nil {
		log.Fatalw("failed to load doctypes", "dir", cfg.DoctypesDir, "error", err)
	}

	// --- Schema cache ---
	compiler := schema.NewCompiler(be.store)
	schemas := cache.NewSchemaCache(cache.Config{
		Compiler: compiler,
		Pool:     be.notifyPool,
		Channel:  be.notifyChannel,
	})
	cacheLog := log.WithComponent("schema_cache")
	schemas.OnInvalidation(func(doctypes []string) {
		cacheLog.Debugw("compiled schemas dropped", "doctypes", doctypes)
	})
	if err := schemas.Start(ctx); err != nil {
		log.Fatalw("failed to start schema cache", "error", err)
	}
	defer schemas.Stop()

	// --- Document service ---
	service := domain.NewDocumentService(domain.DocumentServiceConfig{
		Schemas:   schemas,
		Repo:      be.repo,
		TxManager: be.txManager,
		Recorder:  be.recorder,
		History:   be.history,
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:   log,
		Service:  service,
		Store:    be.store,
		Compiler: compiler,
		Schemas:  schemas,
		Cache:    schemas,
		Health:   handlers.NewHealthHandler(be.pinger, cfg.Backend, version),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// config is read from the environment.
type config struct {
	Backend         string // postgres or sqlite
	DSN             string
	Addr            string
	DoctypesDir     string
	MaxConns        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	StatsInterval   time.Duration
}

func loadConfig() config {
	cfg := config{
		Backend:         getEnv("DB_BACKEND", backendSQLite),
		DSN:             os.Getenv("DATABASE_URL"),
		Addr:            ":" + getEnv("APP_PORT", "8080"),
		DoctypesDir:     os.Getenv("DOCTYPES_DIR"),
		MaxConns:        getEnvInt("DB_MAX_CONNS", 25),
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		StatsInterval:   getEnvDuration("DB_STATS_INTERVAL", 0),
	}
	if cfg.Backend == backendPostgres && cfg.DSN == "" {
		cfg.DSN = mustEnv("DATABASE_URL")
	}
	if cfg.Backend == backendSQLite && cfg.DSN == "" {
		cfg.DSN = "file:docforge.db?_pragma=busy_timeout(5000)"
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
