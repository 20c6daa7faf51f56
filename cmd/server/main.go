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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solar-analyzer/internal/config"
	"solar-analyzer/internal/gateway"
	"solar-analyzer/internal/handlers"
	"solar-analyzer/internal/repository"
	"solar-analyzer/internal/services"
	"solar-analyzer/pkg/database"
	"solar-analyzer/pkg/logging"
	"solar-analyzer/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.NewStructuredLogger("solar-dashboard", version, logLevel)
	if cfg.IsLocal() {
		logger = logging.NewConsoleLogger("solar-dashboard", version, logLevel)
	}

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting solar site dashboard server", logging.Fields{
		"version":         version,
		"app_env":         cfg.AppEnv,
		"server_host":     cfg.Server.Host,
		"server_port":     cfg.Server.Port,
		"gateway_url":     cfg.Gateway.BaseURL,
		"history_enabled": cfg.HistoryEnabled(),
		"export_dir":      cfg.Export.Dir,
	})

	metricsCollector := metrics.NewCollector("solar_analyzer")

	client := gateway.New(gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		Timeout:      cfg.Gateway.Timeout,
		RateLimitRPS: cfg.Gateway.RateLimitRPS,
	}, logger, metricsCollector)

	store := services.NewAnalysisStore(client, services.NewDirSaver(cfg.Export.Dir), logger, metricsCollector)

	// Calculation history is optional
	var history *services.HistoryService
	if cfg.HistoryEnabled() {
		db, err := database.NewPostgresDB(ctx, database.Config{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to history database", logging.Fields{}, err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to migrate history database", logging.Fields{}, err)
		}

		history = services.NewHistoryService(repository.NewCalculationRepository(db, logger, metricsCollector), logger, metricsCollector)
	}

	dashboardHandler := handlers.NewDashboardHandler(store, history, logger, metricsCollector)

	router := mux.NewRouter()
	router.Use(handlers.RequestID, handlers.Recoverer(logger, metricsCollector))

	dashboardHandler.RegisterRoutes(router)

	router.HandleFunc("/api/docs", handlers.SwaggerUI).Methods(http.MethodGet)
	router.HandleFunc("/api/docs/openapi.json", handlers.OpenAPISpec).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
