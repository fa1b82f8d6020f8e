package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	database "github.com/FACorreiaa/go-insurance-assistant/app/db"
	appLogger "github.com/FACorreiaa/go-insurance-assistant/app/logger"
	appMetrics "github.com/FACorreiaa/go-insurance-assistant/app/observability/metrics"
	"github.com/FACorreiaa/go-insurance-assistant/app/tracer"
	"github.com/FACorreiaa/go-insurance-assistant/config"
	_ "github.com/FACorreiaa/go-insurance-assistant/docs"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/assistant"
	generativeAI "github.com/FACorreiaa/go-insurance-assistant/internal/api/generative_ai"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/memory"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/novasonic"
	"github.com/FACorreiaa/go-insurance-assistant/internal/api/voice"
	api "github.com/FACorreiaa/go-insurance-assistant/internal/router"
)

// @title           Insurance Assistant API
// @version         1.0
// @description     Conversational insurance assistant backend with persistent user memory.
// @BasePath        /api/v1
func main() {
	// Use standard log until slog is configured, in case godotenv fails
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Database Setup ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}

	// Run migrations before initializing the main pool
	err = database.RunMigrations(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Observability ---
	metricsSrv := tracer.InitTracingAndMetrics("insurance-assistant", cfg.Server.MetricsPort, logger)
	appMetrics.InitAppMetrics()

	// --- Model Client ---
	var modelClient generativeAI.ModelClient
	switch cfg.Model.Provider {
	case "groq":
		modelClient, err = generativeAI.NewGroqClient(cfg.Model.GroqModel)
	default:
		modelClient, err = generativeAI.NewGeminiClient(ctx, cfg.Model.GeminiModel)
	}
	if err != nil {
		logger.Error("Failed to initialize model client",
			slog.String("provider", cfg.Model.Provider), slog.Any("error", err))
		os.Exit(1)
	}

	// --- Dependency Injection ---
	memoryRepo := memory.NewPostgresRepository(pool, logger)
	memorySvc := memory.NewService(memoryRepo, logger)

	assistantSvc := assistant.NewService(memorySvc, modelClient, appMetrics.Get(), cfg.Model.Timeout, logger)
	assistantHandler := assistant.NewHandlerImpl(assistantSvc, logger)

	voiceProvider, err := novasonic.NewProvider(ctx, cfg.Voice.Region, cfg.Voice.ModelID, logger)
	if err != nil {
		logger.Error("Failed to initialize voice provider", slog.Any("error", err))
		os.Exit(1)
	}
	voiceSvc := voice.NewService(memorySvc, assistantSvc, voiceProvider, cfg.Voice.SessionTTL, logger)
	voiceHandler := voice.NewHandlerImpl(voiceSvc, cfg.Voice.WsBasePath, logger)

	// --- Router Setup ---
	routerConfig := &api.Config{
		AssistantHandler: assistantHandler,
		VoiceHandler:     voiceHandler,
	}
	mainRouter := api.SetupRouter(routerConfig)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(appLogger.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Compress(5, "application/json"))
	router.Mount("/", mainRouter)

	// --- HTTP Server Setup ---
	serverAddress := fmt.Sprintf(":%s", cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:    serverAddress,
		Handler: router,
		// Websocket streams stay open well past normal request timeouts,
		// so WriteTimeout is left unset and IdleTimeout does the policing.
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", slog.String("address", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutdown signal received, starting graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server graceful shutdown failed", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down complete.")
}

// setupLogger configures and returns the application logger.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" {
		// Colored logs for development
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		// JSON logs for production or other environments
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
