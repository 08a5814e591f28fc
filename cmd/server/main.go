// Amigo - Voice Vocabulary Tutor Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/amigo-labs/amigo-server/internal/agent"
	"github.com/amigo-labs/amigo-server/internal/api"
	"github.com/amigo-labs/amigo-server/internal/audio"
	"github.com/amigo-labs/amigo-server/internal/config"
	"github.com/amigo-labs/amigo-server/internal/fanout"
	"github.com/amigo-labs/amigo-server/internal/inference"
	"github.com/amigo-labs/amigo-server/internal/middleware"
	"github.com/amigo-labs/amigo-server/internal/pipeline"
	"github.com/amigo-labs/amigo-server/internal/profile"
	"github.com/amigo-labs/amigo-server/internal/queue"
	"github.com/amigo-labs/amigo-server/internal/session"
	"github.com/amigo-labs/amigo-server/internal/store"
	"github.com/amigo-labs/amigo-server/internal/syllabus"
	"github.com/amigo-labs/amigo-server/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the persistence fabric.
	st, err := store.NewRedis(ctx, store.RedisConfig{
		Addrs:       cfg.RedisAddrs,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("Failed to close Redis", "error", closeErr)
		}
	}()
	slog.Info("Redis connected")

	profiles, err := profile.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize profile database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := profiles.Close(); closeErr != nil {
			slog.Error("Failed to close profile database", "error", closeErr)
		}
	}()

	if err := profiles.Ping(ctx); err != nil {
		slog.Error("Profile database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Profile database connected")

	if err := profiles.SeedPrompts(ctx, syllabus.DefaultPrompts()); err != nil {
		slog.Error("Failed to seed prompts", "error", err)
		os.Exit(1)
	}

	prompts, err := profiles.ListPrompts(ctx)
	if err != nil {
		slog.Error("Failed to load prompts", "error", err)
		os.Exit(1)
	}
	syl, err := syllabus.New(prompts)
	if err != nil {
		slog.Error("Failed to build syllabus", "error", err)
		os.Exit(1)
	}

	infClient, err := inference.NewClient(inference.ClientConfig{
		APIKey:          cfg.InferenceAPIKey,
		BaseURL:         cfg.InferenceBaseURL,
		ChatModel:       cfg.ChatModel,
		TranscribeModel: cfg.TranscribeModel,
		SpeechModel:     cfg.SpeechModel,
		SpeechVoice:     cfg.SpeechVoice,
		Timeout:         cfg.InferenceTimeout,
	})
	if err != nil {
		slog.Error("Failed to initialize inference client", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	sessions := session.NewRegistry(st, session.Config{
		ActiveTTL: cfg.SessionTTL,
		EndedTTL:  cfg.EndedSessionTTL,
	})
	accumulator := audio.NewAccumulator(st, audio.Config{
		Format: audio.Format{
			SampleRate:  cfg.SampleRate,
			SampleWidth: cfg.SampleWidth,
			Channels:    cfg.Channels,
		},
		MinUtterance:  cfg.MinUtterance,
		MinMeaningful: cfg.MinMeaningful,
		BufferTTL:     cfg.SessionTTL,
	})
	fabric := queue.NewFabric(st, 24*time.Hour)
	broker := fanout.NewBroker(st)
	engine := agent.NewEngine(infClient, syl, profiles, nil, nil)

	// Register the pipeline handlers and start the worker pool.
	registry := queue.NewRegistry()
	pipe := pipeline.New(st, sessions, accumulator, fabric, engine, broker,
		profiles, infClient, cfg.ChunkTTL)
	pipe.Register(registry)

	supervisor := queue.NewSupervisor(st, fabric, registry, queue.SupervisorConfig{
		AgentWorkers:      cfg.AgentWorkers,
		DiscoveryInterval: cfg.DiscoveryInterval,
		WorkerFlagTTL:     cfg.WorkerFlagTTL,
	})
	supervisor.Start(ctx)

	// Initialize handlers.
	conns := ws.NewConnManager()
	wsHandler := ws.NewHandler(st, fabric, broker, conns, cfg.ChunkTTL,
		cfg.AllowedOrigins, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(st, profiles, conns)

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterRoutes(r)
	r.Get("/ws/{deviceID}", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// WebSocket sessions are long-lived; no write timeout.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	supervisor.Wait()
	slog.Info("Server stopped successfully")
}
