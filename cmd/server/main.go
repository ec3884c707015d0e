// Study plan agent server
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

	"github.com/ashureev/studyplan/internal/actor"
	"github.com/ashureev/studyplan/internal/agent"
	"github.com/ashureev/studyplan/internal/api"
	"github.com/ashureev/studyplan/internal/config"
	"github.com/ashureev/studyplan/internal/identity"
	"github.com/ashureev/studyplan/internal/llm"
	"github.com/ashureev/studyplan/internal/metrics"
	"github.com/ashureev/studyplan/internal/middleware"
	"github.com/ashureev/studyplan/internal/pipeline"
	"github.com/ashureev/studyplan/internal/realtime"
	"github.com/ashureev/studyplan/internal/store"
	"github.com/ashureev/studyplan/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
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

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func newGateway(cfg config.ModelConfig, logger *slog.Logger) llm.Gateway {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIGateway(llm.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Name,
			Timeout: cfg.Timeout,
		}, logger)
	default:
		return llm.NewWorkersAIGateway(llm.WorkersAIConfig{
			BaseURL:   cfg.CFBaseURL,
			AccountID: cfg.CFAccountID,
			APIToken:  cfg.CFAPIToken,
			Model:     cfg.Name,
			Timeout:   cfg.Timeout,
		}, logger)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model_provider", cfg.Model.Provider)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	var m *metrics.Metrics
	reg := prometheus.NewRegistry()
	if cfg.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
	}

	gateway := llm.Instrument(newGateway(cfg.Model, logger), m)
	orchestrator := pipeline.New(gateway, pipeline.WithLogger(logger), pipeline.WithObserver(m))
	states := actor.NewRegistry(repo, actor.WithLogger(logger))
	svc := agent.NewService(states, orchestrator, logger)

	limiter := agent.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	// Initialize handlers.
	agentHandler := agent.NewHandler(svc, limiter, cfg.MaxRequestBody, logger)
	healthHandler := api.NewHealthHandler(repo)
	conns := realtime.NewConnManager()
	wsHandler := realtime.NewChatHandler(svc, conns, cfg.FrontendURL, cfg.IsDevelopment(),
		realtime.WithRateLimiter(limiter),
		realtime.WithObserver(m),
		realtime.WithLogger(logger),
	)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler(reg))
	}

	agentHandler.RegisterRoutes(r)

	// WebSocket endpoints. /ws is kept for older clients.
	r.Get("/ws/chat", wsHandler.ServeHTTP)
	r.Get("/ws", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Model calls can take tens of seconds, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Wait for shutdown signal or a listener failure.
		<-gctx.Done()
		stop()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conns.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
