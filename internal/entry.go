// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/analyzer"
	"github.com/starford/ansuz/internal/api"
	"github.com/starford/ansuz/internal/changelog"
	"github.com/starford/ansuz/internal/filter"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/mcpserver"
	"github.com/starford/ansuz/internal/oracle"
	"github.com/starford/ansuz/internal/prefs"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
)

// stack is the wired application core shared by the HTTP and MCP entrypoints.
type stack struct {
	cfg     *Config
	logger  *slog.Logger
	store   storage.Provider
	db      *index.DB
	changes *changelog.Store
	learner *prefs.Learner
	svc     *analyzer.Service
	broker  *sse.Broker
}

func (s *stack) close() {
	if s.broker != nil {
		s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// buildStack wires storage, index, changelog, preferences, oracle, and the
// analyzer. logOut is where structured logs go; the MCP entrypoint must keep
// stdout free for the protocol.
func buildStack(app *application, logOut io.Writer, withBroker bool) (*stack, error) {
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("oracle_backend", cfg.Oracle.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	changes := changelog.NewStore(store, logger, cfg.Changelog.Retention)
	changes.Load()

	learner := prefs.NewLearner(store, logger)
	learner.Load()

	oracleClient := app.oracle
	if oracleClient == nil {
		oracleClient, err = newOracle(&cfg.Oracle)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init oracle: %w", err)
		}
	}

	var broker *sse.Broker
	if withBroker {
		broker = sse.NewBroker(2 * time.Second)
	}

	svc := analyzer.NewService(store, db, oracleClient, changes, learner, broker, logger, analyzer.Options{
		Filter: filter.Options{
			MinConfidence:  cfg.Analysis.MinConfidence,
			AllowNewTags:   cfg.Analysis.AllowNewTags,
			PredefinedTags: cfg.Analysis.PredefinedTags,
			Blacklist:      cfg.Analysis.Blacklist,
		},
		MaxTokens:   cfg.Oracle.MaxTokens,
		Temperature: cfg.Oracle.Temperature,
		BatchDelay:  cfg.Analysis.BatchDelay,
	})

	return &stack{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		db:      db,
		changes: changes,
		learner: learner,
		svc:     svc,
		broker:  broker,
	}, nil
}

func newOracle(cfg *OracleConfig) (oracle.Client, error) {
	switch cfg.Backend {
	case OracleBackendOpenAI:
		return oracle.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return oracle.NewOllama(cfg.BaseURL, cfg.Model)
	}
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	st, err := buildStack(app, os.Stdout, true)
	if err != nil {
		return err
	}
	defer st.close()

	cfg := st.cfg
	logger := st.logger

	h := api.NewHandler(st.svc, st.changes, st.learner, st.db, st.store)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, st.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher: every event feeds the SSE stream, and in reactive
	// mode also the analyzer.
	g.Go(func() error {
		err := index.Watch(gCtx, st.db, st.store, cfg.Vault.Path, logger, func(kind, path string) {
			st.broker.PublishNoteEvent(kind, path)
			if cfg.Analysis.Auto {
				st.svc.HandleNoteEvent(kind, path)
			}
		})
		if err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Close any session left open by reactive analysis.
		st.changes.EndSession()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP stdio server with the given options. Logs go to
// stderr; stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	st, err := buildStack(app, os.Stderr, false)
	if err != nil {
		return err
	}
	defer st.close()

	srv := mcpserver.New(st.svc, st.changes, st.learner, st.store, st.db)
	st.logger.Info("MCP server starting on stdio")
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}
