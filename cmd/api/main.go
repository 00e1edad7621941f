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

	"github.com/joho/godotenv"

	"github.com/vinaeu/insights/backend/internal/config"
	"github.com/vinaeu/insights/backend/internal/handler"
	"github.com/vinaeu/insights/backend/internal/logging"
	"github.com/vinaeu/insights/backend/internal/middleware"
	"github.com/vinaeu/insights/backend/internal/service/ai"
	"github.com/vinaeu/insights/backend/internal/service/auth"
	"github.com/vinaeu/insights/backend/internal/service/chat"
	"github.com/vinaeu/insights/backend/internal/service/identity"
	"github.com/vinaeu/insights/backend/internal/store"
	"github.com/vinaeu/insights/backend/internal/store/memory"
	pebblestore "github.com/vinaeu/insights/backend/internal/store/pebble"
	"github.com/vinaeu/insights/backend/internal/store/sqlite"
	"github.com/vinaeu/insights/backend/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, closeLog, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialise logging: %v", err)
	}
	defer closeLog()

	cleanupTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}
	defer cleanupTracing()

	st, err := openStore(cfg.Store)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("store opened", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	metrics := telemetry.NewMetrics()

	provider := identity.NewClient(cfg.Auth.IdentityProviderURL, cfg.Auth.ProviderTimeout, nil)
	authSvc := auth.NewService(provider, st, st,
		auth.WithLogger(logger.With("component", "auth")),
		auth.WithMetrics(metrics),
	)

	// A nil completer keeps the chat endpoint up and answering with the fallback.
	var completer chat.Completer
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			logger.Warn("failed to initialise AI service, continuing without completions", "error", err)
		} else {
			completer = aiService
			logger.Info("AI service initialized successfully")
		}
	} else {
		logger.Info("ark credentials not configured, skipping AI initialisation")
	}
	chatSvc := chat.NewService(st, completer,
		chat.WithLogger(logger.With("component", "chat")),
		chat.WithMetrics(metrics),
	)

	router := handler.NewRouter(handler.Deps{
		Auth:         authSvc,
		Chat:         chatSvc,
		CookieSecure: cfg.Auth.CookieSecure,
		LoginLimiter: middleware.NewRateLimiter(cfg.Auth.LoginRPS, cfg.Auth.LoginBurst),
		Metrics:      metrics,
	})

	if err := startServer(ctx, cfg.Server, router, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite:
		return sqlite.Open(cfg.Path)
	case config.StorePebble:
		return pebblestore.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("insights backend listening", "addr", serverCfg.Addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
