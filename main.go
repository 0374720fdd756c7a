package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"lichka/internal/auth"
	"lichka/internal/config"
	"lichka/internal/delivery"
	"lichka/internal/http"
	"lichka/internal/presence"
	"lichka/internal/profile"
	"lichka/internal/storage"
	"lichka/internal/ws"
)

func run(ctx context.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	verifier, err := auth.NewVerifier(ctx, auth.Config{
		Secret:   cfg.JWTSecret,
		CacheTTL: cfg.TokenCacheTTL,
	})
	if err != nil {
		return err
	}

	profiles := profile.NewHTTPDirectory(ctx, profile.Config{
		BaseURL:  cfg.UserServiceURL,
		CacheTTL: cfg.ProfileCacheTTL,
	})

	registry := presence.NewRegistry()
	router := delivery.NewRouter(store, registry, profiles, logger)
	hub := ws.NewHub(registry, router, logger)

	apiServer := http.NewAPIServer(verifier, hub, router, logger, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
