package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/congo-pay/accounts/internal/accounts"
	"github.com/congo-pay/accounts/internal/auth"
	"github.com/congo-pay/accounts/internal/config"
	"github.com/congo-pay/accounts/internal/credential"
	"github.com/congo-pay/accounts/internal/infra"
	"github.com/congo-pay/accounts/internal/logging"
	"github.com/congo-pay/accounts/internal/notification"
	"github.com/congo-pay/accounts/internal/routes"
	"github.com/congo-pay/accounts/internal/server"
	"github.com/congo-pay/accounts/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.AppName, cfg.LogLevel)

	ctx := context.Background()

	db, err := infra.OpenDocumentStore(ctx, cfg.StoreDriver, cfg.StoreLocation, logger)
	if err != nil {
		logger.Error("open document store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close document store", "error", err)
		}
	}()

	store, err := users.NewStore(db, users.Options{
		Collection: cfg.CollectionName,
		UniqueName: cfg.UniqueName,
		UseExtra:   cfg.UseExtra,
		TokenTTL:   cfg.SignupTokenTTL,
	}, users.WithHasher(credential.NewArgon2Hasher(cfg.HashWorkFactor)), users.WithLogger(logger))
	if err != nil {
		logger.Error("build user store", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Error("ensure user indexes", "collection", cfg.CollectionName, "error", err)
		os.Exit(1)
	}

	deps := routes.Deps{Cfg: cfg, Store: db, Logger: logger}

	if cfg.CacheURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.CacheURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		deps.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set; idempotency and login rate limiting disabled")
	}

	deps.Accounts = accounts.NewService(store, notification.NewLoggerNotifier(logger), accounts.Options{
		MaxAttempts: cfg.MaxLoginAttempts,
		TokenTTL:    cfg.SignupTokenTTL,
	}, logger)

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		if secret, err = auth.GenerateSecret(); err != nil {
			logger.Error("generate jwt secret", "error", err)
			os.Exit(1)
		}
		logger.Warn("JWT_SECRET not set; using a random secret, access tokens will not survive a restart")
	}
	deps.Tokens, err = auth.NewIssuer(secret, cfg.AccessTokenTTL, cfg.JWTIssuer)
	if err != nil {
		logger.Error("build token issuer", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(deps)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
