package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/d2Anubis/totally-shopcore/internal/di"
	"github.com/d2Anubis/totally-shopcore/internal/handlers"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
	"github.com/d2Anubis/totally-shopcore/internal/platform/config"
	"github.com/d2Anubis/totally-shopcore/internal/platform/observability"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("shopd")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	notifier := services.NotifierFunc(func(ctx context.Context, level services.NoticeLevel, message string) {
		logger.Info("user notice", zap.String("level", string(level)), zap.String("message", message))
	})

	container, err := di.NewContainer(ctx, di.ContainerDeps{
		Config:   cfg,
		Logger:   logger,
		Notifier: notifier,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	if err := container.Restore(ctx); err != nil {
		// A failed resume degrades to a fresh guest session.
		logger.Warn("session restore failed", zap.Error(err))
	}

	session := handlers.NewSessionHandlers(container.Backend, container.Services.Shop)
	cart := handlers.NewCartHandlers(container.Services.Shop)
	wishlist := handlers.NewWishlistHandlers(container.Services.Shop)
	pricing := handlers.NewPricingHandlers(container.Services.Pricing, container.Services.Currency)
	catalog := handlers.NewCatalogHandlers(container.Backend, container.Services.Search)
	checkout := handlers.NewCheckoutHandlers(container.Backend, container.Services.Shop, container.Store)

	health := handlers.NewHealthHandlers(func(ctx context.Context) error {
		_, _, err := container.Store.Get(ctx, localstore.KeyUser)
		return err
	})

	router := handlers.NewRouter(
		handlers.WithHealthHandlers(health),
		handlers.WithSessionRoutes(session.Routes),
		handlers.WithCartRoutes(cart.Routes),
		handlers.WithWishlistRoutes(wishlist.Routes),
		handlers.WithPricingRoutes(pricing.Routes),
		handlers.WithCatalogRoutes(catalog.Routes),
		handlers.WithCheckoutRoutes(checkout.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
}
