package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
	"github.com/d2Anubis/totally-shopcore/internal/platform/config"
	"github.com/d2Anubis/totally-shopcore/internal/platform/events"
	"github.com/d2Anubis/totally-shopcore/internal/platform/observability"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Shop     services.ShopService
	Pricing  services.LocationPricingService
	Currency services.CurrencyService
	Search   *services.DebouncedSearch
}

// Container wires the store, backend client, event bus and services for
// runtime use.
type Container struct {
	Config   config.Config
	Store    localstore.Store
	Backend  *backend.Client
	Bus      *events.Bus
	Services Services
}

// ContainerDeps carries the externally constructed dependencies.
type ContainerDeps struct {
	Config   config.Config
	Logger   *zap.Logger
	Notifier services.Notifier
	Clock    func() time.Time
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	eventLog := observability.EventLogger(logger)

	store, err := buildStore(ctx, deps.Config.Store)
	if err != nil {
		return nil, fmt.Errorf("di: build store: %w", err)
	}

	client, err := backend.NewClient(backend.ClientDeps{
		BaseURL:     deps.Config.Backend.BaseURL,
		UserAgent:   deps.Config.Backend.UserAgent,
		Timeout:     deps.Config.Backend.Timeout,
		RefreshSkew: deps.Config.Backend.RefreshSkew,
		Store:       store,
		Clock:       clock,
		Logger:      eventLog,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("di: build backend client: %w", err)
	}

	bus := events.NewBus(logger)

	reconciler, err := services.NewReconciler(services.ReconcilerDeps{
		Cart:     client,
		Wishlist: client,
		Store:    store,
		Notifier: deps.Notifier,
		Logger:   eventLog,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("di: build reconciler: %w", err)
	}

	shop, err := services.NewShopService(services.ShopServiceDeps{
		Cart:     client,
		Wishlist: client,
		Store:    store,
		Merger:   reconciler,
		Sessions: client,
		Notifier: deps.Notifier,
		Clock:    clock,
		Logger:   eventLog,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("di: build shop service: %w", err)
	}

	pricing, err := services.NewLocationPricingService(services.LocationPricingDeps{
		Geo:             client,
		Store:           store,
		Bus:             bus,
		Clock:           clock,
		Logger:          eventLog,
		GeoLookupURL:    deps.Config.Pricing.GeoLookupURL,
		ContextTTL:      deps.Config.Pricing.ContextTTL,
		DefaultCountry:  deps.Config.Pricing.DefaultCountry,
		DefaultCurrency: deps.Config.Pricing.DefaultCurrency,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("di: build pricing service: %w", err)
	}

	currency, err := services.NewCurrencyService(services.CurrencyServiceDeps{
		API:    client,
		Store:  store,
		Clock:  clock,
		Logger: eventLog,
		TTL:    deps.Config.Pricing.RatesTTL,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("di: build currency service: %w", err)
	}

	search, err := services.NewDebouncedSearch(services.DebouncedSearchDeps{
		API:    client,
		Delay:  deps.Config.Search.Debounce,
		Logger: eventLog,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("di: build search service: %w", err)
	}

	return &Container{
		Config:  deps.Config,
		Store:   store,
		Backend: client,
		Bus:     bus,
		Services: Services{
			Shop:     shop,
			Pricing:  pricing,
			Currency: currency,
			Search:   search,
		},
	}, nil
}

// Restore primes the shop state from the persisted session, so a restarted
// process resumes where the previous one stopped.
func (c *Container) Restore(ctx context.Context) error {
	user, hasUser := c.Backend.CurrentUser(ctx)
	return c.Services.Shop.Restore(ctx, user, hasUser)
}

// Close releases the bus, pending searches and the store.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	if c.Services.Search != nil {
		c.Services.Search.Close()
	}
	var errs []error
	if c.Bus != nil {
		if err := c.Bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildStore(ctx context.Context, cfg config.StoreConfig) (localstore.Store, error) {
	switch cfg.Driver {
	case "memory":
		return localstore.NewMemory(), nil
	case "file", "":
		return localstore.NewFile(cfg.Path)
	case "redis":
		return localstore.NewRedis(ctx, localstore.RedisOptions{
			Addr:      cfg.RedisAddr,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
