package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	xcurrency "golang.org/x/text/currency"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
	"github.com/d2Anubis/totally-shopcore/internal/platform/events"
)

var (
	errPricingGeoRequired   = errors.New("pricing service: geo api is required")
	errPricingStoreRequired = errors.New("pricing service: store is required")
	errPricingClockRequired = errors.New("pricing service: clock is required")
)

// ErrPricingInvalidInput indicates the caller supplied invalid input.
var ErrPricingInvalidInput = errors.New("pricing service: invalid input")

// LocationPricingService resolves which country/currency pair prices are
// displayed in. Resolution priority: manual selection, cached detection
// inside its freshness window, IP geolocation, then the India/INR fallback.
type LocationPricingService interface {
	Resolve(ctx context.Context) (domain.PricingContext, error)
	SelectCountry(ctx context.Context, country, currencyCode string) (domain.PricingContext, error)
	ClearSelection(ctx context.Context) error
}

// LocationPricingDeps wires the pricing resolution dependencies.
type LocationPricingDeps struct {
	Geo             GeoAPI
	Store           localstore.Store
	Bus             *events.Bus
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
	GeoLookupURL    string
	ContextTTL      time.Duration
	DefaultCountry  string
	DefaultCurrency string
}

type locationPricingService struct {
	geo             GeoAPI
	store           localstore.Store
	bus             *events.Bus
	now             func() time.Time
	logger          func(context.Context, string, map[string]any)
	geoLookupURL    string
	contextTTL      time.Duration
	defaultCountry  string
	defaultCurrency string
}

// NewLocationPricingService constructs a LocationPricingService enforcing
// dependency validation.
func NewLocationPricingService(deps LocationPricingDeps) (LocationPricingService, error) {
	if deps.Geo == nil {
		return nil, errPricingGeoRequired
	}
	if deps.Store == nil {
		return nil, errPricingStoreRequired
	}
	if deps.Clock == nil {
		return nil, errPricingClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.ContextTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	country := strings.ToUpper(strings.TrimSpace(deps.DefaultCountry))
	if country == "" {
		country = "IN"
	}
	code := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if code == "" {
		code = "INR"
	}

	return &locationPricingService{
		geo:             deps.Geo,
		store:           deps.Store,
		bus:             deps.Bus,
		now:             func() time.Time { return deps.Clock().UTC() },
		logger:          logger,
		geoLookupURL:    deps.GeoLookupURL,
		contextTTL:      ttl,
		defaultCountry:  country,
		defaultCurrency: code,
	}, nil
}

// Resolve walks the source priority chain and returns the active context.
// Every resolution is announced on the bus so price displays can refresh.
func (s *locationPricingService) Resolve(ctx context.Context) (domain.PricingContext, error) {
	resolved := s.resolve(ctx)
	s.announce(ctx, events.TopicPricingReady, resolved)
	return resolved, nil
}

func (s *locationPricingService) resolve(ctx context.Context) domain.PricingContext {
	now := s.now()

	var manual domain.PricingContext
	ok, err := localstore.GetJSON(ctx, s.store, localstore.KeySelectedCountry, &manual)
	if err != nil {
		s.logger(ctx, "pricing.manual_selection_corrupt", map[string]any{"error": err.Error()})
		_ = s.store.Delete(ctx, localstore.KeySelectedCountry)
	} else if ok && manual.Fresh(now, s.contextTTL) {
		return manual
	}

	var cached domain.PricingContext
	ok, err = localstore.GetJSON(ctx, s.store, localstore.KeyPricingContext, &cached)
	if err != nil {
		s.logger(ctx, "pricing.cached_context_corrupt", map[string]any{"error": err.Error()})
		_ = s.store.Delete(ctx, localstore.KeyPricingContext)
	} else if ok && cached.Fresh(now, s.contextTTL) {
		cached.Source = domain.PricingSourceCached
		return cached
	}

	if detected, ok := s.detect(ctx, now); ok {
		return detected
	}

	return domain.PricingContext{
		Country:    s.defaultCountry,
		Currency:   s.defaultCurrency,
		DetectedAt: now,
		Source:     domain.PricingSourceFallback,
	}
}

func (s *locationPricingService) detect(ctx context.Context, now time.Time) (domain.PricingContext, bool) {
	location, err := s.geo.GeoLocate(ctx, s.geoLookupURL)
	if err != nil {
		s.logger(ctx, "pricing.geo_lookup_failed", map[string]any{"error": err.Error()})
		return domain.PricingContext{}, false
	}
	if location.CountryCode == "" || location.Currency == "" {
		return domain.PricingContext{}, false
	}
	if _, err := xcurrency.ParseISO(location.Currency); err != nil {
		s.logger(ctx, "pricing.geo_currency_invalid", map[string]any{"currency": location.Currency})
		return domain.PricingContext{}, false
	}

	detected := domain.PricingContext{
		Country:    location.CountryCode,
		Currency:   location.Currency,
		DetectedAt: now,
		Source:     domain.PricingSourceGeo,
	}
	if err := localstore.SetJSON(ctx, s.store, localstore.KeyPricingContext, detected); err != nil {
		s.logger(ctx, "pricing.context_save_failed", map[string]any{"error": err.Error()})
	}
	return detected, true
}

// SelectCountry records an explicit country/currency choice. Manual
// selections outrank every detection path and never expire on their own.
func (s *locationPricingService) SelectCountry(ctx context.Context, country, currencyCode string) (domain.PricingContext, error) {
	trimmedCountry := strings.ToUpper(strings.TrimSpace(country))
	if len(trimmedCountry) != 2 {
		return domain.PricingContext{}, fmt.Errorf("%w: country must be a two-letter code", ErrPricingInvalidInput)
	}
	unit, err := xcurrency.ParseISO(strings.TrimSpace(currencyCode))
	if err != nil {
		return domain.PricingContext{}, fmt.Errorf("%w: unknown currency %q", ErrPricingInvalidInput, currencyCode)
	}

	selected := domain.PricingContext{
		Country:    trimmedCountry,
		Currency:   unit.String(),
		DetectedAt: s.now(),
		Source:     domain.PricingSourceManual,
	}
	if err := localstore.SetJSON(ctx, s.store, localstore.KeySelectedCountry, selected); err != nil {
		return domain.PricingContext{}, fmt.Errorf("pricing service: persist selection: %w", err)
	}

	s.announce(ctx, events.TopicCurrencyChanged, selected)
	s.announce(ctx, events.TopicPricingReady, selected)
	return selected, nil
}

// ClearSelection removes the manual override so detection applies again.
func (s *locationPricingService) ClearSelection(ctx context.Context) error {
	if err := s.store.Delete(ctx, localstore.KeySelectedCountry); err != nil {
		return fmt.Errorf("pricing service: clear selection: %w", err)
	}
	return nil
}

func (s *locationPricingService) announce(ctx context.Context, topic string, payload domain.PricingContext) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		s.logger(ctx, "pricing.publish_failed", map[string]any{"topic": topic, "error": err.Error()})
	}
}
