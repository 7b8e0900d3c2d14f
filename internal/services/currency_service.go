package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	xcurrency "golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

// symbolPrinter renders the conventional symbol for currencies the rate
// table carries no symbol for.
var symbolPrinter = message.NewPrinter(language.English)

var (
	errCurrencyAPIRequired   = errors.New("currency service: currency api is required")
	errCurrencyStoreRequired = errors.New("currency service: store is required")
	errCurrencyClockRequired = errors.New("currency service: clock is required")
)

// ErrCurrencyInvalidInput indicates an unknown or malformed currency code.
var ErrCurrencyInvalidInput = errors.New("currency service: invalid input")

// ErrCurrencyUnavailable indicates no rate table could be obtained.
var ErrCurrencyUnavailable = errors.New("currency service: unavailable")

// ErrRateUnknown indicates the table has no rate for the requested currency.
var ErrRateUnknown = errors.New("currency service: rate unknown")

// CurrencyService caches the INR conversion table and converts display
// amounts into the visitor's currency.
type CurrencyService interface {
	Rates(ctx context.Context) (domain.RateTable, error)
	Convert(ctx context.Context, amountINR float64, code string) (float64, error)
	Format(ctx context.Context, amountINR float64, code string) (string, error)
}

// CurrencyServiceDeps wires the conversion dependencies.
type CurrencyServiceDeps struct {
	API    CurrencyAPI
	Store  localstore.Store
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
	TTL    time.Duration
}

type currencyService struct {
	api    CurrencyAPI
	store  localstore.Store
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
	ttl    time.Duration

	mu    sync.Mutex
	table domain.RateTable
}

// NewCurrencyService constructs a CurrencyService enforcing dependency
// validation.
func NewCurrencyService(deps CurrencyServiceDeps) (CurrencyService, error) {
	if deps.API == nil {
		return nil, errCurrencyAPIRequired
	}
	if deps.Store == nil {
		return nil, errCurrencyStoreRequired
	}
	if deps.Clock == nil {
		return nil, errCurrencyClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &currencyService{
		api:    deps.API,
		store:  deps.Store,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
		ttl:    ttl,
	}, nil
}

// Rates returns a rate table no older than the cache window. A fetch failure
// falls back to the last persisted table even when stale, so prices keep
// rendering during backend hiccups.
func (s *currencyService) Rates(ctx context.Context) (domain.RateTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.table.Fresh(now, s.ttl) {
		return s.table, nil
	}

	var persisted domain.RateTable
	ok, err := localstore.GetJSON(ctx, s.store, localstore.KeyCurrencyRates, &persisted)
	if err != nil {
		s.logger(ctx, "currency.rates_cache_corrupt", map[string]any{"error": err.Error()})
		_ = s.store.Delete(ctx, localstore.KeyCurrencyRates)
		ok = false
	}
	if ok && persisted.Fresh(now, s.ttl) {
		s.table = persisted
		return s.table, nil
	}

	fetched, fetchErr := s.api.GetCurrencies(ctx)
	if fetchErr != nil {
		s.logger(ctx, "currency.rates_fetch_failed", map[string]any{"error": fetchErr.Error()})
		if ok && len(persisted.Rates) > 0 {
			s.table = persisted
			return s.table, nil
		}
		return domain.RateTable{}, fmt.Errorf("%w: %v", ErrCurrencyUnavailable, fetchErr)
	}

	s.table = fetched
	if err := localstore.SetJSON(ctx, s.store, localstore.KeyCurrencyRates, fetched); err != nil {
		s.logger(ctx, "currency.rates_cache_save_failed", map[string]any{"error": err.Error()})
	}
	return s.table, nil
}

// Convert turns an INR amount into the target currency, rounded to the
// currency's standard decimal scale. INR passes through unchanged.
func (s *currencyService) Convert(ctx context.Context, amountINR float64, code string) (float64, error) {
	unit, err := parseCurrency(code)
	if err != nil {
		return 0, err
	}
	if unit.String() == "INR" {
		return roundToScale(amountINR, scaleOf(unit)), nil
	}

	table, err := s.Rates(ctx)
	if err != nil {
		return 0, err
	}
	rate, ok := table.Rate(unit.String())
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrRateUnknown, unit.String())
	}
	return roundToScale(amountINR*rate, scaleOf(unit)), nil
}

// Format renders the converted amount with the currency's symbol, using the
// scale the currency actually trades in (so JPY shows no decimals).
func (s *currencyService) Format(ctx context.Context, amountINR float64, code string) (string, error) {
	unit, err := parseCurrency(code)
	if err != nil {
		return "", err
	}

	amount, err := s.Convert(ctx, amountINR, unit.String())
	if err != nil {
		return "", err
	}

	symbol := symbolPrinter.Sprint(xcurrency.Symbol(unit))
	s.mu.Lock()
	if sym, ok := s.table.Symbols[unit.String()]; ok {
		symbol = sym
	}
	s.mu.Unlock()

	scale := scaleOf(unit)
	if scale == 0 {
		return symbol + strconv.FormatInt(int64(math.Round(amount)), 10), nil
	}
	return symbol + strconv.FormatFloat(amount, 'f', scale, 64), nil
}

func parseCurrency(code string) (xcurrency.Unit, error) {
	unit, err := xcurrency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return xcurrency.Unit{}, fmt.Errorf("%w: unknown currency %q", ErrCurrencyInvalidInput, code)
	}
	return unit, nil
}

func scaleOf(unit xcurrency.Unit) int {
	scale, _ := xcurrency.Standard.Rounding(unit)
	return scale
}

func roundToScale(amount float64, scale int) float64 {
	factor := math.Pow10(scale)
	return math.Round(amount*factor) / factor
}
