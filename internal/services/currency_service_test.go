package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

type stubCurrencyAPI struct {
	table domain.RateTable
	err   error
	calls int
}

func (s *stubCurrencyAPI) GetCurrencies(context.Context) (domain.RateTable, error) {
	s.calls++
	if s.err != nil {
		return domain.RateTable{}, s.err
	}
	return s.table, nil
}

func newCurrencyFixture(t *testing.T, api *stubCurrencyAPI, now time.Time) (CurrencyService, localstore.Store) {
	t.Helper()
	store := localstore.NewMemory()
	service, err := NewCurrencyService(CurrencyServiceDeps{
		API:   api,
		Store: store,
		Clock: func() time.Time { return now },
		TTL:   time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing currency service: %v", err)
	}
	return service, store
}

func usdJpyTable(fetchedAt time.Time) domain.RateTable {
	return domain.RateTable{
		Rates:     map[string]float64{"USD": 0.012, "JPY": 1.81},
		Symbols:   map[string]string{"USD": "$", "JPY": "¥"},
		FetchedAt: fetchedAt,
	}
}

func TestRatesFetchesOnceWithinCacheWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{table: usdJpyTable(now)}
	service, store := newCurrencyFixture(t, api, now)
	ctx := context.Background()

	if _, err := service.Rates(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.Rates(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.calls != 1 {
		t.Fatalf("expected a single fetch inside the cache window, got %d", api.calls)
	}

	// The table is persisted for the next process.
	var persisted domain.RateTable
	ok, err := localstore.GetJSON(ctx, store, localstore.KeyCurrencyRates, &persisted)
	if err != nil || !ok || persisted.Rates["USD"] != 0.012 {
		t.Fatalf("expected persisted table, got ok=%v err=%v table=%+v", ok, err, persisted)
	}
}

func TestRatesAdoptsPersistedTableWithoutFetching(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{err: errors.New("should not be called")}
	service, store := newCurrencyFixture(t, api, now)
	ctx := context.Background()

	if err := localstore.SetJSON(ctx, store, localstore.KeyCurrencyRates, usdJpyTable(now.Add(-30*time.Minute))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := service.Rates(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Rates["JPY"] != 1.81 || api.calls != 0 {
		t.Fatalf("expected persisted table adopted without fetch, calls=%d table=%+v", api.calls, table)
	}
}

func TestRatesFallsBackToStaleTableOnFetchFailure(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{err: errors.New("backend down")}
	service, store := newCurrencyFixture(t, api, now)
	ctx := context.Background()

	if err := localstore.SetJSON(ctx, store, localstore.KeyCurrencyRates, usdJpyTable(now.Add(-3*time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	table, err := service.Rates(ctx)
	if err != nil {
		t.Fatalf("expected stale fallback, got error: %v", err)
	}
	if table.Rates["USD"] != 0.012 {
		t.Fatalf("unexpected fallback table %+v", table)
	}
}

func TestRatesErrorsWithoutAnyTable(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{err: errors.New("backend down")}
	service, _ := newCurrencyFixture(t, api, now)

	if _, err := service.Rates(context.Background()); !errors.Is(err, ErrCurrencyUnavailable) {
		t.Fatalf("expected ErrCurrencyUnavailable, got %v", err)
	}
}

func TestConvertRoundsToCurrencyScale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{table: usdJpyTable(now)}
	service, _ := newCurrencyFixture(t, api, now)
	ctx := context.Background()

	usd, err := service.Convert(ctx, 1000, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usd != 12.00 {
		t.Fatalf("expected 12.00 USD, got %v", usd)
	}

	// JPY has no minor unit, so the converted amount is a whole number.
	jpy, err := service.Convert(ctx, 1000, "JPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jpy != 1810 {
		t.Fatalf("expected 1810 JPY, got %v", jpy)
	}

	// INR is the base currency and needs no table.
	inr, err := service.Convert(ctx, 1234.567, "INR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inr != 1234.57 {
		t.Fatalf("expected 1234.57 INR, got %v", inr)
	}
}

func TestConvertUnknownCurrency(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{table: usdJpyTable(now)}
	service, _ := newCurrencyFixture(t, api, now)
	ctx := context.Background()

	if _, err := service.Convert(ctx, 100, "ZZZ"); !errors.Is(err, ErrCurrencyInvalidInput) {
		t.Fatalf("expected ErrCurrencyInvalidInput, got %v", err)
	}
	if _, err := service.Convert(ctx, 100, "CHF"); !errors.Is(err, ErrRateUnknown) {
		t.Fatalf("expected ErrRateUnknown for missing rate, got %v", err)
	}
}

func TestFormatUsesSymbolAndScale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{table: usdJpyTable(now)}
	service, _ := newCurrencyFixture(t, api, now)
	ctx := context.Background()

	usd, err := service.Format(ctx, 1000, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usd != "$12.00" {
		t.Fatalf("expected $12.00, got %q", usd)
	}

	jpy, err := service.Format(ctx, 1000, "JPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jpy != "¥1810" {
		t.Fatalf("expected ¥1810, got %q", jpy)
	}
}

func TestFormatWithoutTableSymbolUsesConventionalSymbol(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api := &stubCurrencyAPI{table: domain.RateTable{
		Rates:     map[string]float64{"USD": 0.012, "JPY": 1.81},
		FetchedAt: now,
	}}
	service, _ := newCurrencyFixture(t, api, now)
	ctx := context.Background()

	// Never the bare ISO code ("JPY1810") when the table carries no symbol.
	jpy, err := service.Format(ctx, 1000, "JPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jpy != "¥1810" {
		t.Fatalf("expected ¥1810, got %q", jpy)
	}

	usd, err := service.Format(ctx, 1000, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usd != "$12.00" {
		t.Fatalf("expected $12.00, got %q", usd)
	}
}
