package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
)

type currencyEntry struct {
	Code   string  `json:"currency_code"`
	Rate   float64 `json:"our_rate"`
	Symbol string  `json:"symbol"`
}

// GetCurrencies fetches the INR conversion table published by the backend.
func (c *Client) GetCurrencies(ctx context.Context) (domain.RateTable, error) {
	var resp struct {
		Currencies []currencyEntry `json:"currencies"`
	}
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		path:   "/user/currency/get-currencies",
	}, &resp)
	if err != nil {
		return domain.RateTable{}, err
	}

	table := domain.RateTable{
		Rates:     make(map[string]float64, len(resp.Currencies)),
		Symbols:   make(map[string]string, len(resp.Currencies)),
		FetchedAt: c.now().UTC(),
	}
	for _, entry := range resp.Currencies {
		code := strings.ToUpper(strings.TrimSpace(entry.Code))
		if code == "" || entry.Rate <= 0 {
			continue
		}
		table.Rates[code] = entry.Rate
		if symbol := strings.TrimSpace(entry.Symbol); symbol != "" {
			table.Symbols[code] = symbol
		}
	}
	return table, nil
}

// GeoLocation is the subset of the IP lookup response the pricing layer uses.
type GeoLocation struct {
	CountryCode string `json:"country_code"`
	Currency    string `json:"currency"`
}

// GeoLocate resolves the caller's country from an external IP lookup service.
// The lookup URL is absolute and independent of the backend base URL.
func (c *Client) GeoLocate(ctx context.Context, lookupURL string) (GeoLocation, error) {
	trimmed := strings.TrimSpace(lookupURL)
	if trimmed == "" {
		return GeoLocation{}, fmt.Errorf("backend: geo lookup url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return GeoLocation{}, fmt.Errorf("backend: build geo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return GeoLocation{}, fmt.Errorf("backend: geo lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return GeoLocation{}, &APIError{Status: resp.StatusCode, Message: "geo lookup failed"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GeoLocation{}, fmt.Errorf("backend: read geo response: %w", err)
	}

	var location GeoLocation
	if err := json.Unmarshal(body, &location); err != nil {
		return GeoLocation{}, fmt.Errorf("backend: decode geo response: %w", err)
	}
	location.CountryCode = strings.ToUpper(strings.TrimSpace(location.CountryCode))
	location.Currency = strings.ToUpper(strings.TrimSpace(location.Currency))
	return location, nil
}
