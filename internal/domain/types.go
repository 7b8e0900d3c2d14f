package domain

import (
	"strings"
	"time"
)

// IdentityState enumerates the shop session states driven by authentication.
type IdentityState string

const (
	// IdentityGuest marks a visitor without an authenticated session.
	IdentityGuest IdentityState = "guest"
	// IdentityTransitioning marks a session whose guest state is being merged after login.
	IdentityTransitioning IdentityState = "transitioning"
	// IdentityAuthenticated marks a session backed by a server-side user.
	IdentityAuthenticated IdentityState = "authenticated"
)

// Identity pairs the session state with the backing user id when present.
type Identity struct {
	State  IdentityState
	UserID string
}

// Guest reports whether the identity has no backing user.
func (i Identity) Guest() bool {
	return i.State == IdentityGuest || strings.TrimSpace(i.UserID) == ""
}

// LineKind discriminates guest-created cart lines from server-owned ones.
// The kind is decided once at creation and never inferred from field shape.
type LineKind string

const (
	// LineKindGuest marks a locally created line awaiting reconciliation.
	LineKindGuest LineKind = "guest"
	// LineKindServer marks a line mirrored from the authenticated server cart.
	LineKindServer LineKind = "server"
)

// ProductSnapshot is the denormalised product projection embedded in guest
// lines so the cart renders without extra catalog lookups.
type ProductSnapshot struct {
	Title        string   `json:"title"`
	Brand        string   `json:"brand,omitempty"`
	ImageURLs    []string `json:"image_urls,omitempty"`
	ComparePrice float64  `json:"compare_price,omitempty"`
	InStock      bool     `json:"in_stock"`
}

// CartLine is a single cart entry. Guest lines carry a locally generated id
// and a product snapshot; server lines reference the backend cart-item id.
type CartLine struct {
	Kind      LineKind         `json:"kind"`
	ID        string           `json:"id"`
	VariantID string           `json:"variant_id"`
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice float64          `json:"unit_price"`
	Snapshot  *ProductSnapshot `json:"snapshot,omitempty"`
	AddedAt   time.Time        `json:"added_at"`
}

// LineTotal returns the INR amount contributed by this line.
func (l CartLine) LineTotal() float64 {
	if l.Quantity <= 0 {
		return 0
	}
	return l.UnitPrice * float64(l.Quantity)
}

// CartTotals are derived values recomputed from the line slice; they are
// never mutated independently of it.
type CartTotals struct {
	Subtotal float64 `json:"subtotal"`
	Count    int     `json:"count"`
}

// TotalsOf computes subtotal and item count over the provided lines.
func TotalsOf(lines []CartLine) CartTotals {
	var totals CartTotals
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		totals.Subtotal += line.LineTotal()
		totals.Count += line.Quantity
	}
	return totals
}

// WishlistProduct is the projection shared by guest and authenticated
// wishlists.
type WishlistProduct struct {
	ProductID   string  `json:"product_id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	DiscountPct float64 `json:"discount_pct,omitempty"`
	ImageURL    string  `json:"image_url,omitempty"`
	InStock     bool    `json:"in_stock"`
}

// PricingSource records how the active pricing context was decided.
type PricingSource string

const (
	// PricingSourceManual means the user picked the country/currency explicitly.
	PricingSourceManual PricingSource = "manual"
	// PricingSourceCached means a previous detection was reused within its freshness window.
	PricingSourceCached PricingSource = "cached"
	// PricingSourceGeo means the context came from IP geolocation.
	PricingSourceGeo PricingSource = "geo"
	// PricingSourceFallback means the hardcoded India/INR default applied.
	PricingSourceFallback PricingSource = "fallback"
)

// PricingContext is the active country/currency pair used for display pricing.
type PricingContext struct {
	Country    string        `json:"country"`
	Currency   string        `json:"currency"`
	DetectedAt time.Time     `json:"detected_at"`
	Source     PricingSource `json:"source"`
}

// Fresh reports whether the context is still inside its freshness window.
// Manual selections never go stale.
func (c PricingContext) Fresh(now time.Time, ttl time.Duration) bool {
	if c.Country == "" || c.Currency == "" {
		return false
	}
	if c.Source == PricingSourceManual {
		return true
	}
	if c.DetectedAt.IsZero() {
		return false
	}
	return now.Sub(c.DetectedAt) <= ttl
}

// RateTable holds INR conversion rates keyed by target currency code.
type RateTable struct {
	Rates     map[string]float64 `json:"rates"`
	Symbols   map[string]string  `json:"symbols,omitempty"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// Fresh reports whether the table is still inside its cache window.
func (t RateTable) Fresh(now time.Time, ttl time.Duration) bool {
	if len(t.Rates) == 0 || t.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(t.FetchedAt) <= ttl
}

// Rate returns the conversion rate for the target currency when known.
func (t RateTable) Rate(code string) (float64, bool) {
	rate, ok := t.Rates[strings.ToUpper(strings.TrimSpace(code))]
	if !ok || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// User is the authenticated profile mirrored from the backend session.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}
