package services

import (
	"context"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/domain"
)

// CartAPI is the slice of the backend client the cart paths depend on.
type CartAPI interface {
	GetCart(ctx context.Context) ([]domain.CartLine, error)
	AddCartItem(ctx context.Context, variantID string, quantity int) error
	BulkAddCartItems(ctx context.Context, items []backend.BulkCartItem) error
	RemoveCartItem(ctx context.Context, cartItemID string) error
	AdjustCartQuantity(ctx context.Context, cartItemID string, current, desired int) error
}

// WishlistAPI is the slice of the backend client the wishlist paths depend on.
type WishlistAPI interface {
	GetWishlist(ctx context.Context) ([]domain.WishlistProduct, error)
	AddWishlistProduct(ctx context.Context, productID string) error
	RemoveWishlistProduct(ctx context.Context, productID string) error
}

// CurrencyAPI fetches the INR conversion table.
type CurrencyAPI interface {
	GetCurrencies(ctx context.Context) (domain.RateTable, error)
}

// GeoAPI resolves the visitor's location from their IP.
type GeoAPI interface {
	GeoLocate(ctx context.Context, lookupURL string) (backend.GeoLocation, error)
}

// SearchAPI runs the backend's universal search.
type SearchAPI interface {
	UniversalSearch(ctx context.Context, term string) (backend.SearchResult, error)
}
