// Package localstore is the durable key/value layer standing in for the
// storefront's browser local storage. Values are JSON documents wrapped in a
// versioned envelope so schema changes can be detected instead of silently
// misread.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known keys mirrored from the storefront.
const (
	KeyAuthToken        = "auth_token"
	KeyRefreshToken     = "refresh_token"
	KeyUser             = "user"
	KeyGuestCart        = "guest_cart"
	KeyGuestWishlist    = "guest_wishlist"
	KeyCheckoutRedirect = "checkout_redirect"
	KeyReturnURL        = "return_url"
	KeySelectedCountry  = "selected_country"
	KeySelectedCurrency = "selected_currency_data"
	KeyCurrencyRates    = "currency_rates_cache"
	KeyPricingContext   = "user_pricing_context"
)

const schemaVersion = 1

// ErrInvalidKey is returned when an empty or malformed key is supplied.
var ErrInvalidKey = errors.New("localstore: invalid key")

// ErrCorruptValue indicates the stored document could not be decoded. Callers
// are expected to log it and treat the key as absent.
var ErrCorruptValue = errors.New("localstore: corrupt value")

// Store is the raw byte-level contract implemented by each backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// GetJSON reads the key and decodes its envelope into target. It returns
// false when the key is absent and ErrCorruptValue when the document cannot
// be decoded or carries an unknown schema version.
func GetJSON(ctx context.Context, store Store, key string, target any) (bool, error) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("%w: key %s: %v", ErrCorruptValue, key, err)
	}
	if env.Version != schemaVersion {
		return false, fmt.Errorf("%w: key %s: unsupported schema version %d", ErrCorruptValue, key, env.Version)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return false, fmt.Errorf("%w: key %s: %v", ErrCorruptValue, key, err)
	}
	return true, nil
}

// SetJSON encodes the value inside the versioned envelope and stores it.
func SetJSON(ctx context.Context, store Store, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("localstore: encode key %s: %w", key, err)
	}
	raw, err := json.Marshal(envelope{Version: schemaVersion, Data: data})
	if err != nil {
		return fmt.Errorf("localstore: encode envelope for key %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}
