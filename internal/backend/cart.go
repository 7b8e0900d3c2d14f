package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
)

var errCartItemIDRequired = errors.New("backend: cart item id is required")

type serverCartItem struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variant_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	Title     string    `json:"title"`
	Brand     string    `json:"brand"`
	Images    []string  `json:"images"`
	InStock   bool      `json:"in_stock"`
	AddedAt   time.Time `json:"added_at"`
}

type cartResponse struct {
	Items []serverCartItem `json:"items"`
}

// GetCart fetches the authoritative server cart for the authenticated user.
func (c *Client) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	var resp cartResponse
	err := c.do(ctx, requestOptions{
		method:        http.MethodGet,
		path:          "/user/order/get-cart",
		authenticated: true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(resp.Items))
	for _, item := range resp.Items {
		lines = append(lines, domain.CartLine{
			Kind:      domain.LineKindServer,
			ID:        item.ID,
			VariantID: item.VariantID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
			Snapshot: &domain.ProductSnapshot{
				Title:     item.Title,
				Brand:     item.Brand,
				ImageURLs: item.Images,
				InStock:   item.InStock,
			},
			AddedAt: item.AddedAt,
		})
	}
	return lines, nil
}

// AddCartItem adds a variant to the server cart.
func (c *Client) AddCartItem(ctx context.Context, variantID string, quantity int) error {
	if strings.TrimSpace(variantID) == "" {
		return errors.New("backend: variant id is required")
	}
	if quantity <= 0 {
		return fmt.Errorf("backend: quantity must be positive, got %d", quantity)
	}
	return c.do(ctx, requestOptions{
		method:        http.MethodPost,
		path:          "/user/order/add-to-cart",
		body:          map[string]any{"variant_id": variantID, "quantity": quantity},
		authenticated: true,
	}, nil)
}

// BulkCartItem is one entry of a bulk add payload.
type BulkCartItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// BulkAddCartItems submits the whole guest cart in a single call during
// reconciliation.
func (c *Client) BulkAddCartItems(ctx context.Context, items []BulkCartItem) error {
	if len(items) == 0 {
		return nil
	}
	return c.do(ctx, requestOptions{
		method:        http.MethodPost,
		path:          "/user/order/bulk-add-to-cart",
		body:          map[string]any{"items": items},
		authenticated: true,
	}, nil)
}

// RemoveCartItem deletes a server cart item by its id.
func (c *Client) RemoveCartItem(ctx context.Context, cartItemID string) error {
	trimmed := strings.TrimSpace(cartItemID)
	if trimmed == "" {
		return errCartItemIDRequired
	}
	return c.do(ctx, requestOptions{
		method:        http.MethodDelete,
		path:          "/user/order/remove-from-cart/" + url.PathEscape(trimmed),
		authenticated: true,
	}, nil)
}

// AdjustCartQuantity submits the signed delta between the last known and the
// desired quantity; the backend applies increments and decrements, not
// absolute values.
func (c *Client) AdjustCartQuantity(ctx context.Context, cartItemID string, current, desired int) error {
	trimmed := strings.TrimSpace(cartItemID)
	if trimmed == "" {
		return errCartItemIDRequired
	}
	delta := desired - current
	if delta == 0 {
		return nil
	}

	path := "/user/order/increase-quantity"
	if delta < 0 {
		path = "/user/order/decrease-quantity"
		delta = -delta
	}
	return c.do(ctx, requestOptions{
		method:        http.MethodPatch,
		path:          path,
		body:          map[string]any{"cart_item_id": trimmed, "quantity": delta},
		authenticated: true,
	}, nil)
}

// CheckoutInput carries the order placement payload.
type CheckoutInput struct {
	AddressID     string `json:"address_id"`
	PaymentMethod string `json:"payment_method"`
	Notes         string `json:"notes,omitempty"`
}

// CheckoutResult is the order reference returned on placement.
type CheckoutResult struct {
	OrderID     string  `json:"order_id"`
	Total       float64 `json:"total"`
	PaymentLink string  `json:"payment_link,omitempty"`
}

// Checkout places an order from the current server cart.
func (c *Client) Checkout(ctx context.Context, input CheckoutInput) (CheckoutResult, error) {
	var result CheckoutResult
	err := c.do(ctx, requestOptions{
		method:        http.MethodPost,
		path:          "/user/order/checkout",
		body:          input,
		authenticated: true,
	}, &result)
	return result, err
}

// BuyNow places a single-variant order bypassing the cart.
func (c *Client) BuyNow(ctx context.Context, variantID string, quantity int, input CheckoutInput) (CheckoutResult, error) {
	if strings.TrimSpace(variantID) == "" {
		return CheckoutResult{}, errors.New("backend: variant id is required")
	}
	var result CheckoutResult
	err := c.do(ctx, requestOptions{
		method: http.MethodPost,
		path:   "/user/order/buy-now",
		body: map[string]any{
			"variant_id":     variantID,
			"quantity":       quantity,
			"address_id":     input.AddressID,
			"payment_method": input.PaymentMethod,
		},
		authenticated: true,
	}, &result)
	return result, err
}

// ShippingRate is one carrier quote for a destination country.
type ShippingRate struct {
	Carrier string  `json:"carrier"`
	Amount  float64 `json:"amount"`
	ETA     string  `json:"eta"`
}

// ShippingRates quotes delivery for the current cart to the given country.
func (c *Client) ShippingRates(ctx context.Context, country string) ([]ShippingRate, error) {
	query := url.Values{}
	query.Set("country", strings.ToUpper(strings.TrimSpace(country)))

	var resp struct {
		Rates []ShippingRate `json:"rates"`
	}
	err := c.do(ctx, requestOptions{
		method:        http.MethodGet,
		path:          "/user/order/shipping-rates",
		query:         query,
		authenticated: true,
	}, &resp)
	return resp.Rates, err
}

// TrackingEvent is one scan in an order's delivery history.
type TrackingEvent struct {
	Status    string    `json:"status"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackOrder returns the delivery history for an order.
func (c *Client) TrackOrder(ctx context.Context, orderID string) ([]TrackingEvent, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return nil, errors.New("backend: order id is required")
	}
	var resp struct {
		Events []TrackingEvent `json:"events"`
	}
	err := c.do(ctx, requestOptions{
		method:        http.MethodGet,
		path:          "/user/order/track/" + url.PathEscape(trimmed),
		authenticated: true,
	}, &resp)
	return resp.Events, err
}
