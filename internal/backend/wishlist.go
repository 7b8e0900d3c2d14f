package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
)

var errProductIDRequired = errors.New("backend: product id is required")

// GetWishlist fetches the authenticated user's wishlist.
func (c *Client) GetWishlist(ctx context.Context) ([]domain.WishlistProduct, error) {
	var resp struct {
		Products []domain.WishlistProduct `json:"products"`
	}
	err := c.do(ctx, requestOptions{
		method:        http.MethodGet,
		path:          "/user/wishlist/list",
		authenticated: true,
	}, &resp)
	return resp.Products, err
}

// AddWishlistProduct adds a product to the server wishlist.
func (c *Client) AddWishlistProduct(ctx context.Context, productID string) error {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return errProductIDRequired
	}
	return c.do(ctx, requestOptions{
		method:        http.MethodPost,
		path:          "/user/wishlist/add",
		body:          map[string]string{"product_id": trimmed},
		authenticated: true,
	}, nil)
}

// RemoveWishlistProduct removes a product from the server wishlist.
func (c *Client) RemoveWishlistProduct(ctx context.Context, productID string) error {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return errProductIDRequired
	}
	return c.do(ctx, requestOptions{
		method:        http.MethodDelete,
		path:          "/user/wishlist/remove/" + url.PathEscape(trimmed),
		authenticated: true,
	}, nil)
}
