package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Product is the catalog projection consumed by the facade. Descriptions
// arrive from the backend as HTML and are sanitised before leaving this
// package.
type Product struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Brand        string           `json:"brand"`
	Description  string           `json:"description"`
	Price        float64          `json:"price"`
	ComparePrice float64          `json:"compare_price"`
	ImageURLs    []string         `json:"image_urls"`
	InStock      bool             `json:"in_stock"`
	Variants     []ProductVariant `json:"variants"`
}

// ProductVariant is one purchasable SKU of a product.
type ProductVariant struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Price   float64 `json:"price"`
	InStock bool    `json:"in_stock"`
}

// Category is one node of the shop taxonomy.
type Category struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url,omitempty"`
}

// NavigationEntry is a header/footer menu item served by the backend.
type NavigationEntry struct {
	Label    string            `json:"label"`
	URL      string            `json:"url"`
	Children []NavigationEntry `json:"children,omitempty"`
}

var descriptionPolicy = bluemonday.UGCPolicy()

// GetProduct fetches a single product by id.
func (c *Client) GetProduct(ctx context.Context, productID string) (Product, error) {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return Product{}, errProductIDRequired
	}
	var product Product
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		path:   "/user/product/" + url.PathEscape(trimmed),
	}, &product)
	if err != nil {
		return Product{}, err
	}
	product.Description = descriptionPolicy.Sanitize(product.Description)
	return product, nil
}

// ListCategories fetches the category taxonomy.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var resp struct {
		Categories []Category `json:"categories"`
	}
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		path:   "/user/category/all",
	}, &resp)
	return resp.Categories, err
}

// SearchResult groups the universal search response.
type SearchResult struct {
	Products   []Product  `json:"products"`
	Categories []Category `json:"categories"`
}

// UniversalSearch queries products and categories in one call.
func (c *Client) UniversalSearch(ctx context.Context, term string) (SearchResult, error) {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return SearchResult{}, errors.New("backend: search term is required")
	}

	query := url.Values{}
	query.Set("query", trimmed)

	var result SearchResult
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		path:   "/user/search/universal",
		query:  query,
	}, &result)
	if err != nil {
		return SearchResult{}, err
	}
	for i := range result.Products {
		result.Products[i].Description = descriptionPolicy.Sanitize(result.Products[i].Description)
	}
	return result, nil
}

// Navigation fetches the public navigation tree.
func (c *Client) Navigation(ctx context.Context) ([]NavigationEntry, error) {
	var resp struct {
		Entries []NavigationEntry `json:"entries"`
	}
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		path:   "/public/navigation",
	}, &resp)
	return resp.Entries, err
}

// SubscribeNewsletter registers an email with the newsletter list.
func (c *Client) SubscribeNewsletter(ctx context.Context, email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" || !strings.Contains(trimmed, "@") {
		return errors.New("backend: a valid email is required")
	}
	return c.do(ctx, requestOptions{
		method: http.MethodPost,
		path:   "/public/newsletter/subscribe",
		body:   map[string]string{"email": trimmed},
	}, nil)
}
