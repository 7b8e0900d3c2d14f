package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/platform/httpx"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

// CatalogService is the slice of the backend client the catalog endpoints use.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (backend.Product, error)
	ListCategories(ctx context.Context) ([]backend.Category, error)
	Navigation(ctx context.Context) ([]backend.NavigationEntry, error)
	SubscribeNewsletter(ctx context.Context, email string) error
}

// CatalogHandlers exposes read-only catalog browsing plus the debounced
// universal search.
type CatalogHandlers struct {
	catalog CatalogService
	search  *services.DebouncedSearch
}

// NewCatalogHandlers constructs the catalog endpoints.
func NewCatalogHandlers(catalog CatalogService, search *services.DebouncedSearch) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, search: search}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/navigation", h.navigation)
	r.Get("/search", h.searchProducts)
	r.Post("/newsletter", h.subscribeNewsletter)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *CatalogHandlers) navigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.catalog.Navigation(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"navigation": entries})
}

type searchDelivery struct {
	result backend.SearchResult
	err    error
}

// searchProducts funnels the query through the debouncer, so a burst of
// requests for a typing session costs one backend call.
func (h *CatalogHandlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	term := strings.TrimSpace(r.URL.Query().Get("query"))
	done := make(chan searchDelivery, 1)
	h.search.Query(ctx, term, func(_ string, result backend.SearchResult, err error) {
		done <- searchDelivery{result: result, err: err}
	})

	select {
	case delivery := <-done:
		if delivery.err != nil {
			writeServiceError(ctx, w, delivery.err)
			return
		}
		writeJSON(w, http.StatusOK, delivery.result)
	case <-ctx.Done():
		// Superseded by a newer query or the client went away.
		httpx.WriteError(ctx, w, httpx.NewError("search_superseded", "query was superseded", http.StatusRequestTimeout))
	}
}

func (h *CatalogHandlers) subscribeNewsletter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.SubscribeNewsletter(ctx, req.Email); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "subscribed"})
}
