package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
	"github.com/d2Anubis/totally-shopcore/internal/platform/httpx"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

// CheckoutService is the slice of the backend client the checkout endpoints use.
type CheckoutService interface {
	Checkout(ctx context.Context, input backend.CheckoutInput) (backend.CheckoutResult, error)
	BuyNow(ctx context.Context, variantID string, quantity int, input backend.CheckoutInput) (backend.CheckoutResult, error)
	ShippingRates(ctx context.Context, country string) ([]backend.ShippingRate, error)
	TrackOrder(ctx context.Context, orderID string) ([]backend.TrackingEvent, error)
}

// CheckoutHandlers exposes order placement, shipping quotes and tracking.
// Guests attempting checkout get login_required after their intended
// destination is saved for the post-login redirect.
type CheckoutHandlers struct {
	checkout CheckoutService
	shop     services.ShopService
	store    localstore.Store
}

// NewCheckoutHandlers constructs the checkout endpoints.
func NewCheckoutHandlers(checkout CheckoutService, shop services.ShopService, store localstore.Store) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout, shop: shop, store: store}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Post("/buy-now", h.buyNow)
	r.Get("/shipping-rates", h.shippingRates)
	r.Get("/orders/{orderID}/tracking", h.trackOrder)
}

type checkoutRequest struct {
	backend.CheckoutInput
	RedirectURL string `json:"redirect_url,omitempty"`
}

func (h *CheckoutHandlers) requireAuth(ctx context.Context, w http.ResponseWriter, redirectURL string) bool {
	if !h.shop.Identity().Guest() {
		return true
	}
	if target := strings.TrimSpace(redirectURL); target != "" {
		_ = localstore.SetJSON(ctx, h.store, localstore.KeyCheckoutRedirect, target)
	}
	httpx.WriteError(ctx, w, httpx.NewError("login_required", "sign in to check out", http.StatusUnauthorized))
	return false
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if !h.requireAuth(ctx, w, req.RedirectURL) {
		return
	}

	result, err := h.checkout.Checkout(ctx, req.CheckoutInput)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	// The order now owns the items; an emptied cart mirrors the backend.
	if err := h.shop.ClearCart(ctx); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *CheckoutHandlers) buyNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		checkoutRequest
		VariantID string `json:"variant_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.VariantID) == "" || req.Quantity <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "variant_id and a positive quantity are required", http.StatusBadRequest))
		return
	}
	if !h.requireAuth(ctx, w, req.RedirectURL) {
		return
	}

	result, err := h.checkout.BuyNow(ctx, req.VariantID, req.Quantity, req.CheckoutInput)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *CheckoutHandlers) shippingRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if len(country) != 2 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "country must be a two-letter code", http.StatusBadRequest))
		return
	}

	rates, err := h.checkout.ShippingRates(ctx, country)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rates": rates})
}

func (h *CheckoutHandlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.checkout.TrackOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
