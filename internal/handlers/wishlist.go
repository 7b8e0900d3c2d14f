package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

// WishlistHandlers exposes the wishlist. Adds are reserved for authenticated
// sessions; guests receive a login_required error and their return target is
// preserved.
type WishlistHandlers struct {
	shop services.ShopService
}

// NewWishlistHandlers constructs the wishlist endpoints.
func NewWishlistHandlers(shop services.ShopService) *WishlistHandlers {
	return &WishlistHandlers{shop: shop}
}

// Routes wires the /wishlist endpoints onto the provided router.
func (h *WishlistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getWishlist)
	r.Post("/items", h.addItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Get("/contains/{productID}", h.contains)
}

type wishlistResponse struct {
	Identity domain.Identity          `json:"identity"`
	Products []domain.WishlistProduct `json:"products"`
}

func (h *WishlistHandlers) respondWishlist(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, wishlistResponse{
		Identity: h.shop.Identity(),
		Products: h.shop.Wishlist(),
	})
}

func (h *WishlistHandlers) getWishlist(w http.ResponseWriter, r *http.Request) {
	h.respondWishlist(w)
}

func (h *WishlistHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Product   domain.WishlistProduct `json:"product"`
		ReturnURL string                 `json:"return_url,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	if err := h.shop.AddToWishlist(ctx, req.Product, req.ReturnURL); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondWishlist(w)
}

func (h *WishlistHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.shop.RemoveFromWishlist(ctx, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondWishlist(w)
}

func (h *WishlistHandlers) contains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"in_wishlist": h.shop.IsInWishlist(chi.URLParam(r, "productID")),
	})
}
