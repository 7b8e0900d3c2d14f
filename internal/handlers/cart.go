package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

// CartHandlers exposes the cart state and mutations. Both guest and
// authenticated sessions use the same endpoints; the shop service decides
// the path.
type CartHandlers struct {
	shop services.ShopService
}

// NewCartHandlers constructs the cart endpoints.
func NewCartHandlers(shop services.ShopService) *CartHandlers {
	return &CartHandlers{shop: shop}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{lineID}", h.removeItem)
	r.Put("/items/{lineID}/quantity", h.setQuantity)
	r.Post("/items/{lineID}/increase", h.increase)
	r.Post("/items/{lineID}/decrease", h.decrease)
	r.Get("/contains/{variantID}", h.contains)
}

type cartResponse struct {
	Identity domain.Identity   `json:"identity"`
	Lines    []domain.CartLine `json:"lines"`
	Totals   domain.CartTotals `json:"totals"`
}

func (h *CartHandlers) respondCart(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, cartResponse{
		Identity: h.shop.Identity(),
		Lines:    h.shop.CartLines(),
		Totals:   h.shop.CartTotals(),
	})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if err := h.shop.Refresh(r.Context()); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.respondCart(w)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.shop.ClearCart(r.Context()); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	h.respondCart(w)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		VariantID string                  `json:"variant_id"`
		ProductID string                  `json:"product_id"`
		Quantity  int                     `json:"quantity"`
		UnitPrice float64                 `json:"unit_price"`
		Snapshot  *domain.ProductSnapshot `json:"snapshot,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	err := h.shop.AddToCart(ctx, services.AddToCartInput{
		VariantID: req.VariantID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Snapshot:  req.Snapshot,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondCart(w)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.shop.RemoveFromCart(ctx, chi.URLParam(r, "lineID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondCart(w)
}

func (h *CartHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	if err := h.shop.UpdateCartQuantity(ctx, chi.URLParam(r, "lineID"), req.Quantity); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondCart(w)
}

func (h *CartHandlers) increase(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, 1)
}

func (h *CartHandlers) decrease(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, -1)
}

func (h *CartHandlers) step(w http.ResponseWriter, r *http.Request, direction int) {
	ctx := r.Context()
	lineID := chi.URLParam(r, "lineID")

	var err error
	if direction > 0 {
		err = h.shop.IncreaseQuantity(ctx, lineID, 1)
	} else {
		err = h.shop.DecreaseQuantity(ctx, lineID, 1)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.respondCart(w)
}

func (h *CartHandlers) contains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"in_cart": h.shop.IsInCart(chi.URLParam(r, "variantID")),
	})
}
