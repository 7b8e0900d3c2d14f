package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/d2Anubis/totally-shopcore/internal/platform/httpx"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

// PricingHandlers exposes location resolution, the rate table and display
// conversion.
type PricingHandlers struct {
	pricing  services.LocationPricingService
	currency services.CurrencyService
}

// NewPricingHandlers constructs the pricing endpoints.
func NewPricingHandlers(pricing services.LocationPricingService, currency services.CurrencyService) *PricingHandlers {
	return &PricingHandlers{pricing: pricing, currency: currency}
}

// Routes wires the /pricing endpoints onto the provided router.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/context", h.resolveContext)
	r.Put("/country", h.selectCountry)
	r.Delete("/country", h.clearSelection)
	r.Get("/rates", h.rates)
	r.Get("/convert", h.convert)
}

func (h *PricingHandlers) resolveContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resolved, err := h.pricing.Resolve(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (h *PricingHandlers) selectCountry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Country  string `json:"country"`
		Currency string `json:"currency"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}

	selected, err := h.pricing.SelectCountry(ctx, req.Country, req.Currency)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, selected)
}

func (h *PricingHandlers) clearSelection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.pricing.ClearSelection(ctx); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *PricingHandlers) rates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table, err := h.currency.Rates(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

func (h *PricingHandlers) convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawAmount := strings.TrimSpace(r.URL.Query().Get("amount"))
	code := strings.TrimSpace(r.URL.Query().Get("currency"))
	if rawAmount == "" || code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount and currency are required", http.StatusBadRequest))
		return
	}
	amount, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil || amount < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "amount must be a non-negative number", http.StatusBadRequest))
		return
	}

	converted, err := h.currency.Convert(ctx, amount, code)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	formatted, err := h.currency.Format(ctx, amount, code)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"amount_inr": amount,
		"currency":   strings.ToUpper(code),
		"converted":  converted,
		"formatted":  formatted,
	})
}
