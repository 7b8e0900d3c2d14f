package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/platform/httpx"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

const maxBodySize = 64 * 1024

var errBodyTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(r *http.Request, target any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return err
	}
	if len(body) > maxBodySize {
		return errBodyTooLarge
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}
	return json.Unmarshal(body, target)
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

// writeServiceError maps the service error taxonomy onto the wire envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShopInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, services.ErrCurrencyInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShopNotFound), errors.Is(err, services.ErrRateUnknown):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrLoginRequired):
		httpx.WriteError(ctx, w, httpx.NewError("login_required", "sign in to continue", http.StatusUnauthorized))
	case errors.Is(err, services.ErrSessionExpired), errors.Is(err, backend.ErrAuthExpired):
		httpx.WriteError(ctx, w, httpx.NewError("session_expired", "your session has expired", http.StatusUnauthorized))
	default:
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			status := apiErr.Status
			if status < 400 || status > 599 {
				status = http.StatusBadGateway
			}
			code := apiErr.Code
			if code == "" {
				code = "backend_error"
			}
			httpx.WriteError(ctx, w, httpx.NewError(code, apiErr.Message, status))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "the shop backend could not fulfil the request", http.StatusBadGateway))
	}
}
