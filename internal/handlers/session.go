package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/platform/httpx"
	"github.com/d2Anubis/totally-shopcore/internal/services"
)

// AuthService is the slice of the backend client the session endpoints use.
type AuthService interface {
	Login(ctx context.Context, email, password string) (domain.User, error)
	Register(ctx context.Context, input backend.RegisterInput) (domain.User, error)
	SocialLogin(ctx context.Context, provider, idToken string) (domain.User, error)
	ChangePassword(ctx context.Context, current, next string) error
	Logout(ctx context.Context)
	CurrentUser(ctx context.Context) (domain.User, bool)
}

// SessionHandlers exposes login, logout and registration. Every successful
// login flows through the shop service so the guest merge runs exactly once.
type SessionHandlers struct {
	auth AuthService
	shop services.ShopService
}

// NewSessionHandlers constructs the session endpoints.
func NewSessionHandlers(auth AuthService, shop services.ShopService) *SessionHandlers {
	return &SessionHandlers{auth: auth, shop: shop}
}

// Routes wires the /session endpoints onto the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.current)
	r.Post("/login", h.login)
	r.Post("/register", h.register)
	r.Post("/social-login", h.socialLogin)
	r.Post("/logout", h.logout)
	r.Post("/change-password", h.changePassword)
}

type sessionResponse struct {
	User     *domain.User    `json:"user,omitempty"`
	Identity domain.Identity `json:"identity"`
}

func (h *SessionHandlers) current(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := sessionResponse{Identity: h.shop.Identity()}
	if user, ok := h.auth.CurrentUser(ctx); ok {
		resp.User = &user
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SessionHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email and password are required", http.StatusBadRequest))
		return
	}

	user, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.finishLogin(ctx, w, user)
}

func (h *SessionHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req backend.RegisterInput
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email and password are required", http.StatusBadRequest))
		return
	}

	user, err := h.auth.Register(ctx, req)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.finishLogin(ctx, w, user)
}

func (h *SessionHandlers) socialLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Provider string `json:"provider"`
		IDToken  string `json:"id_token"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if strings.TrimSpace(req.Provider) == "" || strings.TrimSpace(req.IDToken) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "provider and id_token are required", http.StatusBadRequest))
		return
	}

	user, err := h.auth.SocialLogin(ctx, req.Provider, req.IDToken)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	h.finishLogin(ctx, w, user)
}

func (h *SessionHandlers) finishLogin(ctx context.Context, w http.ResponseWriter, user domain.User) {
	if err := h.shop.SetUser(ctx, user); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{User: &user, Identity: h.shop.Identity()})
}

func (h *SessionHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.auth.Logout(ctx)
	if err := h.shop.ClearUser(ctx); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Identity: h.shop.Identity()})
}

func (h *SessionHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "current and new passwords are required", http.StatusBadRequest))
		return
	}

	if err := h.auth.ChangePassword(ctx, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "changed"})
}
