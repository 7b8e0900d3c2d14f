package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

var errCredentialsRequired = errors.New("backend: email and password are required")

type authResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         domain.User `json:"user"`
}

// Login exchanges credentials for a token pair and persists the session.
func (c *Client) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.User{}, errCredentialsRequired
	}

	var resp authResponse
	err := c.do(ctx, requestOptions{
		method: http.MethodPost,
		path:   "/user/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &resp)
	if err != nil {
		return domain.User{}, err
	}
	return c.storeSession(ctx, resp)
}

// RegisterInput carries the fields accepted by the register endpoint.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Register creates an account and persists the resulting session.
func (c *Client) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	if strings.TrimSpace(input.Email) == "" || input.Password == "" {
		return domain.User{}, errCredentialsRequired
	}

	var resp authResponse
	err := c.do(ctx, requestOptions{
		method: http.MethodPost,
		path:   "/user/auth/register",
		body:   input,
	}, &resp)
	if err != nil {
		return domain.User{}, err
	}
	return c.storeSession(ctx, resp)
}

// SocialLogin authenticates with a provider-issued identity token (e.g. the
// Google OAuth credential collected by the frontend).
func (c *Client) SocialLogin(ctx context.Context, provider, idToken string) (domain.User, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || strings.TrimSpace(idToken) == "" {
		return domain.User{}, errors.New("backend: provider and token are required")
	}

	var resp authResponse
	err := c.do(ctx, requestOptions{
		method: http.MethodPost,
		path:   "/user/auth/social",
		body:   map[string]string{"provider": provider, "token": idToken},
	}, &resp)
	if err != nil {
		return domain.User{}, err
	}
	return c.storeSession(ctx, resp)
}

// ChangePassword updates the password for the authenticated user.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" || next == "" {
		return errCredentialsRequired
	}
	return c.do(ctx, requestOptions{
		method:        http.MethodPost,
		path:          "/user/auth/change-password",
		body:          map[string]string{"current_password": current, "new_password": next},
		authenticated: true,
	}, nil)
}

// Logout clears the locally persisted session. The backend holds no
// server-side session beyond the refresh token, which rotation invalidates.
func (c *Client) Logout(ctx context.Context) {
	c.ClearTokens(ctx)
	_ = c.store.Delete(ctx, localstore.KeyUser)
}

// CurrentUser returns the persisted profile when a session exists.
func (c *Client) CurrentUser(ctx context.Context) (domain.User, bool) {
	var user domain.User
	ok, err := localstore.GetJSON(ctx, c.store, localstore.KeyUser, &user)
	if err != nil {
		c.logger(ctx, "backend.user_load_failed", map[string]any{"error": err.Error()})
		return domain.User{}, false
	}
	return user, ok && strings.TrimSpace(user.ID) != ""
}

func (c *Client) storeSession(ctx context.Context, resp authResponse) (domain.User, error) {
	tokens := Tokens{Access: resp.AccessToken, Refresh: resp.RefreshToken}
	if !tokens.valid() || strings.TrimSpace(resp.User.ID) == "" {
		return domain.User{}, fmt.Errorf("backend: malformed auth response")
	}
	if err := c.saveTokens(ctx, tokens); err != nil {
		return domain.User{}, err
	}
	if err := localstore.SetJSON(ctx, c.store, localstore.KeyUser, resp.User); err != nil {
		return domain.User{}, err
	}
	return resp.User, nil
}
