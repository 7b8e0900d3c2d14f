package backend

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

// Tokens is the access/refresh pair issued by the backend.
type Tokens struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

func (t Tokens) valid() bool {
	return strings.TrimSpace(t.Access) != "" && strings.TrimSpace(t.Refresh) != ""
}

// loadTokens reads the stored token pair; a corrupt record is treated as absent.
func (c *Client) loadTokens(ctx context.Context) (Tokens, bool) {
	var access, refresh string
	okAccess, err := localstore.GetJSON(ctx, c.store, localstore.KeyAuthToken, &access)
	if err != nil {
		c.logger(ctx, "backend.token_load_failed", map[string]any{"key": localstore.KeyAuthToken, "error": err.Error()})
		return Tokens{}, false
	}
	okRefresh, err := localstore.GetJSON(ctx, c.store, localstore.KeyRefreshToken, &refresh)
	if err != nil {
		c.logger(ctx, "backend.token_load_failed", map[string]any{"key": localstore.KeyRefreshToken, "error": err.Error()})
		return Tokens{}, false
	}
	if !okAccess || !okRefresh {
		return Tokens{}, false
	}
	tokens := Tokens{Access: access, Refresh: refresh}
	return tokens, tokens.valid()
}

func (c *Client) saveTokens(ctx context.Context, tokens Tokens) error {
	if err := localstore.SetJSON(ctx, c.store, localstore.KeyAuthToken, tokens.Access); err != nil {
		return err
	}
	return localstore.SetJSON(ctx, c.store, localstore.KeyRefreshToken, tokens.Refresh)
}

// ClearTokens drops the stored token pair. Used on logout and refresh failure.
func (c *Client) ClearTokens(ctx context.Context) {
	_ = c.store.Delete(ctx, localstore.KeyAuthToken)
	_ = c.store.Delete(ctx, localstore.KeyRefreshToken)
}

// accessTokenStale inspects the unverified JWT expiry claim and reports
// whether the token expires within the configured skew window. Verification
// belongs to the backend; the client only wants to refresh ahead of time.
func accessTokenStale(token string, now time.Time, skew time.Duration) bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now.Add(skew))
}
