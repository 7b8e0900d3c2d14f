package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

func newTestClient(t *testing.T, baseURL string, store localstore.Store) *Client {
	t.Helper()
	client, err := NewClient(ClientDeps{
		BaseURL: baseURL,
		Store:   store,
		Clock:   func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing client: %v", err)
	}
	return client
}

func seedTokens(t *testing.T, store localstore.Store, access, refresh string) {
	t.Helper()
	ctx := context.Background()
	if err := localstore.SetJSON(ctx, store, localstore.KeyAuthToken, access); err != nil {
		t.Fatalf("unexpected error seeding access token: %v", err)
	}
	if err := localstore.SetJSON(ctx, store, localstore.KeyRefreshToken, refresh); err != nil {
		t.Fatalf("unexpected error seeding refresh token: %v", err)
	}
}

func TestClientRetriesOnceAfterRefresh(t *testing.T) {
	var refreshCalls, cartCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/user/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		_ = json.NewEncoder(w).Encode(Tokens{Access: "access-2", Refresh: "refresh-2"})
	})
	mux.HandleFunc("/user/order/get-cart", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&cartCalls, 1)
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Authentication failed", "error_code": "AUTH_FAILED"})
			return
		}
		_ = json.NewEncoder(w).Encode(cartResponse{Items: []serverCartItem{{ID: "ci-1", VariantID: "v-1", ProductID: "p-1", Quantity: 2, Price: 499}}})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	store := localstore.NewMemory()
	seedTokens(t, store, "access-1", "refresh-1")
	client := newTestClient(t, server.URL, store)

	lines, err := client.GetCart(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 1 || lines[0].ID != "ci-1" || lines[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", lines)
	}
	if lines[0].Kind != "server" {
		t.Fatalf("expected server kind line, got %q", lines[0].Kind)
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
	if got := atomic.LoadInt32(&cartCalls); got != 2 {
		t.Fatalf("expected original plus retried cart call, got %d", got)
	}

	// The rotated pair must be persisted for later requests.
	tokens, ok := client.loadTokens(context.Background())
	if !ok || tokens.Access != "access-2" || tokens.Refresh != "refresh-2" {
		t.Fatalf("expected rotated tokens persisted, got %+v ok=%v", tokens, ok)
	}
}

func TestClientConcurrentRequestsShareOneRefresh(t *testing.T) {
	var refreshCalls int32
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/user/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		<-release
		_ = json.NewEncoder(w).Encode(Tokens{Access: "access-2", Refresh: "refresh-2"})
	})
	mux.HandleFunc("/user/wishlist/list", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"products": []any{}})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	store := localstore.NewMemory()
	seedTokens(t, store, "stale", "refresh-1")
	client := newTestClient(t, server.URL, store)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = client.GetWishlist(context.Background())
		}(i)
	}

	// Give the goroutines time to pile onto the in-flight refresh.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&refreshCalls); got != 1 {
		t.Fatalf("expected a single shared refresh, got %d", got)
	}
}

func TestClientRefreshFailureClearsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/user/order/get-cart", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	store := localstore.NewMemory()
	seedTokens(t, store, "access-1", "refresh-1")
	client := newTestClient(t, server.URL, store)

	_, err := client.GetCart(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if _, ok := client.loadTokens(context.Background()); ok {
		t.Fatalf("expected tokens cleared after failed refresh")
	}
}

func TestClientUnauthenticatedWithoutTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected without a session")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, localstore.NewMemory())
	if _, err := client.GetCart(context.Background()); !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestClientMapsBackendErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "variant out of stock", "error_code": "OUT_OF_STOCK"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, localstore.NewMemory())
	err := client.SubscribeNewsletter(context.Background(), "a@b.com")
	if err == nil {
		t.Fatalf("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Code != "OUT_OF_STOCK" || apiErr.Message != "variant out of stock" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if IsAuthError(err) {
		t.Fatalf("non-auth backend error must not be an auth error")
	}
}

func TestLoginRejectionKeepsBackendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid email or password", "error_code": "INVALID_CREDENTIALS"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, localstore.NewMemory())
	_, err := client.Login(context.Background(), "a@b.com", "wrong")
	if err == nil {
		t.Fatalf("expected error")
	}

	// A rejected login is not an expired session: the backend's message must
	// reach the caller instead of triggering a silent logout.
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != "INVALID_CREDENTIALS" || apiErr.Message != "invalid email or password" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if IsAuthError(err) {
		t.Fatalf("rejected login must not count as an auth error")
	}
}

func TestAdjustCartQuantityComputesDelta(t *testing.T) {
	type call struct {
		path string
		body map[string]any
	}
	var calls []call

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, call{path: r.URL.Path, body: body})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := localstore.NewMemory()
	seedTokens(t, store, "access-1", "refresh-1")
	client := newTestClient(t, server.URL, store)
	ctx := context.Background()

	if err := client.AdjustCartQuantity(ctx, "ci-1", 2, 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.AdjustCartQuantity(ctx, "ci-1", 5, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.AdjustCartQuantity(ctx, "ci-1", 3, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected two backend calls (zero delta skipped), got %d", len(calls))
	}
	if calls[0].path != "/user/order/increase-quantity" || calls[0].body["quantity"].(float64) != 3 {
		t.Fatalf("unexpected first call %+v", calls[0])
	}
	if calls[1].path != "/user/order/decrease-quantity" || calls[1].body["quantity"].(float64) != 4 {
		t.Fatalf("unexpected second call %+v", calls[1])
	}
}

func TestLoginStoresSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/auth/login" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"user":          map[string]string{"id": "u-9", "email": "a@b.com"},
		})
	}))
	defer server.Close()

	store := localstore.NewMemory()
	client := newTestClient(t, server.URL, store)

	user, err := client.Login(context.Background(), "a@b.com", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u-9" {
		t.Fatalf("unexpected user %+v", user)
	}

	stored, ok := client.CurrentUser(context.Background())
	if !ok || stored.Email != "a@b.com" {
		t.Fatalf("expected persisted user, got %+v ok=%v", stored, ok)
	}

	client.Logout(context.Background())
	if _, ok := client.CurrentUser(context.Background()); ok {
		t.Fatalf("expected user cleared after logout")
	}
	if _, ok := client.loadTokens(context.Background()); ok {
		t.Fatalf("expected tokens cleared after logout")
	}
}

func TestProductDescriptionIsSanitised(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "p-1",
			"title":       "Brass Diya",
			"description": `<p>Handmade</p><script>alert("x")</script>`,
			"price":       349.0,
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, localstore.NewMemory())
	product, err := client.GetProduct(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Description != "<p>Handmade</p>" {
		t.Fatalf("expected script stripped, got %q", product.Description)
	}
}
