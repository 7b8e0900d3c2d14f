package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

type stubCartAPI struct {
	lines []domain.CartLine

	getErr     error
	addErr     error
	removeErr  error
	adjustErr  error
	bulkErr    error
	addCalls   []string
	bulkCalls  [][]backend.BulkCartItem
	adjustLogs []string
}

func (s *stubCartAPI) GetCart(context.Context) ([]domain.CartLine, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out, nil
}

func (s *stubCartAPI) AddCartItem(_ context.Context, variantID string, quantity int) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.addCalls = append(s.addCalls, variantID)
	s.lines = append(s.lines, domain.CartLine{
		Kind:      domain.LineKindServer,
		ID:        fmt.Sprintf("ci-%d", len(s.lines)+1),
		VariantID: variantID,
		Quantity:  quantity,
	})
	return nil
}

func (s *stubCartAPI) BulkAddCartItems(_ context.Context, items []backend.BulkCartItem) error {
	if s.bulkErr != nil {
		return s.bulkErr
	}
	s.bulkCalls = append(s.bulkCalls, items)
	for _, item := range items {
		s.lines = append(s.lines, domain.CartLine{
			Kind:      domain.LineKindServer,
			ID:        fmt.Sprintf("ci-%d", len(s.lines)+1),
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}
	return nil
}

func (s *stubCartAPI) RemoveCartItem(_ context.Context, cartItemID string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	kept := s.lines[:0]
	for _, line := range s.lines {
		if line.ID != cartItemID {
			kept = append(kept, line)
		}
	}
	s.lines = kept
	return nil
}

func (s *stubCartAPI) AdjustCartQuantity(_ context.Context, cartItemID string, current, desired int) error {
	if s.adjustErr != nil {
		return s.adjustErr
	}
	s.adjustLogs = append(s.adjustLogs, fmt.Sprintf("%s:%d->%d", cartItemID, current, desired))
	for i := range s.lines {
		if s.lines[i].ID == cartItemID {
			s.lines[i].Quantity = desired
		}
	}
	return nil
}

type stubWishlistAPI struct {
	products []domain.WishlistProduct

	getErr    error
	addErr    error
	removeErr error
	addCalls  []string
}

func (s *stubWishlistAPI) GetWishlist(context.Context) ([]domain.WishlistProduct, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := make([]domain.WishlistProduct, len(s.products))
	copy(out, s.products)
	return out, nil
}

func (s *stubWishlistAPI) AddWishlistProduct(_ context.Context, productID string) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.addCalls = append(s.addCalls, productID)
	s.products = append(s.products, domain.WishlistProduct{ProductID: productID})
	return nil
}

func (s *stubWishlistAPI) RemoveWishlistProduct(_ context.Context, productID string) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	kept := s.products[:0]
	for _, product := range s.products {
		if product.ProductID != productID {
			kept = append(kept, product)
		}
	}
	s.products = kept
	return nil
}

type stubMerger struct {
	calls    int
	lines    []domain.CartLine
	wishlist []domain.WishlistProduct
}

func (s *stubMerger) MergeGuestState(context.Context, string) ([]domain.CartLine, []domain.WishlistProduct) {
	s.calls++
	return s.lines, s.wishlist
}

type captureNotifier struct {
	notices []string
}

func (c *captureNotifier) Notify(_ context.Context, level NoticeLevel, message string) {
	c.notices = append(c.notices, string(level)+": "+message)
}

type shopFixture struct {
	service  ShopService
	cart     *stubCartAPI
	wishlist *stubWishlistAPI
	merger   *stubMerger
	store    localstore.Store
	notices  *captureNotifier
}

func newShopFixture(t *testing.T) *shopFixture {
	t.Helper()

	cart := &stubCartAPI{}
	wishlist := &stubWishlistAPI{}
	merger := &stubMerger{}
	store := localstore.NewMemory()
	notices := &captureNotifier{}

	nextID := 0
	service, err := NewShopService(ShopServiceDeps{
		Cart:     cart,
		Wishlist: wishlist,
		Store:    store,
		Merger:   merger,
		Notifier: notices,
		Clock:    func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		IDGenerator: func() string {
			nextID++
			return fmt.Sprintf("line-%d", nextID)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing shop service: %v", err)
	}
	return &shopFixture{service: service, cart: cart, wishlist: wishlist, merger: merger, store: store, notices: notices}
}

func TestNewShopServiceValidatesDeps(t *testing.T) {
	_, err := NewShopService(ShopServiceDeps{})
	if err == nil {
		t.Fatalf("expected dependency validation error")
	}
}

func TestGuestAddToCartIncrementsExistingVariant(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-1", Quantity: 2, UnitPrice: 499}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-1", Quantity: 1, UnitPrice: 499}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-2", Quantity: 1, UnitPrice: 120}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := f.service.CartLines()
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if lines[0].Quantity != 3 || lines[0].Kind != domain.LineKindGuest || lines[0].ID != "line-1" {
		t.Fatalf("unexpected first line %+v", lines[0])
	}

	totals := f.service.CartTotals()
	if totals.Count != 4 || totals.Subtotal != 3*499+120 {
		t.Fatalf("unexpected totals %+v", totals)
	}

	// Guest cart is persisted on every mutation.
	var persisted []domain.CartLine
	ok, err := localstore.GetJSON(ctx, f.store, localstore.KeyGuestCart, &persisted)
	if err != nil || !ok || len(persisted) != 2 {
		t.Fatalf("expected persisted guest cart, got ok=%v err=%v lines=%d", ok, err, len(persisted))
	}
}

func TestGuestQuantityFloorRemovesLine(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-1", Quantity: 1, UnitPrice: 50}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lineID := f.service.CartLines()[0].ID

	if err := f.service.DecreaseQuantity(ctx, lineID, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(f.service.CartLines()); got != 0 {
		t.Fatalf("expected line removed at zero quantity, got %d lines", got)
	}
	if f.service.IsInCart("v-1") {
		t.Fatalf("variant should no longer be in cart")
	}
}

func TestUpdateCartQuantityBelowOneRemoves(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-1", Quantity: 4, UnitPrice: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lineID := f.service.CartLines()[0].ID

	if err := f.service.UpdateCartQuantity(ctx, lineID, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(f.service.CartLines()); got != 0 {
		t.Fatalf("expected removal for quantity below one, got %d lines", got)
	}
}

func TestSetUserRunsMergeOncePerUser(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	f.merger.lines = []domain.CartLine{{Kind: domain.LineKindServer, ID: "ci-1", VariantID: "v-1", Quantity: 2}}
	f.cart.lines = f.merger.lines

	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.merger.calls != 1 {
		t.Fatalf("expected one merge, got %d", f.merger.calls)
	}
	if got := f.service.Identity(); got.State != domain.IdentityAuthenticated || got.UserID != "u-1" {
		t.Fatalf("unexpected identity %+v", got)
	}
	if lines := f.service.CartLines(); len(lines) != 1 || lines[0].Kind != domain.LineKindServer {
		t.Fatalf("expected merged server lines, got %+v", lines)
	}

	// Logging out and back in as the same user must not re-run the merge.
	if err := f.service.ClearUser(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.service.Identity(); !got.Guest() {
		t.Fatalf("expected guest identity after logout, got %+v", got)
	}
	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.merger.calls != 1 {
		t.Fatalf("merge must run once per user, got %d calls", f.merger.calls)
	}
}

func TestClearUserRestoresGuestStateWithoutBackMerge(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-guest", Quantity: 1, UnitPrice: 75}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.merger.lines = []domain.CartLine{{Kind: domain.LineKindServer, ID: "ci-1", VariantID: "v-server", Quantity: 5}}
	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.ClearUser(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := f.service.CartLines()
	for _, line := range lines {
		if line.VariantID == "v-server" {
			t.Fatalf("server lines must not leak into guest state: %+v", lines)
		}
	}
}

func TestAuthenticatedAddRefetchesServerCart(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-1", Quantity: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := f.service.CartLines()
	if len(lines) != 1 || lines[0].Kind != domain.LineKindServer || lines[0].ID != "ci-1" {
		t.Fatalf("expected re-fetched server line, got %+v", lines)
	}
	if len(f.cart.addCalls) != 1 || f.cart.addCalls[0] != "v-1" {
		t.Fatalf("unexpected add calls %v", f.cart.addCalls)
	}
}

func TestAuthenticatedQuantityChangeGoesThroughDelta(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	f.cart.lines = []domain.CartLine{{Kind: domain.LineKindServer, ID: "ci-1", VariantID: "v-1", Quantity: 2}}
	f.merger.lines = f.cart.lines

	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.IncreaseQuantity(ctx, "ci-1", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.cart.adjustLogs) != 1 || f.cart.adjustLogs[0] != "ci-1:2->5" {
		t.Fatalf("unexpected adjust calls %v", f.cart.adjustLogs)
	}
	if lines := f.service.CartLines(); lines[0].Quantity != 5 {
		t.Fatalf("expected re-fetched quantity 5, got %+v", lines[0])
	}
}

func TestAuthErrorForcesSilentLogout(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.cart.addErr = backend.ErrAuthExpired
	err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-1", Quantity: 1})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := f.service.Identity(); !got.Guest() {
		t.Fatalf("expected guest identity after silent logout, got %+v", got)
	}
}

func TestSetUserResyncAuthFailureLeavesGuestIdentity(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.ClearUser(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The second login skips the merge and re-fetches; an auth failure there
	// must leave the silent logout's guest identity in place.
	f.cart.getErr = backend.ErrAuthExpired
	err := f.service.SetUser(ctx, domain.User{ID: "u-1"})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := f.service.Identity(); !got.Guest() {
		t.Fatalf("expected guest identity after failed re-sync, got %+v", got)
	}
}

func TestGuestAddToWishlistRequiresLoginAndSavesReturnURL(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	err := f.service.AddToWishlist(ctx, domain.WishlistProduct{ProductID: "p-1"}, "/product/brass-diya")
	if !errors.Is(err, ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired, got %v", err)
	}
	if len(f.wishlist.addCalls) != 0 {
		t.Fatalf("guest wishlist add must not hit the backend")
	}

	var target string
	ok, err := localstore.GetJSON(ctx, f.store, localstore.KeyReturnURL, &target)
	if err != nil || !ok || target != "/product/brass-diya" {
		t.Fatalf("expected persisted return url, got ok=%v err=%v target=%q", ok, err, target)
	}
}

func TestAuthenticatedWishlistAddIsIdempotent(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.SetUser(ctx, domain.User{ID: "u-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.service.AddToWishlist(ctx, domain.WishlistProduct{ProductID: "p-1"}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.AddToWishlist(ctx, domain.WishlistProduct{ProductID: "p-1"}, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.wishlist.addCalls) != 1 {
		t.Fatalf("expected a single backend add, got %d", len(f.wishlist.addCalls))
	}
	if !f.service.IsInWishlist("p-1") {
		t.Fatalf("expected product in wishlist")
	}
}

func TestRemoveFromCartUnknownLine(t *testing.T) {
	f := newShopFixture(t)
	err := f.service.RemoveFromCart(context.Background(), "missing")
	if !errors.Is(err, ErrShopNotFound) {
		t.Fatalf("expected ErrShopNotFound, got %v", err)
	}
}

func TestClearCartDropsPersistedGuestKey(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	if err := f.service.AddToCart(ctx, AddToCartInput{VariantID: "v-1", Quantity: 1, UnitPrice: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.service.ClearCart(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var persisted []domain.CartLine
	ok, err := localstore.GetJSON(ctx, f.store, localstore.KeyGuestCart, &persisted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected guest cart key removed")
	}
	if got := f.service.CartTotals(); got.Count != 0 || got.Subtotal != 0 {
		t.Fatalf("expected empty totals, got %+v", got)
	}
}

func TestRestoreWithoutUserLoadsGuestState(t *testing.T) {
	f := newShopFixture(t)
	ctx := context.Background()

	seed := []domain.CartLine{{Kind: domain.LineKindGuest, ID: "line-s", VariantID: "v-9", Quantity: 2, UnitPrice: 30}}
	if err := localstore.SetJSON(ctx, f.store, localstore.KeyGuestCart, seed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.service.Restore(ctx, domain.User{}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lines := f.service.CartLines(); len(lines) != 1 || lines[0].VariantID != "v-9" {
		t.Fatalf("expected restored guest cart, got %+v", lines)
	}
}
