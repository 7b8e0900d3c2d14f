package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

var (
	errShopCartRequired     = errors.New("shop service: cart api is required")
	errShopWishlistRequired = errors.New("shop service: wishlist api is required")
	errShopStoreRequired    = errors.New("shop service: store is required")
	errShopMergerRequired   = errors.New("shop service: merger is required")
	errShopClockRequired    = errors.New("shop service: clock is required")
)

// ErrShopInvalidInput indicates the caller supplied invalid input.
var ErrShopInvalidInput = errors.New("shop service: invalid input")

// ErrShopUnavailable indicates the backend could not fulfil the request.
var ErrShopUnavailable = errors.New("shop service: unavailable")

// ErrShopNotFound indicates the referenced cart line does not exist.
var ErrShopNotFound = errors.New("shop service: not found")

// ErrLoginRequired is returned when a guest attempts an operation reserved
// for authenticated users. The caller should prompt for login and preserve
// the return target.
var ErrLoginRequired = errors.New("shop service: login required")

// ErrSessionExpired is returned after a silent logout forced by an
// authentication failure. No user-facing dialog should be raised for it.
var ErrSessionExpired = errors.New("shop service: session expired")

// GuestMerger runs the one-time guest-to-user merge and returns the
// authoritative server state.
type GuestMerger interface {
	MergeGuestState(ctx context.Context, userID string) ([]domain.CartLine, []domain.WishlistProduct)
}

// SessionAPI is the slice of the backend client used to tear a session down.
type SessionAPI interface {
	Logout(ctx context.Context)
}

// AddToCartInput describes the product being added.
type AddToCartInput struct {
	VariantID string
	ProductID string
	Quantity  int
	UnitPrice float64
	Snapshot  *domain.ProductSnapshot
}

// ShopService holds the in-memory cart and wishlist state for one shop
// session and branches every mutation between the guest-local and the
// authenticated-remote path.
type ShopService interface {
	Identity() domain.Identity
	Restore(ctx context.Context, user domain.User, hasUser bool) error
	SetUser(ctx context.Context, user domain.User) error
	ClearUser(ctx context.Context) error
	Refresh(ctx context.Context) error

	CartLines() []domain.CartLine
	CartTotals() domain.CartTotals
	AddToCart(ctx context.Context, input AddToCartInput) error
	RemoveFromCart(ctx context.Context, lineID string) error
	UpdateCartQuantity(ctx context.Context, lineID string, quantity int) error
	IncreaseQuantity(ctx context.Context, lineID string, amount int) error
	DecreaseQuantity(ctx context.Context, lineID string, amount int) error
	IsInCart(variantID string) bool
	ClearCart(ctx context.Context) error

	Wishlist() []domain.WishlistProduct
	AddToWishlist(ctx context.Context, product domain.WishlistProduct, returnURL string) error
	RemoveFromWishlist(ctx context.Context, productID string) error
	IsInWishlist(productID string) bool
}

// ShopServiceDeps wires the state provider dependencies.
type ShopServiceDeps struct {
	Cart        CartAPI
	Wishlist    WishlistAPI
	Store       localstore.Store
	Merger      GuestMerger
	Sessions    SessionAPI
	Notifier    Notifier
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type shopService struct {
	cart     CartAPI
	wishlist WishlistAPI
	store    localstore.Store
	merger   GuestMerger
	sessions SessionAPI
	notifier Notifier
	newID    func() string
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)

	// mu serialises every exposed operation, mirroring the storefront's
	// single-threaded event loop. The synced map is the once-per-login
	// reconciliation guard.
	mu            sync.Mutex
	identity      domain.Identity
	lines         []domain.CartLine
	wishlistItems []domain.WishlistProduct
	synced        map[string]bool
}

// NewShopService constructs a ShopService enforcing dependency validation.
func NewShopService(deps ShopServiceDeps) (ShopService, error) {
	if deps.Cart == nil {
		return nil, errShopCartRequired
	}
	if deps.Wishlist == nil {
		return nil, errShopWishlistRequired
	}
	if deps.Store == nil {
		return nil, errShopStoreRequired
	}
	if deps.Merger == nil {
		return nil, errShopMergerRequired
	}
	if deps.Clock == nil {
		return nil, errShopClockRequired
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &shopService{
		cart:     deps.Cart,
		wishlist: deps.Wishlist,
		store:    deps.Store,
		merger:   deps.Merger,
		sessions: deps.Sessions,
		notifier: notifier,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
		identity: domain.Identity{State: domain.IdentityGuest},
		synced:   make(map[string]bool),
	}, nil
}

// Identity returns the current session identity.
func (s *shopService) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Restore initialises state at session start: a persisted user resumes the
// authenticated flow (including the one-time merge), otherwise guest state is
// loaded from the store.
func (s *shopService) Restore(ctx context.Context, user domain.User, hasUser bool) error {
	if hasUser {
		return s.SetUser(ctx, user)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = domain.Identity{State: domain.IdentityGuest}
	s.loadGuestStateLocked(ctx)
	return nil
}

// SetUser transitions Guest -> Transitioning -> Authenticated. The first
// transition for a user id runs the guest merge; later calls only re-fetch.
func (s *shopService) SetUser(ctx context.Context, user domain.User) error {
	uid := strings.TrimSpace(user.ID)
	if uid == "" {
		return ErrShopInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity.State == domain.IdentityAuthenticated && s.identity.UserID == uid {
		return nil
	}

	s.identity = domain.Identity{State: domain.IdentityTransitioning, UserID: uid}

	if !s.synced[uid] {
		lines, wishlist := s.merger.MergeGuestState(ctx, uid)
		s.synced[uid] = true
		s.lines = lines
		s.wishlistItems = wishlist
	} else if err := s.reloadServerStateLocked(ctx); err != nil {
		// A silent logout has already reset the identity to guest; only
		// other failures keep the session authenticated.
		if !errors.Is(err, ErrSessionExpired) {
			s.identity = domain.Identity{State: domain.IdentityAuthenticated, UserID: uid}
		}
		return err
	}

	s.identity = domain.Identity{State: domain.IdentityAuthenticated, UserID: uid}
	s.logger(ctx, "shop.identity_changed", map[string]any{"state": string(s.identity.State), "userID": uid})
	return nil
}

// ClearUser transitions to Guest on logout. The in-memory arrays are
// replaced by whatever the guest store held before login; authenticated
// state is never merged backwards.
func (s *shopService) ClearUser(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.becomeGuestLocked(ctx)
	s.logger(ctx, "shop.identity_changed", map[string]any{"state": string(domain.IdentityGuest)})
	return nil
}

// Refresh re-reads state from the current source of truth.
func (s *shopService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity.Guest() {
		s.loadGuestStateLocked(ctx)
		return nil
	}
	if err := s.reloadServerStateLocked(ctx); err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	return nil
}

// CartLines returns a copy of the current cart lines.
func (s *shopService) CartLines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneLines(s.lines)
}

// CartTotals recomputes totals from the current line slice.
func (s *shopService) CartTotals() domain.CartTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.TotalsOf(s.lines)
}

// AddToCart appends or increments a guest line, or submits the add to the
// backend and re-fetches the authoritative cart.
func (s *shopService) AddToCart(ctx context.Context, input AddToCartInput) error {
	if strings.TrimSpace(input.VariantID) == "" {
		return fmt.Errorf("%w: variant id is required", ErrShopInvalidInput)
	}
	if input.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrShopInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity.Guest() {
		s.addGuestLineLocked(input)
		return s.saveGuestCartLocked(ctx)
	}

	if err := s.cart.AddCartItem(ctx, input.VariantID, input.Quantity); err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	return s.reloadServerCartLocked(ctx)
}

// RemoveFromCart removes a line by id on the active path.
func (s *shopService) RemoveFromCart(ctx context.Context, lineID string) error {
	trimmed := strings.TrimSpace(lineID)
	if trimmed == "" {
		return ErrShopInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLineLocked(ctx, trimmed)
}

// UpdateCartQuantity sets an absolute quantity; values below one remove the
// line instead.
func (s *shopService) UpdateCartQuantity(ctx context.Context, lineID string, quantity int) error {
	trimmed := strings.TrimSpace(lineID)
	if trimmed == "" {
		return ErrShopInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setQuantityLocked(ctx, trimmed, quantity)
}

// IncreaseQuantity raises the line quantity by the given amount.
func (s *shopService) IncreaseQuantity(ctx context.Context, lineID string, amount int) error {
	return s.adjustQuantity(ctx, lineID, amount)
}

// DecreaseQuantity lowers the line quantity; reaching zero removes the line.
func (s *shopService) DecreaseQuantity(ctx context.Context, lineID string, amount int) error {
	return s.adjustQuantity(ctx, lineID, -amount)
}

func (s *shopService) adjustQuantity(ctx context.Context, lineID string, delta int) error {
	trimmed := strings.TrimSpace(lineID)
	if trimmed == "" || delta == 0 {
		return ErrShopInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOfLine(s.lines, trimmed)
	if idx < 0 {
		return ErrShopNotFound
	}
	desired := s.lines[idx].Quantity + delta
	if desired < 0 {
		desired = 0
	}
	return s.setQuantityLocked(ctx, trimmed, desired)
}

// IsInCart reports whether any current line references the variant.
func (s *shopService) IsInCart(variantID string) bool {
	trimmed := strings.TrimSpace(variantID)
	if trimmed == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.lines {
		if strings.EqualFold(line.VariantID, trimmed) {
			return true
		}
	}
	return false
}

// ClearCart resets the in-memory cart; guests also drop the persisted key.
// Invoked by the checkout flow after a confirmed payment.
func (s *shopService) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []domain.CartLine{}
	if s.identity.Guest() {
		if err := s.store.Delete(ctx, localstore.KeyGuestCart); err != nil {
			s.logger(ctx, "shop.guest_cart_clear_failed", map[string]any{"error": err.Error()})
		}
	}
	return nil
}

// Wishlist returns a copy of the current wishlist.
func (s *shopService) Wishlist() []domain.WishlistProduct {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WishlistProduct, len(s.wishlistItems))
	copy(out, s.wishlistItems)
	return out
}

// AddToWishlist toggles server membership for authenticated users. Guests
// are never written locally: the call fails with ErrLoginRequired after
// preserving the return target for the post-login redirect.
func (s *shopService) AddToWishlist(ctx context.Context, product domain.WishlistProduct, returnURL string) error {
	if strings.TrimSpace(product.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrShopInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity.Guest() {
		if target := strings.TrimSpace(returnURL); target != "" {
			if err := localstore.SetJSON(ctx, s.store, localstore.KeyReturnURL, target); err != nil {
				s.logger(ctx, "shop.return_url_save_failed", map[string]any{"error": err.Error()})
			}
		}
		return ErrLoginRequired
	}

	if s.inWishlistLocked(product.ProductID) {
		return nil
	}
	if err := s.wishlist.AddWishlistProduct(ctx, product.ProductID); err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	return s.reloadWishlistLocked(ctx)
}

// RemoveFromWishlist removes membership on the active path. Guests may hold
// wishlist entries from earlier sessions; those are edited locally.
func (s *shopService) RemoveFromWishlist(ctx context.Context, productID string) error {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return ErrShopInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity.Guest() {
		kept := s.wishlistItems[:0]
		for _, product := range s.wishlistItems {
			if !strings.EqualFold(product.ProductID, trimmed) {
				kept = append(kept, product)
			}
		}
		s.wishlistItems = kept
		if err := localstore.SetJSON(ctx, s.store, localstore.KeyGuestWishlist, s.wishlistItems); err != nil {
			s.logger(ctx, "shop.guest_wishlist_save_failed", map[string]any{"error": err.Error()})
		}
		return nil
	}

	if !s.inWishlistLocked(trimmed) {
		return nil
	}
	if err := s.wishlist.RemoveWishlistProduct(ctx, trimmed); err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	return s.reloadWishlistLocked(ctx)
}

// IsInWishlist reports membership over the in-memory wishlist.
func (s *shopService) IsInWishlist(productID string) bool {
	trimmed := strings.TrimSpace(productID)
	if trimmed == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inWishlistLocked(trimmed)
}

func (s *shopService) inWishlistLocked(productID string) bool {
	for _, product := range s.wishlistItems {
		if strings.EqualFold(product.ProductID, productID) {
			return true
		}
	}
	return false
}

func (s *shopService) addGuestLineLocked(input AddToCartInput) {
	for i := range s.lines {
		if strings.EqualFold(s.lines[i].VariantID, input.VariantID) {
			s.lines[i].Quantity += input.Quantity
			return
		}
	}
	s.lines = append(s.lines, domain.CartLine{
		Kind:      domain.LineKindGuest,
		ID:        s.newID(),
		VariantID: strings.TrimSpace(input.VariantID),
		ProductID: strings.TrimSpace(input.ProductID),
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPrice,
		Snapshot:  input.Snapshot,
		AddedAt:   s.now(),
	})
}

func (s *shopService) removeLineLocked(ctx context.Context, lineID string) error {
	idx := indexOfLine(s.lines, lineID)
	if idx < 0 {
		return ErrShopNotFound
	}

	if s.identity.Guest() {
		s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
		return s.saveGuestCartLocked(ctx)
	}

	if err := s.cart.RemoveCartItem(ctx, lineID); err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	return s.reloadServerCartLocked(ctx)
}

func (s *shopService) setQuantityLocked(ctx context.Context, lineID string, quantity int) error {
	if quantity < 1 {
		return s.removeLineLocked(ctx, lineID)
	}

	idx := indexOfLine(s.lines, lineID)
	if idx < 0 {
		return ErrShopNotFound
	}

	if s.identity.Guest() {
		s.lines[idx].Quantity = quantity
		return s.saveGuestCartLocked(ctx)
	}

	if err := s.cart.AdjustCartQuantity(ctx, lineID, s.lines[idx].Quantity, quantity); err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	return s.reloadServerCartLocked(ctx)
}

func (s *shopService) loadGuestStateLocked(ctx context.Context) {
	var lines []domain.CartLine
	ok, err := localstore.GetJSON(ctx, s.store, localstore.KeyGuestCart, &lines)
	if err != nil {
		s.logger(ctx, "shop.guest_cart_corrupt", map[string]any{"error": err.Error()})
	}
	if !ok || err != nil {
		lines = []domain.CartLine{}
	}
	s.lines = lines

	var wishlist []domain.WishlistProduct
	ok, err = localstore.GetJSON(ctx, s.store, localstore.KeyGuestWishlist, &wishlist)
	if err != nil {
		s.logger(ctx, "shop.guest_wishlist_corrupt", map[string]any{"error": err.Error()})
	}
	if !ok || err != nil {
		wishlist = []domain.WishlistProduct{}
	}
	s.wishlistItems = wishlist
}

func (s *shopService) saveGuestCartLocked(ctx context.Context) error {
	if err := localstore.SetJSON(ctx, s.store, localstore.KeyGuestCart, s.lines); err != nil {
		s.logger(ctx, "shop.guest_cart_save_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("%w: guest cart save failed", ErrShopUnavailable)
	}
	return nil
}

func (s *shopService) reloadServerCartLocked(ctx context.Context) error {
	lines, err := s.cart.GetCart(ctx)
	if err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	s.lines = lines
	return nil
}

func (s *shopService) reloadWishlistLocked(ctx context.Context) error {
	wishlist, err := s.wishlist.GetWishlist(ctx)
	if err != nil {
		return s.translateBackendErrorLocked(ctx, err)
	}
	s.wishlistItems = wishlist
	return nil
}

func (s *shopService) reloadServerStateLocked(ctx context.Context) error {
	if err := s.reloadServerCartLocked(ctx); err != nil {
		return err
	}
	return s.reloadWishlistLocked(ctx)
}

// translateBackendErrorLocked maps auth failures to a silent logout and
// everything else to ErrShopUnavailable with the cause preserved.
func (s *shopService) translateBackendErrorLocked(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if backend.IsAuthError(err) {
		s.logger(ctx, "shop.session_expired", map[string]any{"userID": s.identity.UserID})
		if s.sessions != nil {
			s.sessions.Logout(ctx)
		}
		s.becomeGuestLocked(ctx)
		return ErrSessionExpired
	}
	return fmt.Errorf("%w: %v", ErrShopUnavailable, err)
}

func (s *shopService) becomeGuestLocked(ctx context.Context) {
	s.identity = domain.Identity{State: domain.IdentityGuest}
	s.loadGuestStateLocked(ctx)
}

func indexOfLine(lines []domain.CartLine, lineID string) int {
	for i, line := range lines {
		if strings.EqualFold(line.ID, lineID) {
			return i
		}
	}
	return -1
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	return out
}
