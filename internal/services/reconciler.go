package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/d2Anubis/totally-shopcore/internal/backend"
	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

var (
	errReconcilerCartRequired     = errors.New("reconciler: cart api is required")
	errReconcilerWishlistRequired = errors.New("reconciler: wishlist api is required")
	errReconcilerStoreRequired    = errors.New("reconciler: store is required")
)

// ReconcilerDeps wires the merge dependencies.
type ReconcilerDeps struct {
	Cart     CartAPI
	Wishlist WishlistAPI
	Store    localstore.Store
	Notifier Notifier
	Logger   func(context.Context, string, map[string]any)
}

// Reconciler merges guest-held cart and wishlist state into the
// authenticated user's server records. It runs once per login; the shop
// service enforces the per-user guard.
type Reconciler struct {
	cart     CartAPI
	wishlist WishlistAPI
	store    localstore.Store
	notifier Notifier
	logger   func(context.Context, string, map[string]any)
}

// NewReconciler constructs a Reconciler enforcing dependency validation.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Cart == nil {
		return nil, errReconcilerCartRequired
	}
	if deps.Wishlist == nil {
		return nil, errReconcilerWishlistRequired
	}
	if deps.Store == nil {
		return nil, errReconcilerStoreRequired
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Reconciler{
		cart:     deps.Cart,
		wishlist: deps.Wishlist,
		store:    deps.Store,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// MergeGuestState pushes guest cart and wishlist items to the server and
// returns the authoritative server state. Merge failures are reported via
// the notifier and logged; they never block the subsequent load.
func (r *Reconciler) MergeGuestState(ctx context.Context, userID string) ([]domain.CartLine, []domain.WishlistProduct) {
	r.mergeGuestCart(ctx, userID)

	lines, err := r.cart.GetCart(ctx)
	if err != nil {
		r.logger(ctx, "reconcile.cart_load_failed", map[string]any{"userID": userID, "error": err.Error()})
		r.notifier.Notify(ctx, NoticeError, "We couldn't load your cart. Please refresh.")
		lines = []domain.CartLine{}
	}

	r.mergeGuestWishlist(ctx, userID)

	wishlist, err := r.wishlist.GetWishlist(ctx)
	if err != nil {
		r.logger(ctx, "reconcile.wishlist_load_failed", map[string]any{"userID": userID, "error": err.Error()})
		wishlist = []domain.WishlistProduct{}
	}

	return lines, wishlist
}

func (r *Reconciler) mergeGuestCart(ctx context.Context, userID string) {
	var guestLines []domain.CartLine
	ok, err := localstore.GetJSON(ctx, r.store, localstore.KeyGuestCart, &guestLines)
	if err != nil {
		r.logger(ctx, "reconcile.guest_cart_corrupt", map[string]any{"error": err.Error()})
		_ = r.store.Delete(ctx, localstore.KeyGuestCart)
		return
	}
	if !ok || len(guestLines) == 0 {
		return
	}

	valid := make([]backend.BulkCartItem, 0, len(guestLines))
	dropped := 0
	for _, line := range guestLines {
		if line.Quantity <= 0 || !validVariantID(line.VariantID) {
			dropped++
			continue
		}
		valid = append(valid, backend.BulkCartItem{VariantID: line.VariantID, Quantity: line.Quantity})
	}

	if dropped > 0 {
		r.logger(ctx, "reconcile.items_dropped", map[string]any{"userID": userID, "dropped": dropped})
		r.notifier.Notify(ctx, NoticeWarn, droppedItemsMessage(dropped))
	}

	if len(valid) > 0 {
		if err := r.cart.BulkAddCartItems(ctx, valid); err != nil {
			// Guest cart stays intact so the merge can be retried later.
			r.logger(ctx, "reconcile.bulk_add_failed", map[string]any{"userID": userID, "items": len(valid), "error": err.Error()})
			r.notifier.Notify(ctx, NoticeError, "Some cart items couldn't be moved to your account.")
			return
		}
	}

	if err := r.store.Delete(ctx, localstore.KeyGuestCart); err != nil {
		r.logger(ctx, "reconcile.guest_cart_clear_failed", map[string]any{"error": err.Error()})
	}
}

func (r *Reconciler) mergeGuestWishlist(ctx context.Context, userID string) {
	var guestWishlist []domain.WishlistProduct
	ok, err := localstore.GetJSON(ctx, r.store, localstore.KeyGuestWishlist, &guestWishlist)
	if err != nil {
		r.logger(ctx, "reconcile.guest_wishlist_corrupt", map[string]any{"error": err.Error()})
		_ = r.store.Delete(ctx, localstore.KeyGuestWishlist)
		return
	}
	if !ok || len(guestWishlist) == 0 {
		return
	}

	failures := 0
	for _, product := range guestWishlist {
		if product.ProductID == "" {
			continue
		}
		if err := r.wishlist.AddWishlistProduct(ctx, product.ProductID); err != nil {
			failures++
			r.logger(ctx, "reconcile.wishlist_add_failed", map[string]any{"userID": userID, "productID": product.ProductID, "error": err.Error()})
		}
	}

	if failures > 0 {
		r.notifier.Notify(ctx, NoticeWarn, "Some wishlist items couldn't be moved to your account.")
		return
	}
	if err := r.store.Delete(ctx, localstore.KeyGuestWishlist); err != nil {
		r.logger(ctx, "reconcile.guest_wishlist_clear_failed", map[string]any{"error": err.Error()})
	}
}

func validVariantID(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	return true
}

func droppedItemsMessage(dropped int) string {
	if dropped == 1 {
		return "1 item couldn't be added"
	}
	return fmt.Sprintf("%d items couldn't be added", dropped)
}
