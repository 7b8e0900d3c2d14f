package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/d2Anubis/totally-shopcore/internal/domain"
	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

func newReconcilerFixture(t *testing.T) (*Reconciler, *stubCartAPI, *stubWishlistAPI, localstore.Store, *captureNotifier) {
	t.Helper()

	cart := &stubCartAPI{}
	wishlist := &stubWishlistAPI{}
	store := localstore.NewMemory()
	notices := &captureNotifier{}

	reconciler, err := NewReconciler(ReconcilerDeps{
		Cart:     cart,
		Wishlist: wishlist,
		Store:    store,
		Notifier: notices,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing reconciler: %v", err)
	}
	return reconciler, cart, wishlist, store, notices
}

func TestMergeGuestStateFiltersInvalidLines(t *testing.T) {
	reconciler, cart, _, store, notices := newReconcilerFixture(t)
	ctx := context.Background()

	guestLines := []domain.CartLine{
		{Kind: domain.LineKindGuest, ID: "g-1", VariantID: "0b8a4a2e-7a36-4f62-9c59-2f6f1c2b6f10", Quantity: 2},
		{Kind: domain.LineKindGuest, ID: "g-2", VariantID: "not-a-uuid", Quantity: 1},
		{Kind: domain.LineKindGuest, ID: "g-3", VariantID: "5f1a8c3d-1e2b-4d5a-8f7c-9a0b1c2d3e4f", Quantity: 0},
	}
	if err := localstore.SetJSON(ctx, store, localstore.KeyGuestCart, guestLines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines, _ := reconciler.MergeGuestState(ctx, "u-1")

	if len(cart.bulkCalls) != 1 || len(cart.bulkCalls[0]) != 1 {
		t.Fatalf("expected one bulk call with one valid item, got %+v", cart.bulkCalls)
	}
	if cart.bulkCalls[0][0].VariantID != "0b8a4a2e-7a36-4f62-9c59-2f6f1c2b6f10" || cart.bulkCalls[0][0].Quantity != 2 {
		t.Fatalf("unexpected bulk item %+v", cart.bulkCalls[0][0])
	}
	if len(lines) != 1 || lines[0].Kind != domain.LineKindServer {
		t.Fatalf("expected authoritative server lines, got %+v", lines)
	}

	// Two invalid lines were dropped; the user hears about it once.
	found := false
	for _, notice := range notices.notices {
		if strings.Contains(notice, "2 items couldn't be added") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected dropped-items notice, got %v", notices.notices)
	}

	// Successful merge clears the guest key.
	var leftover []domain.CartLine
	ok, err := localstore.GetJSON(ctx, store, localstore.KeyGuestCart, &leftover)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected guest cart key removed after merge")
	}
}

func TestMergeGuestStateSingleDroppedItemMessage(t *testing.T) {
	reconciler, _, _, store, notices := newReconcilerFixture(t)
	ctx := context.Background()

	guestLines := []domain.CartLine{
		{Kind: domain.LineKindGuest, ID: "g-1", VariantID: "not-a-uuid", Quantity: 1},
	}
	if err := localstore.SetJSON(ctx, store, localstore.KeyGuestCart, guestLines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reconciler.MergeGuestState(ctx, "u-1")

	found := false
	for _, notice := range notices.notices {
		if strings.Contains(notice, "1 item couldn't be added") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected singular dropped-item notice, got %v", notices.notices)
	}
}

func TestMergeGuestStateKeepsGuestCartOnBulkFailure(t *testing.T) {
	reconciler, cart, _, store, notices := newReconcilerFixture(t)
	ctx := context.Background()

	cart.bulkErr = errors.New("backend down")
	guestLines := []domain.CartLine{
		{Kind: domain.LineKindGuest, ID: "g-1", VariantID: "0b8a4a2e-7a36-4f62-9c59-2f6f1c2b6f10", Quantity: 2},
	}
	if err := localstore.SetJSON(ctx, store, localstore.KeyGuestCart, guestLines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reconciler.MergeGuestState(ctx, "u-1")

	// Failed merge keeps the guest cart for a later retry.
	var leftover []domain.CartLine
	ok, err := localstore.GetJSON(ctx, store, localstore.KeyGuestCart, &leftover)
	if err != nil || !ok || len(leftover) != 1 {
		t.Fatalf("expected guest cart retained, got ok=%v err=%v lines=%d", ok, err, len(leftover))
	}
	if len(notices.notices) == 0 {
		t.Fatalf("expected failure notice")
	}
}

func TestMergeGuestStateCorruptCartIsDiscarded(t *testing.T) {
	reconciler, cart, _, store, _ := newReconcilerFixture(t)
	ctx := context.Background()

	if err := store.Set(ctx, localstore.KeyGuestCart, []byte("{not json")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reconciler.MergeGuestState(ctx, "u-1")

	if len(cart.bulkCalls) != 0 {
		t.Fatalf("corrupt guest cart must not reach the backend")
	}
	if _, ok, _ := store.Get(ctx, localstore.KeyGuestCart); ok {
		t.Fatalf("expected corrupt key discarded")
	}
}

func TestMergeGuestStateWishlistMergedSequentially(t *testing.T) {
	reconciler, _, wishlist, store, _ := newReconcilerFixture(t)
	ctx := context.Background()

	guestWishlist := []domain.WishlistProduct{
		{ProductID: "p-1"},
		{ProductID: "p-2"},
	}
	if err := localstore.SetJSON(ctx, store, localstore.KeyGuestWishlist, guestWishlist); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, merged := reconciler.MergeGuestState(ctx, "u-1")

	if len(wishlist.addCalls) != 2 || wishlist.addCalls[0] != "p-1" || wishlist.addCalls[1] != "p-2" {
		t.Fatalf("unexpected wishlist adds %v", wishlist.addCalls)
	}
	if len(merged) != 2 {
		t.Fatalf("expected re-fetched wishlist, got %+v", merged)
	}

	if _, ok, _ := store.Get(ctx, localstore.KeyGuestWishlist); ok {
		t.Fatalf("expected guest wishlist key removed after merge")
	}
}

func TestMergeGuestStateEmptyStoresSkipBackendWrites(t *testing.T) {
	reconciler, cart, wishlist, _, notices := newReconcilerFixture(t)

	lines, merged := reconciler.MergeGuestState(context.Background(), "u-1")

	if len(cart.bulkCalls) != 0 || len(wishlist.addCalls) != 0 {
		t.Fatalf("empty guest state must not write to the backend")
	}
	if len(lines) != 0 || len(merged) != 0 {
		t.Fatalf("expected empty authoritative state, got %d lines %d wishlist", len(lines), len(merged))
	}
	if len(notices.notices) != 0 {
		t.Fatalf("no notices expected for a clean merge, got %v", notices.notices)
	}
}
