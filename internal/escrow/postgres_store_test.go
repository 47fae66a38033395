//go:build integration

package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusmarket/securepay/internal/idgen"
	"github.com/campusmarket/securepay/internal/listing"
	"github.com/campusmarket/securepay/internal/testutil"
)

func seedPGListing(t *testing.T, listings *listing.PostgresStore, id string) {
	t.Helper()
	now := time.Now()
	err := listings.Create(context.Background(), &listing.Listing{
		ID:         id,
		SellerID:   "seller",
		Title:      "Desk lamp",
		PriceCents: 2500,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
}

func newPGTransaction(listingID string) *Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Transaction{
		ID:              idgen.WithPrefix("txn_"),
		ListingID:       listingID,
		BuyerID:         "buyer",
		SellerID:        "seller",
		AmountCents:     2675,
		FeeCents:        175,
		SessionID:       idgen.WithPrefix("cs_test_"),
		PaymentIntentID: idgen.WithPrefix("pi_test_"),
		Status:          StatusHeld,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPostgresEscrow_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	listings := listing.NewPostgresStore(db)
	store := NewPostgresStore(db)

	seedPGListing(t, listings, "lst_pg1")
	tx := newPGTransaction("lst_pg1")
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusHeld {
		t.Errorf("Status: got %s, want held", got.Status)
	}
	if got.AmountCents != 2675 || got.FeeCents != 175 {
		t.Errorf("amounts: got %d/%d", got.AmountCents, got.FeeCents)
	}
	if got.PaymentIntentID != tx.PaymentIntentID {
		t.Errorf("PaymentIntentID: got %s, want %s", got.PaymentIntentID, tx.PaymentIntentID)
	}

	bySession, err := store.GetBySession(ctx, tx.SessionID)
	if err != nil {
		t.Fatalf("GetBySession failed: %v", err)
	}
	if bySession.ID != tx.ID {
		t.Errorf("GetBySession: got %s, want %s", bySession.ID, tx.ID)
	}
}

func TestPostgresEscrow_OneHoldPerListing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	listings := listing.NewPostgresStore(db)
	store := NewPostgresStore(db)
	seedPGListing(t, listings, "lst_pg2")

	first := newPGTransaction("lst_pg2")
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	second := newPGTransaction("lst_pg2")
	err := store.Create(ctx, second)
	if !errors.Is(err, ErrListingUnavailable) {
		t.Fatalf("second Create err = %v, want ErrListingUnavailable", err)
	}

	// A terminal transaction frees the listing for a new hold.
	first.Status = StatusRefunded
	now := time.Now()
	first.ResolvedAt = &now
	first.UpdatedAt = now
	if err := store.Transition(ctx, first); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("Create after release failed: %v", err)
	}
}

func TestPostgresEscrow_SessionUnique(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	listings := listing.NewPostgresStore(db)
	store := NewPostgresStore(db)
	seedPGListing(t, listings, "lst_pg3")
	seedPGListing(t, listings, "lst_pg4")

	first := newPGTransaction("lst_pg3")
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	dup := newPGTransaction("lst_pg4")
	dup.SessionID = first.SessionID
	err := store.Create(ctx, dup)
	if !errors.Is(err, ErrSessionAlreadyConsumed) {
		t.Fatalf("duplicate session err = %v, want ErrSessionAlreadyConsumed", err)
	}
}

func TestPostgresEscrow_TransitionGuards(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	listings := listing.NewPostgresStore(db)
	store := NewPostgresStore(db)
	seedPGListing(t, listings, "lst_pg5")

	tx := newPGTransaction("lst_pg5")
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.SetSellerConfirmed(ctx, tx.ID, now); err != nil {
		t.Fatalf("SetSellerConfirmed failed: %v", err)
	}
	if err := store.SetSellerConfirmed(ctx, tx.ID, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("repeat SetSellerConfirmed err = %v, want ErrInvalidState", err)
	}

	tx.Status = StatusCaptured
	tx.SellerConfirmedAt = &now
	tx.ResolvedAt = &now
	tx.UpdatedAt = now
	if err := store.Transition(ctx, tx); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	// Terminal row rejects further transitions.
	tx.Status = StatusRefunded
	if err := store.Transition(ctx, tx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Transition on terminal err = %v, want ErrInvalidState", err)
	}

	got, err := store.Get(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusCaptured {
		t.Errorf("Status: got %s, want captured", got.Status)
	}
	if got.SellerConfirmedAt == nil || got.ResolvedAt == nil {
		t.Error("timestamps lost on round trip")
	}
}

func TestPostgresEscrow_GetForListingPrecedence(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	listings := listing.NewPostgresStore(db)
	store := NewPostgresStore(db)
	seedPGListing(t, listings, "lst_pg6")

	// Older refunded transaction, then a fresh hold on the same listing.
	old := newPGTransaction("lst_pg6")
	old.Status = StatusRefunded
	if err := store.Create(ctx, old); err != nil {
		t.Fatalf("Create refunded failed: %v", err)
	}

	held := newPGTransaction("lst_pg6")
	if err := store.Create(ctx, held); err != nil {
		t.Fatalf("Create held failed: %v", err)
	}

	got, err := store.GetForListing(ctx, "lst_pg6", "buyer")
	if err != nil {
		t.Fatalf("GetForListing failed: %v", err)
	}
	if got.ID != held.ID {
		t.Errorf("GetForListing: got %s, want the active hold %s", got.ID, held.ID)
	}

	// A user who is neither party sees nothing.
	if _, err := store.GetForListing(ctx, "lst_pg6", "rando"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("third-party GetForListing err = %v, want ErrTransactionNotFound", err)
	}
}
