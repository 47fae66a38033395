//go:build integration

package listing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campusmarket/securepay/internal/testutil"
)

func TestPostgresListing_CreateGetBoost(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	l := &Listing{
		ID:         "lst_pg1",
		SellerID:   "seller",
		Title:      "Graphing calculator",
		PriceCents: 4500,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := store.Create(ctx, l); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "lst_pg1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PriceCents != 4500 || got.IsSold || got.IsBoosted {
		t.Errorf("Get returned %+v", got)
	}
	if got.BoostedAt != nil || got.BoostedUntil != nil {
		t.Error("boost window should be null for a fresh listing")
	}

	until := now.Add(48 * time.Hour)
	if err := store.SetBoost(ctx, "lst_pg1", now, until); err != nil {
		t.Fatalf("SetBoost failed: %v", err)
	}

	boosted, err := store.Get(ctx, "lst_pg1")
	if err != nil {
		t.Fatalf("Get after boost failed: %v", err)
	}
	if !boosted.IsBoosted || boosted.BoostedUntil == nil {
		t.Errorf("boost not persisted: %+v", boosted)
	}
	if !boosted.BoostActive(now.Add(time.Hour)) {
		t.Error("boost window not active")
	}
}

func TestPostgresListing_NotFound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()
	ctx := context.Background()

	store := NewPostgresStore(db)

	if _, err := store.Get(ctx, "lst_missing"); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("Get err = %v, want ErrListingNotFound", err)
	}
	if err := store.SetBoost(ctx, "lst_missing", time.Now(), time.Now()); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("SetBoost err = %v, want ErrListingNotFound", err)
	}
}
