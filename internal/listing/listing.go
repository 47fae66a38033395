// Package listing provides the marketplace listing read model consumed by the
// payment flows. Listing CRUD itself lives in the marketplace service; this
// package only carries the fields the payment engine needs (price, seller,
// sold flag) plus the boost visibility window.
package listing

import (
	"context"
	"errors"
	"time"
)

var ErrListingNotFound = errors.New("listing: not found")

// Listing is the subset of a marketplace listing relevant to payments.
type Listing struct {
	ID           string     `json:"id"`
	SellerID     string     `json:"sellerId"`
	Title        string     `json:"title"`
	PriceCents   int64      `json:"priceCents"`
	IsSold       bool       `json:"isSold"`
	IsBoosted    bool       `json:"isBoosted"`
	BoostedAt    *time.Time `json:"boostedAt,omitempty"`
	BoostedUntil *time.Time `json:"boostedUntil,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// BoostActive reports whether the listing's boost window covers now.
func (l *Listing) BoostActive(now time.Time) bool {
	return l.IsBoosted && l.BoostedUntil != nil && now.Before(*l.BoostedUntil)
}

// Store persists listing data.
type Store interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id string) (*Listing, error)
	// SetBoost marks the listing boosted for the given window.
	SetBoost(ctx context.Context, id string, at, until time.Time) error
}
