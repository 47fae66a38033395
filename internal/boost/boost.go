// Package boost implements paid listing promotion: a flat-fee checkout that
// pins a listing to the top of Browse for a fixed window.
package boost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusmarket/securepay/internal/listing"
	"github.com/campusmarket/securepay/internal/metrics"
	"github.com/campusmarket/securepay/internal/processor"
)

var (
	ErrNotOwner            = errors.New("boost: only the listing's seller may boost it")
	ErrPaymentNotCompleted = errors.New("boost: payment not completed")
	ErrSessionMismatch     = errors.New("boost: checkout session does not match listing")
)

// SessionIntent is the client-facing result of CreateSession.
type SessionIntent struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
}

// Activation reports the boost window after a successful activation.
type Activation struct {
	ListingID    string    `json:"listingId"`
	BoostedUntil time.Time `json:"boostedUntil"`
}

// Service implements boost business logic.
type Service struct {
	listings  listing.Store
	processor processor.Processor
	logger    *slog.Logger

	priceCents  int64
	hours       int
	currency    string
	frontendURL string
}

// NewService creates a new boost service.
func NewService(listings listing.Store, proc processor.Processor, priceCents int64, hours int, currency, frontendURL string, logger *slog.Logger) *Service {
	return &Service{
		listings:    listings,
		processor:   proc,
		logger:      logger,
		priceCents:  priceCents,
		hours:       hours,
		currency:    currency,
		frontendURL: frontendURL,
	}
}

// CreateSession opens a hosted checkout for boosting the seller's listing.
// Boost payments capture immediately; there is no escrow hold.
func (s *Service) CreateSession(ctx context.Context, listingID, sellerID string) (*SessionIntent, error) {
	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, ErrNotOwner
	}

	cs, err := s.processor.CreateCheckout(ctx, processor.CheckoutRequest{
		Kind:        "boost",
		AmountCents: s.priceCents,
		Currency:    s.currency,
		Title:       "Boost: " + l.Title,
		Description: fmt.Sprintf("Your listing appears at the top of Browse for %d hours", s.hours),
		SuccessURL:  fmt.Sprintf("%s?boost_success=1&listing_id=%s&session_id={CHECKOUT_SESSION_ID}", s.frontendURL, listingID),
		CancelURL:   s.frontendURL + "?boost_cancel=1",
		Metadata: map[string]string{
			"listing_id": listingID,
			"user_id":    sellerID,
		},
	})
	if err != nil {
		return nil, err
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("boost").Inc()
	return &SessionIntent{CheckoutURL: cs.URL, SessionID: cs.ID}, nil
}

// Activate verifies the boost payment and marks the listing boosted.
// Re-activating an already boosted listing reports the current window
// without extending it.
func (s *Service) Activate(ctx context.Context, listingID, sessionID, sellerID string) (*Activation, error) {
	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, ErrNotOwner
	}

	now := time.Now()
	if l.BoostActive(now) {
		return &Activation{ListingID: listingID, BoostedUntil: *l.BoostedUntil}, nil
	}

	cs, err := s.processor.GetCheckout(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !cs.Paid {
		return nil, ErrPaymentNotCompleted
	}
	if cs.Metadata["listing_id"] != listingID {
		return nil, ErrSessionMismatch
	}

	until := now.Add(time.Duration(s.hours) * time.Hour)
	if err := s.listings.SetBoost(ctx, listingID, now, until); err != nil {
		return nil, err
	}

	metrics.BoostActivationsTotal.Inc()
	s.logger.Info("listing boosted",
		"listing_id", listingID,
		"seller_id", sellerID,
		"boosted_until", until,
	)
	return &Activation{ListingID: listingID, BoostedUntil: until}, nil
}

// PriceCents returns the flat boost price, for handlers to echo the charge.
func (s *Service) PriceCents() int64 { return s.priceCents }
