package escrow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/campusmarket/securepay/internal/idgen"
	"github.com/campusmarket/securepay/internal/metrics"
	"github.com/campusmarket/securepay/internal/processor"
	"github.com/campusmarket/securepay/internal/traces"
)

// SessionIntent is the client-facing result of CreateSession: where to send
// the buyer, and what they will be charged.
type SessionIntent struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
	AmountCents int64  `json:"amountCents"`
	FeeCents    int64  `json:"feeCents"`
}

// feeCents computes the buyer service fee, rounded to the nearest cent.
func feeCents(priceCents int64, bps int) int64 {
	return (priceCents*int64(bps) + 5000) / 10000
}

// CreateSession binds a hosted-checkout attempt to a listing and buyer.
// No EscrowTransaction exists until the session is activated; an abandoned
// checkout leaves no residue.
func (s *Service) CreateSession(ctx context.Context, listingID, buyerID string) (*SessionIntent, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.CreateSession", traces.ListingID(listingID), traces.UserID(buyerID))
	defer span.End()

	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.SellerID == buyerID {
		return nil, ErrSelfTransactionDenied
	}
	if l.IsSold {
		return nil, ErrListingUnavailable
	}
	if _, err := s.store.ActiveForListing(ctx, listingID); err == nil {
		return nil, ErrListingUnavailable
	}

	// Amount is fixed here; later listing price changes never affect it.
	fee := feeCents(l.PriceCents, s.feeBPS)
	total := l.PriceCents + fee

	cs, err := s.processor.CreateCheckout(ctx, processor.CheckoutRequest{
		Kind:          "secure_pay",
		AmountCents:   total,
		Currency:      s.currency,
		Title:         l.Title,
		Description:   fmt.Sprintf("Secure-Pay escrow (includes %.2f%% service fee of $%.2f)", float64(s.feeBPS)/100, float64(fee)/100),
		ManualCapture: true,
		SuccessURL:    fmt.Sprintf("%s?secure_pay_success=1&listing_id=%s&session_id={CHECKOUT_SESSION_ID}", s.frontendURL, listingID),
		CancelURL:     s.frontendURL + "?secure_pay_cancel=1",
		Metadata: map[string]string{
			"listing_id":   listingID,
			"buyer_id":     buyerID,
			"seller_id":    l.SellerID,
			"amount_cents": strconv.FormatInt(total, 10),
			"fee_cents":    strconv.FormatInt(fee, 10),
		},
	})
	if err != nil {
		return nil, err
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("secure_pay").Inc()
	return &SessionIntent{
		CheckoutURL: cs.URL,
		SessionID:   cs.ID,
		AmountCents: total,
		FeeCents:    fee,
	}, nil
}

// Activate verifies with the processor that the session's payment is
// authorized (requires_capture) and creates the EscrowTransaction in "held".
//
// Idempotent on sessionID: processor redirects and webhooks may duplicate,
// so a second call returns the existing transaction instead of creating
// another. The store's uniqueness guarantees back this up under races.
func (s *Service) Activate(ctx context.Context, listingID, sessionID, actorID string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Activate", traces.ListingID(listingID), traces.SessionID(sessionID))
	defer span.End()

	if existing, err := s.store.GetBySession(ctx, sessionID); err == nil {
		if existing.BuyerID != actorID {
			return nil, ErrSessionAlreadyConsumed
		}
		return existing, nil
	}

	cs, err := s.processor.GetCheckout(ctx, sessionID)
	if err != nil {
		if errors.Is(err, processor.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if !cs.RequiresCapture {
		return nil, ErrPaymentNotAuthorized
	}
	if cs.Metadata["buyer_id"] != actorID || cs.Metadata["listing_id"] != listingID {
		return nil, ErrSessionMismatch
	}

	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.IsSold {
		return nil, ErrListingUnavailable
	}

	// Amounts were fixed at session creation and travel in the session
	// metadata; they are never re-derived from the listing.
	amount, err := strconv.ParseInt(cs.Metadata["amount_cents"], 10, 64)
	if err != nil {
		return nil, ErrSessionMismatch
	}
	fee, _ := strconv.ParseInt(cs.Metadata["fee_cents"], 10, 64)
	span.SetAttributes(traces.AmountCents(amount))

	now := time.Now()
	tx := &Transaction{
		ID:              idgen.WithPrefix("txn_"),
		ListingID:       listingID,
		BuyerID:         actorID,
		SellerID:        l.SellerID,
		AmountCents:     amount,
		FeeCents:        fee,
		SessionID:       sessionID,
		PaymentIntentID: cs.PaymentIntentID,
		Status:          StatusHeld,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Create(ctx, tx); err != nil {
		// Lost an activation race for the same session: idempotent success.
		if errors.Is(err, ErrSessionAlreadyConsumed) {
			if existing, getErr := s.store.GetBySession(ctx, sessionID); getErr == nil && existing.BuyerID == actorID {
				return existing, nil
			}
		}
		return nil, err
	}

	metrics.EscrowTransitionsTotal.WithLabelValues(string(StatusHeld)).Inc()
	s.emit("escrow_held", tx)
	return tx, nil
}
