// Package escrow implements the Secure-Pay payment workflow.
//
// Flow:
//  1. Buyer opens a hosted checkout for a listing → card authorized, not captured
//  2. Buyer activates the session → EscrowTransaction created in "held"
//  3. Seller confirms physical handoff → sellerConfirmedAt set, still "held"
//  4. Buyer confirms receipt → funds captured, status "captured"
//  5. Buyer disputes before handoff confirmation → authorization canceled, "refunded"
//  6. Buyer disputes after handoff confirmation → funds stay held, "disputed" (admin review)
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/campusmarket/securepay/internal/listing"
	"github.com/campusmarket/securepay/internal/metrics"
	"github.com/campusmarket/securepay/internal/processor"
	"github.com/campusmarket/securepay/internal/traces"
)

var (
	ErrTransactionNotFound    = errors.New("escrow: transaction not found")
	ErrListingUnavailable     = errors.New("escrow: listing is sold or already under active escrow")
	ErrSelfTransactionDenied  = errors.New("escrow: cannot buy your own listing")
	ErrSessionNotFound        = errors.New("escrow: checkout session not found")
	ErrSessionAlreadyConsumed = errors.New("escrow: checkout session already consumed")
	ErrSessionMismatch        = errors.New("escrow: checkout session does not match listing and buyer")
	ErrPaymentNotAuthorized   = errors.New("escrow: payment not authorized")
	ErrNotSeller              = errors.New("escrow: only the seller may perform this action")
	ErrNotBuyer               = errors.New("escrow: only the buyer may perform this action")
	ErrAlreadyConfirmed       = errors.New("escrow: handoff already confirmed")
	ErrHandoffNotConfirmed    = errors.New("escrow: handoff not yet confirmed")
	ErrInvalidState           = errors.New("escrow: invalid transaction state for this operation")
)

// Status represents the payment state of an escrow transaction.
type Status string

const (
	StatusHeld     Status = "held"     // Funds authorized, awaiting handoff and receipt
	StatusCaptured Status = "captured" // Buyer confirmed receipt, funds released to seller
	StatusDisputed Status = "disputed" // Buyer disputed after handoff confirmation, admin review
	StatusRefunded Status = "refunded" // Authorization canceled, buyer refunded in full
)

// Transaction is an escrow hold on a listing between one buyer and one seller.
// ListingID, BuyerID, SellerID, and the amounts are immutable once created.
type Transaction struct {
	ID                string     `json:"id"`
	ListingID         string     `json:"listingId"`
	BuyerID           string     `json:"buyerId"`
	SellerID          string     `json:"sellerId"`
	AmountCents       int64      `json:"amountCents"` // listing price + buyer fee, fixed at session creation
	FeeCents          int64      `json:"feeCents"`
	SessionID         string     `json:"sessionId"`
	PaymentIntentID   string     `json:"-"` // processor reference, never exposed to clients
	Status            Status     `json:"paymentStatus"`
	SellerConfirmedAt *time.Time `json:"sellerConfirmedAt,omitempty"`
	AdminReview       bool       `json:"adminReview"`
	CreatedAt         time.Time  `json:"createdAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// IsTerminal returns true if no further transitions are accepted.
func (t *Transaction) IsTerminal() bool {
	switch t.Status {
	case StatusCaptured, StatusDisputed, StatusRefunded:
		return true
	}
	return false
}

// Store persists escrow transactions.
//
// Create must enforce two uniqueness invariants atomically: at most one
// "held" transaction per listing (ErrListingUnavailable) and at most one
// transaction per checkout session (ErrSessionAlreadyConsumed).
// SetSellerConfirmed and Transition are conditional writes: they only apply
// while the stored row still satisfies the transition guard, and return
// ErrInvalidState when a concurrent writer got there first.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetBySession(ctx context.Context, sessionID string) (*Transaction, error)
	// GetForListing returns the transaction most relevant to the user for the
	// listing: an active hold first, then a pending dispute, then the latest.
	GetForListing(ctx context.Context, listingID, userID string) (*Transaction, error)
	// ActiveForListing returns the listing's "held" transaction regardless of
	// party, or ErrTransactionNotFound.
	ActiveForListing(ctx context.Context, listingID string) (*Transaction, error)
	SetSellerConfirmed(ctx context.Context, id string, at time.Time) error
	// Transition persists tx's status, adminReview, and resolvedAt, guarded on
	// the stored status still being "held".
	Transition(ctx context.Context, tx *Transaction) error
}

// EventEmitter publishes escrow lifecycle events to connected clients.
type EventEmitter interface {
	EmitEscrowEvent(event string, tx *Transaction)
}

// Service implements the Secure-Pay business logic.
type Service struct {
	store     Store
	listings  listing.Store
	processor processor.Processor
	emitter   EventEmitter
	logger    *slog.Logger

	feeBPS      int
	currency    string
	frontendURL string

	locks sync.Map // per-transaction ID locks to serialize state transitions
}

// txLock returns a mutex for the given transaction ID.
// This prevents concurrent transitions (e.g. two ConfirmReceipt calls racing).
func (s *Service) txLock(id string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// NewService creates a new escrow service.
func NewService(store Store, listings listing.Store, proc processor.Processor, feeBPS int, currency, frontendURL string, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		listings:    listings,
		processor:   proc,
		logger:      logger,
		feeBPS:      feeBPS,
		currency:    currency,
		frontendURL: frontendURL,
	}
}

// WithEmitter adds a lifecycle event emitter (realtime hub integration).
func (s *Service) WithEmitter(e EventEmitter) *Service {
	s.emitter = e
	return s
}

// ConfirmHandoff records the seller's attestation that the item was
// physically handed to the buyer. Status stays "held".
func (s *Service) ConfirmHandoff(ctx context.Context, txID, actorID string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ConfirmHandoff", traces.TransactionID(txID), traces.UserID(actorID))
	defer span.End()

	mu := s.txLock(txID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if actorID != tx.SellerID {
		return nil, ErrNotSeller
	}
	if tx.Status != StatusHeld {
		return nil, ErrInvalidState
	}
	if tx.SellerConfirmedAt != nil {
		return nil, ErrAlreadyConfirmed
	}

	now := time.Now()
	if err := s.store.SetSellerConfirmed(ctx, tx.ID, now); err != nil {
		return nil, err
	}
	tx.SellerConfirmedAt = &now
	tx.UpdatedAt = now

	s.emit("handoff_confirmed", tx)
	return tx, nil
}

// ConfirmReceipt is the buyer's attestation of receipt: it captures the held
// funds and moves the transaction to "captured". Rejected until the seller
// has confirmed handoff, so release always requires both attestations.
func (s *Service) ConfirmReceipt(ctx context.Context, txID, actorID string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.ConfirmReceipt", traces.TransactionID(txID), traces.UserID(actorID))
	defer span.End()

	mu := s.txLock(txID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if actorID != tx.BuyerID {
		return nil, ErrNotBuyer
	}
	if tx.Status != StatusHeld {
		return nil, ErrInvalidState
	}
	if tx.SellerConfirmedAt == nil {
		return nil, ErrHandoffNotConfirmed
	}

	// Capture first: if the processor call fails the transaction must stay
	// "held", never advance to captured-but-uncaptured.
	if err := s.processor.Capture(ctx, tx.PaymentIntentID); err != nil {
		return nil, fmt.Errorf("escrow: capture failed: %w", err)
	}

	now := time.Now()
	tx.Status = StatusCaptured
	tx.ResolvedAt = &now
	tx.UpdatedAt = now

	if err := s.store.Transition(ctx, tx); err != nil {
		// Retry once: funds already moved, the state change must persist.
		if retryErr := s.store.Transition(ctx, tx); retryErr != nil {
			// CRITICAL: Funds were captured but the transaction record is stale.
			// Capture has no safe automatic inverse here; surface for manual resolution.
			s.logger.Error("CRITICAL: escrow captured but status update failed",
				"transaction_id", tx.ID, "seller_id", tx.SellerID, "error", retryErr)
			return nil, fmt.Errorf("escrow: update after capture failed (requires manual resolution): %w", err)
		}
	}

	metrics.EscrowTransitionsTotal.WithLabelValues(string(StatusCaptured)).Inc()
	metrics.EscrowHoldDuration.Observe(now.Sub(tx.CreatedAt).Seconds())
	s.emit("captured", tx)
	return tx, nil
}

// Dispute is the buyer contesting the transaction. The outcome depends on
// whether the seller already attested handoff: see resolveDispute.
func (s *Service) Dispute(ctx context.Context, txID, actorID string) (*Transaction, error) {
	ctx, span := traces.StartSpan(ctx, "escrow.Dispute", traces.TransactionID(txID), traces.UserID(actorID))
	defer span.End()

	mu := s.txLock(txID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.store.Get(ctx, txID)
	if err != nil {
		return nil, err
	}

	if actorID != tx.BuyerID {
		return nil, ErrNotBuyer
	}
	if tx.Status != StatusHeld {
		return nil, ErrInvalidState
	}

	now := time.Now()
	switch resolveDispute(tx) {
	case OutcomeAutoRefund:
		// Seller never attested handoff: void the authorization and refund.
		if err := s.processor.CancelAuthorization(ctx, tx.PaymentIntentID); err != nil {
			return nil, fmt.Errorf("escrow: refund failed: %w", err)
		}
		tx.Status = StatusRefunded
		tx.AdminReview = false
		tx.ResolvedAt = &now

	case OutcomeAdminReview:
		// Seller claims the item changed hands: the dispute is evidentiary.
		// Funds stay captured by the processor pending manual resolution.
		tx.Status = StatusDisputed
		tx.AdminReview = true
	}
	tx.UpdatedAt = now

	if err := s.store.Transition(ctx, tx); err != nil {
		if tx.Status == StatusRefunded {
			s.logger.Error("CRITICAL: escrow authorization canceled but status update failed",
				"transaction_id", tx.ID, "buyer_id", tx.BuyerID, "error", err)
		}
		return nil, err
	}

	metrics.EscrowTransitionsTotal.WithLabelValues(string(tx.Status)).Inc()
	if tx.AdminReview {
		metrics.EscrowDisputesTotal.WithLabelValues("admin_review").Inc()
	} else {
		metrics.EscrowDisputesTotal.WithLabelValues("refunded").Inc()
		metrics.EscrowHoldDuration.Observe(now.Sub(tx.CreatedAt).Seconds())
	}
	s.emit(string(tx.Status), tx)
	return tx, nil
}

// Get returns a transaction by ID.
func (s *Service) Get(ctx context.Context, id string) (*Transaction, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) emit(event string, tx *Transaction) {
	if s.emitter != nil {
		s.emitter.EmitEscrowEvent(event, tx)
	}
}
