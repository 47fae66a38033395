// Package processor abstracts the external payment processor (Stripe).
//
// The payment flows only ever ask the processor for four things: host a
// checkout, report a checkout's state, capture an authorized payment, and
// cancel an authorization. Everything else (card handling, 3DS, receipts)
// stays on the processor's side.
package processor

import (
	"context"
	"errors"
)

var ErrSessionNotFound = errors.New("processor: checkout session not found")

// CheckoutRequest describes a hosted checkout to create.
type CheckoutRequest struct {
	Kind          string // "secure_pay" or "boost", used for metrics and metadata
	AmountCents   int64
	Currency      string
	Title         string
	Description   string
	ManualCapture bool // authorize only; capture happens on buyer receipt
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the processor's view of a hosted checkout attempt.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	Paid            bool // funds captured immediately (boost flow)
	RequiresCapture bool // funds authorized, capture pending (secure-pay flow)
	Metadata        map[string]string
}

// Processor is the external payment processor contract.
// All calls are fallible external effects; callers must not persist a state
// transition when the corresponding call fails.
type Processor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error)
	// Capture releases an authorized payment to the platform (buyer receipt).
	Capture(ctx context.Context, paymentIntentID string) error
	// CancelAuthorization voids an uncaptured authorization (pre-handoff refund).
	CancelAuthorization(ctx context.Context, paymentIntentID string) error
}
