package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/campusmarket/securepay/internal/idgen"
)

// Fake is an in-memory processor for demo/development mode (no Stripe key
// configured) and for tests. Sessions start unpaid; tests and the dev
// console move them along with MarkAuthorized / MarkPaid.
type Fake struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

type fakeSession struct {
	req             CheckoutRequest
	paymentIntentID string
	paid            bool
	requiresCapture bool
	canceled        bool
	captured        bool
}

// NewFake creates a new fake processor.
func NewFake() *Fake {
	return &Fake{sessions: make(map[string]*fakeSession)}
}

func (f *Fake) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := idgen.WithPrefix("cs_test_")
	f.sessions[id] = &fakeSession{
		req:             req,
		paymentIntentID: idgen.WithPrefix("pi_test_"),
	}
	return &CheckoutSession{
		ID:       id,
		URL:      "https://checkout.example.test/pay/" + id,
		Metadata: req.Metadata,
	}, nil
}

func (f *Fake) GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &CheckoutSession{
		ID:              sessionID,
		URL:             "https://checkout.example.test/pay/" + sessionID,
		PaymentIntentID: s.paymentIntentID,
		Paid:            s.paid,
		RequiresCapture: s.requiresCapture && !s.canceled && !s.captured,
		Metadata:        s.req.Metadata,
	}, nil
}

func (f *Fake) Capture(ctx context.Context, paymentIntentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.byIntent(paymentIntentID)
	if s == nil {
		return fmt.Errorf("fake processor: unknown payment intent %s", paymentIntentID)
	}
	if !s.requiresCapture || s.canceled {
		return fmt.Errorf("fake processor: payment intent %s is not capturable", paymentIntentID)
	}
	s.captured = true
	s.paid = true
	return nil
}

func (f *Fake) CancelAuthorization(ctx context.Context, paymentIntentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.byIntent(paymentIntentID)
	if s == nil {
		return fmt.Errorf("fake processor: unknown payment intent %s", paymentIntentID)
	}
	if s.captured {
		return fmt.Errorf("fake processor: payment intent %s already captured", paymentIntentID)
	}
	s.canceled = true
	return nil
}

// MarkAuthorized simulates a completed manual-capture checkout: the card is
// authorized and the intent is waiting for capture.
func (f *Fake) MarkAuthorized(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.requiresCapture = true
	}
}

// MarkPaid simulates a completed immediate-capture checkout (boost flow).
func (f *Fake) MarkPaid(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.paid = true
	}
}

// Captured reports whether the session's intent was captured. Test helper.
func (f *Fake) Captured(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	return ok && s.captured
}

// Canceled reports whether the session's intent was canceled. Test helper.
func (f *Fake) Canceled(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	return ok && s.canceled
}

func (f *Fake) byIntent(paymentIntentID string) *fakeSession {
	for _, s := range f.sessions {
		if s.paymentIntentID == paymentIntentID {
			return s
		}
	}
	return nil
}

// Compile-time assertion that Fake implements Processor.
var _ Processor = (*Fake)(nil)
