package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/campusmarket/securepay/internal/metrics"
)

// Stripe implements Processor against the Stripe API using hosted Checkout
// Sessions. Secure-Pay checkouts use manual capture so funds stay authorized
// ("held") until the buyer confirms receipt.
type Stripe struct {
	api *client.API
}

// NewStripe creates a Stripe-backed processor with the given secret key.
func NewStripe(secretKey string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api}
}

func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(req.Title),
					Description: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.AmountCents),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.ManualCapture {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String("manual"),
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		metrics.ProcessorErrorsTotal.WithLabelValues("create_checkout").Inc()
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	return &CheckoutSession{
		ID:       sess.ID,
		URL:      sess.URL,
		Metadata: sess.Metadata,
	}, nil
}

func (s *Stripe) GetCheckout(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Expand: []*string{stripe.String("payment_intent")},
	}
	sess, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrSessionNotFound
		}
		metrics.ProcessorErrorsTotal.WithLabelValues("get_checkout").Inc()
		return nil, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}

	out := &CheckoutSession{
		ID:       sess.ID,
		URL:      sess.URL,
		Paid:     sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Metadata: sess.Metadata,
	}
	if pi := sess.PaymentIntent; pi != nil {
		out.PaymentIntentID = pi.ID
		out.RequiresCapture = pi.Status == stripe.PaymentIntentStatusRequiresCapture
	}
	return out, nil
}

func (s *Stripe) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{
		Params: stripe.Params{Context: ctx},
	}
	if _, err := s.api.PaymentIntents.Capture(paymentIntentID, params); err != nil {
		metrics.ProcessorErrorsTotal.WithLabelValues("capture").Inc()
		return fmt.Errorf("stripe: capture payment intent: %w", err)
	}
	return nil
}

func (s *Stripe) CancelAuthorization(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: ctx},
	}
	if _, err := s.api.PaymentIntents.Cancel(paymentIntentID, params); err != nil {
		metrics.ProcessorErrorsTotal.WithLabelValues("cancel_authorization").Inc()
		return fmt.Errorf("stripe: cancel payment intent: %w", err)
	}
	return nil
}

// isNotFound reports whether a Stripe API error is a missing-resource error.
func isNotFound(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound ||
			stripeErr.Code == stripe.ErrorCodeResourceMissing
	}
	return false
}

// Compile-time assertion that Stripe implements Processor.
var _ Processor = (*Stripe)(nil)
