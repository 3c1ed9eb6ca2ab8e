package payments

import (
	"context"

	"github.com/stripe/stripe-go/v79"
)

// CheckoutItem is one display line of a hosted checkout session.
type CheckoutItem struct {
	Name        string
	AmountCents int64
	Quantity    int64
}

// CheckoutSpec describes a hosted checkout session to create. The Type tag
// and Reference keys become session metadata; the reconciler classifies
// events by that tag and nothing else.
type CheckoutSpec struct {
	Type          string
	Reference     map[string]string
	Items         []CheckoutItem
	CustomerEmail string
	SuccessURL    string
	CancelURL     string

	// ApplicationFeeCents is the platform's cut, routed as an application
	// fee on the underlying payment intent.
	ApplicationFeeCents int64
	// DestinationAccount is the connect account receiving the remainder.
	DestinationAccount string

	// SubscriptionPriceID switches the session into subscription mode.
	SubscriptionPriceID string
}

// CheckoutSession is the processor's confirmation of a created session.
type CheckoutSession struct {
	ID  string
	URL string
}

// RefundReceipt is the processor's confirmation of an issued refund.
type RefundReceipt struct {
	ID          string
	AmountCents int64
	Status      string
}

// Provider is the payment processor contract consumed by the services.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, spec CheckoutSpec) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*RefundReceipt, error)
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}
