package payments

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/refund"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
)

// StripeClient implements Provider on top of the Stripe SDK.
type StripeClient struct {
	webhookSecret string
	timeout       time.Duration
}

// NewStripeClient configures the SDK with the account's secret key. Every
// outbound call runs under the given deadline.
func NewStripeClient(secretKey, webhookSecret string, timeout time.Duration) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{webhookSecret: webhookSecret, timeout: timeout}
}

// boundCtx caps a processor call with the configured deadline so a stalled
// peer cannot pin the request indefinitely.
func (c *StripeClient) boundCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

var _ Provider = (*StripeClient)(nil)

// CreateCheckoutSession creates a hosted checkout session and returns its
// id and redirect URL. Nothing is written locally before this succeeds.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, spec CheckoutSpec) (*CheckoutSession, error) {
	ctx, cancel := c.boundCtx(ctx)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(spec.SuccessURL),
		CancelURL:  stripe.String(spec.CancelURL),
	}
	params.Context = ctx

	if spec.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(spec.CustomerEmail)
	}

	params.AddMetadata("type", spec.Type)
	for k, v := range spec.Reference {
		params.AddMetadata(k, v)
	}

	if spec.SubscriptionPriceID != "" {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(spec.SubscriptionPriceID),
			Quantity: stripe.Int64(1),
		}}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		for _, item := range spec.Items {
			params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(item.Quantity),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(item.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(item.Name),
					},
				},
			})
		}
	}

	if spec.ApplicationFeeCents > 0 || spec.DestinationAccount != "" {
		intentData := &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"type": spec.Type},
		}
		if spec.ApplicationFeeCents > 0 {
			intentData.ApplicationFeeAmount = stripe.Int64(spec.ApplicationFeeCents)
		}
		if spec.DestinationAccount != "" {
			intentData.TransferData = &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(spec.DestinationAccount),
			}
		}
		params.PaymentIntentData = intentData
	}

	s, err := session.New(params)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "checkout session creation failed")
	}

	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// CreateRefund issues a refund against a payment intent. amountCents <= 0
// refunds the full remaining balance on the processor side.
func (c *StripeClient) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (*RefundReceipt, error) {
	ctx, cancel := c.boundCtx(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	if amountCents > 0 {
		params.Amount = stripe.Int64(amountCents)
	}
	if reason != "" {
		params.Metadata = map[string]string{"reason": reason}
	}

	ref, err := refund.New(params)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "refund creation failed")
	}

	return &RefundReceipt{
		ID:          ref.ID,
		AmountCents: ref.Amount,
		Status:      string(ref.Status),
	}, nil
}

// VerifyEvent authenticates a webhook delivery against the raw body and
// the shared signing secret. This gate is never skipped.
func (c *StripeClient) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, c.webhookSecret)
	if err != nil {
		return stripe.Event{}, apperror.Wrap(err, apperror.ErrCodeUnauthorized, "webhook signature verification failed")
	}
	return event, nil
}
