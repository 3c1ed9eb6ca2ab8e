package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"

	"github.com/shinequote/detailer-backend/internal/logger"
	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/repository"
)

// EventVerifier authenticates a raw webhook delivery.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

// WebhookEventStore durably records deliveries and their outcomes.
type WebhookEventStore interface {
	Record(ctx context.Context, stripeEventID, eventType string, payload json.RawMessage) (bool, error)
	GetDisposition(ctx context.Context, stripeEventID string) (string, error)
	SetDisposition(ctx context.Context, stripeEventID, disposition string, detail *string) error
}

// QuotePaymentApplier is the quote ledger slice the reconciler drives.
type QuotePaymentApplier interface {
	ApplyPayment(ctx context.Context, quoteID uuid.UUID, sessionID, paymentIntentID string) error
}

// ChangeOrderApprover is the change order slice the reconciler drives.
type ChangeOrderApprover interface {
	Approve(ctx context.Context, changeOrderID uuid.UUID, paymentIntentID string) (*models.ChangeOrder, error)
}

// ShopOrderMarker is the marketplace slice the reconciler drives.
type ShopOrderMarker interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.ShopOrder, error)
	GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.ShopOrder, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, refundedAt time.Time) (bool, error)
}

// RefundRecorder is the refund coordinator slice the reconciler drives.
type RefundRecorder interface {
	RecordProcessorRefund(ctx context.Context, paymentIntentID string, cumulativeCents int64, refundID string) error
}

// WebhookService is the reconciler: the only component that converts
// processor evidence into local payment state. Every mutation it performs
// is idempotent, so redelivered events converge instead of double-applying.
type WebhookService struct {
	verifier     EventVerifier
	events       WebhookEventStore
	quotes       QuotePaymentApplier
	changeOrders ChangeOrderApprover
	shop         ShopOrderMarker
	refunds      RefundRecorder
	detailers    DetailerRepository

	// priceToPlan inverts the configured plan -> price mapping so
	// subscription events resolve back to an internal plan name.
	priceToPlan map[string]string
}

// NewWebhookService creates a new reconciler.
func NewWebhookService(
	verifier EventVerifier,
	events WebhookEventStore,
	quotes QuotePaymentApplier,
	changeOrders ChangeOrderApprover,
	shop ShopOrderMarker,
	refunds RefundRecorder,
	detailers DetailerRepository,
	planPriceIDs map[string]string,
) *WebhookService {
	priceToPlan := make(map[string]string, len(planPriceIDs))
	for plan, priceID := range planPriceIDs {
		priceToPlan[priceID] = plan
	}
	return &WebhookService{
		verifier:     verifier,
		events:       events,
		quotes:       quotes,
		changeOrders: changeOrders,
		shop:         shop,
		refunds:      refunds,
		detailers:    detailers,
		priceToPlan:  priceToPlan,
	}
}

// HandleEvent verifies, records and applies one webhook delivery. The
// returned error taxonomy drives the HTTP response: nil acknowledges the
// delivery, an unauthorized error rejects it, and anything else asks the
// processor to redeliver.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.verifier.VerifyEvent(payload, signature)
	if err != nil {
		return err
	}

	first, err := s.events.Record(ctx, event.ID, string(event.Type), json.RawMessage(payload))
	if err != nil {
		// Without a durable record we cannot prove idempotency; make the
		// processor redeliver.
		return apperror.Wrap(err, apperror.ErrCodeInternal, "event record failed")
	}
	if !first {
		disposition, err := s.events.GetDisposition(ctx, event.ID)
		if err != nil {
			return apperror.Wrap(err, apperror.ErrCodeInternal, "event lookup failed")
		}
		switch disposition {
		case models.WebhookEventProcessed, models.WebhookEventSkipped:
			return nil
		}
		// A redelivery of an event that previously failed transiently:
		// fall through and apply it again.
	}

	return s.settle(ctx, event, s.apply(ctx, event))
}

// settle converts the apply outcome into a durable disposition and the
// caller-facing error. Domain rejections are recorded and acknowledged;
// only transient failures propagate so the processor retries.
func (s *WebhookService) settle(ctx context.Context, event stripe.Event, applyErr error) error {
	disposition := models.WebhookEventProcessed
	var detail *string
	var out error

	switch {
	case applyErr == nil:
	case apperror.IsAlreadyProcessed(applyErr):
		disposition = models.WebhookEventSkipped
		msg := applyErr.Error()
		detail = &msg
	case apperror.IsNotFound(applyErr), apperror.IsInvalidState(applyErr),
		apperror.IsInconsistent(applyErr), apperror.Code(applyErr) == apperror.ErrCodeValidation:
		// The event is durably recorded with its failure; retrying the
		// same payload cannot succeed, so acknowledge it.
		disposition = models.WebhookEventFailed
		msg := applyErr.Error()
		detail = &msg
		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"event_id": event.ID,
				"type":     event.Type,
			}).WithError(applyErr).Warn("webhook event rejected by domain rules")
		}
	default:
		disposition = models.WebhookEventFailed
		msg := applyErr.Error()
		detail = &msg
		out = applyErr
	}

	if err := s.events.SetDisposition(ctx, event.ID, disposition, detail); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "disposition record failed")
	}
	return out
}

func (s *WebhookService) apply(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.applyCheckoutCompleted(ctx, event)
	case "payment_intent.payment_failed":
		if logger.Log != nil {
			logger.Log.WithField("event_id", event.ID).Info("payment attempt failed, no state change")
		}
		return nil
	case "charge.refunded":
		return s.applyChargeRefunded(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return s.applySubscriptionUpsert(ctx, event)
	case "customer.subscription.deleted":
		return s.applySubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return s.applyInvoiceFailed(ctx, event)
	default:
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "unhandled event type "+string(event.Type))
	}
}

// applyCheckoutCompleted routes a completed session strictly by the type
// tag the gateway stamped into metadata. Sessions without a recognised tag
// were not created by this system and are skipped.
func (s *WebhookService) applyCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed checkout session payload")
	}

	var paymentIntentID string
	if sess.PaymentIntent != nil {
		paymentIntentID = sess.PaymentIntent.ID
	}

	switch sess.Metadata["type"] {
	case models.CheckoutTypeRegularQuote:
		quoteID, err := uuid.Parse(sess.Metadata["quote_id"])
		if err != nil {
			return apperror.New(apperror.ErrCodeValidation, "session carries no valid quote_id")
		}
		return s.quotes.ApplyPayment(ctx, quoteID, sess.ID, paymentIntentID)

	case models.CheckoutTypeChangeOrder:
		changeOrderID, err := uuid.Parse(sess.Metadata["change_order_id"])
		if err != nil {
			return apperror.New(apperror.ErrCodeValidation, "session carries no valid change_order_id")
		}
		_, err = s.changeOrders.Approve(ctx, changeOrderID, paymentIntentID)
		return err

	case models.CheckoutTypeShopOrder:
		orderID, err := uuid.Parse(sess.Metadata["shop_order_id"])
		if err != nil {
			return apperror.New(apperror.ErrCodeValidation, "session carries no valid shop_order_id")
		}
		return s.markShopOrderPaid(ctx, orderID, paymentIntentID)

	case models.CheckoutTypeSubscription:
		return s.applySubscriptionCheckout(ctx, sess)

	default:
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "session without a recognised type tag")
	}
}

func (s *WebhookService) markShopOrderPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	ok, err := s.shop.MarkPaid(ctx, orderID, paymentIntentID, time.Now().UTC())
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "shop order update failed")
	}
	if ok {
		return nil
	}
	order, err := s.shop.GetOrderByID(ctx, orderID)
	if err != nil {
		if err == repository.ErrShopOrderNotFound {
			return apperror.ErrShopOrderNotFound
		}
		return apperror.Wrap(err, apperror.ErrCodeInternal, "shop order lookup failed")
	}
	if order.Status == models.ShopOrderStatusPaid {
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "shop order already paid")
	}
	return apperror.New(apperror.ErrCodeInvalidState, "shop order not payable, status "+order.Status)
}

// applySubscriptionCheckout records the subscription id from a completed
// subscription-mode session. The plan itself changes on the subscription
// events, which carry the price.
func (s *WebhookService) applySubscriptionCheckout(ctx context.Context, sess stripe.CheckoutSession) error {
	detailerID, err := uuid.Parse(sess.Metadata["detailer_id"])
	if err != nil {
		return apperror.New(apperror.ErrCodeValidation, "session carries no valid detailer_id")
	}
	detailer, err := s.detailers.GetByID(ctx, detailerID)
	if err != nil {
		return s.wrapDetailerErr(err)
	}
	if sess.Subscription == nil {
		return apperror.New(apperror.ErrCodeValidation, "subscription session without a subscription")
	}
	subID := sess.Subscription.ID
	if detailer.SubscriptionID != nil && *detailer.SubscriptionID == subID {
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "subscription already linked")
	}
	return s.detailers.UpdatePlan(ctx, detailer.ID, detailer.Plan, &subID, models.SubscriptionStatusActive)
}

func (s *WebhookService) applyChargeRefunded(ctx context.Context, event stripe.Event) error {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed charge payload")
	}
	if charge.PaymentIntent == nil {
		return apperror.New(apperror.ErrCodeValidation, "charge without a payment intent")
	}
	refundID := ""
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		refundID = charge.Refunds.Data[0].ID
	}
	// AmountRefunded is the processor's cumulative total for the charge,
	// which makes redeliveries converge.
	err := s.refunds.RecordProcessorRefund(ctx, charge.PaymentIntent.ID, charge.AmountRefunded, refundID)
	if err == nil || !apperror.IsNotFound(err) {
		return err
	}
	// No quote carries this intent; the charge may belong to a shop order.
	return s.markShopOrderRefunded(ctx, charge.PaymentIntent.ID, charge.AmountRefunded)
}

func (s *WebhookService) markShopOrderRefunded(ctx context.Context, paymentIntentID string, cumulativeCents int64) error {
	order, err := s.shop.GetOrderByPaymentIntentID(ctx, paymentIntentID)
	if err != nil {
		if err == repository.ErrShopOrderNotFound {
			return apperror.New(apperror.ErrCodeNotFound, "refunded charge matches no quote or shop order")
		}
		return apperror.Wrap(err, apperror.ErrCodeInternal, "shop order lookup failed")
	}
	if order.Status == models.ShopOrderStatusRefunded {
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "shop order already refunded")
	}
	if order.Status == models.ShopOrderStatusPending {
		// The refund evidence outran the payment evidence. Force a
		// redelivery; it will apply once the session event lands.
		return apperror.New(apperror.ErrCodeInternal, "refund delivered before payment for shop order")
	}
	// Shop orders carry no partial-refund ledger; anything short of the
	// full total needs operator attention.
	if cumulativeCents < order.TotalCents {
		return apperror.New(apperror.ErrCodeInconsistent, "partial shop order refund requires manual review")
	}
	ok, err := s.shop.MarkRefunded(ctx, order.ID, time.Now().UTC())
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "shop order refund record failed")
	}
	if !ok {
		// Raced with another delivery that won the conditional update.
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "shop order already refunded")
	}
	return nil
}

func (s *WebhookService) applySubscriptionUpsert(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed subscription payload")
	}
	if sub.Customer == nil {
		return apperror.New(apperror.ErrCodeValidation, "subscription without a customer")
	}

	detailer, err := s.detailers.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		return s.wrapDetailerErr(err)
	}

	plan := s.resolvePlan(sub)
	if plan == "" {
		return apperror.New(apperror.ErrCodeValidation, "subscription price maps to no known plan")
	}
	subID := sub.ID
	return s.detailers.UpdatePlan(ctx, detailer.ID, plan, &subID, string(sub.Status))
}

func (s *WebhookService) applySubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed subscription payload")
	}
	detailer, err := s.detailers.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return s.wrapDetailerErr(err)
	}
	// Back to the free tier; the subscription id is kept for audit.
	return s.detailers.UpdatePlan(ctx, detailer.ID, models.PlanFree, detailer.SubscriptionID, models.SubscriptionStatusCanceled)
}

func (s *WebhookService) applyInvoiceFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed invoice payload")
	}
	if inv.Subscription == nil {
		// One-off invoice, nothing mirrored locally.
		return apperror.New(apperror.ErrCodeAlreadyProcessed, "invoice without a subscription")
	}
	// A failed renewal marks the mirror past_due; the plan stays until the
	// subscription is actually cancelled.
	if err := s.detailers.UpdateSubscriptionStatus(ctx, inv.Subscription.ID, models.SubscriptionStatusPastDue); err != nil {
		if err == repository.ErrDetailerNotFound {
			return apperror.ErrDetailerNotFound
		}
		return apperror.Wrap(err, apperror.ErrCodeInternal, "subscription status update failed")
	}
	return nil
}

func (s *WebhookService) resolvePlan(sub stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item.Price == nil {
			continue
		}
		if plan, ok := s.priceToPlan[item.Price.ID]; ok {
			return plan
		}
	}
	return ""
}

func (s *WebhookService) wrapDetailerErr(err error) error {
	if err == repository.ErrDetailerNotFound {
		return apperror.ErrDetailerNotFound
	}
	return apperror.Wrap(err, apperror.ErrCodeInternal, "detailer storage failure")
}
