package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v79"

	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
)

// mockVerifier accepts one signature and hands back the pre-parsed event.
type mockVerifier struct {
	event stripe.Event
}

func (m *mockVerifier) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	if signature != "sig_valid" {
		return stripe.Event{}, apperror.New(apperror.ErrCodeUnauthorized, "signature verification failed")
	}
	return m.event, nil
}

// mockEventStore is an in-memory WebhookEventStore with the same
// first-delivery semantics as the SQL table.
type mockEventStore struct {
	dispositions map[string]string
	recordErr    error
}

func newMockEventStore() *mockEventStore {
	return &mockEventStore{dispositions: make(map[string]string)}
}

func (m *mockEventStore) Record(ctx context.Context, id, eventType string, payload json.RawMessage) (bool, error) {
	if m.recordErr != nil {
		return false, m.recordErr
	}
	if _, ok := m.dispositions[id]; ok {
		return false, nil
	}
	m.dispositions[id] = "received"
	return true, nil
}

func (m *mockEventStore) GetDisposition(ctx context.Context, id string) (string, error) {
	d, ok := m.dispositions[id]
	if !ok {
		return "", errors.New("event not recorded")
	}
	return d, nil
}

func (m *mockEventStore) SetDisposition(ctx context.Context, id, disposition string, detail *string) error {
	m.dispositions[id] = disposition
	return nil
}

type webhookFixture struct {
	svc       *WebhookService
	verifier  *mockVerifier
	events    *mockEventStore
	quotes    *mockQuoteRepository
	orders    *mockChangeOrderRepository
	shop      *mockShopRepository
	detailers *mockDetailerRepository
	provider  *mockProvider
	eventSeq  int
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		verifier:  &mockVerifier{},
		events:    newMockEventStore(),
		quotes:    newMockQuoteRepository(),
		detailers: newMockDetailerRepository(),
		shop:      newMockShopRepository(),
		provider:  &mockProvider{},
	}
	f.orders = newMockChangeOrderRepository(f.quotes)

	quoteSvc := NewQuoteService(f.quotes, nil, DefaultQuoteValidity)
	coSvc := NewChangeOrderService(f.orders, f.quotes, nil)
	refundSvc := NewRefundService(f.quotes, f.provider, nil)

	f.svc = NewWebhookService(f.verifier, f.events, quoteSvc, coSvc, f.shop, refundSvc, f.detailers,
		map[string]string{"starter": "price_starter", "pro": "price_pro", "business": "price_business"})
	return f
}

// deliver wraps raw object JSON in an event envelope and hands it to the
// service with a valid signature.
func (f *webhookFixture) deliver(t *testing.T, eventType, objectJSON string) error {
	t.Helper()
	f.eventSeq++
	return f.deliverAs(t, fmt.Sprintf("evt_%d", f.eventSeq), eventType, objectJSON)
}

func (f *webhookFixture) deliverAs(t *testing.T, eventID, eventType, objectJSON string) error {
	t.Helper()
	f.verifier.event = stripe.Event{
		ID:   eventID,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(objectJSON)},
	}
	return f.svc.HandleEvent(context.Background(), []byte(objectJSON), "sig_valid")
}

func sessionJSON(sessionID, paymentIntentID string, metadata map[string]string) string {
	meta, _ := json.Marshal(metadata)
	return fmt.Sprintf(`{"id":%q,"payment_intent":{"id":%q},"metadata":%s}`, sessionID, paymentIntentID, meta)
}

func TestWebhookService_BadSignature(t *testing.T) {
	f := newWebhookFixture()

	err := f.svc.HandleEvent(context.Background(), []byte("{}"), "sig_bogus")
	assert.True(t, apperror.IsUnauthorized(err))
	assert.Empty(t, f.events.dispositions)
}

func TestWebhookService_QuotePayment(t *testing.T) {
	f := newWebhookFixture()
	quote := seedQuote(f.quotes, uuid.New(), models.QuoteStatusViewed, 50000)

	err := f.deliver(t, "checkout.session.completed", sessionJSON("cs_1", "pi_1", map[string]string{
		"type":     models.CheckoutTypeRegularQuote,
		"quote_id": quote.ID.String(),
	}))
	assert.NoError(t, err)

	stored := f.quotes.quotes[quote.ID]
	assert.Equal(t, models.QuoteStatusPaid, stored.Status)
	assert.Equal(t, "pi_1", *stored.StripePaymentIntentID)
	assert.Equal(t, models.WebhookEventProcessed, f.events.dispositions["evt_1"])
}

func TestWebhookService_QuotePayment_Redelivery(t *testing.T) {
	f := newWebhookFixture()
	quote := seedQuote(f.quotes, uuid.New(), models.QuoteStatusViewed, 50000)
	payload := sessionJSON("cs_1", "pi_1", map[string]string{
		"type":     models.CheckoutTypeRegularQuote,
		"quote_id": quote.ID.String(),
	})

	assert.NoError(t, f.deliverAs(t, "evt_1", "checkout.session.completed", payload))
	// The same event id again: recognised as settled, nothing reapplied.
	assert.NoError(t, f.deliverAs(t, "evt_1", "checkout.session.completed", payload))
	// A distinct event id for the same session: the ledger write is
	// conditional, so it lands as a skip.
	assert.NoError(t, f.deliverAs(t, "evt_2", "checkout.session.completed", payload))

	assert.Equal(t, models.WebhookEventSkipped, f.events.dispositions["evt_2"])
	assert.Equal(t, models.QuoteStatusPaid, f.quotes.quotes[quote.ID].Status)
}

func TestWebhookService_QuotePayment_UnknownQuote(t *testing.T) {
	f := newWebhookFixture()

	err := f.deliver(t, "checkout.session.completed", sessionJSON("cs_1", "pi_1", map[string]string{
		"type":     models.CheckoutTypeRegularQuote,
		"quote_id": uuid.NewString(),
	}))
	// Recorded as failed but acknowledged: redelivering cannot fix it.
	assert.NoError(t, err)
	assert.Equal(t, models.WebhookEventFailed, f.events.dispositions["evt_1"])
}

func TestWebhookService_RetryAfterTransientFailure(t *testing.T) {
	f := newWebhookFixture()
	quote := seedQuote(f.quotes, uuid.New(), models.QuoteStatusViewed, 50000)
	payload := sessionJSON("cs_1", "pi_1", map[string]string{
		"type":     models.CheckoutTypeRegularQuote,
		"quote_id": quote.ID.String(),
	})

	// Pretend an earlier delivery recorded the event but failed before
	// applying it: the redelivery must apply, not short-circuit.
	f.events.dispositions["evt_1"] = models.WebhookEventFailed

	assert.NoError(t, f.deliverAs(t, "evt_1", "checkout.session.completed", payload))
	assert.Equal(t, models.QuoteStatusPaid, f.quotes.quotes[quote.ID].Status)
	assert.Equal(t, models.WebhookEventProcessed, f.events.dispositions["evt_1"])
}

func TestWebhookService_RecordFailureForcesRedelivery(t *testing.T) {
	f := newWebhookFixture()
	f.events.recordErr = errors.New("db down")

	err := f.deliver(t, "checkout.session.completed", sessionJSON("cs_1", "pi_1", nil))
	assert.Error(t, err)
	assert.False(t, apperror.IsUnauthorized(err))
}

func TestWebhookService_ChangeOrderPayment(t *testing.T) {
	f := newWebhookFixture()
	detailerID := uuid.New()
	quote := seedQuote(f.quotes, detailerID, models.QuoteStatusPaid, 50000)
	coSvc := NewChangeOrderService(f.orders, f.quotes, nil)
	co, err := coSvc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Engine bay detail", AmountCents: 10000},
	}, "")
	assert.NoError(t, err)

	payload := sessionJSON("cs_co", "pi_co", map[string]string{
		"type":            models.CheckoutTypeChangeOrder,
		"change_order_id": co.ID.String(),
	})
	assert.NoError(t, f.deliver(t, "checkout.session.completed", payload))

	assert.Equal(t, models.ChangeOrderStatusApproved, f.orders.orders[co.ID].Status)
	assert.Equal(t, int64(60000), f.quotes.quotes[quote.ID].TotalPriceCents)

	// A second event for the same session skips; the total grew once.
	assert.NoError(t, f.deliver(t, "checkout.session.completed", payload))
	assert.Equal(t, models.WebhookEventSkipped, f.events.dispositions["evt_2"])
	assert.Equal(t, int64(60000), f.quotes.quotes[quote.ID].TotalPriceCents)
}

func TestWebhookService_ChangeOrderPayment_QuoteRefundedMeanwhile(t *testing.T) {
	f := newWebhookFixture()
	detailerID := uuid.New()
	quote := seedPaidQuote(f.quotes, detailerID, 50000)
	coSvc := NewChangeOrderService(f.orders, f.quotes, nil)
	co, err := coSvc.Propose(context.Background(), detailerID, quote.ID, []ChangeOrderServiceInput{
		{Name: "Engine bay detail", AmountCents: 10000},
	}, "")
	assert.NoError(t, err)

	// The full refund lands first, then the stale change-order session
	// evidence arrives.
	refundPayload := fmt.Sprintf(`{"id":"ch_1","payment_intent":{"id":%q},"amount_refunded":50000,"refunds":{"data":[{"id":"re_1"}]}}`,
		*quote.StripePaymentIntentID)
	assert.NoError(t, f.deliver(t, "charge.refunded", refundPayload))
	assert.Equal(t, models.QuoteStatusRefunded, f.quotes.quotes[quote.ID].Status)

	payload := sessionJSON("cs_co", "pi_co", map[string]string{
		"type":            models.CheckoutTypeChangeOrder,
		"change_order_id": co.ID.String(),
	})
	assert.NoError(t, f.deliver(t, "checkout.session.completed", payload))

	// Acknowledged but rejected: the refunded quote must not grow.
	assert.Equal(t, models.WebhookEventFailed, f.events.dispositions["evt_2"])
	assert.Equal(t, models.ChangeOrderStatusPending, f.orders.orders[co.ID].Status)
	assert.Equal(t, int64(50000), f.quotes.quotes[quote.ID].TotalPriceCents)
}

func TestWebhookService_ShopOrderPayment(t *testing.T) {
	f := newWebhookFixture()
	order := &models.ShopOrder{
		ID:            uuid.New(),
		CustomerEmail: "buyer@example.com",
		Status:        models.ShopOrderStatusPending,
		TotalCents:    16000,
	}
	assert.NoError(t, f.shop.CreateOrder(context.Background(), order, nil))

	payload := sessionJSON("cs_shop", "pi_shop", map[string]string{
		"type":          models.CheckoutTypeShopOrder,
		"shop_order_id": order.ID.String(),
	})
	assert.NoError(t, f.deliver(t, "checkout.session.completed", payload))

	stored := f.shop.orders[order.ID]
	assert.Equal(t, models.ShopOrderStatusPaid, stored.Status)
	assert.Equal(t, "pi_shop", *stored.StripePaymentIntentID)

	assert.NoError(t, f.deliver(t, "checkout.session.completed", payload))
	assert.Equal(t, models.WebhookEventSkipped, f.events.dispositions["evt_2"])
}

func TestWebhookService_ShopOrderChargeRefunded(t *testing.T) {
	f := newWebhookFixture()
	order := &models.ShopOrder{
		ID:            uuid.New(),
		CustomerEmail: "buyer@example.com",
		Status:        models.ShopOrderStatusPending,
		TotalCents:    16000,
	}
	assert.NoError(t, f.shop.CreateOrder(context.Background(), order, nil))
	assert.NoError(t, f.deliver(t, "checkout.session.completed", sessionJSON("cs_shop", "pi_shop", map[string]string{
		"type":          models.CheckoutTypeShopOrder,
		"shop_order_id": order.ID.String(),
	})))

	payload := `{"id":"ch_shop","payment_intent":{"id":"pi_shop"},"amount_refunded":16000,"refunds":{"data":[{"id":"re_shop"}]}}`
	assert.NoError(t, f.deliver(t, "charge.refunded", payload))

	stored := f.shop.orders[order.ID]
	assert.Equal(t, models.ShopOrderStatusRefunded, stored.Status)
	assert.NotNil(t, stored.RefundedAt)
	assert.Equal(t, models.WebhookEventProcessed, f.events.dispositions["evt_2"])

	// Redelivery converges without a second write.
	assert.NoError(t, f.deliver(t, "charge.refunded", payload))
	assert.Equal(t, models.WebhookEventSkipped, f.events.dispositions["evt_3"])
}

func TestWebhookService_ShopOrderChargeRefunded_Partial(t *testing.T) {
	f := newWebhookFixture()
	order := &models.ShopOrder{
		ID:            uuid.New(),
		CustomerEmail: "buyer@example.com",
		Status:        models.ShopOrderStatusPending,
		TotalCents:    16000,
	}
	assert.NoError(t, f.shop.CreateOrder(context.Background(), order, nil))
	assert.NoError(t, f.deliver(t, "checkout.session.completed", sessionJSON("cs_shop", "pi_shop", map[string]string{
		"type":          models.CheckoutTypeShopOrder,
		"shop_order_id": order.ID.String(),
	})))

	// A partial refund is acknowledged but flagged; the order stays paid.
	payload := `{"id":"ch_shop","payment_intent":{"id":"pi_shop"},"amount_refunded":5000,"refunds":{"data":[{"id":"re_shop"}]}}`
	assert.NoError(t, f.deliver(t, "charge.refunded", payload))
	assert.Equal(t, models.ShopOrderStatusPaid, f.shop.orders[order.ID].Status)
	assert.Equal(t, models.WebhookEventFailed, f.events.dispositions["evt_2"])
}

func TestWebhookService_UnrecognisedSessionTag(t *testing.T) {
	f := newWebhookFixture()

	err := f.deliver(t, "checkout.session.completed", sessionJSON("cs_x", "pi_x", map[string]string{
		"type": "somebody_elses_integration",
	}))
	assert.NoError(t, err)
	assert.Equal(t, models.WebhookEventSkipped, f.events.dispositions["evt_1"])
}

func TestWebhookService_ChargeRefunded(t *testing.T) {
	f := newWebhookFixture()
	quote := seedPaidQuote(f.quotes, uuid.New(), 50000)

	payload := fmt.Sprintf(`{"id":"ch_1","payment_intent":{"id":%q},"amount_refunded":50000,"refunds":{"data":[{"id":"re_1"}]}}`,
		*quote.StripePaymentIntentID)
	assert.NoError(t, f.deliver(t, "charge.refunded", payload))

	stored := f.quotes.quotes[quote.ID]
	assert.Equal(t, models.QuoteStatusRefunded, stored.Status)
	assert.Equal(t, int64(50000), stored.RefundAmountCents)

	// Redelivery carries the same cumulative total.
	assert.NoError(t, f.deliver(t, "charge.refunded", payload))
	assert.Equal(t, models.WebhookEventSkipped, f.events.dispositions["evt_2"])
	assert.Equal(t, int64(50000), stored.RefundAmountCents)
}

func TestWebhookService_PaymentFailed_NoStateChange(t *testing.T) {
	f := newWebhookFixture()
	quote := seedQuote(f.quotes, uuid.New(), models.QuoteStatusViewed, 50000)

	assert.NoError(t, f.deliver(t, "payment_intent.payment_failed", `{"id":"pi_fail"}`))
	assert.Equal(t, models.QuoteStatusViewed, f.quotes.quotes[quote.ID].Status)
	assert.Equal(t, models.WebhookEventProcessed, f.events.dispositions["evt_1"])
}

func TestWebhookService_SubscriptionLifecycle(t *testing.T) {
	f := newWebhookFixture()
	detailer := f.detailers.seed(models.PlanFree, "")
	custID := "cus_1"
	f.detailers.detailers[detailer.ID].StripeCustomerID = &custID

	subJSON := `{"id":"sub_1","status":"active","customer":{"id":"cus_1"},"items":{"data":[{"price":{"id":"price_pro"}}]}}`
	assert.NoError(t, f.deliver(t, "customer.subscription.created", subJSON))

	stored := f.detailers.detailers[detailer.ID]
	assert.Equal(t, models.PlanPro, stored.Plan)
	assert.Equal(t, "sub_1", *stored.SubscriptionID)
	assert.Equal(t, "active", stored.SubscriptionStatus)

	// A failed renewal flags the mirror but keeps the plan.
	assert.NoError(t, f.deliver(t, "invoice.payment_failed", `{"id":"in_1","subscription":{"id":"sub_1"}}`))
	assert.Equal(t, models.PlanPro, stored.Plan)
	assert.Equal(t, models.SubscriptionStatusPastDue, stored.SubscriptionStatus)

	// Cancellation drops back to free.
	assert.NoError(t, f.deliver(t, "customer.subscription.deleted", `{"id":"sub_1","status":"canceled"}`))
	assert.Equal(t, models.PlanFree, stored.Plan)
	assert.Equal(t, models.SubscriptionStatusCanceled, stored.SubscriptionStatus)
}

func TestWebhookService_SubscriptionUnknownPrice(t *testing.T) {
	f := newWebhookFixture()
	detailer := f.detailers.seed(models.PlanFree, "")
	custID := "cus_1"
	f.detailers.detailers[detailer.ID].StripeCustomerID = &custID

	subJSON := `{"id":"sub_1","status":"active","customer":{"id":"cus_1"},"items":{"data":[{"price":{"id":"price_mystery"}}]}}`
	assert.NoError(t, f.deliver(t, "customer.subscription.updated", subJSON))

	assert.Equal(t, models.WebhookEventFailed, f.events.dispositions["evt_1"])
	assert.Equal(t, models.PlanFree, f.detailers.detailers[detailer.ID].Plan)
}

func TestWebhookService_UnhandledEventType(t *testing.T) {
	f := newWebhookFixture()

	assert.NoError(t, f.deliver(t, "product.created", `{"id":"prod_1"}`))
	assert.Equal(t, models.WebhookEventSkipped, f.events.dispositions["evt_1"])
}

func TestWebhookService_SubscriptionCheckoutLinksID(t *testing.T) {
	f := newWebhookFixture()
	detailer := f.detailers.seed(models.PlanFree, "")

	payload := fmt.Sprintf(`{"id":"cs_sub","subscription":{"id":"sub_9"},"metadata":{"type":%q,"detailer_id":%q,"plan":"pro"}}`,
		models.CheckoutTypeSubscription, detailer.ID.String())
	assert.NoError(t, f.deliver(t, "checkout.session.completed", payload))

	stored := f.detailers.detailers[detailer.ID]
	assert.Equal(t, "sub_9", *stored.SubscriptionID)
	// The plan waits for the subscription event carrying the price.
	assert.Equal(t, models.PlanFree, stored.Plan)
}
