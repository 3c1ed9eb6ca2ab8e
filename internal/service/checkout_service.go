package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/money"
	"github.com/shinequote/detailer-backend/internal/payments"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/repository"
)

// DetailerRepository describes what checkout and reconciliation need from
// the detailer table.
type DetailerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Detailer, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Detailer, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Detailer, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, plan string, subscriptionID *string, subscriptionStatus string) error
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID string, status string) error
}

// ShopRepository describes what the marketplace checkout needs from
// storage.
type ShopRepository interface {
	ListActiveProducts(ctx context.Context) ([]models.VendorProduct, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]repository.ProductWithVendor, error)
	CreateOrder(ctx context.Context, order *models.ShopOrder, items []models.ShopOrderItem) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*models.ShopOrder, error)
	MarkPaid(ctx context.Context, id uuid.UUID, paymentIntentID string, paidAt time.Time) (bool, error)
}

// QuoteSessionWriter is the slice of quote storage the gateway needs after
// the processor confirms a session.
type QuoteSessionWriter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Quote, error)
	GetByShareLink(ctx context.Context, shareLink string) (*models.Quote, error)
	SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error
}

// ShopItemInput is one requested line of a marketplace checkout.
type ShopItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CheckoutService is the payment session gateway. It prices each session
// with the fee schedule, asks the processor to create it, and only then
// records the session locally. The processor's confirmation is the commit
// point: a local write never precedes it.
type CheckoutService struct {
	provider      payments.Provider
	quotes        QuoteSessionWriter
	changeOrders  ChangeOrderRepository
	detailers     DetailerRepository
	shop          ShopRepository
	fees          money.FeeSchedule
	planPriceIDs  map[string]string
	publicBaseURL string
}

// NewCheckoutService creates a new payment session gateway.
func NewCheckoutService(
	provider payments.Provider,
	quotes QuoteSessionWriter,
	changeOrders ChangeOrderRepository,
	detailers DetailerRepository,
	shop ShopRepository,
	fees money.FeeSchedule,
	planPriceIDs map[string]string,
	publicBaseURL string,
) *CheckoutService {
	return &CheckoutService{
		provider:      provider,
		quotes:        quotes,
		changeOrders:  changeOrders,
		detailers:     detailers,
		shop:          shop,
		fees:          fees,
		planPriceIDs:  planPriceIDs,
		publicBaseURL: publicBaseURL,
	}
}

// CreateQuoteCheckout opens a hosted session for a sent or viewed quote.
// The platform fee comes from the owning detailer's plan at this moment;
// later plan changes never reprice an open session.
func (s *CheckoutService) CreateQuoteCheckout(ctx context.Context, shareLink string) (*payments.CheckoutSession, error) {
	quote, err := s.quotes.GetByShareLink(ctx, shareLink)
	if err != nil {
		if err == repository.ErrQuoteNotFound {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "quote storage failure")
	}
	if quote.Status != models.QuoteStatusSent && quote.Status != models.QuoteStatusViewed {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "quote not payable, status "+quote.Status)
	}
	if quote.ValidUntil != nil && quote.ValidUntil.Before(time.Now().UTC()) {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "quote has expired")
	}

	detailer, err := s.detailers.GetByID(ctx, quote.DetailerID)
	if err != nil {
		return nil, s.wrapDetailerErr(err)
	}
	fee, err := s.fees.PlatformFee(detailer.Plan, quote.TotalPriceCents)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "fee computation failed")
	}

	spec := payments.CheckoutSpec{
		Type: models.CheckoutTypeRegularQuote,
		Reference: map[string]string{
			"quote_id": quote.ID.String(),
		},
		Items: []payments.CheckoutItem{{
			Name:        fmt.Sprintf("Quote from %s", detailer.BusinessName),
			AmountCents: quote.TotalPriceCents,
			Quantity:    1,
		}},
		CustomerEmail:       quote.CustomerEmail,
		SuccessURL:          s.publicBaseURL + "/q/" + shareLink + "?paid=1",
		CancelURL:           s.publicBaseURL + "/q/" + shareLink,
		ApplicationFeeCents: fee,
	}
	if detailer.StripeAccountID != nil {
		spec.DestinationAccount = *detailer.StripeAccountID
	}

	session, err := s.provider.CreateCheckoutSession(ctx, spec)
	if err != nil {
		return nil, s.wrapProviderErr(err, "checkout session creation failed")
	}
	if err := s.quotes.SetCheckoutSession(ctx, quote.ID, session.ID); err != nil {
		// The session exists at the processor either way; the reconciler
		// will still match the completed event by quote_id metadata.
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "session record failed")
	}
	return session, nil
}

// CreateChangeOrderCheckout opens a hosted session for a pending change
// order resolved by its approval token.
func (s *CheckoutService) CreateChangeOrderCheckout(ctx context.Context, token string) (*payments.CheckoutSession, error) {
	co, err := s.changeOrders.GetByToken(ctx, token)
	if err != nil {
		if err == repository.ErrChangeOrderNotFound {
			return nil, apperror.ErrChangeOrderNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "change order storage failure")
	}
	if co.Status != models.ChangeOrderStatusPending {
		return nil, apperror.New(apperror.ErrCodeAlreadyProcessed, "change order already processed")
	}

	quote, err := s.quotes.GetByID(ctx, co.QuoteID)
	if err != nil {
		if err == repository.ErrQuoteNotFound {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "quote storage failure")
	}
	if models.IsQuoteTerminal(quote.Status) {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "quote is closed, status "+quote.Status)
	}

	detailer, err := s.detailers.GetByID(ctx, quote.DetailerID)
	if err != nil {
		return nil, s.wrapDetailerErr(err)
	}
	// The fee applies to the change order amount alone; the original
	// session's fee already covered the original total.
	fee, err := s.fees.PlatformFee(detailer.Plan, co.AmountCents)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "fee computation failed")
	}

	services, err := s.changeOrders.ListServices(ctx, co.ID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "list change order services failed")
	}
	items := make([]payments.CheckoutItem, 0, len(services))
	for _, svc := range services {
		items = append(items, payments.CheckoutItem{
			Name:        svc.Name,
			AmountCents: svc.AmountCents,
			Quantity:    1,
		})
	}

	spec := payments.CheckoutSpec{
		Type: models.CheckoutTypeChangeOrder,
		Reference: map[string]string{
			"change_order_id": co.ID.String(),
			"quote_id":        quote.ID.String(),
		},
		Items:               items,
		CustomerEmail:       quote.CustomerEmail,
		SuccessURL:          s.publicBaseURL + "/change-orders/" + token + "?paid=1",
		CancelURL:           s.publicBaseURL + "/change-orders/" + token,
		ApplicationFeeCents: fee,
	}
	if detailer.StripeAccountID != nil {
		spec.DestinationAccount = *detailer.StripeAccountID
	}

	session, err := s.provider.CreateCheckoutSession(ctx, spec)
	if err != nil {
		return nil, s.wrapProviderErr(err, "change order session creation failed")
	}
	return session, nil
}

// CreateShopCheckout opens a hosted session for a marketplace cart. Splits
// are computed per item line and snapshotted on the local order, which is
// written only after the processor confirms the session.
func (s *CheckoutService) CreateShopCheckout(ctx context.Context, customerEmail string, inputs []ShopItemInput) (*payments.CheckoutSession, error) {
	if customerEmail == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "customer email is required")
	}
	if len(inputs) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, apperror.New(apperror.ErrCodeValidation, "quantity must be positive")
		}
		ids = append(ids, in.ProductID)
	}

	products, err := s.shop.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "product lookup failed")
	}
	byID := make(map[uuid.UUID]repository.ProductWithVendor, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	orderID := uuid.New()
	var total, totalCommission int64
	items := make([]models.ShopOrderItem, 0, len(inputs))
	checkoutItems := make([]payments.CheckoutItem, 0, len(inputs))
	for _, in := range inputs {
		product, ok := byID[in.ProductID]
		if !ok {
			return nil, apperror.New(apperror.ErrCodeNotFound, "product not available: "+in.ProductID.String())
		}
		lineTotal := product.PriceCents * int64(in.Quantity)
		split, err := s.fees.VendorSplit(product.CommissionTier, lineTotal)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "split computation failed")
		}
		total += lineTotal
		totalCommission += split.CommissionCents
		items = append(items, models.ShopOrderItem{
			OrderID:           orderID,
			ProductID:         product.ID,
			VendorID:          product.VendorID,
			Name:              product.Name,
			UnitPriceCents:    product.PriceCents,
			Quantity:          in.Quantity,
			CommissionCents:   split.CommissionCents,
			VendorAmountCents: split.VendorCents,
		})
		checkoutItems = append(checkoutItems, payments.CheckoutItem{
			Name:        product.Name,
			AmountCents: product.PriceCents,
			Quantity:    int64(in.Quantity),
		})
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSpec{
		Type: models.CheckoutTypeShopOrder,
		Reference: map[string]string{
			"shop_order_id": orderID.String(),
		},
		Items:         checkoutItems,
		CustomerEmail: customerEmail,
		SuccessURL:    s.publicBaseURL + "/shop/orders/" + orderID.String(),
		CancelURL:     s.publicBaseURL + "/shop",
	})
	if err != nil {
		return nil, s.wrapProviderErr(err, "shop checkout session creation failed")
	}

	order := &models.ShopOrder{
		ID:              orderID,
		CustomerEmail:   customerEmail,
		Status:          models.ShopOrderStatusPending,
		TotalCents:      total,
		StripeSessionID: &session.ID,
	}
	if err := s.shop.CreateOrder(ctx, order, items); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "order record failed")
	}
	return session, nil
}

// CreateSubscriptionCheckout opens a subscription-mode session moving a
// detailer to a paid plan. The plan itself only changes when the
// reconciler sees the subscription events.
func (s *CheckoutService) CreateSubscriptionCheckout(ctx context.Context, detailerID uuid.UUID, plan string) (*payments.CheckoutSession, error) {
	if _, ok := models.ValidPlans[plan]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "unknown plan "+plan)
	}
	if plan == models.PlanFree {
		return nil, apperror.New(apperror.ErrCodeValidation, "the free plan has no checkout")
	}
	priceID, ok := s.planPriceIDs[plan]
	if !ok || priceID == "" {
		return nil, apperror.New(apperror.ErrCodeInternal, "no price configured for plan "+plan)
	}

	detailer, err := s.detailers.GetByID(ctx, detailerID)
	if err != nil {
		return nil, s.wrapDetailerErr(err)
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutSpec{
		Type: models.CheckoutTypeSubscription,
		Reference: map[string]string{
			"detailer_id": detailer.ID.String(),
			"plan":        plan,
		},
		CustomerEmail:       detailer.Email,
		SuccessURL:          s.publicBaseURL + "/settings/billing?upgraded=1",
		CancelURL:           s.publicBaseURL + "/settings/billing",
		SubscriptionPriceID: priceID,
	})
	if err != nil {
		return nil, s.wrapProviderErr(err, "subscription session creation failed")
	}
	return session, nil
}

func (s *CheckoutService) wrapDetailerErr(err error) error {
	if err == repository.ErrDetailerNotFound {
		return apperror.ErrDetailerNotFound
	}
	return apperror.Wrap(err, apperror.ErrCodeInternal, "detailer storage failure")
}

func (s *CheckoutService) wrapProviderErr(err error, message string) error {
	if apperror.IsUnauthorized(err) || apperror.IsExternalService(err) {
		return err
	}
	return apperror.Wrap(err, apperror.ErrCodeExternalService, message)
}
