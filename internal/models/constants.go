package models

// QuoteStatus values.
const (
	QuoteStatusDraft         = "draft"
	QuoteStatusSent          = "sent"
	QuoteStatusViewed        = "viewed"
	QuoteStatusPaid          = "paid"
	QuoteStatusApproved      = "approved"
	QuoteStatusScheduled     = "scheduled"
	QuoteStatusInProgress    = "in_progress"
	QuoteStatusCompleted     = "completed"
	QuoteStatusRefunded      = "refunded"
	QuoteStatusPartialRefund = "partial_refund"
	QuoteStatusExpired       = "expired"
	QuoteStatusDeclined      = "declined"
)

// ChangeOrderStatus values.
const (
	ChangeOrderStatusPending  = "pending"
	ChangeOrderStatusApproved = "approved"
	ChangeOrderStatusDeclined = "declined"
)

// Detailer subscription plans.
const (
	PlanFree     = "free"
	PlanStarter  = "starter"
	PlanPro      = "pro"
	PlanBusiness = "business"
)

// SubscriptionStatus mirror values, following the processor's vocabulary.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Vendor commission tiers.
const (
	CommissionTierBasic   = "basic"
	CommissionTierPro     = "pro"
	CommissionTierPartner = "partner"
)

// ShopOrderStatus values.
const (
	ShopOrderStatusPending  = "pending"
	ShopOrderStatusPaid     = "paid"
	ShopOrderStatusRefunded = "refunded"
)

// Checkout session kinds embedded in processor metadata. Classification in
// the webhook reconciler keys on these tags and nothing else.
const (
	CheckoutTypeRegularQuote = "regular_quote_payment"
	CheckoutTypeChangeOrder  = "change_order_payment"
	CheckoutTypeShopOrder    = "shop_order_payment"
	CheckoutTypeSubscription = "subscription_upgrade"
)

// Webhook event dispositions recorded alongside the raw payload.
const (
	WebhookEventProcessed = "processed"
	WebhookEventSkipped   = "skipped"
	WebhookEventFailed    = "failed"
)

// ValidPlans is the set of recognised subscription plans.
var ValidPlans = map[string]struct{}{
	PlanFree:     {},
	PlanStarter:  {},
	PlanPro:      {},
	PlanBusiness: {},
}

// ValidCommissionTiers is the set of recognised vendor tiers.
var ValidCommissionTiers = map[string]struct{}{
	CommissionTierBasic:   {},
	CommissionTierPro:     {},
	CommissionTierPartner: {},
}

// quoteTransitions is the quote state graph. The single backward-looking
// paid edge (refunds) is intentionally included; everything else only moves
// forward.
var quoteTransitions = map[string]map[string]struct{}{
	QuoteStatusDraft: {
		QuoteStatusSent: {},
	},
	QuoteStatusSent: {
		QuoteStatusViewed:   {},
		QuoteStatusPaid:     {},
		QuoteStatusExpired:  {},
		QuoteStatusDeclined: {},
	},
	QuoteStatusViewed: {
		QuoteStatusPaid:     {},
		QuoteStatusExpired:  {},
		QuoteStatusDeclined: {},
	},
	QuoteStatusPaid: {
		QuoteStatusApproved:      {},
		QuoteStatusScheduled:     {},
		QuoteStatusCompleted:     {},
		QuoteStatusRefunded:      {},
		QuoteStatusPartialRefund: {},
	},
	QuoteStatusApproved: {
		QuoteStatusScheduled:     {},
		QuoteStatusRefunded:      {},
		QuoteStatusPartialRefund: {},
	},
	QuoteStatusScheduled: {
		QuoteStatusInProgress: {},
		QuoteStatusCompleted:  {},
	},
	QuoteStatusInProgress: {
		QuoteStatusCompleted: {},
	},
	QuoteStatusPartialRefund: {
		QuoteStatusRefunded:      {},
		QuoteStatusPartialRefund: {},
	},
}

// CanTransitionQuote reports whether the state graph has an edge from -> to.
func CanTransitionQuote(from, to string) bool {
	next, ok := quoteTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// QuoteSourceStatuses returns every status with an edge into to.
func QuoteSourceStatuses(to string) []string {
	var sources []string
	for from, next := range quoteTransitions {
		if _, ok := next[to]; ok {
			sources = append(sources, from)
		}
	}
	return sources
}

// IsQuoteTerminal reports whether no outgoing edge exists for the status.
func IsQuoteTerminal(status string) bool {
	next, ok := quoteTransitions[status]
	return !ok || len(next) == 0
}

// IsQuoteMoneyMoved reports whether a payment has been confirmed for the
// quote. Once money has moved, the quote is immutable except for appending
// approved change-order items and recording refunds.
func IsQuoteMoneyMoved(status string) bool {
	switch status {
	case QuoteStatusPaid, QuoteStatusApproved, QuoteStatusScheduled,
		QuoteStatusInProgress, QuoteStatusCompleted,
		QuoteStatusRefunded, QuoteStatusPartialRefund:
		return true
	}
	return false
}
