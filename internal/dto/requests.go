package dto

import (
	"github.com/shopspring/decimal"
)

// CustomerContactPayload carries customer details on create and send.
type CustomerContactPayload struct {
	Name  string `json:"name"`
	Email string `json:"email" binding:"omitempty,email"`
	Phone string `json:"phone"`
}

// QuoteServicePayload is one priced line of a quote request. Amount is a
// decimal string in major units; it is converted to cents at the boundary
// and rejected if it carries sub-cent precision.
type QuoteServicePayload struct {
	Description string          `json:"description" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

// CreateQuoteRequest POST /api/quotes
type CreateQuoteRequest struct {
	Services []QuoteServicePayload  `json:"services" binding:"required,min=1,dive"`
	Customer CustomerContactPayload `json:"customer"`
}

// SendQuoteRequest POST /api/quotes/:id/send
type SendQuoteRequest struct {
	Customer CustomerContactPayload `json:"customer" binding:"required"`
}

// RefundRequest POST /api/quotes/:id/refund. A nil amount refunds the
// remaining balance.
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Reason string           `json:"reason"`
}

// ChangeOrderServicePayload is one added service line of a proposal.
type ChangeOrderServicePayload struct {
	Name   string          `json:"name" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// ProposeChangeOrderRequest POST /api/quotes/:id/change-orders
type ProposeChangeOrderRequest struct {
	Services []ChangeOrderServicePayload `json:"services" binding:"required,min=1,dive"`
	Reason   string                      `json:"reason"`
}

// ShopCheckoutItemPayload is one cart line of a marketplace checkout.
type ShopCheckoutItemPayload struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

// ShopCheckoutRequest POST /api/shop/checkout
type ShopCheckoutRequest struct {
	Email string                    `json:"email" binding:"required,email"`
	Items []ShopCheckoutItemPayload `json:"items" binding:"required,min=1,dive"`
}

// SubscriptionCheckoutRequest POST /api/billing/subscription/checkout
type SubscriptionCheckoutRequest struct {
	Plan string `json:"plan" binding:"required"`
}
