package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/money"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SuccessResponse wraps simple acknowledgements.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// QuoteLineItemResponse is one rendered quote line.
type QuoteLineItemResponse struct {
	ID            uuid.UUID       `json:"id"`
	Position      int             `json:"position"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	IsChangeOrder bool            `json:"is_change_order"`
}

// QuoteResponse renders a quote with decimal amounts.
type QuoteResponse struct {
	ID            uuid.UUID       `json:"id"`
	ShareLink     string          `json:"share_link,omitempty"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	Total         decimal.Decimal `json:"total"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	Status        string          `json:"status"`

	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	ViewedAt    *time.Time `json:"viewed_at,omitempty"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	LineItems []QuoteLineItemResponse `json:"line_items,omitempty"`
}

// NewQuoteResponse converts a quote to its wire shape.
func NewQuoteResponse(q *models.Quote) QuoteResponse {
	resp := QuoteResponse{
		ID:            q.ID,
		ShareLink:     q.ShareLink,
		CustomerName:  q.CustomerName,
		CustomerEmail: q.CustomerEmail,
		CustomerPhone: q.CustomerPhone,
		Total:         money.Decimal(q.TotalPriceCents),
		PaidAmount:    money.Decimal(q.PaidAmountCents),
		RefundAmount:  money.Decimal(q.RefundAmountCents),
		Status:        q.Status,
		ValidUntil:    q.ValidUntil,
		SentAt:        q.SentAt,
		ViewedAt:      q.ViewedAt,
		PaidAt:        q.PaidAt,
		RefundedAt:    q.RefundedAt,
		CompletedAt:   q.CompletedAt,
		CreatedAt:     q.CreatedAt,
	}
	for _, item := range q.LineItems {
		resp.LineItems = append(resp.LineItems, QuoteLineItemResponse{
			ID:            item.ID,
			Position:      item.Position,
			Description:   item.Description,
			Amount:        money.Decimal(item.AmountCents),
			IsChangeOrder: item.IsChangeOrder,
		})
	}
	return resp
}

// PublicQuoteResponse is the customer-facing rendering: no share link
// echo, no internal ids beyond what the customer needs.
type PublicQuoteResponse struct {
	BusinessName string          `json:"business_name,omitempty"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
	ValidUntil   *time.Time      `json:"valid_until,omitempty"`

	LineItems []QuoteLineItemResponse `json:"line_items"`
}

// NewPublicQuoteResponse converts a quote to its customer-facing shape.
func NewPublicQuoteResponse(q *models.Quote, businessName string) PublicQuoteResponse {
	resp := PublicQuoteResponse{
		BusinessName: businessName,
		CustomerName: q.CustomerName,
		Total:        money.Decimal(q.TotalPriceCents),
		Status:       q.Status,
		ValidUntil:   q.ValidUntil,
		LineItems:    []QuoteLineItemResponse{},
	}
	for _, item := range q.LineItems {
		resp.LineItems = append(resp.LineItems, QuoteLineItemResponse{
			ID:            item.ID,
			Position:      item.Position,
			Description:   item.Description,
			Amount:        money.Decimal(item.AmountCents),
			IsChangeOrder: item.IsChangeOrder,
		})
	}
	return resp
}

// ChangeOrderServiceResponse is one rendered change order line.
type ChangeOrderServiceResponse struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// ChangeOrderResponse renders a change order.
type ChangeOrderResponse struct {
	ID            uuid.UUID                    `json:"id"`
	QuoteID       uuid.UUID                    `json:"quote_id"`
	ApprovalToken string                       `json:"approval_token,omitempty"`
	Amount        decimal.Decimal              `json:"amount"`
	Reason        string                       `json:"reason"`
	Status        string                       `json:"status"`
	ProcessedAt   *time.Time                   `json:"processed_at,omitempty"`
	CreatedAt     time.Time                    `json:"created_at"`
	Services      []ChangeOrderServiceResponse `json:"services,omitempty"`
}

// NewChangeOrderResponse converts a change order to its wire shape.
// includeToken controls whether the capability token is echoed; customer
// endpoints resolved the token already and never re-expose it.
func NewChangeOrderResponse(co *models.ChangeOrder, includeToken bool) ChangeOrderResponse {
	resp := ChangeOrderResponse{
		ID:          co.ID,
		QuoteID:     co.QuoteID,
		Amount:      money.Decimal(co.AmountCents),
		Reason:      co.Reason,
		Status:      co.Status,
		ProcessedAt: co.ProcessedAt,
		CreatedAt:   co.CreatedAt,
	}
	if includeToken && co.ApprovalToken != nil {
		resp.ApprovalToken = *co.ApprovalToken
	}
	for _, svc := range co.Services {
		resp.Services = append(resp.Services, ChangeOrderServiceResponse{
			Name:   svc.Name,
			Amount: money.Decimal(svc.AmountCents),
		})
	}
	return resp
}

// CheckoutSessionResponse hands the hosted checkout URL to the client.
type CheckoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// ProductResponse renders a marketplace listing.
type ProductResponse struct {
	ID       uuid.UUID       `json:"id"`
	VendorID uuid.UUID       `json:"vendor_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
}

// NewProductResponse converts a product to its wire shape.
func NewProductResponse(p models.VendorProduct) ProductResponse {
	return ProductResponse{
		ID:       p.ID,
		VendorID: p.VendorID,
		Name:     p.Name,
		Price:    money.Decimal(p.PriceCents),
	}
}

// ShopOrderItemResponse is one rendered order line.
type ShopOrderItemResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// ShopOrderResponse renders a marketplace order for the buyer. Commission
// splits stay internal.
type ShopOrderResponse struct {
	ID         uuid.UUID               `json:"id"`
	Status     string                  `json:"status"`
	Total      decimal.Decimal         `json:"total"`
	PaidAt     *time.Time              `json:"paid_at,omitempty"`
	RefundedAt *time.Time              `json:"refunded_at,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	Items      []ShopOrderItemResponse `json:"items"`
}

// NewShopOrderResponse converts an order to its wire shape.
func NewShopOrderResponse(o *models.ShopOrder) ShopOrderResponse {
	resp := ShopOrderResponse{
		ID:         o.ID,
		Status:     o.Status,
		Total:      money.Decimal(o.TotalCents),
		PaidAt:     o.PaidAt,
		RefundedAt: o.RefundedAt,
		CreatedAt:  o.CreatedAt,
		Items:      []ShopOrderItemResponse{},
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, ShopOrderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: money.Decimal(item.UnitPriceCents),
			Quantity:  item.Quantity,
		})
	}
	return resp
}
