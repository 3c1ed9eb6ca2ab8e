package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shinequote/detailer-backend/internal/dto"
	"github.com/shinequote/detailer-backend/internal/http/handlers/common"
	"github.com/shinequote/detailer-backend/internal/service"
)

type CheckoutHandler struct {
	checkout *service.CheckoutService
}

func NewCheckoutHandler(checkout *service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout}
}

// QuoteCheckout POST /q/:shareLink/checkout
func (h *CheckoutHandler) QuoteCheckout(c *gin.Context) {
	session, err := h.checkout.CreateQuoteCheckout(c.Request.Context(), c.Param("shareLink"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusCreated, dto.CheckoutSessionResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	})
}

// ChangeOrderCheckout POST /change-orders/:token/checkout
func (h *CheckoutHandler) ChangeOrderCheckout(c *gin.Context) {
	session, err := h.checkout.CreateChangeOrderCheckout(c.Request.Context(), c.Param("token"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusCreated, dto.CheckoutSessionResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	})
}

// ShopCheckout POST /shop/checkout
func (h *CheckoutHandler) ShopCheckout(c *gin.Context) {
	var req dto.ShopCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	items := make([]service.ShopItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			common.RespondBadRequest(c, "invalid product_id "+item.ProductID)
			return
		}
		items = append(items, service.ShopItemInput{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	session, err := h.checkout.CreateShopCheckout(c.Request.Context(), req.Email, items)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusCreated, dto.CheckoutSessionResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	})
}

// SubscriptionCheckout POST /billing/subscription/checkout
func (h *CheckoutHandler) SubscriptionCheckout(c *gin.Context) {
	detailerID, err := common.CurrentDetailerID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.SubscriptionCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	session, err := h.checkout.CreateSubscriptionCheckout(c.Request.Context(), detailerID, req.Plan)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusCreated, dto.CheckoutSessionResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	})
}
