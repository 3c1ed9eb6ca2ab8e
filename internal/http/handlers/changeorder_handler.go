package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shinequote/detailer-backend/internal/dto"
	"github.com/shinequote/detailer-backend/internal/http/handlers/common"
	"github.com/shinequote/detailer-backend/internal/money"
	"github.com/shinequote/detailer-backend/internal/service"
)

type ChangeOrderHandler struct {
	changeOrders *service.ChangeOrderService
}

func NewChangeOrderHandler(changeOrders *service.ChangeOrderService) *ChangeOrderHandler {
	return &ChangeOrderHandler{changeOrders: changeOrders}
}

// Propose POST /quotes/:id/change-orders
func (h *ChangeOrderHandler) Propose(c *gin.Context) {
	detailerID, err := common.CurrentDetailerID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	quoteID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.ProposeChangeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	services := make([]service.ChangeOrderServiceInput, 0, len(req.Services))
	for _, svc := range req.Services {
		cents, err := money.Cents(svc.Amount)
		if err != nil {
			common.RespondBadRequest(c, "amount for "+svc.Name+": "+err.Error())
			return
		}
		services = append(services, service.ChangeOrderServiceInput{
			Name:        svc.Name,
			AmountCents: cents,
		})
	}

	co, err := h.changeOrders.Propose(c.Request.Context(), detailerID, quoteID, services, req.Reason)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusCreated, dto.NewChangeOrderResponse(co, true))
}

// ListByQuote GET /quotes/:id/change-orders
func (h *ChangeOrderHandler) ListByQuote(c *gin.Context) {
	detailerID, err := common.CurrentDetailerID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}
	quoteID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	orders, err := h.changeOrders.ListByQuote(c.Request.Context(), detailerID, quoteID)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	out := make([]dto.ChangeOrderResponse, 0, len(orders))
	for i := range orders {
		out = append(out, dto.NewChangeOrderResponse(&orders[i], true))
	}
	common.RespondJSON(c, http.StatusOK, gin.H{"change_orders": out})
}

// GetByToken GET /change-orders/:token
// Customer-facing: the approval token is the capability.
func (h *ChangeOrderHandler) GetByToken(c *gin.Context) {
	co, err := h.changeOrders.GetByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewChangeOrderResponse(co, false))
}

// Decline POST /change-orders/:token/decline
func (h *ChangeOrderHandler) Decline(c *gin.Context) {
	co, err := h.changeOrders.Decline(c.Request.Context(), c.Param("token"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewChangeOrderResponse(co, false))
}
