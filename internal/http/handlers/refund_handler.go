package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shinequote/detailer-backend/internal/dto"
	"github.com/shinequote/detailer-backend/internal/http/handlers/common"
	"github.com/shinequote/detailer-backend/internal/money"
	"github.com/shinequote/detailer-backend/internal/service"
)

type RefundHandler struct {
	refunds *service.RefundService
}

func NewRefundHandler(refunds *service.RefundService) *RefundHandler {
	return &RefundHandler{refunds: refunds}
}

// Refund POST /quotes/:id/refund
func (h *RefundHandler) Refund(c *gin.Context) {
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

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var amountCents *int64
	if req.Amount != nil {
		cents, err := money.Cents(*req.Amount)
		if err != nil {
			common.RespondBadRequest(c, "amount: "+err.Error())
			return
		}
		amountCents = &cents
	}

	quote, err := h.refunds.Refund(c.Request.Context(), detailerID, quoteID, amountCents, req.Reason)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewQuoteResponse(quote))
}
