package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shinequote/detailer-backend/internal/dto"
	"github.com/shinequote/detailer-backend/internal/http/handlers/common"
	"github.com/shinequote/detailer-backend/internal/service"
)

// PublicQuoteHandler serves the customer-facing, share-link addressed
// quote endpoints. No authentication: the unguessable link is the
// capability.
type PublicQuoteHandler struct {
	quotes    *service.QuoteService
	detailers service.DetailerRepository
}

func NewPublicQuoteHandler(quotes *service.QuoteService, detailers service.DetailerRepository) *PublicQuoteHandler {
	return &PublicQuoteHandler{quotes: quotes, detailers: detailers}
}

// Get GET /q/:shareLink
// The first open from a sent quote records the view.
func (h *PublicQuoteHandler) Get(c *gin.Context) {
	quote, err := h.quotes.GetByShareLink(c.Request.Context(), c.Param("shareLink"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	businessName := ""
	if detailer, err := h.detailers.GetByID(c.Request.Context(), quote.DetailerID); err == nil {
		businessName = detailer.BusinessName
	}
	common.RespondJSON(c, http.StatusOK, dto.NewPublicQuoteResponse(quote, businessName))
}

// Decline POST /q/:shareLink/decline
func (h *PublicQuoteHandler) Decline(c *gin.Context) {
	quote, err := h.quotes.Decline(c.Request.Context(), c.Param("shareLink"))
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewPublicQuoteResponse(quote, ""))
}
