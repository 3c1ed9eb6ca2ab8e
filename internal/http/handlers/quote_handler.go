package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shinequote/detailer-backend/internal/dto"
	"github.com/shinequote/detailer-backend/internal/http/handlers/common"
	"github.com/shinequote/detailer-backend/internal/models"
	"github.com/shinequote/detailer-backend/internal/money"
	"github.com/shinequote/detailer-backend/internal/service"
)

type QuoteHandler struct {
	quotes *service.QuoteService
}

func NewQuoteHandler(quotes *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

// Create POST /quotes
func (h *QuoteHandler) Create(c *gin.Context) {
	detailerID, err := common.CurrentDetailerID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	services := make([]service.QuoteServiceInput, 0, len(req.Services))
	for _, svc := range req.Services {
		cents, err := money.Cents(svc.Amount)
		if err != nil {
			common.RespondBadRequest(c, "amount for "+svc.Description+": "+err.Error())
			return
		}
		services = append(services, service.QuoteServiceInput{
			Description: svc.Description,
			AmountCents: cents,
		})
	}

	quote, err := h.quotes.Create(c.Request.Context(), detailerID, services, models.CustomerContact{
		Name:  req.Customer.Name,
		Email: req.Customer.Email,
		Phone: req.Customer.Phone,
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusCreated, dto.NewQuoteResponse(quote))
}

// List GET /quotes
func (h *QuoteHandler) List(c *gin.Context) {
	detailerID, err := common.CurrentDetailerID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	quotes, err := h.quotes.List(c.Request.Context(), detailerID, limit, offset)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	out := make([]dto.QuoteResponse, 0, len(quotes))
	for i := range quotes {
		out = append(out, dto.NewQuoteResponse(&quotes[i]))
	}
	common.RespondJSON(c, http.StatusOK, gin.H{"quotes": out})
}

// Get GET /quotes/:id
func (h *QuoteHandler) Get(c *gin.Context) {
	detailerID, quoteID, ok := h.ownedQuoteID(c)
	if !ok {
		return
	}

	quote, err := h.quotes.Get(c.Request.Context(), detailerID, quoteID)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewQuoteResponse(quote))
}

// Send POST /quotes/:id/send
func (h *QuoteHandler) Send(c *gin.Context) {
	detailerID, quoteID, ok := h.ownedQuoteID(c)
	if !ok {
		return
	}

	var req dto.SendQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	quote, err := h.quotes.Send(c.Request.Context(), detailerID, quoteID, models.CustomerContact{
		Name:  req.Customer.Name,
		Email: req.Customer.Email,
		Phone: req.Customer.Phone,
	})
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewQuoteResponse(quote))
}

// Schedule POST /quotes/:id/schedule
func (h *QuoteHandler) Schedule(c *gin.Context) {
	h.transition(c, h.quotes.Schedule)
}

// Start POST /quotes/:id/start
func (h *QuoteHandler) Start(c *gin.Context) {
	h.transition(c, h.quotes.Start)
}

// Complete POST /quotes/:id/complete
func (h *QuoteHandler) Complete(c *gin.Context) {
	h.transition(c, h.quotes.Complete)
}

func (h *QuoteHandler) transition(c *gin.Context, op func(ctx context.Context, detailerID, quoteID uuid.UUID) (*models.Quote, error)) {
	detailerID, quoteID, ok := h.ownedQuoteID(c)
	if !ok {
		return
	}
	quote, err := op(c.Request.Context(), detailerID, quoteID)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewQuoteResponse(quote))
}

func (h *QuoteHandler) ownedQuoteID(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	detailerID, err := common.CurrentDetailerID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	quoteID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return detailerID, quoteID, true
}
