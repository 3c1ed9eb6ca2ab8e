package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shinequote/detailer-backend/internal/http/handlers/common"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/service"
)

type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// HandleStripe POST /webhooks/stripe
// A 2xx acknowledges the delivery; anything else makes the processor
// redeliver. Signature failures are the one rejection that must never be
// acknowledged.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		common.RespondBadRequest(c, "unreadable payload")
		return
	}

	err = h.webhooks.HandleEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case apperror.IsUnauthorized(err):
		common.RespondUnauthorized(c, "signature verification failed")
	default:
		// Transient failure: ask for redelivery.
		common.RespondError(c, http.StatusInternalServerError, "event processing failed, will retry")
	}
}
