package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/shinequote/detailer-backend/internal/http/middleware"
)

func TestQuoteHandler_Create_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &QuoteHandler{quotes: nil}
	r.POST("/quotes", handler.Create)

	req, _ := http.NewRequest("POST", "/quotes", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuoteHandler_Get_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &QuoteHandler{quotes: nil}
	r.GET("/quotes/:id", func(c *gin.Context) {
		c.Set(middleware.ContextDetailerIDKey, uuid.New())
		handler.Get(c)
	})

	req, _ := http.NewRequest("GET", "/quotes/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuoteHandler_Send_MalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &QuoteHandler{quotes: nil}
	r.POST("/quotes/:id/send", func(c *gin.Context) {
		c.Set(middleware.ContextDetailerIDKey, uuid.New())
		handler.Send(c)
	})

	req, _ := http.NewRequest("POST", "/quotes/"+uuid.NewString()+"/send", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefundHandler_Refund_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &RefundHandler{refunds: nil}
	r.POST("/quotes/:id/refund", handler.Refund)

	req, _ := http.NewRequest("POST", "/quotes/"+uuid.NewString()+"/refund", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefundHandler_Refund_SubCentAmount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &RefundHandler{refunds: nil}
	r.POST("/quotes/:id/refund", func(c *gin.Context) {
		c.Set(middleware.ContextDetailerIDKey, uuid.New())
		handler.Refund(c)
	})

	req, _ := http.NewRequest("POST", "/quotes/"+uuid.NewString()+"/refund",
		strings.NewReader(`{"amount":"10.005"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeOrderHandler_Propose_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ChangeOrderHandler{changeOrders: nil}
	r.POST("/quotes/:id/change-orders", handler.Propose)

	req, _ := http.NewRequest("POST", "/quotes/"+uuid.NewString()+"/change-orders", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutHandler_ShopCheckout_MalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &CheckoutHandler{checkout: nil}
	r.POST("/shop/checkout", handler.ShopCheckout)

	req, _ := http.NewRequest("POST", "/shop/checkout", strings.NewReader(`{"email":"not-an-email","items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShopHandler_GetOrder_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ShopHandler{shop: nil}
	r.GET("/shop/orders/:id", handler.GetOrder)

	req, _ := http.NewRequest("GET", "/shop/orders/oops", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
