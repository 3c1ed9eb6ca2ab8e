package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shinequote/detailer-backend/internal/dto"
	"github.com/shinequote/detailer-backend/internal/http/handlers/common"
	"github.com/shinequote/detailer-backend/internal/pkg/apperror"
	"github.com/shinequote/detailer-backend/internal/repository"
	"github.com/shinequote/detailer-backend/internal/service"
)

type ShopHandler struct {
	shop service.ShopRepository
}

func NewShopHandler(shop service.ShopRepository) *ShopHandler {
	return &ShopHandler{shop: shop}
}

// ListProducts GET /shop/products
func (h *ShopHandler) ListProducts(c *gin.Context) {
	products, err := h.shop.ListActiveProducts(c.Request.Context())
	if err != nil {
		common.AbortWithError(c, apperror.Wrap(err, apperror.ErrCodeInternal, "product listing failed"))
		return
	}

	out := make([]dto.ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, dto.NewProductResponse(p))
	}
	common.RespondJSON(c, http.StatusOK, gin.H{"products": out})
}

// GetOrder GET /shop/orders/:id
func (h *ShopHandler) GetOrder(c *gin.Context) {
	orderID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	order, err := h.shop.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		if err == repository.ErrShopOrderNotFound {
			common.AbortWithError(c, apperror.ErrShopOrderNotFound)
			return
		}
		common.AbortWithError(c, apperror.Wrap(err, apperror.ErrCodeInternal, "order lookup failed"))
		return
	}
	common.RespondJSON(c, http.StatusOK, dto.NewShopOrderResponse(order))
}
