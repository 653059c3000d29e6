package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/pkg/shopctx"
)

type updateShopRequest struct {
	Name     string   `json:"name"`
	Currency string   `json:"currency"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone"`
	TaxRate  *float64 `json:"tax_rate"`
}

// GetShop returns the shop the caller's key belongs to.
func (s *Server) GetShop(c *gin.Context) {
	shopID, ok := shopctx.ShopIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	resp, err := s.shopSvc.GetByID(c.Request.Context(), shopdomain.GetShopRequest{
		ID: shopID.String(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateShop(c *gin.Context) {
	shopID, ok := shopctx.ShopIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req updateShopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.shopSvc.Update(c.Request.Context(), shopdomain.UpdateShopRequest{
		ID:       shopID.String(),
		Name:     strings.TrimSpace(req.Name),
		Currency: strings.TrimSpace(req.Currency),
		Address:  strings.TrimSpace(req.Address),
		Phone:    strings.TrimSpace(req.Phone),
		TaxRate:  req.TaxRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
