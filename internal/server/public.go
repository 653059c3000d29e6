package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/kasira/internal/invoice/domain"
	"go.uber.org/zap"
)

// PublicInvoicePDF serves an invoice PDF by its share token. The route is
// unauthenticated, so it sits behind per-token and per-IP rate limits.
func (s *Server) PublicInvoicePDF(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, ErrNotFound)
		return
	}

	if s.publicInvoiceLimiter != nil {
		allowed, reason := s.publicInvoiceLimiter.Allow(c.Request.Context(), token, c.ClientIP())
		if !allowed {
			s.log.Info("public invoice request throttled",
				zap.String("reason", reason),
				zap.String("ip", c.ClientIP()),
			)
			AbortWithError(c, ErrTooManyRequests)
			return
		}
	}

	data, err := s.invoiceSvc.RenderPublicPDF(c.Request.Context(), invoicedomain.GetInvoiceByTokenRequest{
		Token: token,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", "inline; filename=invoice.pdf")
	c.Data(http.StatusOK, "application/pdf", data)
}
