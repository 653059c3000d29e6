package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reminderdomain "github.com/smallbiznis/kasira/internal/reminder/domain"
)

func (s *Server) ListInvoiceReminders(c *gin.Context) {
	resp, err := s.reminderSvc.ListByInvoice(c.Request.Context(), reminderdomain.ListReminderRequest{
		InvoiceID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
