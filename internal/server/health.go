package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz reports readiness. The process stays up while the database is
// down, so readiness follows the gateway probe rather than liveness.
func (s *Server) Healthz(c *gin.Context) {
	health := s.gateway.HealthProbe(c.Request.Context())
	status := http.StatusOK
	if !health.Connected {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"database": health})
}
