package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	grndomain "github.com/smallbiznis/kasira/internal/grn/domain"
	"github.com/smallbiznis/kasira/pkg/db/pagination"
)

type createGRNLineRequest struct {
	ProductID     string `json:"product_id"`
	Quantity      int64  `json:"quantity"`
	UnitCostCents int64  `json:"unit_cost_cents"`
}

type createGRNRequest struct {
	SupplierID string                 `json:"supplier_id"`
	Note       string                 `json:"note"`
	Lines      []createGRNLineRequest `json:"lines"`
}

func (s *Server) CreateGRN(c *gin.Context) {
	var req createGRNRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	lines := make([]grndomain.CreateGRNLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, grndomain.CreateGRNLine{
			ProductID:     strings.TrimSpace(line.ProductID),
			Quantity:      line.Quantity,
			UnitCostCents: line.UnitCostCents,
		})
	}

	resp, err := s.grnSvc.Create(c.Request.Context(), grndomain.CreateGRNRequest{
		SupplierID: strings.TrimSpace(req.SupplierID),
		Note:       strings.TrimSpace(req.Note),
		Lines:      lines,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListGRNs(c *gin.Context) {
	var query struct {
		pagination.Pagination
		SupplierID string `form:"supplier_id"`
		Status     string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.grnSvc.List(c.Request.Context(), grndomain.ListGRNRequest{
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
		SupplierID: strings.TrimSpace(query.SupplierID),
		Status:     strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetGRNByID(c *gin.Context) {
	resp, err := s.grnSvc.GetByID(c.Request.Context(), grndomain.GetGRNRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReceiveGRN(c *gin.Context) {
	resp, err := s.grnSvc.Receive(c.Request.Context(), grndomain.ReceiveGRNRequest{
		ID: strings.TrimSpace(c.Param("id")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
