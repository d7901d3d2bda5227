package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type createSessionRequest struct {
	InvoiceID int64 `json:"invoice_id"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.InvoiceID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	created, err := s.checkoutSvc.CreateSession(c.Request.Context(), req.InvoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

func (s *Server) ListCheckoutSessions(c *gin.Context) {
	invoiceID, err := strconv.ParseInt(strings.TrimSpace(c.Query("invoice")), 10, 64)
	if err != nil || invoiceID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	records, err := s.checkoutSvc.ListSessions(c.Request.Context(), invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}
