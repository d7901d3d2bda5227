package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const headerStripeSignature = "Stripe-Signature"

// HandleStripeReturn finishes the browser return from hosted checkout. The
// flow always resolves to a redirect; validation failures land on the cart
// error page rather than an HTTP error.
func (s *Server) HandleStripeReturn(c *gin.Context) {
	invoiceID, _ := strconv.ParseInt(strings.TrimSpace(c.Query("invoice")), 10, 64)
	sessionID := strings.TrimSpace(c.Query("session_id"))

	outcome := s.returnFlow.HandleReturn(c.Request.Context(), invoiceID, sessionID)
	if outcome.Rejected() {
		s.log.Warn("return flow rejected",
			zap.Int64("invoice_id", invoiceID),
			zap.String("reason", outcome.Reason),
		)
	}
	c.Redirect(http.StatusFound, outcome.Location)
}

func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ack := s.webhookFlow.HandleWebhook(c.Request.Context(), payload, c.GetHeader(headerStripeSignature))
	if !ack.Accepted() {
		c.JSON(ack.StatusCode, gin.H{"error": ack.Reason})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
