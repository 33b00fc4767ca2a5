package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBodyBytes   = 1 << 20
)

// HandleStripeWebhook passes the raw body through untouched; the signature
// covers the exact bytes the gateway sent.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
			return
		}
		logger.FromContext(c.Request.Context()).Warn("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	resp := s.webhookSvc.Handle(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader))
	c.JSON(resp.Status, resp.Body)
}
