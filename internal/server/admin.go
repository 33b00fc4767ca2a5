package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/storefront/internal/webhook/domain"
)

func (s *Server) ListWebhookFailures(c *gin.Context) {
	var req webhookdomain.ListFailuresRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.webhookSvc.ListFailures(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ReplayWebhookFailure(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	result, err := s.webhookSvc.Replay(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
