package server

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString(contextSubjectKey)
		if strings.TrimSpace(subject) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), subject, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
