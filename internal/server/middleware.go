package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

const HeaderTenant = "X-Tenant-Id"

// InternalAuth requires the shared bearer token when one is configured.
func (s *Server) InternalAuth() gin.HandlerFunc {
	token := strings.TrimSpace(s.cfg.InternalToken)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
