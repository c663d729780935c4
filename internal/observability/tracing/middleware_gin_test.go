package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/feeflow/internal/observability/context"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddlewareTagsTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())

	var tenant string
	r.POST("/internal/payments", func(c *gin.Context) {
		tenant = obscontext.TenantIDFromContext(c.Request.Context())
		c.Status(http.StatusCreated)
	})
	r.GET("/health", func(c *gin.Context) {
		tenant = obscontext.TenantIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/internal/payments", nil)
	req.Header.Set("X-Tenant-Id", "42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "42", tenant)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Tenant-Id", "42")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, tenant)
}
