package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) VoidInvoice(c *gin.Context) {
	invoiceID, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || invoiceID == nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}
	tenantID, err := tenantFrom(c, "")
	if err != nil || tenantID == nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "tenant header is required"))
		return
	}

	item, err := s.paymentSvc.VoidInvoice(c.Request.Context(), *tenantID, *invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": item})
}

// PreviewInvoice renders the invoice as HTML without storing anything.
func (s *Server) PreviewInvoice(c *gin.Context) {
	invoiceID, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || invoiceID == nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	preview, err := s.invoiceSvc.Preview(c.Request.Context(), *invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, preview.ContentType, preview.Body)
}
