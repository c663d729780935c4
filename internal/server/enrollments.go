package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type materializeRequest struct {
	TenantID   string `json:"tenant_id"`
	AnchorDate string `json:"anchor_date"`
}

// MaterializeEnrollment is the approval hook: it expands the enrollment's
// payment plan into invoices, returning the existing ones on retry.
func (s *Server) MaterializeEnrollment(c *gin.Context) {
	enrollmentID, err := parseOptionalSnowflakeID(c.Param("id"))
	if err != nil || enrollmentID == nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	var req materializeRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tenantID, err := tenantFrom(c, req.TenantID)
	if err != nil || tenantID == nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "tenant_id is required"))
		return
	}
	anchor, err := parseOptionalDate(req.AnchorDate)
	if err != nil {
		AbortWithError(c, newValidationError("anchor_date", "invalid_anchor_date", "anchor_date must be YYYY-MM-DD"))
		return
	}

	result, err := s.planSvc.MaterializeForEnrollment(c.Request.Context(), *tenantID, *enrollmentID, anchor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": result})
}
