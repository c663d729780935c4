package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/feeflow/internal/scheduler"
)

type jobRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
	TenantID   string   `json:"tenant_id"`
}

func (s *Server) jobFilter(c *gin.Context) (scheduler.Filter, bool) {
	var req jobRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return scheduler.Filter{}, false
	}
	tenantID, err := tenantFrom(c, req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant id"))
		return scheduler.Filter{}, false
	}
	ids, err := parseSnowflakeIDs(req.InvoiceIDs)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_ids", "invalid_invoice_id", "invalid invoice id"))
		return scheduler.Filter{}, false
	}
	return scheduler.Filter{InvoiceIDs: ids, TenantID: tenantID}, true
}

func (s *Server) ProcessInvoices(c *gin.Context) {
	filter, ok := s.jobFilter(c)
	if !ok {
		return
	}
	result, err := s.jobs.ProcessDueInvoices(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) SendReminders(c *gin.Context) {
	filter, ok := s.jobFilter(c)
	if !ok {
		return
	}
	result, err := s.jobs.SendReminders(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) SweepOverdue(c *gin.Context) {
	result, err := s.jobs.SweepOverdue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
