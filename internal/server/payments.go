package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/feeflow/internal/payment/domain"
)

type recordPaymentRequest struct {
	TenantID    string `json:"tenant_id"`
	InvoiceID   string `json:"invoice_id" binding:"required"`
	Amount      int64  `json:"amount"`
	PaymentDate string `json:"payment_date"`
	Reference   string `json:"reference"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := tenantFrom(c, req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant id"))
		return
	}
	invoiceID, err := parseOptionalSnowflakeID(req.InvoiceID)
	if err != nil || invoiceID == nil {
		AbortWithError(c, newValidationError("invoice_id", "invalid_invoice_id", "invalid invoice id"))
		return
	}
	paymentDate, err := parseOptionalDate(req.PaymentDate)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_payment_date", "payment_date must be YYYY-MM-DD"))
		return
	}

	in := paymentdomain.RecordPaymentRequest{
		InvoiceID: *invoiceID,
		Amount:    req.Amount,
		Reference: strings.TrimSpace(req.Reference),
	}
	if tenantID != nil {
		in.TenantID = *tenantID
	}
	if paymentDate != nil {
		in.PaymentDate = *paymentDate
	}

	result, err := s.paymentSvc.RecordPayment(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}
