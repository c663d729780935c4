// Package domain declares payment recording against invoices.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/feeflow/internal/commission/domain"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
)

var (
	ErrInvalidAmount  = errors.New("invalid_payment_amount")
	ErrInvalidInvoice = errors.New("invalid_invoice")
	ErrTenantMismatch = errors.New("tenant_mismatch")
)

type RecordPaymentRequest struct {
	TenantID    snowflake.ID
	InvoiceID   snowflake.ID
	Amount      int64
	PaymentDate time.Time
	Reference   string
}

type RecordPaymentResult struct {
	Payment    ledgerdomain.Payment
	Invoice    ledgerdomain.Invoice
	Commission *commissiondomain.Result
}

type Service interface {
	// RecordPayment stores the payment, settles the invoice when fully paid and
	// then triggers the commission calculator.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResult, error)
	VoidInvoice(ctx context.Context, tenantID, invoiceID snowflake.ID) (ledgerdomain.Invoice, error)
}
