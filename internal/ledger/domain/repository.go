package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CandidateQuery selects invoices eligible for a claim.
type CandidateQuery struct {
	Today       time.Time
	LeaseCutoff time.Time
	AttemptCap  int
	TenantID    *snowflake.ID
	InvoiceIDs  []snowflake.ID
	Limit       int
}

// ClaimRequest is a compare-and-swap claim against the attempt count observed
// when the candidate was listed.
type ClaimRequest struct {
	InvoiceID        snowflake.ID
	ObservedAttempts int
	Today            time.Time
	Now              time.Time
	LeaseCutoff      time.Time
	AttemptCap       int
}

// InvoiceContext bundles everything needed to render and deliver one invoice.
type InvoiceContext struct {
	Invoice     Invoice
	Lines       []InvoiceLine
	Enrollment  Enrollment
	Student     Student
	Tenant      Tenant
	Application *Application
}

// ReminderCandidateQuery selects invoices a rule fires for on Today.
type ReminderCandidateQuery struct {
	Rule  ReminderRule
	Today time.Time
	Limit int
}

// Repository is the transactional data access surface of the ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	ListGenerationCandidates(ctx context.Context, q CandidateQuery) ([]Invoice, error)
	ListResendCandidates(ctx context.Context, q CandidateQuery) ([]Invoice, error)
	ClaimForGeneration(ctx context.Context, req ClaimRequest) (*Invoice, error)
	ClaimForResend(ctx context.Context, req ClaimRequest) (*Invoice, error)
	RefundClaim(ctx context.Context, invoiceID snowflake.ID, claimedAttempts int) error
	ReleaseClaim(ctx context.Context, invoiceID snowflake.ID) error

	GetInvoice(ctx context.Context, invoiceID snowflake.ID) (Invoice, error)
	LoadInvoiceContext(ctx context.Context, invoiceID snowflake.ID) (InvoiceContext, error)
	MarkGenerationSucceeded(ctx context.Context, invoiceID snowflake.ID, documentPath string, at time.Time) error
	MarkGenerationFailed(ctx context.Context, invoiceID snowflake.ID, message string) error
	MarkDelivered(ctx context.Context, invoiceID snowflake.ID, at time.Time) (bool, error)

	ListInvoicesForEnrollment(ctx context.Context, enrollmentID snowflake.ID) ([]Invoice, error)
	ListInvoiceLines(ctx context.Context, invoiceID snowflake.ID) ([]InvoiceLine, error)
	CreateInvoices(ctx context.Context, invoices []Invoice, lines []InvoiceLine) error
	GetEnrollment(ctx context.Context, tenantID, enrollmentID snowflake.ID) (Enrollment, error)
	GetApplication(ctx context.Context, applicationID snowflake.ID) (Application, error)
	FindApplicationForEnrollment(ctx context.Context, enrollment Enrollment) (*Application, error)
	GetAgent(ctx context.Context, agentID snowflake.ID) (Agent, error)
	ListScheduleSnapshot(ctx context.Context, applicationID snowflake.ID) ([]ScheduleSnapshotRow, error)
	ListTemplateInstallments(ctx context.Context, templateID snowflake.ID) ([]PaymentPlanInstallment, error)
	ListInstallmentLines(ctx context.Context, installmentIDs []snowflake.ID) ([]PaymentPlanInstallmentLine, error)

	ListActiveReminderRules(ctx context.Context, tenantID *snowflake.ID) ([]ReminderRule, error)
	ListReminderCandidates(ctx context.Context, q ReminderCandidateQuery) ([]Invoice, error)
	HasReminderDelivery(ctx context.Context, invoiceID, ruleID snowflake.ID) (bool, error)
	InsertReminderDelivery(ctx context.Context, rec ReminderDelivery) (bool, error)

	InsertPayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, paymentID snowflake.ID) (Payment, error)
	ApplyPayment(ctx context.Context, invoiceID snowflake.ID, amount int64) (Invoice, error)
	VoidInvoice(ctx context.Context, invoiceID snowflake.ID) (Invoice, error)

	FindCommissionByPayment(ctx context.Context, paymentID snowflake.ID) (*CommissionInvoice, error)
	NextCommissionNumber(ctx context.Context, tenantID snowflake.ID) (int64, error)
	InsertCommission(ctx context.Context, commission *CommissionInvoice) (bool, error)

	MarkOverdueBatch(ctx context.Context, today time.Time, limit int) (int64, error)
}
