// Package domain contains persistence models and contracts for the fee ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Invoice is a scheduled or issued obligation for one installment of an enrollment.
type Invoice struct {
	ID                    snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID              snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoices_tenant_number" json:"tenant_id"`
	EnrollmentID          snowflake.ID      `gorm:"not null;index" json:"enrollment_id"`
	InvoiceNumber         string            `gorm:"type:text;not null;uniqueIndex:ux_invoices_tenant_number" json:"invoice_number"`
	InstallmentName       string            `gorm:"type:text;not null;default:''" json:"installment_name"`
	IssueDate             time.Time         `gorm:"not null;index" json:"issue_date"`
	DueDate               time.Time         `gorm:"not null;index" json:"due_date"`
	AmountDue             int64             `gorm:"not null;default:0" json:"amount_due"`
	AmountPaid            int64             `gorm:"not null;default:0" json:"amount_paid"`
	Status                InvoiceStatus     `gorm:"type:text;not null;index" json:"status"`
	PDFGenerationStatus   GenerationStatus  `gorm:"column:pdf_generation_status;type:text;not null;default:'pending'" json:"pdf_generation_status"`
	PDFGenerationAttempts int               `gorm:"column:pdf_generation_attempts;not null;default:0" json:"pdf_generation_attempts"`
	DocumentPath          *string           `gorm:"type:text" json:"document_path,omitempty"`
	LastGenerationError   *string           `gorm:"type:text" json:"last_generation_error,omitempty"`
	GeneratedAt           *time.Time        `json:"generated_at,omitempty"`
	LastDeliveredAt       *time.Time        `json:"last_delivered_at,omitempty"`
	ClaimedAt             *time.Time        `json:"-"`
	IsDeposit             bool              `gorm:"not null" json:"is_deposit"`
	Metadata              datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt             time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"not null" json:"updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// Balance is the unpaid remainder, never negative.
func (i Invoice) Balance() int64 {
	if i.AmountPaid >= i.AmountDue {
		return 0
	}
	return i.AmountDue - i.AmountPaid
}

func (i Invoice) HasDocument() bool {
	return i.DocumentPath != nil && *i.DocumentPath != ""
}

// InvoiceLine is an immutable fee line on an invoice.
type InvoiceLine struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	InvoiceID        snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Sequence         int          `gorm:"not null" json:"sequence"`
	Description      string       `gorm:"type:text;not null" json:"description"`
	Amount           int64        `gorm:"not null" json:"amount"`
	IsCommissionable bool         `gorm:"not null" json:"is_commissionable"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

type Payment struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	InvoiceID   snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Amount      int64        `gorm:"not null" json:"amount"`
	PaymentDate time.Time    `gorm:"not null" json:"payment_date"`
	Reference   string       `gorm:"type:text;not null;default:''" json:"reference"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

type CommissionStatus string

const (
	CommissionStatusUnpaid CommissionStatus = "UNPAID"
	CommissionStatusPaid   CommissionStatus = "PAID"
)

// CommissionInvoice is the agent commission owed for one student payment.
type CommissionInvoice struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_commission_tenant_number" json:"tenant_id"`
	PaymentID        snowflake.ID     `gorm:"not null;uniqueIndex:ux_commission_payment" json:"payment_id"`
	InvoiceID        snowflake.ID     `gorm:"not null;index" json:"invoice_id"`
	AgentID          snowflake.ID     `gorm:"not null;index" json:"agent_id"`
	CommissionNumber string           `gorm:"type:text;not null;uniqueIndex:ux_commission_tenant_number" json:"commission_number"`
	BasisAmount      int64            `gorm:"not null" json:"basis_amount"`
	BaseAmount       int64            `gorm:"not null" json:"base_amount"`
	GSTAmount        int64            `gorm:"column:gst_amount;not null" json:"gst_amount"`
	TotalAmount      int64            `gorm:"not null" json:"total_amount"`
	RatePercent      decimal.Decimal  `gorm:"type:numeric(7,4);not null" json:"rate_percent"`
	Status           CommissionStatus `gorm:"type:text;not null" json:"status"`
	IssueDate        time.Time        `gorm:"not null" json:"issue_date"`
	DueDate          time.Time        `gorm:"not null" json:"due_date"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
}

func (CommissionInvoice) TableName() string { return "commission_invoices" }

// CommissionSequence holds the last issued commission number per tenant.
type CommissionSequence struct {
	TenantID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64        `gorm:"not null;default:0"`
}

func (CommissionSequence) TableName() string { return "commission_sequences" }

type PaymentPlanTemplate struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID snowflake.ID `gorm:"not null;index"`
	Name     string       `gorm:"type:text;not null"`
}

func (PaymentPlanTemplate) TableName() string { return "payment_plan_templates" }

type PaymentPlanInstallment struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	TenantID         snowflake.ID `gorm:"not null;index"`
	TemplateID       snowflake.ID `gorm:"not null;index"`
	Sequence         int          `gorm:"not null"`
	Name             string       `gorm:"type:text;not null"`
	Amount           int64        `gorm:"not null"`
	DueOffsetDays    int          `gorm:"not null"`
	IsCommissionable bool         `gorm:"not null"`
	IsDeposit        bool         `gorm:"not null"`
}

func (PaymentPlanInstallment) TableName() string { return "payment_plan_installments" }

type PaymentPlanInstallmentLine struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	InstallmentID    snowflake.ID `gorm:"not null;index"`
	Sequence         int          `gorm:"not null"`
	Description      string       `gorm:"type:text;not null"`
	Amount           int64        `gorm:"not null"`
	IsCommissionable bool         `gorm:"not null"`
}

func (PaymentPlanInstallmentLine) TableName() string { return "payment_plan_installment_lines" }

// ScheduleSnapshotRow is a per-application override of the template schedule.
type ScheduleSnapshotRow struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	TenantID         snowflake.ID `gorm:"not null;index"`
	ApplicationID    snowflake.ID `gorm:"not null;index"`
	Sequence         int          `gorm:"not null"`
	Name             string       `gorm:"type:text;not null"`
	Amount           int64        `gorm:"not null"`
	DueDate          time.Time    `gorm:"not null"`
	IsCommissionable bool         `gorm:"not null"`
	IsDeposit        bool         `gorm:"not null"`
}

func (ScheduleSnapshotRow) TableName() string { return "payment_schedule_snapshots" }

// ReminderRule fires OffsetDays relative to the due date; negative values fire before it.
type ReminderRule struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name            string       `gorm:"type:text;not null" json:"name"`
	OffsetDays      int          `gorm:"not null" json:"offset_days"`
	DepositOnly     bool         `gorm:"not null" json:"deposit_only"`
	Active          bool         `gorm:"not null" json:"active"`
	SubjectTemplate *string      `gorm:"type:text" json:"subject_template,omitempty"`
	BodyTemplate    *string      `gorm:"type:text" json:"body_template,omitempty"`
}

func (ReminderRule) TableName() string { return "reminder_rules" }

type ReminderDelivery struct {
	InvoiceID      snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ReminderRuleID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	TenantID       snowflake.ID `gorm:"not null;index"`
	DeliveredAt    time.Time    `gorm:"not null"`
}

func (ReminderDelivery) TableName() string { return "reminder_deliveries" }

// Tenant carries the billing profile printed on documents.
type Tenant struct {
	ID                snowflake.ID `gorm:"primaryKey"`
	Name              string       `gorm:"type:text;not null"`
	LegalName         string       `gorm:"type:text;not null;default:''"`
	Address           string       `gorm:"type:text;not null;default:''"`
	Email             string       `gorm:"type:text;not null;default:''"`
	Phone             string       `gorm:"type:text;not null;default:''"`
	TaxID             string       `gorm:"type:text;not null;default:''"`
	BankAccountName   string       `gorm:"type:text;not null;default:''"`
	BankBSB           string       `gorm:"column:bank_bsb;type:text;not null;default:''"`
	BankAccountNumber string       `gorm:"type:text;not null;default:''"`
	Timezone          string       `gorm:"type:text;not null;default:'UTC'"`
}

func (Tenant) TableName() string { return "tenants" }

type Student struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;index"`
	FirstName string       `gorm:"type:text;not null"`
	LastName  string       `gorm:"type:text;not null;default:''"`
	Email     *string      `gorm:"type:text"`
	Address   string       `gorm:"type:text;not null;default:''"`
}

func (Student) TableName() string { return "students" }

func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

type Application struct {
	ID                       snowflake.ID  `gorm:"primaryKey"`
	TenantID                 snowflake.ID  `gorm:"not null;index"`
	StudentID                snowflake.ID  `gorm:"not null;index"`
	AgentID                  *snowflake.ID `gorm:"index"`
	PaymentPlanTemplateID    *snowflake.ID
	AnchorDate               *time.Time
	ProposedCommencementDate *time.Time
	OfferGeneratedAt         *time.Time
	CreatedAt                time.Time `gorm:"not null"`
}

func (Application) TableName() string { return "applications" }

type Enrollment struct {
	ID                    snowflake.ID  `gorm:"primaryKey"`
	TenantID              snowflake.ID  `gorm:"not null;index"`
	StudentID             snowflake.ID  `gorm:"not null;index"`
	ApplicationID         *snowflake.ID `gorm:"index"`
	PaymentPlanTemplateID *snowflake.ID
	Status                string `gorm:"type:text;not null"`
}

func (Enrollment) TableName() string { return "enrollments" }

type Agent struct {
	ID                    snowflake.ID    `gorm:"primaryKey"`
	TenantID              snowflake.ID    `gorm:"not null;index"`
	Name                  string          `gorm:"type:text;not null"`
	CommissionActive      bool            `gorm:"not null"`
	CommissionRatePercent decimal.Decimal `gorm:"type:numeric(7,4);not null"`
	CommissionStartDate   *time.Time
	CommissionEndDate     *time.Time
}

func (Agent) TableName() string { return "agents" }

// Models lists every table owned or read by the pipeline, for AutoMigrate in tests and tools.
func Models() []any {
	return []any{
		&Invoice{},
		&InvoiceLine{},
		&Payment{},
		&CommissionInvoice{},
		&CommissionSequence{},
		&PaymentPlanTemplate{},
		&PaymentPlanInstallment{},
		&PaymentPlanInstallmentLine{},
		&ScheduleSnapshotRow{},
		&ReminderRule{},
		&ReminderDelivery{},
		&Tenant{},
		&Student{},
		&Application{},
		&Enrollment{},
		&Agent{},
	}
}
