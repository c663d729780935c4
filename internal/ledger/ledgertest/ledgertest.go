// Package ledgertest provides an in-memory ledger database and fixtures for tests.
package ledgertest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/feeflow/internal/ledger/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB returns an isolated in-memory database with every ledger table migrated.
// A single connection serializes concurrent writers the way row locks would.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ledger_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(domain.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

// Date builds a calendar date at 00:00 UTC.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Ptr[T any](v T) *T { return &v }

// Fixture seeds one tenant with a student, an agent, an application and an enrollment.
type Fixture struct {
	DB   *gorm.DB
	Node *snowflake.Node

	Tenant      domain.Tenant
	Student     domain.Student
	Agent       domain.Agent
	Application domain.Application
	Enrollment  domain.Enrollment
}

func Seed(t testing.TB, conn *gorm.DB) *Fixture {
	t.Helper()

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	f := &Fixture{DB: conn, Node: node}

	f.Tenant = domain.Tenant{
		ID:                node.Generate(),
		Name:              "Harbour College",
		LegalName:         "Harbour College Pty Ltd",
		Address:           "1 Quay St, Sydney NSW 2000",
		Email:             "accounts@harbour.test",
		TaxID:             "12 345 678 901",
		BankAccountName:   "Harbour College",
		BankBSB:           "062-000",
		BankAccountNumber: "12345678",
		Timezone:          "Australia/Sydney",
	}
	f.Agent = domain.Agent{
		ID:                    node.Generate(),
		TenantID:              f.Tenant.ID,
		Name:                  "Bright Path Agency",
		CommissionActive:      true,
		CommissionRatePercent: decimal.NewFromInt(10),
	}
	f.Student = domain.Student{
		ID:        node.Generate(),
		TenantID:  f.Tenant.ID,
		FirstName: "Mia",
		LastName:  "Nguyen",
		Email:     Ptr("mia@example.test"),
		Address:   "22 Park Rd, Parramatta NSW 2150",
	}
	f.Application = domain.Application{
		ID:                       node.Generate(),
		TenantID:                 f.Tenant.ID,
		StudentID:                f.Student.ID,
		AgentID:                  Ptr(f.Agent.ID),
		ProposedCommencementDate: Ptr(Date(2025, time.February, 3)),
		CreatedAt:                time.Now().UTC(),
	}
	f.Enrollment = domain.Enrollment{
		ID:            node.Generate(),
		TenantID:      f.Tenant.ID,
		StudentID:     f.Student.ID,
		ApplicationID: Ptr(f.Application.ID),
		Status:        "approved",
	}

	for _, row := range []any{&f.Tenant, &f.Agent, &f.Student, &f.Application, &f.Enrollment} {
		if err := conn.Create(row).Error; err != nil {
			t.Fatalf("seed %T: %v", row, err)
		}
	}
	return f
}

// Invoice inserts a SCHEDULED invoice for the fixture enrollment after applying mutate.
func (f *Fixture) Invoice(t testing.TB, mutate func(inv *domain.Invoice)) domain.Invoice {
	t.Helper()

	inv := domain.Invoice{
		ID:                  f.Node.Generate(),
		TenantID:            f.Tenant.ID,
		EnrollmentID:        f.Enrollment.ID,
		InvoiceNumber:       "INV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")),
		InstallmentName:     "Tuition",
		IssueDate:           Date(2025, time.March, 1),
		DueDate:             Date(2025, time.March, 15),
		AmountDue:           10000,
		Status:              domain.InvoiceStatusScheduled,
		PDFGenerationStatus: domain.GenerationPending,
		Metadata:            datatypes.JSONMap{},
	}
	if mutate != nil {
		mutate(&inv)
	}
	if err := f.DB.Create(&inv).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func (f *Fixture) Line(t testing.TB, invoiceID snowflake.ID, seq int, desc string, amount int64, commissionable bool) domain.InvoiceLine {
	t.Helper()

	line := domain.InvoiceLine{
		ID:               f.Node.Generate(),
		TenantID:         f.Tenant.ID,
		InvoiceID:        invoiceID,
		Sequence:         seq,
		Description:      desc,
		Amount:           amount,
		IsCommissionable: commissionable,
	}
	if err := f.DB.Create(&line).Error; err != nil {
		t.Fatalf("create line: %v", err)
	}
	return line
}

func (f *Fixture) ReminderRule(t testing.TB, offsetDays int, depositOnly bool) domain.ReminderRule {
	t.Helper()

	rule := domain.ReminderRule{
		ID:          f.Node.Generate(),
		TenantID:    f.Tenant.ID,
		Name:        fmt.Sprintf("offset %d", offsetDays),
		OffsetDays:  offsetDays,
		DepositOnly: depositOnly,
		Active:      true,
	}
	if err := f.DB.Create(&rule).Error; err != nil {
		t.Fatalf("create reminder rule: %v", err)
	}
	return rule
}

// Reload reads the invoice back from the database.
func (f *Fixture) Reload(t testing.TB, id snowflake.ID) domain.Invoice {
	t.Helper()

	var inv domain.Invoice
	if err := f.DB.Where("id = ?", id).First(&inv).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	return inv
}
