package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/smallbiznis/feeflow/pkg/db/option"
	"github.com/smallbiznis/feeflow/pkg/repository"
	"gorm.io/gorm"
)

// Store is the gorm implementation of domain.Repository.
type Store struct {
	db *gorm.DB

	tenants      repository.Repository[domain.Tenant]
	students     repository.Repository[domain.Student]
	applications repository.Repository[domain.Application]
	enrollments  repository.Repository[domain.Enrollment]
	agents       repository.Repository[domain.Agent]
	rules        repository.Repository[domain.ReminderRule]
	payments     repository.Repository[domain.Payment]
}

func New(conn *gorm.DB) *Store {
	return &Store{
		db:           conn,
		tenants:      repository.ProvideStore[domain.Tenant](conn),
		students:     repository.ProvideStore[domain.Student](conn),
		applications: repository.ProvideStore[domain.Application](conn),
		enrollments:  repository.ProvideStore[domain.Enrollment](conn),
		agents:       repository.ProvideStore[domain.Agent](conn),
		rules:        repository.ProvideStore[domain.ReminderRule](conn),
		payments:     repository.ProvideStore[domain.Payment](conn),
	}
}

// Provide exposes the store through the domain interface for fx.
func Provide(conn *gorm.DB) domain.Repository {
	return New(conn)
}

func (s *Store) WithTx(tx *gorm.DB) domain.Repository {
	return New(tx)
}

func (s *Store) Transaction(ctx context.Context, fn func(repo domain.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func (s *Store) candidateScope(ctx context.Context, q domain.CandidateQuery) *gorm.DB {
	stmt := s.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("status = ?", domain.InvoiceStatusScheduled).
		Where("issue_date <= ?", q.Today).
		Where("pdf_generation_attempts < ?", q.AttemptCap).
		Where("(claimed_at IS NULL OR claimed_at < ?)", q.LeaseCutoff)
	if q.TenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *q.TenantID)
	}
	if len(q.InvoiceIDs) > 0 {
		stmt = stmt.Where("id IN ?", q.InvoiceIDs)
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	return stmt.Order("issue_date ASC").Order("id ASC")
}

func (s *Store) ListGenerationCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := s.candidateScope(ctx, q).
		Where("document_path IS NULL").
		Where("pdf_generation_status IN ?", []domain.GenerationStatus{domain.GenerationPending, domain.GenerationFailed}).
		Find(&out).Error
	return out, err
}

func (s *Store) ListResendCandidates(ctx context.Context, q domain.CandidateQuery) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := s.candidateScope(ctx, q).
		Where("document_path IS NOT NULL").
		Where("pdf_generation_status = ?", domain.GenerationSucceeded).
		Where("last_delivered_at IS NULL").
		Find(&out).Error
	return out, err
}

// ClaimForGeneration atomically takes a generation candidate. It returns nil
// when another worker changed the row since it was listed.
func (s *Store) ClaimForGeneration(ctx context.Context, req domain.ClaimRequest) (*domain.Invoice, error) {
	return s.claim(ctx, req.InvoiceID,
		`UPDATE invoices
		 SET pdf_generation_attempts = pdf_generation_attempts + 1,
		     claimed_at = ?,
		     pdf_generation_status = ?,
		     last_generation_error = NULL,
		     updated_at = ?
		 WHERE id = ?
		   AND status = ?
		   AND issue_date <= ?
		   AND document_path IS NULL
		   AND pdf_generation_status IN ?
		   AND pdf_generation_attempts = ?
		   AND pdf_generation_attempts < ?
		   AND (claimed_at IS NULL OR claimed_at < ?)`,
		req.Now,
		domain.GenerationPending,
		req.Now,
		req.InvoiceID,
		domain.InvoiceStatusScheduled,
		req.Today,
		[]domain.GenerationStatus{domain.GenerationPending, domain.GenerationFailed},
		req.ObservedAttempts,
		req.AttemptCap,
		req.LeaseCutoff,
	)
}

// ClaimForResend atomically takes an invoice whose document exists but was never delivered.
func (s *Store) ClaimForResend(ctx context.Context, req domain.ClaimRequest) (*domain.Invoice, error) {
	return s.claim(ctx, req.InvoiceID,
		`UPDATE invoices
		 SET pdf_generation_attempts = pdf_generation_attempts + 1,
		     claimed_at = ?,
		     updated_at = ?
		 WHERE id = ?
		   AND status = ?
		   AND issue_date <= ?
		   AND document_path IS NOT NULL
		   AND pdf_generation_status = ?
		   AND last_delivered_at IS NULL
		   AND pdf_generation_attempts = ?
		   AND pdf_generation_attempts < ?
		   AND (claimed_at IS NULL OR claimed_at < ?)`,
		req.Now,
		req.Now,
		req.InvoiceID,
		domain.InvoiceStatusScheduled,
		req.Today,
		domain.GenerationSucceeded,
		req.ObservedAttempts,
		req.AttemptCap,
		req.LeaseCutoff,
	)
}

// claim runs a guarded claim UPDATE and returns the row it took, or nil when
// the guard matched nothing.
func (s *Store) claim(ctx context.Context, invoiceID snowflake.ID, query string, args ...any) (*domain.Invoice, error) {
	db := s.db.WithContext(ctx)
	if supportsReturning(db) {
		var rows []domain.Invoice
		if err := db.Raw(query+" RETURNING *", args...).Scan(&rows).Error; err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return &rows[0], nil
	}

	res := db.Exec(query, args...)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	// The UPDATE bumped pdf_generation_attempts and stamped claimed_at, so no
	// other claimer can match the row again until the lease expires. The
	// read-back only sees our own claim.
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// supportsReturning reports whether the dialect accepts UPDATE ... RETURNING.
// MySQL does not.
func supportsReturning(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "sqlite":
		return true
	default:
		return false
	}
}

// RefundClaim undoes a claim that was taken but never attempted.
func (s *Store) RefundClaim(ctx context.Context, invoiceID snowflake.ID, claimedAttempts int) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET pdf_generation_attempts = pdf_generation_attempts - 1,
		     claimed_at = NULL
		 WHERE id = ? AND pdf_generation_attempts = ? AND pdf_generation_attempts > 0`,
		invoiceID,
		claimedAttempts,
	).Error
}

func (s *Store) ReleaseClaim(ctx context.Context, invoiceID snowflake.ID) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET claimed_at = NULL WHERE id = ?`,
		invoiceID,
	).Error
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID snowflake.ID) (domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).Where("id = ?", invoiceID).First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Invoice{}, domain.ErrInvoiceNotFound
	}
	return invoice, err
}

func (s *Store) LoadInvoiceContext(ctx context.Context, invoiceID snowflake.ID) (domain.InvoiceContext, error) {
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceContext{}, err
	}

	lines, err := s.ListInvoiceLines(ctx, invoiceID)
	if err != nil {
		return domain.InvoiceContext{}, err
	}

	enrollment, err := s.GetEnrollment(ctx, invoice.TenantID, invoice.EnrollmentID)
	if err != nil {
		return domain.InvoiceContext{}, err
	}
	student, err := s.students.FindOne(ctx, &domain.Student{ID: enrollment.StudentID, TenantID: invoice.TenantID})
	if err != nil {
		return domain.InvoiceContext{}, err
	}
	if student == nil {
		return domain.InvoiceContext{}, fmt.Errorf("%w: student %s", domain.ErrMissingRelatedEntity, enrollment.StudentID)
	}
	tenant, err := s.tenants.FindByID(ctx, invoice.TenantID)
	if err != nil {
		return domain.InvoiceContext{}, err
	}
	if tenant == nil {
		return domain.InvoiceContext{}, fmt.Errorf("%w: tenant %s", domain.ErrMissingRelatedEntity, invoice.TenantID)
	}
	application, err := s.FindApplicationForEnrollment(ctx, enrollment)
	if err != nil {
		return domain.InvoiceContext{}, err
	}

	return domain.InvoiceContext{
		Invoice:     invoice,
		Lines:       lines,
		Enrollment:  enrollment,
		Student:     *student,
		Tenant:      *tenant,
		Application: application,
	}, nil
}

func (s *Store) MarkGenerationSucceeded(ctx context.Context, invoiceID snowflake.ID, documentPath string, at time.Time) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET pdf_generation_status = ?,
		     document_path = ?,
		     generated_at = ?,
		     last_generation_error = NULL,
		     updated_at = ?
		 WHERE id = ?`,
		domain.GenerationSucceeded,
		documentPath,
		at,
		at,
		invoiceID,
	).Error
}

// MarkGenerationFailed records the failure and frees the claim. The lifecycle
// status is left untouched.
func (s *Store) MarkGenerationFailed(ctx context.Context, invoiceID snowflake.ID, message string) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET pdf_generation_status = ?,
		     last_generation_error = ?,
		     claimed_at = NULL
		 WHERE id = ? AND document_path IS NULL`,
		domain.GenerationFailed,
		message,
		invoiceID,
	).Error
}

// MarkDelivered stamps last_delivered_at and moves SCHEDULED invoices to SENT.
// It reports whether the status changed.
func (s *Store) MarkDelivered(ctx context.Context, invoiceID snowflake.ID, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, last_delivered_at = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.InvoiceStatusSent,
		at,
		at,
		invoiceID,
		domain.InvoiceStatusScheduled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	return false, s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET last_delivered_at = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ?`,
		at,
		at,
		invoiceID,
	).Error
}

func (s *Store) ListInvoicesForEnrollment(ctx context.Context, enrollmentID snowflake.ID) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := s.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("due_date ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) ListInvoiceLines(ctx context.Context, invoiceID snowflake.ID) ([]domain.InvoiceLine, error) {
	var lines []domain.InvoiceLine
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("sequence ASC").Order("id ASC").
		Find(&lines).Error
	return lines, err
}

func (s *Store) CreateInvoices(ctx context.Context, invoices []domain.Invoice, lines []domain.InvoiceLine) error {
	if len(invoices) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&invoices).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&lines).Error
}

func (s *Store) GetEnrollment(ctx context.Context, tenantID, enrollmentID snowflake.ID) (domain.Enrollment, error) {
	enrollment, err := s.enrollments.FindOne(ctx, &domain.Enrollment{ID: enrollmentID, TenantID: tenantID})
	if err != nil {
		return domain.Enrollment{}, err
	}
	if enrollment == nil {
		return domain.Enrollment{}, fmt.Errorf("%w: enrollment %s", domain.ErrMissingRelatedEntity, enrollmentID)
	}
	return *enrollment, nil
}

func (s *Store) GetApplication(ctx context.Context, applicationID snowflake.ID) (domain.Application, error) {
	application, err := s.applications.FindByID(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	if application == nil {
		return domain.Application{}, fmt.Errorf("%w: application %s", domain.ErrMissingRelatedEntity, applicationID)
	}
	return *application, nil
}

// FindApplicationForEnrollment resolves the originating application, falling
// back to the student's most recent one. It returns nil when none exists.
func (s *Store) FindApplicationForEnrollment(ctx context.Context, enrollment domain.Enrollment) (*domain.Application, error) {
	if enrollment.ApplicationID != nil {
		return s.applications.FindByID(ctx, *enrollment.ApplicationID)
	}
	return s.applications.FindOne(ctx,
		&domain.Application{TenantID: enrollment.TenantID, StudentID: enrollment.StudentID},
		option.WithOrder("created_at", true),
		option.WithOrder("id", true),
	)
}

func (s *Store) GetAgent(ctx context.Context, agentID snowflake.ID) (domain.Agent, error) {
	agent, err := s.agents.FindByID(ctx, agentID)
	if err != nil {
		return domain.Agent{}, err
	}
	if agent == nil {
		return domain.Agent{}, fmt.Errorf("%w: agent %s", domain.ErrMissingRelatedEntity, agentID)
	}
	return *agent, nil
}

func (s *Store) ListScheduleSnapshot(ctx context.Context, applicationID snowflake.ID) ([]domain.ScheduleSnapshotRow, error) {
	var out []domain.ScheduleSnapshotRow
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID).
		Order("sequence ASC").Order("due_date ASC").Order("name ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) ListTemplateInstallments(ctx context.Context, templateID snowflake.ID) ([]domain.PaymentPlanInstallment, error) {
	var out []domain.PaymentPlanInstallment
	err := s.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("sequence ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}

func (s *Store) ListInstallmentLines(ctx context.Context, installmentIDs []snowflake.ID) ([]domain.PaymentPlanInstallmentLine, error) {
	if len(installmentIDs) == 0 {
		return nil, nil
	}
	var out []domain.PaymentPlanInstallmentLine
	err := s.db.WithContext(ctx).
		Where("installment_id IN ?", installmentIDs).
		Order("installment_id ASC").Order("sequence ASC").Order("id ASC").
		Find(&out).Error
	return out, err
}
