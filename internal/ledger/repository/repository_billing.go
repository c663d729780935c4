package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/smallbiznis/feeflow/pkg/db"
	"github.com/smallbiznis/feeflow/pkg/db/option"
	"gorm.io/gorm"
)

func (s *Store) ListActiveReminderRules(ctx context.Context, tenantID *snowflake.ID) ([]domain.ReminderRule, error) {
	opts := []option.QueryOption{
		option.WithWhere("active = ?", true),
		option.WithOrder("tenant_id", false),
		option.WithOrder("offset_days", false),
		option.WithOrder("id", false),
	}
	if tenantID != nil {
		opts = append(opts, option.WithWhere("tenant_id = ?", *tenantID))
	}
	rows, err := s.rules.Find(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ReminderRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

// ListReminderCandidates returns unpaid, delivered invoices whose due date plus
// the rule offset is today and that have no delivery record for the rule.
func (s *Store) ListReminderCandidates(ctx context.Context, q domain.ReminderCandidateQuery) ([]domain.Invoice, error) {
	due := q.Today.AddDate(0, 0, -q.Rule.OffsetDays)
	stmt := s.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("tenant_id = ?", q.Rule.TenantID).
		Where("status IN ?", []domain.InvoiceStatus{domain.InvoiceStatusSent, domain.InvoiceStatusOverdue}).
		Where("amount_paid < amount_due").
		Where("document_path IS NOT NULL").
		Where("due_date = ?", due).
		Where(`NOT EXISTS (
			SELECT 1 FROM reminder_deliveries rd
			WHERE rd.invoice_id = invoices.id AND rd.reminder_rule_id = ?
		)`, q.Rule.ID)
	if q.Rule.DepositOnly {
		stmt = stmt.Where("is_deposit = ?", true)
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}

	var out []domain.Invoice
	err := stmt.Order("id ASC").Find(&out).Error
	return out, err
}

func (s *Store) HasReminderDelivery(ctx context.Context, invoiceID, ruleID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.ReminderDelivery{}).
		Where("invoice_id = ? AND reminder_rule_id = ?", invoiceID, ruleID).
		Count(&count).Error
	return count > 0, err
}

// InsertReminderDelivery reports false without error when the record already exists.
func (s *Store) InsertReminderDelivery(ctx context.Context, rec domain.ReminderDelivery) (bool, error) {
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	return s.payments.Create(ctx, payment)
}

func (s *Store) GetPayment(ctx context.Context, paymentID snowflake.ID) (domain.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, fmt.Errorf("%w: payment %s", domain.ErrMissingRelatedEntity, paymentID)
	}
	return *payment, nil
}

// ApplyPayment adds amount to amount_paid and settles the invoice once it is
// fully paid. Void invoices reject payments.
func (s *Store) ApplyPayment(ctx context.Context, invoiceID snowflake.ID, amount int64) (domain.Invoice, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = amount_paid + ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		amount,
		now,
		invoiceID,
		domain.InvoiceStatusVoid,
	)
	if res.Error != nil {
		return domain.Invoice{}, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
			return domain.Invoice{}, err
		}
		return domain.Invoice{}, fmt.Errorf("%w: payment on void invoice", domain.ErrInvalidTransition)
	}

	if err := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status IN ? AND amount_paid >= amount_due`,
		domain.InvoiceStatusPaid,
		now,
		invoiceID,
		domain.SourcesFor(domain.InvoiceStatusPaid),
	).Error; err != nil {
		return domain.Invoice{}, err
	}
	return s.GetInvoice(ctx, invoiceID)
}

func (s *Store) VoidInvoice(ctx context.Context, invoiceID snowflake.ID) (domain.Invoice, error) {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		domain.InvoiceStatusVoid,
		time.Now().UTC(),
		invoiceID,
		domain.SourcesFor(domain.InvoiceStatusVoid),
	)
	if res.Error != nil {
		return domain.Invoice{}, res.Error
	}
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if res.RowsAffected == 0 {
		return invoice, fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, invoice.Status, domain.InvoiceStatusVoid)
	}
	return invoice, nil
}

func (s *Store) FindCommissionByPayment(ctx context.Context, paymentID snowflake.ID) (*domain.CommissionInvoice, error) {
	var commission domain.CommissionInvoice
	err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&commission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

// NextCommissionNumber increments the tenant sequence. Call it inside the
// transaction that inserts the commission so a rollback returns the number.
func (s *Store) NextCommissionNumber(ctx context.Context, tenantID snowflake.ID) (int64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		res := s.db.WithContext(ctx).Exec(
			`UPDATE commission_sequences SET last_value = last_value + 1 WHERE tenant_id = ?`,
			tenantID,
		)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected > 0 {
			var seq domain.CommissionSequence
			if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&seq).Error; err != nil {
				return 0, err
			}
			return seq.LastValue, nil
		}

		// savepoint so a lost insert race does not abort the enclosing transaction
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(&domain.CommissionSequence{TenantID: tenantID, LastValue: 1}).Error
		})
		if err == nil {
			return 1, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("commission sequence for tenant %s unavailable", tenantID)
}

// InsertCommission reports false without error on a unique violation.
func (s *Store) InsertCommission(ctx context.Context, commission *domain.CommissionInvoice) (bool, error) {
	if err := s.db.WithContext(ctx).Create(commission).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkOverdueBatch moves at most limit past-due unpaid invoices to OVERDUE.
// The derived table keeps the statement valid on MySQL.
func (s *Store) MarkOverdueBatch(ctx context.Context, today time.Time, limit int) (int64, error) {
	sources := domain.SourcesFor(domain.InvoiceStatusOverdue)
	res := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE status IN ?
		   AND id IN (
		     SELECT id FROM (
		       SELECT id FROM invoices
		       WHERE status IN ? AND due_date < ? AND amount_paid < amount_due
		       ORDER BY id
		       LIMIT ?
		     ) AS batch
		   )`,
		domain.InvoiceStatusOverdue,
		time.Now().UTC(),
		sources,
		sources,
		today,
		limit,
	)
	return res.RowsAffected, res.Error
}

var _ domain.Repository = (*Store)(nil)
