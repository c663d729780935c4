// Package domain declares payment plan materialization.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	"gorm.io/gorm"
)

type MaterializeRequest struct {
	Enrollment  ledgerdomain.Enrollment
	Application *ledgerdomain.Application
	// AnchorDate is an operator-selected anchor that wins over anything stored.
	AnchorDate *time.Time
}

type MaterializeResult struct {
	Invoices []ledgerdomain.Invoice
	Created  bool
	Source   string
	// FirstIssue is set when the first invoice was rendered and emailed
	// after the schedule committed.
	FirstIssue *IssueOutcome
}

// IssueOutcome records how issuing the first invoice went. A failure here
// never fails the approval.
type IssueOutcome struct {
	InvoiceID    snowflake.ID
	DocumentPath string
	Delivery     string
	Error        string
}

const (
	SourceSnapshot = "snapshot"
	SourceTemplate = "template"
	SourceExisting = "existing"
)

type Service interface {
	// Materialize expands the enrollment's payment plan into invoices inside tx.
	// A nil tx runs against the service's own connection.
	Materialize(ctx context.Context, tx *gorm.DB, req MaterializeRequest) (MaterializeResult, error)
	// MaterializeForEnrollment runs the expansion in its own transaction and,
	// once committed, issues the first invoice.
	MaterializeForEnrollment(ctx context.Context, tenantID, enrollmentID snowflake.ID, anchor *time.Time) (MaterializeResult, error)
}

// ResolveAnchor picks the anchor date by precedence: operator choice, the
// application's stored anchor, proposed commencement, then offer generation.
func ResolveAnchor(operator *time.Time, app *ledgerdomain.Application) (time.Time, error) {
	if operator != nil {
		return clock.DateOf(*operator), nil
	}
	if app != nil {
		switch {
		case app.AnchorDate != nil:
			return clock.DateOf(*app.AnchorDate), nil
		case app.ProposedCommencementDate != nil:
			return clock.DateOf(*app.ProposedCommencementDate), nil
		case app.OfferGeneratedAt != nil:
			return clock.DateOf(*app.OfferGeneratedAt), nil
		}
	}
	return time.Time{}, ledgerdomain.ErrAnchorUndetermined
}

// TemplateID returns the payment plan template for an enrollment, preferring
// the enrollment's own choice over the application's.
func TemplateID(enrollment ledgerdomain.Enrollment, app *ledgerdomain.Application) *snowflake.ID {
	if enrollment.PaymentPlanTemplateID != nil {
		return enrollment.PaymentPlanTemplateID
	}
	if app != nil {
		return app.PaymentPlanTemplateID
	}
	return nil
}
