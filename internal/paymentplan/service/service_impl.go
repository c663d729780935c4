package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	deliverydomain "github.com/smallbiznis/feeflow/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/feeflow/internal/invoice/domain"
	"github.com/smallbiznis/feeflow/internal/invoice/format"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/smallbiznis/feeflow/internal/observability/tracing"
	plandomain "github.com/smallbiznis/feeflow/internal/paymentplan/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Repo     ledgerdomain.Repository
	GenID    *snowflake.Node
	Clock    clock.Clock
	Log      *zap.Logger
	Invoices invoicedomain.Service  `optional:"true"`
	Delivery deliverydomain.Service `optional:"true"`
}

type Service struct {
	repo     ledgerdomain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	log      *zap.Logger
	invoices invoicedomain.Service
	delivery deliverydomain.Service
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		log:      p.Log.Named("paymentplan.service"),
		invoices: p.Invoices,
		delivery: p.Delivery,
	}
}

// installment is one row of the schedule, from a snapshot or a template.
type installment struct {
	sequence         int
	name             string
	amount           int64
	dueDate          time.Time
	isCommissionable bool
	isDeposit        bool
	lines            []ledgerdomain.PaymentPlanInstallmentLine
}

func (s *Service) Materialize(ctx context.Context, tx *gorm.DB, req plandomain.MaterializeRequest) (plandomain.MaterializeResult, error) {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	return s.materialize(ctx, repo, req)
}

func (s *Service) MaterializeForEnrollment(ctx context.Context, tenantID, enrollmentID snowflake.ID, anchor *time.Time) (plandomain.MaterializeResult, error) {
	var result plandomain.MaterializeResult
	err := s.repo.Transaction(ctx, func(repo ledgerdomain.Repository) error {
		enrollment, err := repo.GetEnrollment(ctx, tenantID, enrollmentID)
		if err != nil {
			return err
		}
		app, err := repo.FindApplicationForEnrollment(ctx, enrollment)
		if err != nil {
			return err
		}
		result, err = s.materialize(ctx, repo, plandomain.MaterializeRequest{
			Enrollment:  enrollment,
			Application: app,
			AnchorDate:  anchor,
		})
		return err
	})
	if err != nil || !result.Created || len(result.Invoices) == 0 {
		return result, err
	}
	result.FirstIssue = s.issueFirst(ctx, result.Invoices[0])
	return result, nil
}

// issueFirst renders and emails the invoice that was created as SENT. The
// scheduler never picks it up, so this is its only delivery path.
func (s *Service) issueFirst(ctx context.Context, inv ledgerdomain.Invoice) *plandomain.IssueOutcome {
	if s.invoices == nil || s.delivery == nil {
		return nil
	}
	log := s.log.With(
		zap.String("tenant_id", inv.TenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
	)
	out := &plandomain.IssueOutcome{InvoiceID: inv.ID}

	generated, err := s.invoices.Generate(ctx, inv.ID)
	if err != nil {
		log.Warn("paymentplan.first_invoice.generation_failed", zap.Error(tracing.SafeError(err)))
		out.Error = tracing.SafeError(err).Error()
		return out
	}
	out.DocumentPath = generated.DocumentPath

	delivered, err := s.delivery.Deliver(ctx, inv.ID)
	if err != nil {
		log.Warn("paymentplan.first_invoice.delivery_failed", zap.Error(tracing.SafeError(err)))
		out.Error = tracing.SafeError(err).Error()
		return out
	}
	out.Delivery = string(delivered.Outcome)
	log.Info("paymentplan.first_invoice.issued",
		zap.String("document_path", out.DocumentPath),
		zap.String("delivery", out.Delivery),
	)
	return out
}

func (s *Service) materialize(ctx context.Context, repo ledgerdomain.Repository, req plandomain.MaterializeRequest) (result plandomain.MaterializeResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "paymentplan.materialize",
		attribute.String("enrollment_id", req.Enrollment.ID.String()),
	)
	defer func() { tracing.EndSpan(span, err) }()

	log := s.log.With(
		zap.String("tenant_id", req.Enrollment.TenantID.String()),
		zap.String("enrollment_id", req.Enrollment.ID.String()),
	)

	existing, err := repo.ListInvoicesForEnrollment(ctx, req.Enrollment.ID)
	if err != nil {
		return plandomain.MaterializeResult{}, err
	}
	if len(existing) > 0 {
		log.Info("paymentplan.materialize.exists", zap.Int("invoices", len(existing)))
		return plandomain.MaterializeResult{Invoices: existing, Created: false, Source: plandomain.SourceExisting}, nil
	}

	schedule, source, err := s.schedule(ctx, repo, req)
	if err != nil {
		return plandomain.MaterializeResult{}, err
	}

	today := clock.Today(s.clock)
	now := s.clock.Now()
	invoices := make([]ledgerdomain.Invoice, 0, len(schedule))
	var lines []ledgerdomain.InvoiceLine

	for i, inst := range schedule {
		inv := ledgerdomain.Invoice{
			ID:                  s.genID.Generate(),
			TenantID:            req.Enrollment.TenantID,
			EnrollmentID:        req.Enrollment.ID,
			InvoiceNumber:       format.NewInvoiceNumber(),
			InstallmentName:     inst.name,
			IssueDate:           inst.dueDate,
			DueDate:             inst.dueDate,
			AmountDue:           inst.amount,
			Status:              ledgerdomain.InvoiceStatusScheduled,
			PDFGenerationStatus: ledgerdomain.GenerationPending,
			IsDeposit:           inst.isDeposit,
			Metadata: datatypes.JSONMap{
				"installment_sequence": inst.sequence,
				"schedule_source":      source,
				"is_commissionable":    inst.isCommissionable,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if i == 0 {
			inv.Status = ledgerdomain.InvoiceStatusSent
			inv.IssueDate = today
		}

		if len(inst.lines) > 0 {
			var total int64
			for _, l := range inst.lines {
				lines = append(lines, ledgerdomain.InvoiceLine{
					ID:               s.genID.Generate(),
					TenantID:         inv.TenantID,
					InvoiceID:        inv.ID,
					Sequence:         l.Sequence,
					Description:      l.Description,
					Amount:           l.Amount,
					IsCommissionable: l.IsCommissionable,
				})
				total += l.Amount
			}
			inv.AmountDue = total
		}
		invoices = append(invoices, inv)
	}

	if err := repo.CreateInvoices(ctx, invoices, lines); err != nil {
		return plandomain.MaterializeResult{}, fmt.Errorf("create invoices: %w", err)
	}

	log.Info("paymentplan.materialize.created",
		zap.Int("invoices", len(invoices)),
		zap.Int("lines", len(lines)),
		zap.String("source", source),
	)
	return plandomain.MaterializeResult{Invoices: invoices, Created: true, Source: source}, nil
}

// schedule prefers the application's snapshot and falls back to the template.
// The anchor must resolve on either path.
func (s *Service) schedule(ctx context.Context, repo ledgerdomain.Repository, req plandomain.MaterializeRequest) ([]installment, string, error) {
	anchor, err := plandomain.ResolveAnchor(req.AnchorDate, req.Application)
	if err != nil {
		return nil, "", err
	}

	if req.Application != nil {
		rows, err := repo.ListScheduleSnapshot(ctx, req.Application.ID)
		if err != nil {
			return nil, "", err
		}
		if len(rows) > 0 {
			out := make([]installment, 0, len(rows))
			for _, r := range rows {
				out = append(out, installment{
					sequence:         r.Sequence,
					name:             r.Name,
					amount:           r.Amount,
					dueDate:          clock.DateOf(r.DueDate),
					isCommissionable: r.IsCommissionable,
					isDeposit:        r.IsDeposit,
				})
			}
			return out, plandomain.SourceSnapshot, nil
		}
	}

	out, err := s.expandTemplate(ctx, repo, req, anchor)
	if err != nil {
		return nil, "", err
	}
	return out, plandomain.SourceTemplate, nil
}

// expandTemplate offsets each template installment from anchor.
func (s *Service) expandTemplate(ctx context.Context, repo ledgerdomain.Repository, req plandomain.MaterializeRequest, anchor time.Time) ([]installment, error) {
	templateID := plandomain.TemplateID(req.Enrollment, req.Application)
	if templateID == nil {
		return nil, ledgerdomain.ErrNoPaymentPlan
	}

	installments, err := repo.ListTemplateInstallments(ctx, *templateID)
	if err != nil {
		return nil, err
	}
	if len(installments) == 0 {
		return nil, fmt.Errorf("%w: template %s has no installments", ledgerdomain.ErrNoPaymentPlan, templateID)
	}

	ids := make([]snowflake.ID, 0, len(installments))
	for _, inst := range installments {
		ids = append(ids, inst.ID)
	}
	allLines, err := repo.ListInstallmentLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	byInstallment := make(map[snowflake.ID][]ledgerdomain.PaymentPlanInstallmentLine, len(installments))
	for _, l := range allLines {
		byInstallment[l.InstallmentID] = append(byInstallment[l.InstallmentID], l)
	}

	out := make([]installment, 0, len(installments))
	for _, inst := range installments {
		out = append(out, installment{
			sequence:         inst.Sequence,
			name:             strings.TrimSpace(inst.Name),
			amount:           inst.Amount,
			dueDate:          anchor.AddDate(0, 0, inst.DueOffsetDays),
			isCommissionable: inst.IsCommissionable,
			isDeposit:        inst.IsDeposit,
			lines:            byInstallment[inst.ID],
		})
	}
	return out, nil
}
