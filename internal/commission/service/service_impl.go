package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	commissiondomain "github.com/smallbiznis/feeflow/internal/commission/domain"
	"github.com/smallbiznis/feeflow/internal/config"
	"github.com/smallbiznis/feeflow/internal/invoice/format"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	obslogger "github.com/smallbiznis/feeflow/internal/observability/logger"
	"github.com/smallbiznis/feeflow/internal/observability/metrics"
	"github.com/smallbiznis/feeflow/internal/observability/tracing"
	plandomain "github.com/smallbiznis/feeflow/internal/paymentplan/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var errLostInsertRace = errors.New("commission insert lost race")

type ServiceParam struct {
	fx.In

	Repo     ledgerdomain.Repository
	GenID    *snowflake.Node
	Pipeline *config.PipelineConfigHolder
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	repo     ledgerdomain.Repository
	genID    *snowflake.Node
	pipeline *config.PipelineConfigHolder
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) commissiondomain.Service {
	return &Service{
		repo:     p.Repo,
		genID:    p.GenID,
		pipeline: p.Pipeline,
		clock:    p.Clock,
		log:      p.Log.Named("commission.service"),
		metrics:  p.Metrics,
	}
}

func skip(reason string) commissiondomain.Result {
	return commissiondomain.Result{Created: false, Reason: reason}
}

func (s *Service) Calculate(ctx context.Context, paymentID snowflake.ID) (result commissiondomain.Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "commission.calculate", attribute.String("payment_id", paymentID.String()))
	defer func() { tracing.EndSpan(span, err) }()

	log := obslogger.WithContext(ctx, s.log).With(zap.String("payment_id", paymentID.String()))

	result, err = s.calculate(ctx, paymentID)
	if err != nil {
		log.Error("commission.failed", zap.Error(err))
		return result, err
	}
	s.metrics.RecordCommission(ctx, result.Created, result.Reason)
	if result.Created {
		log.Info("commission.created",
			zap.String("commission_number", result.Commission.CommissionNumber),
			zap.Int64("total_amount", result.Commission.TotalAmount),
		)
	} else {
		log.Info("commission.skipped", zap.String("reason", result.Reason))
	}
	return result, nil
}

func (s *Service) calculate(ctx context.Context, paymentID snowflake.ID) (commissiondomain.Result, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return commissiondomain.Result{}, err
	}
	if payment.Amount <= 0 {
		return skip(commissiondomain.ReasonNonPositivePayment), nil
	}

	existing, err := s.repo.FindCommissionByPayment(ctx, paymentID)
	if err != nil {
		return commissiondomain.Result{}, err
	}
	if existing != nil {
		return skip(commissiondomain.ReasonAlreadyExists), nil
	}

	invoice, err := s.repo.GetInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return commissiondomain.Result{}, err
	}
	enrollment, err := s.repo.GetEnrollment(ctx, invoice.TenantID, invoice.EnrollmentID)
	if errors.Is(err, ledgerdomain.ErrMissingRelatedEntity) {
		return skip(commissiondomain.ReasonNoApplication), nil
	}
	if err != nil {
		return commissiondomain.Result{}, err
	}
	app, err := s.repo.FindApplicationForEnrollment(ctx, enrollment)
	if err != nil {
		return commissiondomain.Result{}, err
	}
	if app == nil {
		return skip(commissiondomain.ReasonNoApplication), nil
	}
	if app.AgentID == nil {
		return skip(commissiondomain.ReasonNoAgent), nil
	}
	agent, err := s.repo.GetAgent(ctx, *app.AgentID)
	if errors.Is(err, ledgerdomain.ErrMissingRelatedEntity) {
		return skip(commissiondomain.ReasonNoAgent), nil
	}
	if err != nil {
		return commissiondomain.Result{}, err
	}
	if !agent.CommissionActive {
		return skip(commissiondomain.ReasonAgentInactive), nil
	}
	today := clock.Today(s.clock)
	if agent.CommissionStartDate != nil && today.Before(clock.DateOf(*agent.CommissionStartDate)) {
		return skip(commissiondomain.ReasonOutsideWindow), nil
	}
	if agent.CommissionEndDate != nil && today.After(clock.DateOf(*agent.CommissionEndDate)) {
		return skip(commissiondomain.ReasonOutsideWindow), nil
	}
	if !agent.CommissionRatePercent.IsPositive() {
		return skip(commissiondomain.ReasonNonPositiveRate), nil
	}

	basis, reason, err := s.basis(ctx, payment, invoice, enrollment, app)
	if err != nil {
		return commissiondomain.Result{}, err
	}
	if reason != "" {
		return skip(reason), nil
	}

	amounts := commissiondomain.ComputeAmounts(basis, agent.CommissionRatePercent)
	if amounts.Base <= 0 {
		return skip(commissiondomain.ReasonZeroBase), nil
	}

	paymentDate := clock.DateOf(payment.PaymentDate)
	commission := &ledgerdomain.CommissionInvoice{
		ID:          s.genID.Generate(),
		TenantID:    invoice.TenantID,
		PaymentID:   payment.ID,
		InvoiceID:   invoice.ID,
		AgentID:     agent.ID,
		BasisAmount: basis,
		BaseAmount:  amounts.Base,
		GSTAmount:   amounts.GST,
		TotalAmount: amounts.Total,
		RatePercent: agent.CommissionRatePercent,
		Status:      ledgerdomain.CommissionStatusUnpaid,
		IssueDate:   today,
		DueDate:     paymentDate.AddDate(0, 0, s.pipeline.Get().CommissionDueDays),
		CreatedAt:   s.clock.Now(),
	}

	err = s.repo.Transaction(ctx, func(repo ledgerdomain.Repository) error {
		seq, err := repo.NextCommissionNumber(ctx, invoice.TenantID)
		if err != nil {
			return err
		}
		number, err := format.FormatNumber(format.DefaultCommissionNumberTemplate, today, seq)
		if err != nil {
			return err
		}
		commission.CommissionNumber = number

		inserted, err := repo.InsertCommission(ctx, commission)
		if err != nil {
			return err
		}
		if !inserted {
			return errLostInsertRace
		}
		return nil
	})
	if errors.Is(err, errLostInsertRace) {
		return skip(commissiondomain.ReasonAlreadyExists), nil
	}
	if err != nil {
		return commissiondomain.Result{}, fmt.Errorf("insert commission: %w", err)
	}
	return commissiondomain.Result{Created: true, Commission: commission}, nil
}

// basis returns the commissionable amount of the payment, or a reason when there is none.
func (s *Service) basis(ctx context.Context, payment ledgerdomain.Payment, invoice ledgerdomain.Invoice, enrollment ledgerdomain.Enrollment, app *ledgerdomain.Application) (int64, string, error) {
	lines, err := s.repo.ListInvoiceLines(ctx, invoice.ID)
	if err != nil {
		return 0, "", err
	}
	if len(lines) > 0 {
		basis, ok := commissiondomain.ProrateBasis(payment.Amount, lines)
		if !ok {
			return 0, commissiondomain.ReasonLinesTotalZero, nil
		}
		return basis, "", nil
	}

	commissionable, found, err := s.installmentCommissionable(ctx, invoice, enrollment, app)
	if err != nil {
		return 0, "", err
	}
	if !found {
		return 0, commissiondomain.ReasonNoMatchingInstalment, nil
	}
	if !commissionable {
		return 0, commissiondomain.ReasonNotCommissionable, nil
	}
	return payment.Amount, "", nil
}

// installmentCommissionable finds the installment due on the invoice due date,
// looking at the application snapshot before the template.
func (s *Service) installmentCommissionable(ctx context.Context, invoice ledgerdomain.Invoice, enrollment ledgerdomain.Enrollment, app *ledgerdomain.Application) (commissionable, found bool, err error) {
	due := clock.DateOf(invoice.DueDate)

	rows, err := s.repo.ListScheduleSnapshot(ctx, app.ID)
	if err != nil {
		return false, false, err
	}
	for _, r := range rows {
		if clock.DateOf(r.DueDate).Equal(due) {
			return r.IsCommissionable, true, nil
		}
	}
	if len(rows) > 0 {
		return false, false, nil
	}

	templateID := plandomain.TemplateID(enrollment, app)
	if templateID == nil {
		return false, false, nil
	}
	anchor, err := plandomain.ResolveAnchor(nil, app)
	if errors.Is(err, ledgerdomain.ErrAnchorUndetermined) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	installments, err := s.repo.ListTemplateInstallments(ctx, *templateID)
	if err != nil {
		return false, false, err
	}
	for _, inst := range installments {
		if anchor.AddDate(0, 0, inst.DueOffsetDays).Equal(due) {
			return inst.IsCommissionable, true, nil
		}
	}
	return false, false, nil
}
