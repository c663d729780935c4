package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/config"
	deliverydomain "github.com/smallbiznis/feeflow/internal/delivery/domain"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	obslogger "github.com/smallbiznis/feeflow/internal/observability/logger"
	"github.com/smallbiznis/feeflow/internal/observability/metrics"
	"github.com/smallbiznis/feeflow/internal/observability/tracing"
	"github.com/smallbiznis/feeflow/internal/providers/email"
	"github.com/smallbiznis/feeflow/internal/providers/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Repo     ledgerdomain.Repository
	Storage  storage.Storage
	Notifier email.Provider
	Pipeline *config.PipelineConfigHolder
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	repo     ledgerdomain.Repository
	storage  storage.Storage
	notifier email.Provider
	pipeline *config.PipelineConfigHolder
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) deliverydomain.Service {
	return &Service{
		repo:     p.Repo,
		storage:  p.Storage,
		notifier: p.Notifier,
		pipeline: p.Pipeline,
		clock:    p.Clock,
		log:      p.Log.Named("delivery.service"),
		metrics:  p.Metrics,
	}
}

func (s *Service) Check(ctx context.Context) error {
	if s.notifier == nil {
		return errors.New("notifier is not configured")
	}
	if err := s.notifier.Check(ctx); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	return nil
}

func (s *Service) Deliver(ctx context.Context, invoiceID snowflake.ID) (result deliverydomain.Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.deliver", attribute.String("invoice_id", invoiceID.String()))
	defer func() { tracing.EndSpan(span, err) }()

	log := obslogger.WithContext(ctx, s.log).With(zap.String("invoice_id", invoiceID.String()))
	cfg := s.pipeline.Get()

	ic, attachment, err := s.prepare(ctx, invoiceID, cfg)
	if err != nil {
		s.release(ctx, log, invoiceID)
		s.metrics.RecordDelivery(ctx, "failed")
		return deliverydomain.Result{}, err
	}

	if pending := s.send(ctx, log, ic, attachment, cfg.Templates.InvoiceSubject, cfg.Templates.InvoiceBody, cfg); pending != nil {
		s.release(ctx, log, invoiceID)
		s.metrics.RecordDelivery(ctx, string(pending.Outcome))
		return *pending, nil
	}

	changed, err := s.repo.MarkDelivered(ctx, invoiceID, s.clock.Now())
	if err != nil {
		return deliverydomain.Result{}, err
	}
	log.Info("invoice.delivery.sent", zap.Bool("status_changed", changed))
	s.metrics.RecordDelivery(ctx, string(deliverydomain.OutcomeSent))
	return deliverydomain.Result{Outcome: deliverydomain.OutcomeSent}, nil
}

func (s *Service) SendReminder(ctx context.Context, invoiceID snowflake.ID, rule ledgerdomain.ReminderRule) (result deliverydomain.Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.reminder",
		attribute.String("invoice_id", invoiceID.String()),
		attribute.String("reminder_rule_id", rule.ID.String()),
	)
	defer func() { tracing.EndSpan(span, err) }()

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("invoice_id", invoiceID.String()),
		zap.String("reminder_rule_id", rule.ID.String()),
	)
	cfg := s.pipeline.Get()

	exists, err := s.repo.HasReminderDelivery(ctx, invoiceID, rule.ID)
	if err != nil {
		return deliverydomain.Result{}, err
	}
	if exists {
		s.metrics.RecordReminder(ctx, string(deliverydomain.OutcomeAlreadySent))
		return deliverydomain.Result{Outcome: deliverydomain.OutcomeAlreadySent}, nil
	}

	ic, attachment, err := s.prepare(ctx, invoiceID, cfg)
	if err != nil {
		s.metrics.RecordReminder(ctx, "failed")
		return deliverydomain.Result{}, err
	}

	subject := override(rule.SubjectTemplate, cfg.Templates.ReminderSubject)
	body := override(rule.BodyTemplate, cfg.Templates.ReminderBody)
	if pending := s.send(ctx, log, ic, attachment, subject, body, cfg); pending != nil {
		s.metrics.RecordReminder(ctx, string(pending.Outcome))
		return *pending, nil
	}

	inserted, err := s.repo.InsertReminderDelivery(ctx, ledgerdomain.ReminderDelivery{
		InvoiceID:      invoiceID,
		ReminderRuleID: rule.ID,
		TenantID:       ic.Invoice.TenantID,
		DeliveredAt:    s.clock.Now(),
	})
	if err != nil {
		return deliverydomain.Result{}, err
	}
	if !inserted {
		log.Info("invoice.reminder.record_exists")
	}
	log.Info("invoice.reminder.sent")
	s.metrics.RecordReminder(ctx, string(deliverydomain.OutcomeSent))
	return deliverydomain.Result{Outcome: deliverydomain.OutcomeSent}, nil
}

// prepare loads the invoice context and its stored document.
func (s *Service) prepare(ctx context.Context, invoiceID snowflake.ID, cfg config.PipelineConfig) (ledgerdomain.InvoiceContext, email.Attachment, error) {
	ic, err := s.repo.LoadInvoiceContext(ctx, invoiceID)
	if err != nil {
		return ledgerdomain.InvoiceContext{}, email.Attachment{}, err
	}
	if !ic.Invoice.HasDocument() {
		return ledgerdomain.InvoiceContext{}, email.Attachment{}, deliverydomain.ErrDocumentMissing
	}

	getCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	data, err := s.storage.Get(getCtx, *ic.Invoice.DocumentPath)
	cancel()
	if err != nil {
		return ledgerdomain.InvoiceContext{}, email.Attachment{}, fmt.Errorf("load document: %w", err)
	}

	return ic, email.Attachment{
		Filename:    AttachmentName(ic),
		ContentType: "application/pdf",
		Data:        data,
	}, nil
}

// send returns a non-nil result when the message could not be sent.
func (s *Service) send(ctx context.Context, log *zap.Logger, ic ledgerdomain.InvoiceContext, attachment email.Attachment, subjectTpl, bodyTpl string, cfg config.PipelineConfig) *deliverydomain.Result {
	if ic.Student.Email == nil || *ic.Student.Email == "" {
		log.Info("invoice.delivery.email_pending", zap.String("reason", "student has no email"))
		return &deliverydomain.Result{Outcome: deliverydomain.OutcomeEmailPending, Message: "student has no email"}
	}

	data := newMessageData(ic)
	subject, err := execute("subject", subjectTpl, data)
	if err != nil {
		return s.pending(log, err)
	}
	body, err := execute("body", bodyTpl, data)
	if err != nil {
		return s.pending(log, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.NotifyTimeout)
	defer cancel()
	err = s.notifier.Send(sendCtx, email.Message{
		To:          []string{*ic.Student.Email},
		Subject:     subject,
		TextBody:    body,
		Attachments: []email.Attachment{attachment},
	})
	if err != nil {
		return s.pending(log, err)
	}
	return nil
}

func (s *Service) pending(log *zap.Logger, err error) *deliverydomain.Result {
	log.Warn("invoice.delivery.email_pending", zap.Error(tracing.SafeError(err)))
	return &deliverydomain.Result{
		Outcome: deliverydomain.OutcomeEmailPending,
		Message: tracing.SafeError(err).Error(),
	}
}

func (s *Service) release(ctx context.Context, log *zap.Logger, invoiceID snowflake.ID) {
	if err := s.repo.ReleaseClaim(ctx, invoiceID); err != nil {
		log.Error("invoice.claim.release_failed", zap.Error(err))
	}
}

// AttachmentName is the file name students see on the attached document.
func AttachmentName(ic ledgerdomain.InvoiceContext) string {
	name := slug.Make(ic.Invoice.InvoiceNumber + " " + ic.Student.FullName())
	if name == "" {
		name = "invoice"
	}
	return name + ".pdf"
}
