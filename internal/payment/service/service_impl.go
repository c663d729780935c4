package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	commissiondomain "github.com/smallbiznis/feeflow/internal/commission/domain"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	obslogger "github.com/smallbiznis/feeflow/internal/observability/logger"
	"github.com/smallbiznis/feeflow/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/feeflow/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Repo       ledgerdomain.Repository
	Commission commissiondomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Log        *zap.Logger
}

type Service struct {
	repo       ledgerdomain.Repository
	commission commissiondomain.Service
	genID      *snowflake.Node
	clock      clock.Clock
	log        *zap.Logger
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		repo:       p.Repo,
		commission: p.Commission,
		genID:      p.GenID,
		clock:      p.Clock,
		log:        p.Log.Named("payment.service"),
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResult, error) {
	if req.Amount <= 0 {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidAmount
	}
	if req.InvoiceID == 0 {
		return paymentdomain.RecordPaymentResult{}, paymentdomain.ErrInvalidInvoice
	}

	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = s.clock.Now()
	}

	log := obslogger.WithContext(ctx, s.log).With(zap.String("invoice_id", req.InvoiceID.String()))

	var result paymentdomain.RecordPaymentResult
	err := s.repo.Transaction(ctx, func(repo ledgerdomain.Repository) error {
		invoice, err := repo.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if req.TenantID != 0 && invoice.TenantID != req.TenantID {
			return paymentdomain.ErrTenantMismatch
		}

		payment := ledgerdomain.Payment{
			ID:          s.genID.Generate(),
			TenantID:    invoice.TenantID,
			InvoiceID:   invoice.ID,
			Amount:      req.Amount,
			PaymentDate: clock.DateOf(paymentDate),
			Reference:   strings.TrimSpace(req.Reference),
			CreatedAt:   s.clock.Now(),
		}
		if err := repo.InsertPayment(ctx, &payment); err != nil {
			return err
		}
		updated, err := repo.ApplyPayment(ctx, invoice.ID, req.Amount)
		if err != nil {
			return err
		}

		if invoice.Status != updated.Status {
			metrics.Scheduler().AddInvoiceTransition(string(invoice.Status), string(updated.Status), 1)
		}
		result.Payment = payment
		result.Invoice = updated
		return nil
	})
	if err != nil {
		return paymentdomain.RecordPaymentResult{}, err
	}

	log.Info("payment.recorded",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.Int64("amount", result.Payment.Amount),
		zap.String("invoice_status", string(result.Invoice.Status)),
	)

	// The payment is durable at this point; a calculator failure is retried by re-triggering.
	if s.commission != nil {
		commission, err := s.commission.Calculate(ctx, result.Payment.ID)
		if err != nil {
			log.Error("payment.commission_failed",
				zap.String("payment_id", result.Payment.ID.String()),
				zap.Error(err),
			)
		} else {
			result.Commission = &commission
		}
	}
	return result, nil
}

func (s *Service) VoidInvoice(ctx context.Context, tenantID, invoiceID snowflake.ID) (ledgerdomain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return ledgerdomain.Invoice{}, err
	}
	if tenantID != 0 && invoice.TenantID != tenantID {
		return ledgerdomain.Invoice{}, paymentdomain.ErrTenantMismatch
	}
	if !ledgerdomain.CanTransition(invoice.Status, ledgerdomain.InvoiceStatusVoid) {
		return invoice, ledgerdomain.ErrInvalidTransition
	}

	voided, err := s.repo.VoidInvoice(ctx, invoiceID)
	if err != nil {
		return voided, err
	}
	metrics.Scheduler().AddInvoiceTransition(string(invoice.Status), string(ledgerdomain.InvoiceStatusVoid), 1)
	obslogger.WithContext(ctx, s.log).Info("invoice.voided",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("from_status", string(invoice.Status)),
	)
	return voided, nil
}
