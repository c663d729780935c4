package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/config"
	invoicedomain "github.com/smallbiznis/feeflow/internal/invoice/domain"
	"github.com/smallbiznis/feeflow/internal/invoice/render"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	obslogger "github.com/smallbiznis/feeflow/internal/observability/logger"
	"github.com/smallbiznis/feeflow/internal/observability/metrics"
	"github.com/smallbiznis/feeflow/internal/observability/tracing"
	"github.com/smallbiznis/feeflow/internal/providers/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxErrorMessageLength = 1000

type ServiceParam struct {
	fx.In

	Repo     ledgerdomain.Repository
	Renderer render.Renderer
	Storage  storage.Storage
	Pipeline *config.PipelineConfigHolder
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	repo     ledgerdomain.Repository
	renderer render.Renderer
	preview  *render.HTMLRenderer
	storage  storage.Storage
	pipeline *config.PipelineConfigHolder
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		repo:     p.Repo,
		renderer: p.Renderer,
		preview:  render.NewHTMLRenderer(),
		storage:  p.Storage,
		pipeline: p.Pipeline,
		clock:    p.Clock,
		log:      p.Log.Named("invoice.service"),
		metrics:  p.Metrics,
	}
}

// DocumentKey is the storage key of an invoice document.
func DocumentKey(inv ledgerdomain.Invoice) string {
	return path.Join(inv.TenantID.String(), strconv.Itoa(inv.DueDate.Year()), inv.InvoiceNumber+".pdf")
}

func (s *Service) Generate(ctx context.Context, invoiceID snowflake.ID) (result invoicedomain.GenerateResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "invoice.generate", attribute.String("invoice_id", invoiceID.String()))
	defer func() { tracing.EndSpan(span, err) }()

	log := obslogger.WithContext(ctx, s.log).With(zap.String("invoice_id", invoiceID.String()))
	cfg := s.pipeline.Get()

	result, err = s.generate(ctx, invoiceID, cfg)
	if err != nil {
		msg := truncate(err.Error(), maxErrorMessageLength)
		if markErr := s.repo.MarkGenerationFailed(ctx, invoiceID, msg); markErr != nil {
			log.Error("invoice.generation.mark_failed_error", zap.Error(markErr))
		}
		log.Warn("invoice.generation.failed", zap.Error(err))
		s.metrics.RecordDocumentGenerated(ctx, "failed")
		return invoicedomain.GenerateResult{}, err
	}

	log.Info("invoice.generation.succeeded",
		zap.String("document_path", result.DocumentPath),
		zap.Int("bytes", result.Bytes),
	)
	s.metrics.RecordDocumentGenerated(ctx, "succeeded")
	return result, nil
}

func (s *Service) generate(ctx context.Context, invoiceID snowflake.ID, cfg config.PipelineConfig) (invoicedomain.GenerateResult, error) {
	ic, err := s.repo.LoadInvoiceContext(ctx, invoiceID)
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	view := render.BuildView(ic)

	renderCtx, cancel := context.WithTimeout(ctx, cfg.RenderTimeout)
	body, err := s.renderer.Render(renderCtx, view)
	cancel()
	if err != nil {
		return invoicedomain.GenerateResult{}, fmt.Errorf("%w: %v", invoicedomain.ErrRenderFailed, err)
	}

	key := DocumentKey(ic.Invoice)
	putCtx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
	err = s.storage.Put(putCtx, key, body, s.renderer.ContentType())
	cancel()
	if err != nil {
		return invoicedomain.GenerateResult{}, fmt.Errorf("%w: %v", invoicedomain.ErrStorageFailed, err)
	}

	if err := s.repo.MarkGenerationSucceeded(ctx, invoiceID, key, s.clock.Now()); err != nil {
		return invoicedomain.GenerateResult{}, err
	}
	return invoicedomain.GenerateResult{DocumentPath: key, Bytes: len(body)}, nil
}

func (s *Service) Preview(ctx context.Context, invoiceID snowflake.ID) (invoicedomain.Preview, error) {
	ic, err := s.repo.LoadInvoiceContext(ctx, invoiceID)
	if err != nil {
		return invoicedomain.Preview{}, err
	}
	body, err := s.preview.Render(ctx, render.BuildView(ic))
	if err != nil {
		return invoicedomain.Preview{}, fmt.Errorf("%w: %v", invoicedomain.ErrRenderFailed, err)
	}
	return invoicedomain.Preview{ContentType: s.preview.ContentType(), Body: body}, nil
}

type checker interface {
	Check(ctx context.Context) error
}

func (s *Service) Check(ctx context.Context) error {
	if s.renderer == nil {
		return errors.New("renderer is not configured")
	}
	if c, ok := s.renderer.(checker); ok {
		if err := c.Check(ctx); err != nil {
			return fmt.Errorf("renderer: %w", err)
		}
	}
	if s.storage == nil {
		return errors.New("storage is not configured")
	}
	if err := s.storage.Check(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
