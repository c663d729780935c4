package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/feeflow/internal/config"
	invoicedomain "github.com/smallbiznis/feeflow/internal/invoice/domain"
	"github.com/smallbiznis/feeflow/internal/observability"
	obslogger "github.com/smallbiznis/feeflow/internal/observability/logger"
	obstracing "github.com/smallbiznis/feeflow/internal/observability/tracing"
	"github.com/smallbiznis/feeflow/internal/overdue"
	paymentdomain "github.com/smallbiznis/feeflow/internal/payment/domain"
	plandomain "github.com/smallbiznis/feeflow/internal/paymentplan/domain"
	"github.com/smallbiznis/feeflow/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(
		NewEngine,
		provideJobRunner,
		NewServer,
	),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

// JobRunner is the batch surface the operations endpoints trigger.
type JobRunner interface {
	ProcessDueInvoices(ctx context.Context, filter scheduler.Filter) (scheduler.BatchResult, error)
	SendReminders(ctx context.Context, filter scheduler.Filter) (scheduler.BatchResult, error)
	SweepOverdue(ctx context.Context) (overdue.Result, error)
}

func provideJobRunner(s *scheduler.Scheduler) JobRunner { return s }

func NewEngine(log *zap.Logger, obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("http"), obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine     *gin.Engine
	Config     config.Config
	Log        *zap.Logger
	Jobs       JobRunner
	PaymentSvc paymentdomain.Service
	PlanSvc    plandomain.Service
	InvoiceSvc invoicedomain.Service
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	jobs       JobRunner
	paymentSvc paymentdomain.Service
	planSvc    plandomain.Service
	invoiceSvc invoicedomain.Service
}

func NewServer(p Params) *Server {
	return &Server{
		engine:     p.Engine,
		cfg:        p.Config,
		log:        p.Log.Named("server"),
		jobs:       p.Jobs,
		paymentSvc: p.PaymentSvc,
		planSvc:    p.PlanSvc,
		invoiceSvc: p.InvoiceSvc,
	}
}

func (s *Server) RegisterRoutes() {
	internal := s.engine.Group("/internal")
	internal.Use(s.InternalAuth())

	jobs := internal.Group("/jobs")
	jobs.POST("/process-invoices", s.ProcessInvoices)
	jobs.POST("/send-reminders", s.SendReminders)
	jobs.POST("/sweep-overdue", s.SweepOverdue)

	internal.POST("/payments", s.RecordPayment)
	internal.POST("/enrollments/:id/materialize", s.MaterializeEnrollment)
	internal.POST("/invoices/:id/void", s.VoidInvoice)
	internal.GET("/invoices/:id/preview", s.PreviewInvoice)
}
