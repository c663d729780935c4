package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/config"
	deliverydomain "github.com/smallbiznis/feeflow/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/feeflow/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/feeflow/internal/observability/metrics"
	"github.com/smallbiznis/feeflow/internal/observability/tracing"
	"github.com/smallbiznis/feeflow/internal/overdue"
	"github.com/smallbiznis/feeflow/internal/scheduler/guard"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Repo        ledgerdomain.Repository
	InvoiceSvc  invoicedomain.Service
	DeliverySvc deliverydomain.Service
	Sweeper     *overdue.Sweeper
	Pipeline    *config.PipelineConfigHolder
	Clock       clock.Clock
	Log         *zap.Logger
	Guard       guard.Guard `optional:"true"`
}

type Scheduler struct {
	repo        ledgerdomain.Repository
	invoiceSvc  invoicedomain.Service
	deliverySvc deliverydomain.Service
	sweeper     *overdue.Sweeper
	pipeline    *config.PipelineConfigHolder
	clock       clock.Clock
	log         *zap.Logger
	guard       guard.Guard
}

func New(p Params) (*Scheduler, error) {
	if p.Repo == nil || p.InvoiceSvc == nil || p.DeliverySvc == nil || p.Sweeper == nil || p.Pipeline == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	g := p.Guard
	if g == nil {
		g = guard.Noop{}
	}
	return &Scheduler{
		repo:        p.Repo,
		invoiceSvc:  p.InvoiceSvc,
		deliverySvc: p.DeliverySvc,
		sweeper:     p.Sweeper,
		pipeline:    p.Pipeline,
		clock:       p.Clock,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		guard:       g,
	}, nil
}

// claimWork is one listed candidate and the attempt count seen when listing it.
type claimWork struct {
	invoice  ledgerdomain.Invoice
	generate bool
}

// ProcessDueInvoices claims due invoices, generates missing documents and
// delivers them. Per-invoice failures are reported in the result; only
// run-level failures are returned as errors.
func (s *Scheduler) ProcessDueInvoices(ctx context.Context, filter Filter) (result BatchResult, err error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobProcessInvoices)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	result = newBatchResult(run)

	ctx, span := tracing.StartSpan(ctx, "scheduler.process_invoices")
	defer func() {
		span.SetAttributes(attribute.Int("candidates", len(result.Results)))
		tracing.EndSpan(span, err)
	}()

	if err := s.preflight(ctx, s.invoiceSvc.Check, s.deliverySvc.Check); err != nil {
		s.logSchedulerError(ctx, run, "scheduler.preflight.failed", 0, err)
		return result, err
	}

	cfg := s.pipeline.Get()
	now := s.clock.Now()
	q := ledgerdomain.CandidateQuery{
		Today:       clock.DateOf(now),
		LeaseCutoff: now.Add(-cfg.ClaimLease),
		AttemptCap:  cfg.AttemptCap,
		TenantID:    filter.TenantID,
		InvoiceIDs:  filter.InvoiceIDs,
		Limit:       cfg.BatchSize,
	}

	generation, err := s.repo.ListGenerationCandidates(ctx, q)
	if err != nil {
		return result, fmt.Errorf("list generation candidates: %w", err)
	}
	resend, err := s.repo.ListResendCandidates(ctx, q)
	if err != nil {
		return result, fmt.Errorf("list resend candidates: %w", err)
	}

	work := make([]claimWork, 0, len(generation)+len(resend))
	for _, inv := range generation {
		work = append(work, claimWork{invoice: inv, generate: true})
	}
	for _, inv := range resend {
		work = append(work, claimWork{invoice: inv})
	}

	items := s.fanOut(ctx, cfg.Concurrency, len(work), func(ctx context.Context, i int) ItemResult {
		return s.processInvoice(ctx, run, work[i], cfg)
	})
	result.add(items...)
	run.AddProcessed(len(items))
	s.recordOutcomes(JobProcessInvoices, result)
	obsmetrics.Scheduler().AddInvoiceTransition(string(ledgerdomain.InvoiceStatusScheduled), string(ledgerdomain.InvoiceStatusSent), int64(result.Counts[OutcomeSent]))
	return result, nil
}

func (s *Scheduler) processInvoice(ctx context.Context, run *jobRun, w claimWork, cfg config.PipelineConfig) ItemResult {
	item := ItemResult{InvoiceID: w.invoice.ID}
	ctx = s.withLogContext(ctx, w.invoice.TenantID)

	now := s.clock.Now()
	req := ledgerdomain.ClaimRequest{
		InvoiceID:        w.invoice.ID,
		ObservedAttempts: w.invoice.PDFGenerationAttempts,
		Today:            clock.DateOf(now),
		Now:              now,
		LeaseCutoff:      now.Add(-cfg.ClaimLease),
		AttemptCap:       cfg.AttemptCap,
	}

	var (
		claimed *ledgerdomain.Invoice
		err     error
	)
	if w.generate {
		claimed, err = s.repo.ClaimForGeneration(ctx, req)
	} else {
		claimed, err = s.repo.ClaimForResend(ctx, req)
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "invoice.claim.failed", w.invoice.TenantID, err, zap.String("invoice_id", idString(w.invoice.ID)))
		item.Outcome = OutcomeFailed
		item.Message = "claim: " + tracing.SafeError(err).Error()
		return item
	}
	if claimed == nil {
		obsmetrics.Scheduler().IncClaimConflict(JobProcessInvoices)
		s.logClaimSkipped(ctx, JobProcessInvoices, w.invoice.ID)
		item.Outcome = OutcomeSkipped
		return item
	}

	// The run was cancelled between claim and work: hand the attempt back.
	if ctx.Err() != nil {
		s.refund(claimed)
		item.Outcome = OutcomeDeferred
		item.Message = ctx.Err().Error()
		return item
	}

	if w.generate {
		if _, err := s.invoiceSvc.Generate(ctx, claimed.ID); err != nil {
			s.logSchedulerError(ctx, run, "invoice.generation.failed", claimed.TenantID, err, zap.String("invoice_id", idString(claimed.ID)))
			item.Outcome = OutcomeFailed
			item.Message = tracing.SafeError(err).Error()
			return item
		}
	}

	res, err := s.deliverySvc.Deliver(ctx, claimed.ID)
	if err != nil {
		s.logSchedulerError(ctx, run, "invoice.delivery.failed", claimed.TenantID, err, zap.String("invoice_id", idString(claimed.ID)))
		item.Outcome = OutcomeFailed
		item.Message = tracing.SafeError(err).Error()
		return item
	}
	item.Outcome = Outcome(res.Outcome)
	item.Message = res.Message
	return item
}

func (s *Scheduler) refund(claimed *ledgerdomain.Invoice) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.RefundClaim(ctx, claimed.ID, claimed.PDFGenerationAttempts); err != nil {
		s.log.Warn("invoice.claim.refund_failed",
			zap.String("invoice_id", idString(claimed.ID)),
			zap.Error(err),
		)
	}
}

// SendReminders fires every active reminder rule whose offset lands on today.
func (s *Scheduler) SendReminders(ctx context.Context, filter Filter) (result BatchResult, err error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobSendReminders)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	result = newBatchResult(run)

	ctx, span := tracing.StartSpan(ctx, "scheduler.send_reminders")
	defer func() {
		span.SetAttributes(attribute.Int("candidates", len(result.Results)))
		tracing.EndSpan(span, err)
	}()

	if err := s.preflight(ctx, s.deliverySvc.Check); err != nil {
		s.logSchedulerError(ctx, run, "scheduler.preflight.failed", 0, err)
		return result, err
	}

	cfg := s.pipeline.Get()
	today := clock.Today(s.clock)
	only := filterIDs(filter.InvoiceIDs)

	rules, err := s.repo.ListActiveReminderRules(ctx, filter.TenantID)
	if err != nil {
		return result, fmt.Errorf("list reminder rules: %w", err)
	}

	for _, rule := range rules {
		candidates, err := s.repo.ListReminderCandidates(ctx, ledgerdomain.ReminderCandidateQuery{
			Rule:  rule,
			Today: today,
			Limit: cfg.BatchSize,
		})
		if err != nil {
			return result, fmt.Errorf("list reminder candidates for rule %s: %w", rule.ID, err)
		}
		if only != nil {
			kept := candidates[:0]
			for _, inv := range candidates {
				if _, ok := only[inv.ID]; ok {
					kept = append(kept, inv)
				}
			}
			candidates = kept
		}

		items := s.fanOut(ctx, cfg.Concurrency, len(candidates), func(ctx context.Context, i int) ItemResult {
			return s.remind(ctx, run, candidates[i], rule)
		})
		result.add(items...)
		run.AddProcessed(len(items))
	}

	s.recordOutcomes(JobSendReminders, result)
	return result, nil
}

func (s *Scheduler) remind(ctx context.Context, run *jobRun, inv ledgerdomain.Invoice, rule ledgerdomain.ReminderRule) ItemResult {
	ruleID := rule.ID
	item := ItemResult{InvoiceID: inv.ID, ReminderRuleID: &ruleID}
	ctx = s.withLogContext(ctx, inv.TenantID)

	res, err := s.deliverySvc.SendReminder(ctx, inv.ID, rule)
	if err != nil {
		s.logSchedulerError(ctx, run, "invoice.reminder.failed", inv.TenantID, err,
			zap.String("invoice_id", idString(inv.ID)),
			zap.String("reminder_rule_id", idString(rule.ID)),
		)
		item.Outcome = OutcomeFailed
		item.Message = tracing.SafeError(err).Error()
		return item
	}
	item.Outcome = Outcome(res.Outcome)
	item.Message = res.Message
	return item
}

// SweepOverdue marks every unpaid past-due invoice OVERDUE.
func (s *Scheduler) SweepOverdue(ctx context.Context) (overdue.Result, error) {
	ctx, run, owner := s.ensureJobRun(ctx, JobSweepOverdue)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	res, err := s.sweeper.Sweep(ctx)
	run.AddProcessed(int(res.Marked))
	if err != nil {
		s.logSchedulerError(ctx, run, "overdue.sweep.failed", 0, err)
		return res, err
	}
	return res, nil
}

// preflight runs configuration checks before anything is claimed so a broken
// collaborator never burns attempts.
func (s *Scheduler) preflight(ctx context.Context, checks ...func(context.Context) error) error {
	if err := config.ValidatePipelineConfig(s.pipeline.Get()); err != nil {
		return fmt.Errorf("%w: %v", ledgerdomain.ErrMisconfigured, err)
	}
	for _, check := range checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%w: %v", ledgerdomain.ErrMisconfigured, err)
		}
	}
	return nil
}

// fanOut runs fn for n items with at most limit in flight. Results keep input order.
func (s *Scheduler) fanOut(ctx context.Context, limit, n int, fn func(context.Context, int) ItemResult) []ItemResult {
	items := make([]ItemResult, n)
	if n == 0 {
		return items
	}
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			items[i] = fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func (s *Scheduler) recordOutcomes(job string, result BatchResult) {
	schedMetrics := obsmetrics.Scheduler()
	for outcome, count := range result.Counts {
		schedMetrics.AddItemOutcome(job, string(outcome), count)
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	schedMetrics := obsmetrics.Scheduler()

	release, ok, err := s.guard.Acquire(parent, name, timeout)
	if err != nil {
		// Claims keep runs correct without the guard.
		s.log.Warn("scheduler.guard.unavailable", zap.String("job", name), zap.Error(err))
	} else if !ok {
		schedMetrics.IncBatchDeferred(name, obsmetrics.SchedulerBatchDeferredReasonRunInProgress)
		s.log.Info("scheduler.job.deferred", zap.String("job", name))
		return nil
	}
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics.IncJobRun(name)

	err = fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if _, errs := run.counts(); err != nil && errs == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs process, reminders and the overdue sweep in that order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	timeout := s.pipeline.Get().JobTimeout
	if timeout <= 0 {
		timeout = config.DefaultPipelineConfig().JobTimeout
	}

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobProcessInvoices, func(ctx context.Context) error {
			_, err := s.ProcessDueInvoices(ctx, Filter{})
			return err
		}},
		{JobSendReminders, func(ctx context.Context) error {
			_, err := s.SendReminders(ctx, Filter{})
			return err
		}},
		{JobSweepOverdue, func(ctx context.Context) error {
			_, err := s.SweepOverdue(ctx)
			return err
		}},
	}

	var err error
	for _, job := range jobs {
		err = errors.Join(err, s.runJob(parent, job.Name, timeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.runInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(interval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		if next := s.runInterval(); next != interval {
			interval = next
			ticker.Reset(interval)
		}
		nextRun = nextRun.Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runInterval() time.Duration {
	if interval := s.pipeline.Get().RunInterval; interval > 0 {
		return interval
	}
	return config.DefaultPipelineConfig().RunInterval
}
