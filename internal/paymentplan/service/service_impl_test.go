package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/config"
	deliverydomain "github.com/smallbiznis/feeflow/internal/delivery/domain"
	deliveryservice "github.com/smallbiznis/feeflow/internal/delivery/service"
	"github.com/smallbiznis/feeflow/internal/invoice/render"
	invoiceservice "github.com/smallbiznis/feeflow/internal/invoice/service"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/smallbiznis/feeflow/internal/ledger/ledgertest"
	"github.com/smallbiznis/feeflow/internal/ledger/repository"
	plandomain "github.com/smallbiznis/feeflow/internal/paymentplan/domain"
	"github.com/smallbiznis/feeflow/internal/providers/email"
	"github.com/smallbiznis/feeflow/internal/providers/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *ledgertest.Fixture) {
	t.Helper()
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	svc := NewService(ServiceParam{
		Repo:  repository.New(conn),
		GenID: f.Node,
		Clock: clock.NewFakeClock(time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC)),
		Log:   zap.NewNop(),
	}).(*Service)
	return svc, f
}

type pdfStub struct{ err error }

func (r pdfStub) Render(_ context.Context, view render.InvoiceView) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-" + view.Number), nil
}

func (pdfStub) ContentType() string { return "application/pdf" }

// newIssuingService wires real generation and delivery behind the materializer.
func newIssuingService(t *testing.T, renderer render.Renderer) (*Service, *ledgertest.Fixture, *storage.Memory, *email.Outbox) {
	t.Helper()
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	repo := repository.New(conn)
	clk := clock.NewFakeClock(time.Date(2025, 1, 20, 10, 0, 0, 0, time.UTC))
	pipeline := config.NewStaticPipelineConfigHolder(config.DefaultPipelineConfig())
	store := storage.NewMemory()
	outbox := &email.Outbox{}
	log := zap.NewNop()

	svc := NewService(ServiceParam{
		Repo:  repo,
		GenID: f.Node,
		Clock: clk,
		Log:   log,
		Invoices: invoiceservice.NewService(invoiceservice.ServiceParam{
			Repo:     repo,
			Renderer: renderer,
			Storage:  store,
			Pipeline: pipeline,
			Clock:    clk,
			Log:      log,
		}),
		Delivery: deliveryservice.NewService(deliveryservice.ServiceParam{
			Repo:     repo,
			Storage:  store,
			Notifier: outbox,
			Pipeline: pipeline,
			Clock:    clk,
			Log:      log,
		}),
	}).(*Service)
	return svc, f, store, outbox
}

// seedTemplate attaches a three-installment template to the fixture application.
func seedTemplate(t *testing.T, f *ledgertest.Fixture) ledgerdomain.PaymentPlanTemplate {
	t.Helper()
	tpl := ledgerdomain.PaymentPlanTemplate{ID: f.Node.Generate(), TenantID: f.Tenant.ID, Name: "Diploma 3 part"}
	require.NoError(t, f.DB.Create(&tpl).Error)

	deposit := ledgerdomain.PaymentPlanInstallment{
		ID: f.Node.Generate(), TenantID: f.Tenant.ID, TemplateID: tpl.ID,
		Sequence: 1, Name: "Deposit", Amount: 50000, DueOffsetDays: -14, IsDeposit: true,
	}
	term1 := ledgerdomain.PaymentPlanInstallment{
		ID: f.Node.Generate(), TenantID: f.Tenant.ID, TemplateID: tpl.ID,
		Sequence: 2, Name: "Term 1", Amount: 1, DueOffsetDays: 0, IsCommissionable: true,
	}
	term2 := ledgerdomain.PaymentPlanInstallment{
		ID: f.Node.Generate(), TenantID: f.Tenant.ID, TemplateID: tpl.ID,
		Sequence: 3, Name: "Term 2", Amount: 300000, DueOffsetDays: 90, IsCommissionable: true,
	}
	for _, inst := range []*ledgerdomain.PaymentPlanInstallment{&term2, &deposit, &term1} {
		require.NoError(t, f.DB.Create(inst).Error)
	}
	for i, l := range []ledgerdomain.PaymentPlanInstallmentLine{
		{Description: "Tuition", Amount: 250000, IsCommissionable: true},
		{Description: "Materials", Amount: 30000},
	} {
		l.ID = f.Node.Generate()
		l.InstallmentID = term1.ID
		l.Sequence = i + 1
		require.NoError(t, f.DB.Create(&l).Error)
	}

	require.NoError(t, f.DB.Model(&ledgerdomain.Application{}).
		Where("id = ?", f.Application.ID).
		Update("payment_plan_template_id", tpl.ID).Error)
	f.Application.PaymentPlanTemplateID = &tpl.ID
	return tpl
}

func TestMaterializeFromTemplate(t *testing.T) {
	svc, f := newTestService(t)
	seedTemplate(t, f)

	res, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, plandomain.SourceTemplate, res.Source)
	require.Len(t, res.Invoices, 3)

	deposit, term1, term2 := res.Invoices[0], res.Invoices[1], res.Invoices[2]

	// anchor is the proposed commencement date 2025-02-03
	assert.Equal(t, "Deposit", deposit.InstallmentName)
	assert.Equal(t, ledgertest.Date(2025, time.January, 20), deposit.DueDate)
	assert.Equal(t, ledgerdomain.InvoiceStatusSent, deposit.Status)
	assert.Equal(t, ledgertest.Date(2025, time.January, 20), deposit.IssueDate)
	assert.True(t, deposit.IsDeposit)

	assert.Equal(t, ledgertest.Date(2025, time.February, 3), term1.DueDate)
	assert.Equal(t, term1.DueDate, term1.IssueDate)
	assert.Equal(t, ledgerdomain.InvoiceStatusScheduled, term1.Status)
	assert.Equal(t, int64(280000), term1.AmountDue)

	assert.Equal(t, ledgertest.Date(2025, time.May, 4), term2.DueDate)
	assert.Equal(t, int64(300000), term2.AmountDue)

	assert.Regexp(t, `^INV-[0-9A-F]{32}$`, term2.InvoiceNumber)
	assert.NotEqual(t, term1.InvoiceNumber, term2.InvoiceNumber)

	var lines []ledgerdomain.InvoiceLine
	require.NoError(t, f.DB.Where("invoice_id = ?", term1.ID).Order("sequence").Find(&lines).Error)
	require.Len(t, lines, 2)
	assert.Equal(t, "Tuition", lines[0].Description)
	assert.True(t, lines[0].IsCommissionable)
	assert.False(t, lines[1].IsCommissionable)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	svc, f := newTestService(t)
	seedTemplate(t, f)

	first, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.NoError(t, err)
	second, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Len(t, second.Invoices, len(first.Invoices))

	var count int64
	require.NoError(t, f.DB.Model(&ledgerdomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestMaterializeOperatorAnchorWins(t *testing.T) {
	svc, f := newTestService(t)
	seedTemplate(t, f)

	anchor := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	res, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, &anchor)
	require.NoError(t, err)
	assert.Equal(t, ledgertest.Date(2025, time.March, 10), res.Invoices[1].DueDate)
}

func TestMaterializeUsesSnapshot(t *testing.T) {
	svc, f := newTestService(t)
	seedTemplate(t, f)

	for _, row := range []ledgerdomain.ScheduleSnapshotRow{
		{Sequence: 2, Name: "Balance", Amount: 70000, DueDate: ledgertest.Date(2025, time.April, 1)},
		{Sequence: 1, Name: "Upfront", Amount: 30000, DueDate: ledgertest.Date(2025, time.February, 1), IsDeposit: true},
	} {
		row.ID = f.Node.Generate()
		row.TenantID = f.Tenant.ID
		row.ApplicationID = f.Application.ID
		require.NoError(t, f.DB.Create(&row).Error)
	}

	res, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, plandomain.SourceSnapshot, res.Source)
	require.Len(t, res.Invoices, 2)
	assert.Equal(t, "Upfront", res.Invoices[0].InstallmentName)
	assert.Equal(t, ledgerdomain.InvoiceStatusSent, res.Invoices[0].Status)
	assert.Equal(t, int64(70000), res.Invoices[1].AmountDue)
}

func TestMaterializeSnapshotWithoutAnchor(t *testing.T) {
	svc, f := newTestService(t)
	seedTemplate(t, f)
	row := ledgerdomain.ScheduleSnapshotRow{
		ID:            f.Node.Generate(),
		TenantID:      f.Tenant.ID,
		ApplicationID: f.Application.ID,
		Sequence:      1,
		Name:          "Upfront",
		Amount:        30000,
		DueDate:       ledgertest.Date(2025, time.February, 1),
	}
	require.NoError(t, f.DB.Create(&row).Error)
	require.NoError(t, f.DB.Model(&ledgerdomain.Application{}).
		Where("id = ?", f.Application.ID).
		Updates(map[string]any{
			"proposed_commencement_date": nil,
			"offer_generated_at":         nil,
			"anchor_date":                nil,
		}).Error)

	res, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.ErrorIs(t, err, ledgerdomain.ErrAnchorUndetermined)
	assert.Empty(t, res.Invoices)

	var count int64
	require.NoError(t, f.DB.Model(&ledgerdomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMaterializeWithoutAnchor(t *testing.T) {
	svc, f := newTestService(t)
	seedTemplate(t, f)
	require.NoError(t, f.DB.Model(&ledgerdomain.Application{}).
		Where("id = ?", f.Application.ID).
		Update("proposed_commencement_date", nil).Error)

	_, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.ErrorIs(t, err, ledgerdomain.ErrAnchorUndetermined)

	var count int64
	require.NoError(t, f.DB.Model(&ledgerdomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMaterializeWithoutTemplate(t *testing.T) {
	svc, f := newTestService(t)
	_, err := svc.Materialize(context.Background(), nil, plandomain.MaterializeRequest{
		Enrollment:  f.Enrollment,
		Application: &f.Application,
	})
	require.ErrorIs(t, err, ledgerdomain.ErrNoPaymentPlan)
}

func TestMaterializeInCallerTransaction(t *testing.T) {
	svc, f := newTestService(t)
	seedTemplate(t, f)

	tx := f.DB.Begin()
	res, err := svc.Materialize(context.Background(), tx, plandomain.MaterializeRequest{
		Enrollment:  f.Enrollment,
		Application: &f.Application,
	})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.NoError(t, tx.Rollback().Error)

	var count int64
	require.NoError(t, f.DB.Model(&ledgerdomain.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMaterializeIssuesFirstInvoice(t *testing.T) {
	svc, f, store, outbox := newIssuingService(t, pdfStub{})
	seedTemplate(t, f)

	res, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.NotNil(t, res.FirstIssue)
	assert.Empty(t, res.FirstIssue.Error)
	assert.Equal(t, string(deliverydomain.OutcomeSent), res.FirstIssue.Delivery)

	first := f.Reload(t, res.Invoices[0].ID)
	assert.Equal(t, ledgerdomain.InvoiceStatusSent, first.Status)
	assert.Equal(t, ledgerdomain.GenerationSucceeded, first.PDFGenerationStatus)
	require.NotNil(t, first.DocumentPath)
	assert.Equal(t, res.FirstIssue.DocumentPath, *first.DocumentPath)
	assert.NotNil(t, first.LastDeliveredAt)
	assert.Equal(t, 1, store.Puts())

	msgs := outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"mia@example.test"}, msgs[0].To)

	// later installments are left for the scheduler
	second := f.Reload(t, res.Invoices[1].ID)
	assert.Equal(t, ledgerdomain.InvoiceStatusScheduled, second.Status)
	assert.Nil(t, second.DocumentPath)

	again, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Nil(t, again.FirstIssue)
	assert.Len(t, outbox.Messages(), 1)
}

func TestMaterializeKeepsScheduleWhenFirstIssueFails(t *testing.T) {
	svc, f, _, outbox := newIssuingService(t, pdfStub{err: errors.New("chromium crashed")})
	seedTemplate(t, f)

	res, err := svc.MaterializeForEnrollment(context.Background(), f.Tenant.ID, f.Enrollment.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.NotNil(t, res.FirstIssue)
	assert.Contains(t, res.FirstIssue.Error, "render_failed")
	assert.Empty(t, res.FirstIssue.Delivery)
	assert.Empty(t, outbox.Messages())

	first := f.Reload(t, res.Invoices[0].ID)
	assert.Equal(t, ledgerdomain.GenerationFailed, first.PDFGenerationStatus)
	assert.Nil(t, first.DocumentPath)

	var count int64
	require.NoError(t, f.DB.Model(&ledgerdomain.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}
