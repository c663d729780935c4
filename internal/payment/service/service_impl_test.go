package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeflow/internal/clock"
	commissiondomain "github.com/smallbiznis/feeflow/internal/commission/domain"
	commissionservice "github.com/smallbiznis/feeflow/internal/commission/service"
	"github.com/smallbiznis/feeflow/internal/config"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/smallbiznis/feeflow/internal/ledger/ledgertest"
	"github.com/smallbiznis/feeflow/internal/ledger/repository"
	paymentdomain "github.com/smallbiznis/feeflow/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type commissionMock struct {
	mock.Mock
}

func (m *commissionMock) Calculate(ctx context.Context, paymentID snowflake.ID) (commissiondomain.Result, error) {
	args := m.Called(ctx, paymentID)
	return args.Get(0).(commissiondomain.Result), args.Error(1)
}

func newTestService(t *testing.T, commission commissiondomain.Service) (*Service, *ledgertest.Fixture) {
	t.Helper()
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	clk := clock.NewFakeClock(time.Date(2025, 3, 20, 4, 0, 0, 0, time.UTC))
	repo := repository.New(conn)
	if commission == nil {
		commission = commissionservice.NewService(commissionservice.ServiceParam{
			Repo:     repo,
			GenID:    f.Node,
			Pipeline: config.NewStaticPipelineConfigHolder(config.DefaultPipelineConfig()),
			Clock:    clk,
			Log:      zap.NewNop(),
		})
	}
	svc := NewService(Params{
		Repo:       repo,
		Commission: commission,
		GenID:      f.Node,
		Clock:      clk,
		Log:        zap.NewNop(),
	}).(*Service)
	return svc, f
}

func TestRecordPaymentSettlesAndCreatesCommission(t *testing.T) {
	svc, f := newTestService(t, nil)
	inv := f.Invoice(t, func(inv *ledgerdomain.Invoice) { inv.Status = ledgerdomain.InvoiceStatusSent })
	f.Line(t, inv.ID, 1, "Tuition", 10000, true)

	res, err := svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		TenantID:    f.Tenant.ID,
		InvoiceID:   inv.ID,
		Amount:      10000,
		PaymentDate: ledgertest.Date(2025, time.March, 18),
		Reference:   " BANK-123 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "BANK-123", res.Payment.Reference)
	assert.Equal(t, ledgerdomain.InvoiceStatusPaid, res.Invoice.Status)
	assert.Equal(t, int64(10000), res.Invoice.AmountPaid)

	require.NotNil(t, res.Commission)
	assert.True(t, res.Commission.Created)
	assert.Equal(t, int64(1100), res.Commission.Commission.TotalAmount)
}

func TestRecordPartialPaymentKeepsStatus(t *testing.T) {
	svc, f := newTestService(t, nil)
	inv := f.Invoice(t, func(inv *ledgerdomain.Invoice) { inv.Status = ledgerdomain.InvoiceStatusOverdue })

	res, err := svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    4000,
	})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.InvoiceStatusOverdue, res.Invoice.Status)
	assert.Equal(t, int64(4000), res.Invoice.AmountPaid)

	res, err = svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    6000,
	})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.InvoiceStatusPaid, res.Invoice.Status)
}

func TestRecordPaymentCommissionErrorIsNotReturned(t *testing.T) {
	m := &commissionMock{}
	m.On("Calculate", mock.Anything, mock.Anything).Return(commissiondomain.Result{}, errors.New("db gone"))
	svc, f := newTestService(t, m)
	inv := f.Invoice(t, nil)

	res, err := svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    10000,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Commission)
	assert.Equal(t, ledgerdomain.InvoiceStatusPaid, f.Reload(t, inv.ID).Status)
	m.AssertCalled(t, "Calculate", mock.Anything, res.Payment.ID)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, f := newTestService(t, nil)
	inv := f.Invoice(t, nil)

	_, err := svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{InvoiceID: inv.ID})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		TenantID:  f.Node.Generate(),
		InvoiceID: inv.ID,
		Amount:    100,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrTenantMismatch)

	var count int64
	require.NoError(t, f.DB.Model(&ledgerdomain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordPaymentOnVoidInvoice(t *testing.T) {
	svc, f := newTestService(t, nil)
	inv := f.Invoice(t, func(inv *ledgerdomain.Invoice) { inv.Status = ledgerdomain.InvoiceStatusVoid })

	_, err := svc.RecordPayment(context.Background(), paymentdomain.RecordPaymentRequest{
		InvoiceID: inv.ID,
		Amount:    100,
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInvalidTransition)

	var count int64
	require.NoError(t, f.DB.Model(&ledgerdomain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestVoidInvoice(t *testing.T) {
	svc, f := newTestService(t, nil)
	open := f.Invoice(t, nil)
	paid := f.Invoice(t, func(inv *ledgerdomain.Invoice) {
		inv.Status = ledgerdomain.InvoiceStatusPaid
		inv.AmountPaid = inv.AmountDue
	})

	voided, err := svc.VoidInvoice(context.Background(), f.Tenant.ID, open.ID)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.InvoiceStatusVoid, voided.Status)

	_, err = svc.VoidInvoice(context.Background(), f.Tenant.ID, paid.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidTransition)
	assert.Equal(t, ledgerdomain.InvoiceStatusPaid, f.Reload(t, paid.ID).Status)
}
