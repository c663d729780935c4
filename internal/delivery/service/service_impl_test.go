package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/feeflow/internal/clock"
	"github.com/smallbiznis/feeflow/internal/config"
	deliverydomain "github.com/smallbiznis/feeflow/internal/delivery/domain"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/smallbiznis/feeflow/internal/ledger/ledgertest"
	"github.com/smallbiznis/feeflow/internal/ledger/repository"
	"github.com/smallbiznis/feeflow/internal/providers/email"
	"github.com/smallbiznis/feeflow/internal/providers/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type harness struct {
	svc    *Service
	f      *ledgertest.Fixture
	outbox *email.Outbox
	store  *storage.Memory
	clock  *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := ledgertest.OpenDB(t)
	h := &harness{
		f:      ledgertest.Seed(t, conn),
		outbox: &email.Outbox{},
		store:  storage.NewMemory(),
		clock:  clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	h.svc = NewService(ServiceParam{
		Repo:     repository.New(conn),
		Storage:  h.store,
		Notifier: h.outbox,
		Pipeline: config.NewStaticPipelineConfigHolder(config.DefaultPipelineConfig()),
		Clock:    h.clock,
		Log:      zap.NewNop(),
	}).(*Service)
	return h
}

// documented inserts an invoice with a stored document.
func (h *harness) documented(t *testing.T, mutate func(inv *ledgerdomain.Invoice)) ledgerdomain.Invoice {
	t.Helper()
	inv := h.f.Invoice(t, func(inv *ledgerdomain.Invoice) {
		key := "docs/" + inv.InvoiceNumber + ".pdf"
		inv.DocumentPath = &key
		inv.PDFGenerationStatus = ledgerdomain.GenerationSucceeded
		inv.PDFGenerationAttempts = 1
		claimed := time.Date(2025, 3, 1, 8, 59, 0, 0, time.UTC)
		inv.ClaimedAt = &claimed
		if mutate != nil {
			mutate(inv)
		}
	})
	require.NoError(t, h.store.Put(context.Background(), *inv.DocumentPath, []byte("%PDF"), "application/pdf"))
	return inv
}

func TestDeliverSendsAndMarksSent(t *testing.T) {
	h := newHarness(t)
	inv := h.documented(t, nil)

	res, err := h.svc.Deliver(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, deliverydomain.OutcomeSent, res.Outcome)

	msgs := h.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"mia@example.test"}, msgs[0].To)
	assert.Equal(t, "Invoice "+inv.InvoiceNumber+" from Harbour College", msgs[0].Subject)
	assert.Contains(t, msgs[0].TextBody, "$100.00")
	assert.Contains(t, msgs[0].TextBody, "15 Mar 2025")
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, strings.ToLower(inv.InvoiceNumber)+"-mia-nguyen.pdf", msgs[0].Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF"), msgs[0].Attachments[0].Data)

	got := h.f.Reload(t, inv.ID)
	assert.Equal(t, ledgerdomain.InvoiceStatusSent, got.Status)
	assert.NotNil(t, got.LastDeliveredAt)
	assert.Nil(t, got.ClaimedAt)
}

func TestDeliverWithoutEmailIsPending(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.f.DB.Model(&ledgerdomain.Student{}).Where("id = ?", h.f.Student.ID).Update("email", nil).Error)
	inv := h.documented(t, nil)

	res, err := h.svc.Deliver(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, deliverydomain.OutcomeEmailPending, res.Outcome)
	assert.Empty(t, h.outbox.Messages())

	got := h.f.Reload(t, inv.ID)
	assert.Equal(t, ledgerdomain.InvoiceStatusScheduled, got.Status)
	assert.Nil(t, got.LastDeliveredAt)
	assert.Nil(t, got.ClaimedAt)
}

func TestDeliverNotifierFailureIsPending(t *testing.T) {
	h := newHarness(t)
	h.outbox.SendErr = errors.New("smtp 451 for mia@example.test")
	inv := h.documented(t, nil)

	res, err := h.svc.Deliver(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, deliverydomain.OutcomeEmailPending, res.Outcome)
	assert.NotContains(t, res.Message, "mia@example.test")
	assert.Equal(t, ledgerdomain.InvoiceStatusScheduled, h.f.Reload(t, inv.ID).Status)
}

func TestDeliverWithoutDocumentFails(t *testing.T) {
	h := newHarness(t)
	inv := h.f.Invoice(t, nil)

	_, err := h.svc.Deliver(context.Background(), inv.ID)
	require.ErrorIs(t, err, deliverydomain.ErrDocumentMissing)
	assert.Empty(t, h.outbox.Messages())
}

func TestDeliverAlreadySentOnlyStamps(t *testing.T) {
	h := newHarness(t)
	inv := h.documented(t, func(inv *ledgerdomain.Invoice) {
		inv.Status = ledgerdomain.InvoiceStatusSent
	})

	res, err := h.svc.Deliver(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, deliverydomain.OutcomeSent, res.Outcome)

	got := h.f.Reload(t, inv.ID)
	assert.Equal(t, ledgerdomain.InvoiceStatusSent, got.Status)
	assert.NotNil(t, got.LastDeliveredAt)
}

func TestSendReminderOnce(t *testing.T) {
	h := newHarness(t)
	rule := h.f.ReminderRule(t, -3, false)
	inv := h.documented(t, func(inv *ledgerdomain.Invoice) {
		inv.Status = ledgerdomain.InvoiceStatusSent
		inv.AmountPaid = 2500
	})

	res, err := h.svc.SendReminder(context.Background(), inv.ID, rule)
	require.NoError(t, err)
	assert.Equal(t, deliverydomain.OutcomeSent, res.Outcome)

	res, err = h.svc.SendReminder(context.Background(), inv.ID, rule)
	require.NoError(t, err)
	assert.Equal(t, deliverydomain.OutcomeAlreadySent, res.Outcome)

	msgs := h.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, "Reminder")
	assert.Contains(t, msgs[0].TextBody, "$75.00")
	require.Len(t, msgs[0].Attachments, 1)

	var count int64
	require.NoError(t, h.f.DB.Model(&ledgerdomain.ReminderDelivery{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSendReminderUsesRuleTemplates(t *testing.T) {
	h := newHarness(t)
	rule := h.f.ReminderRule(t, 0, false)
	subject := "Final notice {{.InvoiceNumber}}"
	rule.SubjectTemplate = &subject
	inv := h.documented(t, func(inv *ledgerdomain.Invoice) {
		inv.Status = ledgerdomain.InvoiceStatusOverdue
	})

	_, err := h.svc.SendReminder(context.Background(), inv.ID, rule)
	require.NoError(t, err)
	msgs := h.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Final notice "+inv.InvoiceNumber, msgs[0].Subject)
}

func TestSendReminderPendingLeavesNoRecord(t *testing.T) {
	h := newHarness(t)
	h.outbox.SendErr = errors.New("connection refused")
	rule := h.f.ReminderRule(t, 0, false)
	inv := h.documented(t, nil)

	res, err := h.svc.SendReminder(context.Background(), inv.ID, rule)
	require.NoError(t, err)
	assert.Equal(t, deliverydomain.OutcomeEmailPending, res.Outcome)

	var count int64
	require.NoError(t, h.f.DB.Model(&ledgerdomain.ReminderDelivery{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCheckReportsNotifier(t *testing.T) {
	h := newHarness(t)
	h.outbox.CheckErr = errors.New("smtp host missing")
	assert.Error(t, h.svc.Check(context.Background()))
}
