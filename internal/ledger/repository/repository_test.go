package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/smallbiznis/feeflow/internal/ledger/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	today = ledgertest.Date(2025, time.March, 10)
	now   = today.Add(9 * time.Hour)
)

func candidateQuery() domain.CandidateQuery {
	return domain.CandidateQuery{
		Today:       today,
		LeaseCutoff: now.Add(-15 * time.Minute),
		AttemptCap:  5,
	}
}

func claimFor(inv domain.Invoice, at time.Time) domain.ClaimRequest {
	return domain.ClaimRequest{
		InvoiceID:        inv.ID,
		ObservedAttempts: inv.PDFGenerationAttempts,
		Today:            today,
		Now:              at,
		LeaseCutoff:      at.Add(-15 * time.Minute),
		AttemptCap:       5,
	}
}

func TestListGenerationCandidates(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	due := f.Invoice(t, nil)
	f.Invoice(t, func(inv *domain.Invoice) { inv.IssueDate = today.AddDate(0, 0, 1) })
	f.Invoice(t, func(inv *domain.Invoice) {
		inv.PDFGenerationAttempts = 5
		inv.PDFGenerationStatus = domain.GenerationFailed
	})
	f.Invoice(t, func(inv *domain.Invoice) { inv.Status = domain.InvoiceStatusSent })
	f.Invoice(t, func(inv *domain.Invoice) {
		inv.DocumentPath = ledgertest.Ptr("x.pdf")
		inv.PDFGenerationStatus = domain.GenerationSucceeded
	})
	failed := f.Invoice(t, func(inv *domain.Invoice) {
		inv.PDFGenerationAttempts = 2
		inv.PDFGenerationStatus = domain.GenerationFailed
	})

	got, err := store.ListGenerationCandidates(ctx, candidateQuery())
	require.NoError(t, err)
	ids := []any{}
	for _, inv := range got {
		ids = append(ids, inv.ID)
	}
	assert.ElementsMatch(t, []any{due.ID, failed.ID}, ids)
}

func TestListResendCandidates(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)

	undelivered := f.Invoice(t, func(inv *domain.Invoice) {
		inv.DocumentPath = ledgertest.Ptr("a.pdf")
		inv.PDFGenerationStatus = domain.GenerationSucceeded
		inv.PDFGenerationAttempts = 1
	})
	f.Invoice(t, func(inv *domain.Invoice) {
		inv.DocumentPath = ledgertest.Ptr("b.pdf")
		inv.PDFGenerationStatus = domain.GenerationSucceeded
		inv.LastDeliveredAt = ledgertest.Ptr(now)
	})

	got, err := store.ListResendCandidates(context.Background(), candidateQuery())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, undelivered.ID, got[0].ID)
}

func TestClaimForGenerationSingleWinner(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	inv := f.Invoice(t, func(inv *domain.Invoice) {
		inv.PDFGenerationStatus = domain.GenerationFailed
		inv.LastGenerationError = ledgertest.Ptr("previous")
	})

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimForGeneration(ctx, claimFor(inv, now))
			assert.NoError(t, err)
			if claimed != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	reloaded := f.Reload(t, inv.ID)
	assert.Equal(t, 1, reloaded.PDFGenerationAttempts)
	assert.Equal(t, domain.GenerationPending, reloaded.PDFGenerationStatus)
	assert.Nil(t, reloaded.LastGenerationError)
	assert.NotNil(t, reloaded.ClaimedAt)
}

func TestClaimReturnsUpdatedRow(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()
	require.True(t, supportsReturning(conn))

	gen := f.Invoice(t, func(inv *domain.Invoice) {
		inv.PDFGenerationAttempts = 1
		inv.PDFGenerationStatus = domain.GenerationFailed
		inv.LastGenerationError = ledgertest.Ptr("render timeout")
	})
	claimed, err := store.ClaimForGeneration(ctx, claimFor(gen, now))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, gen.ID, claimed.ID)
	assert.Equal(t, gen.InvoiceNumber, claimed.InvoiceNumber)
	assert.Equal(t, 2, claimed.PDFGenerationAttempts)
	assert.Equal(t, domain.GenerationPending, claimed.PDFGenerationStatus)
	assert.Nil(t, claimed.LastGenerationError)
	require.NotNil(t, claimed.ClaimedAt)
	assert.True(t, now.Equal(*claimed.ClaimedAt))

	resend := f.Invoice(t, func(inv *domain.Invoice) {
		inv.DocumentPath = ledgertest.Ptr("c.pdf")
		inv.PDFGenerationStatus = domain.GenerationSucceeded
	})
	claimed, err = store.ClaimForResend(ctx, claimFor(resend, now))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, resend.ID, claimed.ID)
	assert.Equal(t, 1, claimed.PDFGenerationAttempts)
	require.NotNil(t, claimed.DocumentPath)
	assert.Equal(t, "c.pdf", *claimed.DocumentPath)

	// a stale observed count matches nothing
	stale, err := store.ClaimForResend(ctx, claimFor(resend, now.Add(time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestClaimRespectsLeaseAndCap(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	inv := f.Invoice(t, func(inv *domain.Invoice) { inv.PDFGenerationAttempts = 3 })

	claimed, err := store.ClaimForGeneration(ctx, claimFor(inv, now))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 4, claimed.PDFGenerationAttempts)

	// the lease blocks a second claim even with the fresh attempt count
	blocked, err := store.ClaimForGeneration(ctx, claimFor(*claimed, now.Add(time.Minute)))
	require.NoError(t, err)
	assert.Nil(t, blocked)

	require.NoError(t, store.MarkGenerationFailed(ctx, inv.ID, "render timeout"))
	reloaded := f.Reload(t, inv.ID)
	assert.Equal(t, domain.GenerationFailed, reloaded.PDFGenerationStatus)
	assert.Nil(t, reloaded.ClaimedAt)

	claimed, err = store.ClaimForGeneration(ctx, claimFor(reloaded, now.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 5, claimed.PDFGenerationAttempts)
	require.NoError(t, store.MarkGenerationFailed(ctx, inv.ID, "render timeout"))

	// cap reached
	claimed, err = store.ClaimForGeneration(ctx, claimFor(f.Reload(t, inv.ID), now.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, claimed)

	got, err := store.ListGenerationCandidates(ctx, candidateQuery())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClaimAfterLeaseExpiry(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	inv := f.Invoice(t, nil)
	first, err := store.ClaimForGeneration(ctx, claimFor(inv, now))
	require.NoError(t, err)
	require.NotNil(t, first)

	later := now.Add(20 * time.Minute)
	second, err := store.ClaimForGeneration(ctx, claimFor(*first, later))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.PDFGenerationAttempts)
}

func TestRefundClaim(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	inv := f.Invoice(t, nil)
	claimed, err := store.ClaimForGeneration(ctx, claimFor(inv, now))
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, store.RefundClaim(ctx, inv.ID, claimed.PDFGenerationAttempts))
	reloaded := f.Reload(t, inv.ID)
	assert.Equal(t, 0, reloaded.PDFGenerationAttempts)
	assert.Nil(t, reloaded.ClaimedAt)
}

func TestMarkGenerationSucceededAndDelivered(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	inv := f.Invoice(t, nil)
	_, err := store.ClaimForGeneration(ctx, claimFor(inv, now))
	require.NoError(t, err)

	require.NoError(t, store.MarkGenerationSucceeded(ctx, inv.ID, "t/2025/doc.pdf", now))
	reloaded := f.Reload(t, inv.ID)
	require.NotNil(t, reloaded.DocumentPath)
	assert.Equal(t, domain.GenerationSucceeded, reloaded.PDFGenerationStatus)
	assert.Equal(t, domain.InvoiceStatusScheduled, reloaded.Status)

	// failure after success never clears the document
	require.NoError(t, store.MarkGenerationFailed(ctx, inv.ID, "late"))
	assert.Equal(t, domain.GenerationSucceeded, f.Reload(t, inv.ID).PDFGenerationStatus)

	moved, err := store.MarkDelivered(ctx, inv.ID, now)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.MarkDelivered(ctx, inv.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, moved)

	reloaded = f.Reload(t, inv.ID)
	assert.Equal(t, domain.InvoiceStatusSent, reloaded.Status)
	require.NotNil(t, reloaded.LastDeliveredAt)
	assert.Nil(t, reloaded.ClaimedAt)
}

func TestLoadInvoiceContext(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	inv := f.Invoice(t, nil)
	f.Line(t, inv.ID, 2, "Materials", 2000, false)
	f.Line(t, inv.ID, 1, "Tuition", 8000, true)

	ic, err := store.LoadInvoiceContext(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, ic.Lines, 2)
	assert.Equal(t, "Tuition", ic.Lines[0].Description)
	assert.Equal(t, f.Student.ID, ic.Student.ID)
	assert.Equal(t, f.Tenant.Name, ic.Tenant.Name)
	require.NotNil(t, ic.Application)
	assert.Equal(t, f.Application.ID, ic.Application.ID)

	orphan := f.Invoice(t, func(inv *domain.Invoice) { inv.EnrollmentID = f.Node.Generate() })
	_, err = store.LoadInvoiceContext(ctx, orphan.ID)
	assert.ErrorIs(t, err, domain.ErrMissingRelatedEntity)

	_, err = store.LoadInvoiceContext(ctx, f.Node.Generate())
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestMarkOverdueBatchSkipsPaidAndVoid(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	pastDue := func(status domain.InvoiceStatus, paid int64) domain.Invoice {
		return f.Invoice(t, func(inv *domain.Invoice) {
			inv.Status = status
			inv.DueDate = today.AddDate(0, 0, -1)
			inv.AmountPaid = paid
		})
	}
	scheduled := pastDue(domain.InvoiceStatusScheduled, 0)
	sent := pastDue(domain.InvoiceStatusSent, 5000)
	paid := pastDue(domain.InvoiceStatusPaid, 10000)
	void := pastDue(domain.InvoiceStatusVoid, 0)
	dueToday := f.Invoice(t, func(inv *domain.Invoice) {
		inv.Status = domain.InvoiceStatusSent
		inv.DueDate = today
	})

	n, err := store.MarkOverdueBatch(ctx, today, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.MarkOverdueBatch(ctx, today, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.MarkOverdueBatch(ctx, today, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, domain.InvoiceStatusOverdue, f.Reload(t, scheduled.ID).Status)
	assert.Equal(t, domain.InvoiceStatusOverdue, f.Reload(t, sent.ID).Status)
	assert.Equal(t, domain.InvoiceStatusPaid, f.Reload(t, paid.ID).Status)
	assert.Equal(t, domain.InvoiceStatusVoid, f.Reload(t, void.ID).Status)
	assert.Equal(t, domain.InvoiceStatusSent, f.Reload(t, dueToday.ID).Status)
}

func TestReminderCandidatesAndDeliveries(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	rule := f.ReminderRule(t, -3, false)
	depositRule := f.ReminderRule(t, -3, true)

	delivered := func(mutate func(inv *domain.Invoice)) domain.Invoice {
		return f.Invoice(t, func(inv *domain.Invoice) {
			inv.Status = domain.InvoiceStatusSent
			inv.DueDate = today.AddDate(0, 0, 3)
			inv.DocumentPath = ledgertest.Ptr("doc.pdf")
			inv.PDFGenerationStatus = domain.GenerationSucceeded
			if mutate != nil {
				mutate(inv)
			}
		})
	}
	target := delivered(nil)
	deposit := delivered(func(inv *domain.Invoice) { inv.IsDeposit = true })
	delivered(func(inv *domain.Invoice) { inv.AmountPaid = inv.AmountDue; inv.Status = domain.InvoiceStatusPaid })
	delivered(func(inv *domain.Invoice) { inv.DueDate = today })

	got, err := store.ListReminderCandidates(ctx, domain.ReminderCandidateQuery{Rule: rule, Today: today})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.ListReminderCandidates(ctx, domain.ReminderCandidateQuery{Rule: depositRule, Today: today})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, deposit.ID, got[0].ID)

	inserted, err := store.InsertReminderDelivery(ctx, domain.ReminderDelivery{InvoiceID: target.ID, ReminderRuleID: rule.ID, TenantID: f.Tenant.ID, DeliveredAt: now})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertReminderDelivery(ctx, domain.ReminderDelivery{InvoiceID: target.ID, ReminderRuleID: rule.ID, TenantID: f.Tenant.ID, DeliveredAt: now})
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := store.HasReminderDelivery(ctx, target.ID, rule.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err = store.ListReminderCandidates(ctx, domain.ReminderCandidateQuery{Rule: rule, Today: today})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	rules, err := store.ListActiveReminderRules(ctx, &f.Tenant.ID)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestApplyPaymentAndVoid(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	inv := f.Invoice(t, func(inv *domain.Invoice) { inv.Status = domain.InvoiceStatusOverdue })

	updated, err := store.ApplyPayment(ctx, inv.ID, 4000)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusOverdue, updated.Status)
	assert.Equal(t, int64(4000), updated.AmountPaid)

	updated, err = store.ApplyPayment(ctx, inv.ID, 6000)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPaid, updated.Status)

	_, err = store.VoidInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	other := f.Invoice(t, nil)
	voided, err := store.VoidInvoice(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusVoid, voided.Status)

	_, err = store.ApplyPayment(ctx, other.ID, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = store.ApplyPayment(ctx, f.Node.Generate(), 100)
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)
}

func TestNextCommissionNumberRollsBackWithTransaction(t *testing.T) {
	conn := ledgertest.OpenDB(t)
	f := ledgertest.Seed(t, conn)
	store := New(conn)
	ctx := context.Background()

	n, err := store.NextCommissionNumber(ctx, f.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	err = store.Transaction(ctx, func(repo domain.Repository) error {
		v, err := repo.NextCommissionNumber(ctx, f.Tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err = store.NextCommissionNumber(ctx, f.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
