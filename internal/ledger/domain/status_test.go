package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to InvoiceStatus
		want     bool
	}{
		{InvoiceStatusScheduled, InvoiceStatusSent, true},
		{InvoiceStatusScheduled, InvoiceStatusOverdue, true},
		{InvoiceStatusSent, InvoiceStatusPaid, true},
		{InvoiceStatusSent, InvoiceStatusScheduled, false},
		{InvoiceStatusOverdue, InvoiceStatusSent, false},
		{InvoiceStatusOverdue, InvoiceStatusPaid, true},
		{InvoiceStatusPaid, InvoiceStatusOverdue, false},
		{InvoiceStatusVoid, InvoiceStatusPaid, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSourcesFor(t *testing.T) {
	assert.ElementsMatch(t, []InvoiceStatus{InvoiceStatusScheduled, InvoiceStatusSent}, SourcesFor(InvoiceStatusOverdue))
	assert.ElementsMatch(t, []InvoiceStatus{InvoiceStatusScheduled, InvoiceStatusSent, InvoiceStatusOverdue}, SourcesFor(InvoiceStatusVoid))
	assert.True(t, InvoiceStatusPaid.Terminal())
	assert.False(t, InvoiceStatusOverdue.Terminal())
}

func TestInvoiceBalance(t *testing.T) {
	assert.Equal(t, int64(40), Invoice{AmountDue: 100, AmountPaid: 60}.Balance())
	assert.Equal(t, int64(0), Invoice{AmountDue: 100, AmountPaid: 150}.Balance())
}
