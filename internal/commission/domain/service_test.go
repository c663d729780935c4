package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
)

func TestComputeAmounts(t *testing.T) {
	tests := []struct {
		name  string
		basis int64
		rate  string
		want  Amounts
	}{
		{name: "ten percent", basis: 10000, rate: "10", want: Amounts{Base: 1000, GST: 100, Total: 1100}},
		{name: "seven percent rounds down", basis: 333, rate: "7", want: Amounts{Base: 23, GST: 2, Total: 25}},
		{name: "half rounds up", basis: 250, rate: "15", want: Amounts{Base: 38, GST: 3, Total: 41}},
		{name: "fractional rate", basis: 123456, rate: "12.5", want: Amounts{Base: 15432, GST: 1543, Total: 16975}},
		{name: "tiny base", basis: 4, rate: "10", want: Amounts{Base: 0, GST: 0, Total: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeAmounts(tt.basis, decimal.RequireFromString(tt.rate)))
		})
	}
}

func TestProrateBasis(t *testing.T) {
	lines := []ledgerdomain.InvoiceLine{
		{Amount: 250000, IsCommissionable: true},
		{Amount: 30000},
	}
	basis, ok := ProrateBasis(100000, lines)
	assert.True(t, ok)
	// 100000 * 250000 / 280000 = 89285.71
	assert.Equal(t, int64(89286), basis)

	_, ok = ProrateBasis(100000, []ledgerdomain.InvoiceLine{{Amount: 0}})
	assert.False(t, ok)
}
