// Package domain declares the agent commission calculator.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
)

// Reasons reported when no commission is created.
const (
	ReasonNonPositivePayment   = "payment amount is not positive"
	ReasonAlreadyExists        = "already exists"
	ReasonNoApplication        = "no originating application"
	ReasonNoAgent              = "no agent assigned"
	ReasonAgentInactive        = "agent commission inactive"
	ReasonOutsideWindow        = "outside agent commission window"
	ReasonNonPositiveRate      = "commission rate is not positive"
	ReasonLinesTotalZero       = "lines total is zero"
	ReasonNoMatchingInstalment = "no installment matches invoice due date"
	ReasonNotCommissionable    = "installment not commissionable"
	ReasonZeroBase             = "commission base is zero"
)

// Result is the calculator outcome. Commission is set only when Created is true.
type Result struct {
	Created    bool
	Reason     string
	Commission *ledgerdomain.CommissionInvoice
}

type Service interface {
	// Calculate creates the commission invoice for a recorded payment at most once.
	Calculate(ctx context.Context, paymentID snowflake.ID) (Result, error)
}

// Amounts is the commission split in minor units.
type Amounts struct {
	Base  int64
	GST   int64
	Total int64
}

var (
	hundred = decimal.NewFromInt(100)
	gstRate = decimal.RequireFromString("0.10")
)

// ComputeAmounts applies the rate to the basis. The base rounds half away
// from zero and GST is floored.
func ComputeAmounts(basis int64, ratePercent decimal.Decimal) Amounts {
	base := decimal.NewFromInt(basis).Mul(ratePercent).Div(hundred).Round(0)
	gst := base.Mul(gstRate).Floor()
	return Amounts{
		Base:  base.IntPart(),
		GST:   gst.IntPart(),
		Total: base.Add(gst).IntPart(),
	}
}

// ProrateBasis scales the payment by the commissionable share of the invoice lines.
// ok is false when the lines total is zero.
func ProrateBasis(payment int64, lines []ledgerdomain.InvoiceLine) (basis int64, ok bool) {
	var total, commissionable int64
	for _, l := range lines {
		total += l.Amount
		if l.IsCommissionable {
			commissionable += l.Amount
		}
	}
	if total == 0 {
		return 0, false
	}
	return decimal.NewFromInt(payment).
		Mul(decimal.NewFromInt(commissionable)).
		Div(decimal.NewFromInt(total)).
		Round(0).
		IntPart(), true
}
