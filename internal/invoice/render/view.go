package render

import (
	"context"
	"time"

	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
)

// Renderer turns an invoice view into document bytes.
type Renderer interface {
	Render(ctx context.Context, view InvoiceView) ([]byte, error)
	ContentType() string
}

type PartyView struct {
	Name    string
	Address string
	Email   string
	Phone   string
	TaxID   string
}

type BankView struct {
	AccountName   string
	BSB           string
	AccountNumber string
}

func (b BankView) Empty() bool {
	return b.AccountName == "" && b.BSB == "" && b.AccountNumber == ""
}

type LineView struct {
	Description string
	Amount      int64
}

// InvoiceView is everything a renderer needs, with totals already derived.
type InvoiceView struct {
	Number          string
	InstallmentName string
	IssueDate       time.Time
	DueDate         time.Time

	Issuer   PartyView
	BillTo   PartyView
	Bank     BankView
	Lines    []LineView
	Total    int64
	Paid     int64
	Balance  int64
	Currency string
}

// BuildView assembles the view for an invoice. An invoice without lines
// renders a single line for its amount due.
func BuildView(ic ledgerdomain.InvoiceContext) InvoiceView {
	inv := ic.Invoice

	lines := make([]LineView, 0, len(ic.Lines))
	var total int64
	for _, l := range ic.Lines {
		lines = append(lines, LineView{Description: l.Description, Amount: l.Amount})
		total += l.Amount
	}
	if len(lines) == 0 {
		desc := inv.InstallmentName
		if desc == "" {
			desc = "Tuition fees"
		}
		lines = append(lines, LineView{Description: desc, Amount: inv.AmountDue})
		total = inv.AmountDue
	}

	issuerName := ic.Tenant.LegalName
	if issuerName == "" {
		issuerName = ic.Tenant.Name
	}
	var studentEmail string
	if ic.Student.Email != nil {
		studentEmail = *ic.Student.Email
	}

	return InvoiceView{
		Number:          inv.InvoiceNumber,
		InstallmentName: inv.InstallmentName,
		IssueDate:       inv.IssueDate,
		DueDate:         inv.DueDate,
		Issuer: PartyView{
			Name:    issuerName,
			Address: ic.Tenant.Address,
			Email:   ic.Tenant.Email,
			Phone:   ic.Tenant.Phone,
			TaxID:   ic.Tenant.TaxID,
		},
		BillTo: PartyView{
			Name:    ic.Student.FullName(),
			Address: ic.Student.Address,
			Email:   studentEmail,
		},
		Bank: BankView{
			AccountName:   ic.Tenant.BankAccountName,
			BSB:           ic.Tenant.BankBSB,
			AccountNumber: ic.Tenant.BankAccountNumber,
		},
		Lines:    lines,
		Total:    total,
		Paid:     inv.AmountPaid,
		Balance:  total - inv.AmountPaid,
		Currency: "AUD",
	}
}
