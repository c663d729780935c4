// Package pdf renders invoice views to PDF with maroto.
package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"go.uber.org/fx"

	"github.com/smallbiznis/feeflow/internal/invoice/format"
	"github.com/smallbiznis/feeflow/internal/invoice/render"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(
		fx.Annotate(New, fx.As(new(render.Renderer))),
	),
)

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) ContentType() string { return "application/pdf" }

// Check renders a minimal document so a broken font or builder setup fails before any claim.
func (r *Renderer) Check(ctx context.Context) error {
	_, err := r.Render(ctx, render.InvoiceView{
		Number: "CHECK",
		Lines:  []render.LineView{{Description: "check"}},
	})
	return err
}

func (r *Renderer) Render(ctx context.Context, view render.InvoiceView) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Tax Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, view.Issuer.Name, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+view.Number, props.Text{Top: 0, Size: 9}),
			text.New("Date of issue: "+format.Date(view.IssueDate), props.Text{Top: 4, Size: 9}),
			text.New("Date due: "+format.Date(view.DueDate), props.Text{Top: 8, Size: 9}),
			text.New(view.InstallmentName, props.Text{Top: 12, Size: 9}),
		),
		col.New(6).Add(
			text.New(view.Issuer.Address, props.Text{Top: 0, Size: 9, Align: align.Right}),
			text.New(issuerContact(view.Issuer), props.Text{Top: 4, Size: 9, Align: align.Right}),
			text.New(taxLine(view.Issuer), props.Text{Top: 8, Size: 9, Align: align.Right}),
		),
	)

	m.AddRow(22,
		col.New(12).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Size: 9}),
			text.New(view.BillTo.Name, props.Text{Top: 5, Size: 9}),
			text.New(view.BillTo.Address, props.Text{Top: 9, Size: 9}),
			text.New(view.BillTo.Email, props.Text{Top: 13, Size: 9}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, fmt.Sprintf("%s due %s", format.Money(view.Balance), format.Date(view.DueDate)), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(9, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range view.Lines {
		m.AddRow(8,
			text.NewCol(9, item.Description, props.Text{Size: 9}),
			text.NewCol(3, format.Money(item.Amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(7,
		col.New(7),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(3, format.Money(view.Total), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(7,
		col.New(7),
		text.NewCol(2, "Paid", props.Text{Size: 9}),
		text.NewCol(3, format.Money(view.Paid), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(7,
		col.New(7),
		text.NewCol(2, "Balance", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, format.Money(view.Balance), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if !view.Bank.Empty() {
		m.AddRow(25,
			col.New(12).Add(
				text.New("How to pay", props.Text{Style: fontstyle.Bold, Size: 9, Top: 8}),
				text.New(bankDetails(view), props.Text{Size: 9, Top: 13}),
			),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func issuerContact(p render.PartyView) string {
	parts := make([]string, 0, 2)
	if p.Email != "" {
		parts = append(parts, p.Email)
	}
	if p.Phone != "" {
		parts = append(parts, p.Phone)
	}
	return strings.Join(parts, " | ")
}

func taxLine(p render.PartyView) string {
	if p.TaxID == "" {
		return ""
	}
	return "ABN " + p.TaxID
}

func bankDetails(view render.InvoiceView) string {
	return fmt.Sprintf("Account name: %s  BSB: %s  Account: %s  Reference: %s",
		view.Bank.AccountName, view.Bank.BSB, view.Bank.AccountNumber, view.Number)
}
