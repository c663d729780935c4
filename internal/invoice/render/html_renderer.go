package render

import (
	"bytes"
	"context"
	"html/template"

	"github.com/smallbiznis/feeflow/internal/invoice/format"
)

const invoiceHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.Number}}</title>
  <style>
    body { margin: 0; padding: 40px; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    .card { background: #fff; max-width: 760px; margin: 0 auto; padding: 60px; border-radius: 4px; }
    .header { display: flex; justify-content: space-between; margin-bottom: 40px; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; margin-bottom: 6px; font-weight: 600; }
    .value { font-size: 14px; line-height: 1.5; }
    .grid { display: flex; justify-content: space-between; margin-bottom: 40px; }
    .amount { font-size: 32px; font-weight: 700; margin-bottom: 40px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 30px; }
    th { text-align: left; font-size: 11px; color: #8792a2; border-bottom: 1px solid #e3e8ee; padding: 10px 0; }
    td { padding: 16px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; }
    .right { text-align: right; }
    .footer { margin-top: 60px; font-size: 12px; color: #8792a2; border-top: 1px solid #e3e8ee; padding-top: 20px; }
  </style>
</head>
<body>
  <div class="card">
    <div class="header">
      <div>
        <h1>Tax Invoice</h1>
        <div class="label">Invoice number</div>
        <div class="value">{{.Number}}</div>
      </div>
      <div class="value">
        <strong>{{.Issuer.Name}}</strong><br>
        {{.Issuer.Address}}<br>
        {{if .Issuer.TaxID}}ABN {{.Issuer.TaxID}}<br>{{end}}
        {{.Issuer.Email}}
      </div>
    </div>
    <div class="grid">
      <div>
        <div class="label">Bill to</div>
        <div class="value"><strong>{{.BillTo.Name}}</strong><br>{{.BillTo.Address}}</div>
      </div>
      <div>
        <div class="label">Date issued</div>
        <div class="value">{{date .IssueDate}}</div>
        <div class="label">Date due</div>
        <div class="value">{{date .DueDate}}</div>
      </div>
    </div>
    <div class="amount">{{money .Balance}} due {{date .DueDate}}</div>
    <table>
      <thead><tr><th>Description</th><th class="right">Amount</th></tr></thead>
      <tbody>
        {{range .Lines}}<tr><td>{{.Description}}</td><td class="right">{{money .Amount}}</td></tr>{{end}}
      </tbody>
    </table>
    <div class="value right">Total {{money .Total}}<br>Paid {{money .Paid}}<br><strong>Balance {{money .Balance}}</strong></div>
    {{if not .Bank.Empty}}
    <div class="footer">
      Pay by bank transfer to {{.Bank.AccountName}}, BSB {{.Bank.BSB}}, account {{.Bank.AccountNumber}}. Use {{.Number}} as the reference.
    </div>
    {{end}}
  </div>
</body>
</html>
`

// HTMLRenderer renders the invoice view as a standalone HTML page for previews.
type HTMLRenderer struct {
	tpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	funcs := template.FuncMap{
		"money": format.Money,
		"date":  format.Date,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("invoice").Funcs(funcs).Parse(invoiceHTMLTemplate)),
	}
}

func (r *HTMLRenderer) Render(_ context.Context, view InvoiceView) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }
