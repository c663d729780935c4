package service

import (
	"bytes"
	"fmt"
	"text/template"

	deliverydomain "github.com/smallbiznis/feeflow/internal/delivery/domain"
	"github.com/smallbiznis/feeflow/internal/invoice/format"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
)

// messageData is the set of fields message templates can reference.
type messageData struct {
	InvoiceNumber string
	TenantName    string
	StudentName   string
	AmountDue     string
	DueDate       string
	Balance       string
}

func newMessageData(ic ledgerdomain.InvoiceContext) messageData {
	tenantName := ic.Tenant.Name
	if tenantName == "" {
		tenantName = ic.Tenant.LegalName
	}
	return messageData{
		InvoiceNumber: ic.Invoice.InvoiceNumber,
		TenantName:    tenantName,
		StudentName:   ic.Student.FullName(),
		AmountDue:     format.Money(ic.Invoice.AmountDue),
		DueDate:       format.Date(ic.Invoice.DueDate),
		Balance:       format.Money(ic.Invoice.Balance()),
	}
}

func execute(name, text string, data messageData) (string, error) {
	tpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", deliverydomain.ErrTemplateInvalid, name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", deliverydomain.ErrTemplateInvalid, name, err)
	}
	return buf.String(), nil
}

func override(value *string, fallback string) string {
	if value != nil && *value != "" {
		return *value
	}
	return fallback
}
