// Package domain declares the invoice and reminder delivery contract.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
)

var (
	ErrDocumentMissing = errors.New("document_missing")
	ErrTemplateInvalid = errors.New("template_invalid")
)

type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeEmailPending Outcome = "email_pending"
	OutcomeAlreadySent  Outcome = "already_sent"
)

// Result is the outcome of a delivery attempt. Message explains non-sent outcomes.
type Result struct {
	Outcome Outcome
	Message string
}

type Service interface {
	// Deliver emails the stored invoice document and moves SCHEDULED invoices to SENT.
	Deliver(ctx context.Context, invoiceID snowflake.ID) (Result, error)
	// SendReminder emails a reminder for the rule at most once per invoice.
	SendReminder(ctx context.Context, invoiceID snowflake.ID, rule ledgerdomain.ReminderRule) (Result, error)
	Check(ctx context.Context) error
}
