// Package domain declares the invoice document generation contract.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrRenderFailed  = errors.New("render_failed")
	ErrStorageFailed = errors.New("storage_failed")
)

// GenerateResult describes a stored document.
type GenerateResult struct {
	DocumentPath string
	Bytes        int
}

// Preview is a rendered document that was not stored.
type Preview struct {
	ContentType string
	Body        []byte
}

// Service produces invoice documents for claimed invoices.
type Service interface {
	// Generate renders and stores the document for a claimed invoice and
	// records the outcome on the invoice row. Failures are recorded before
	// they are returned.
	Generate(ctx context.Context, invoiceID snowflake.ID) (GenerateResult, error)
	Preview(ctx context.Context, invoiceID snowflake.ID) (Preview, error)
	// Check validates the renderer and storage collaborators.
	Check(ctx context.Context) error
}
