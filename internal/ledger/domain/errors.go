package domain

import "errors"

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrMissingRelatedEntity = errors.New("missing_related_entity")
	ErrMisconfigured        = errors.New("pipeline_misconfigured")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrAnchorUndetermined   = errors.New("anchor_date_undetermined")
	ErrNoPaymentPlan        = errors.New("no_payment_plan")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidTenant        = errors.New("invalid_tenant")
)
