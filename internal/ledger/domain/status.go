package domain

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusScheduled InvoiceStatus = "SCHEDULED"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid      InvoiceStatus = "VOID"
)

// GenerationStatus tracks document generation for an invoice.
type GenerationStatus string

const (
	GenerationPending   GenerationStatus = "pending"
	GenerationFailed    GenerationStatus = "failed"
	GenerationSucceeded GenerationStatus = "succeeded"
)

var transitions = map[InvoiceStatus]map[InvoiceStatus]struct{}{
	InvoiceStatusScheduled: {
		InvoiceStatusSent:    {},
		InvoiceStatusPaid:    {},
		InvoiceStatusOverdue: {},
		InvoiceStatusVoid:    {},
	},
	InvoiceStatusSent: {
		InvoiceStatusPaid:    {},
		InvoiceStatusOverdue: {},
		InvoiceStatusVoid:    {},
	},
	InvoiceStatusOverdue: {
		InvoiceStatusPaid: {},
		InvoiceStatusVoid: {},
	},
}

// CanTransition reports whether an invoice may move from one lifecycle status to another.
func CanTransition(from, to InvoiceStatus) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// SourcesFor returns every status that may transition into to.
func SourcesFor(to InvoiceStatus) []InvoiceStatus {
	out := make([]InvoiceStatus, 0, 3)
	for _, from := range []InvoiceStatus{InvoiceStatusScheduled, InvoiceStatusSent, InvoiceStatusOverdue} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}
