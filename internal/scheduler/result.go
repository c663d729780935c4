package scheduler

import (
	"github.com/bwmarrin/snowflake"
)

const (
	JobProcessInvoices = "process_invoices"
	JobSendReminders   = "send_reminders"
	JobSweepOverdue    = "sweep_overdue"
)

// Filter narrows a batch run. Zero values select every tenant and invoice.
type Filter struct {
	InvoiceIDs []snowflake.ID
	TenantID   *snowflake.ID
}

type Outcome string

const (
	OutcomeSent         Outcome = "sent"
	OutcomeEmailPending Outcome = "email_pending"
	OutcomeAlreadySent  Outcome = "already_sent"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeFailed       Outcome = "failed"
	OutcomeDeferred     Outcome = "deferred"
)

type ItemResult struct {
	InvoiceID      snowflake.ID  `json:"invoice_id"`
	ReminderRuleID *snowflake.ID `json:"reminder_rule_id,omitempty"`
	Outcome        Outcome       `json:"outcome"`
	Message        string        `json:"message,omitempty"`
}

// BatchResult reports every candidate a run looked at.
type BatchResult struct {
	RunID   string          `json:"run_id"`
	Job     string          `json:"job"`
	Results []ItemResult    `json:"results"`
	Counts  map[Outcome]int `json:"counts"`
}

func newBatchResult(run *jobRun) BatchResult {
	res := BatchResult{
		Results: []ItemResult{},
		Counts:  map[Outcome]int{},
	}
	if run != nil {
		res.RunID = run.runID
		res.Job = run.job
	}
	return res
}

func (r *BatchResult) add(items ...ItemResult) {
	for _, item := range items {
		r.Results = append(r.Results, item)
		r.Counts[item.Outcome]++
	}
}

func filterIDs(ids []snowflake.ID) map[snowflake.ID]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
