package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/feeflow/internal/paymentplan/domain"
	"github.com/smallbiznis/feeflow/internal/scheduler"
	"github.com/spf13/cobra"
)

func processInvoicesCmd() *cobra.Command {
	var (
		invoiceIDs []string
		tenantID   string
	)
	cmd := &cobra.Command{
		Use:   "process-invoices",
		Short: "Generate and send every invoice that is due",
		Example: `  feeflow process-invoices
  feeflow process-invoices --invoice-id 1790123456789012480 --invoice-id 1790123456789012481
  feeflow process-invoices --tenant-id 1790000000000000000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(invoiceIDs, tenantID)
			if err != nil {
				return err
			}
			var sched *scheduler.Scheduler
			return withApp(cmd.Context(), func(ctx context.Context) error {
				result, err := sched.ProcessDueInvoices(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}, &sched)
		},
	}
	cmd.Flags().StringSliceVar(&invoiceIDs, "invoice-id", nil, "restrict the run to these invoice ids")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "restrict the run to one tenant")
	return cmd
}

func sendRemindersCmd() *cobra.Command {
	var (
		invoiceIDs []string
		tenantID   string
	)
	cmd := &cobra.Command{
		Use:   "send-reminders",
		Short: "Send payment reminders for sent invoices matching an active rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildFilter(invoiceIDs, tenantID)
			if err != nil {
				return err
			}
			var sched *scheduler.Scheduler
			return withApp(cmd.Context(), func(ctx context.Context) error {
				result, err := sched.SendReminders(ctx, filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}, &sched)
		},
	}
	cmd.Flags().StringSliceVar(&invoiceIDs, "invoice-id", nil, "restrict the run to these invoice ids")
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "restrict the run to one tenant")
	return cmd
}

func sweepOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-overdue",
		Short: "Mark sent invoices past their due date as overdue",
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			return withApp(cmd.Context(), func(ctx context.Context) error {
				result, err := sched.SweepOverdue(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}, &sched)
		},
	}
}

func materializeCmd() *cobra.Command {
	var (
		tenantID     string
		enrollmentID string
		anchorDate   string
	)
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Expand an approved enrollment's payment plan into invoices",
		Example: `  feeflow materialize --tenant-id 1790000000000000000 --enrollment-id 1790000000000000123
  feeflow materialize --tenant-id 1790000000000000000 --enrollment-id 1790000000000000123 --anchor-date 2025-02-03`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, err := parseID("tenant-id", tenantID)
			if err != nil {
				return err
			}
			enrollment, err := parseID("enrollment-id", enrollmentID)
			if err != nil {
				return err
			}
			var anchor *time.Time
			if strings.TrimSpace(anchorDate) != "" {
				parsed, err := time.Parse("2006-01-02", strings.TrimSpace(anchorDate))
				if err != nil {
					return fmt.Errorf("invalid anchor date, use YYYY-MM-DD: %w", err)
				}
				anchor = &parsed
			}

			var planSvc plandomain.Service
			return withApp(cmd.Context(), func(ctx context.Context) error {
				result, err := planSvc.MaterializeForEnrollment(ctx, tenant, enrollment, anchor)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}, &planSvc)
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant-id", "", "tenant that owns the enrollment")
	cmd.Flags().StringVar(&enrollmentID, "enrollment-id", "", "enrollment to materialize")
	cmd.Flags().StringVar(&anchorDate, "anchor-date", "", "operator chosen anchor date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("tenant-id")
	_ = cmd.MarkFlagRequired("enrollment-id")
	return cmd
}

func buildFilter(invoiceIDs []string, tenantID string) (scheduler.Filter, error) {
	filter := scheduler.Filter{}
	for _, raw := range invoiceIDs {
		id, err := parseID("invoice-id", raw)
		if err != nil {
			return scheduler.Filter{}, err
		}
		filter.InvoiceIDs = append(filter.InvoiceIDs, id)
	}
	if strings.TrimSpace(tenantID) != "" {
		id, err := parseID("tenant-id", tenantID)
		if err != nil {
			return scheduler.Filter{}, err
		}
		filter.TenantID = &id
	}
	return filter, nil
}

func parseID(flag, value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid --%s %q", flag, value)
	}
	return id, nil
}
