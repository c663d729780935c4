package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	ledgerdomain "github.com/smallbiznis/feeflow/internal/ledger/domain"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "misconfigured",
			err:  fmt.Errorf("preflight: %w", ledgerdomain.ErrMisconfigured),
			want: SchedulerJobReasonMisconfigured,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestMisconfigurationIsNotRetryable(t *testing.T) {
	if IsSchedulerErrorRetryable(ledgerdomain.ErrMisconfigured) {
		t.Fatalf("expected misconfiguration to be terminal")
	}
	if !IsSchedulerErrorRetryable(context.DeadlineExceeded) {
		t.Fatalf("expected deadline to be retryable")
	}
}

func TestAddItemOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewSchedulerMetricsForRegistry(registry)

	metrics.AddItemOutcome("process_invoices", "sent", 3)
	metrics.AddItemOutcome("process_invoices", "sent", 0)

	got := testutil.ToFloat64(metrics.itemOutcomes.WithLabelValues("process_invoices", "sent"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}
