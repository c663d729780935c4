package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "generated"),
		attribute.String("invoice_id", "456"),
		attribute.String("job", "process_invoices"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNoopMetricsAcceptsRecords(t *testing.T) {
	m := NewNoop()
	assert.NotNil(t, m)
	ctx := context.Background()
	m.RecordDocumentGenerated(ctx, "generated")
	m.RecordCommission(ctx, false, "already exists")
	m.RecordOverdueMarked(ctx, 3)

	var nilMetrics *Metrics
	nilMetrics.RecordDelivery(ctx, "sent")
}
