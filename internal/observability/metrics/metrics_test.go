package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "webhook"),
		attribute.String("booking_id", "456"),
		attribute.String("outcome", "applied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "source" && attrs[1].Key != "source" {
		t.Fatalf("expected source to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordReconciliation(ctx, "webhook", "applied")
	m.RecordSideEffectFailure(ctx, "email")
	m.RecordAdminAction(ctx, "refund", "ok")
	m.RecordRefund(ctx, "gateway_failed")
	m.RecordAvailability(ctx, "check", false)
	m.RecordWebhookEvent(ctx, "stripe", "checkout.session.completed")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "staybook"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordReconciliation(context.Background(), "verify_poll", "applied")
}
