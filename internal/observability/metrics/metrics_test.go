package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_id", "123"),
		attribute.String("participant_email", "asha@example.com"),
		attribute.String("outcome", "admitted"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "participant_email" {
			t.Fatal("expected high-cardinality label to be dropped")
		}
	}
}

func TestRecordMethodsNilSafe(t *testing.T) {
	ctx := context.Background()

	var m *Metrics
	m.RecordPaymentCallback(ctx, "razorpay", "verified")
	m.RecordRegistration(ctx, "123")
	m.RecordDuplicateRegistration(ctx, "123")
	m.RecordTicketIssued(ctx, "123")
	m.RecordCheckIn(ctx, "admitted")
	m.RecordCertificateIssued(ctx, "html")
	m.RecordEmailSent(ctx, "certificate", "sent")
	m.RecordRateLimitDenied(ctx, "payment_verify")
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "entrada-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordCheckIn(context.Background(), "admitted")
}
