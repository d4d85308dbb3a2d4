package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentCallbacks   metric.Int64Counter
	registrations      metric.Int64Counter
	duplicateAttempts  metric.Int64Counter
	ticketsIssued      metric.Int64Counter
	checkIns           metric.Int64Counter
	certificatesIssued metric.Int64Counter
	emailsSent         metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "entrada"
	}
	meter := provider.Meter(name)

	paymentCallbacks, err := meter.Int64Counter("entrada_payment_callbacks_total")
	if err != nil {
		return nil, err
	}
	registrations, err := meter.Int64Counter("entrada_registrations_total")
	if err != nil {
		return nil, err
	}
	duplicateAttempts, err := meter.Int64Counter("entrada_duplicate_registrations_total")
	if err != nil {
		return nil, err
	}
	ticketsIssued, err := meter.Int64Counter("entrada_tickets_issued_total")
	if err != nil {
		return nil, err
	}
	checkIns, err := meter.Int64Counter("entrada_checkins_total")
	if err != nil {
		return nil, err
	}
	certificatesIssued, err := meter.Int64Counter("entrada_certificates_issued_total")
	if err != nil {
		return nil, err
	}
	emailsSent, err := meter.Int64Counter("entrada_emails_sent_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("entrada_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentCallbacks:   paymentCallbacks,
		registrations:      registrations,
		duplicateAttempts:  duplicateAttempts,
		ticketsIssued:      ticketsIssued,
		checkIns:           checkIns,
		certificatesIssued: certificatesIssued,
		emailsSent:         emailsSent,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordPaymentCallback increments verified callback counts per outcome.
func (m *Metrics) RecordPaymentCallback(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentCallbacks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRegistration increments committed participant counts.
func (m *Metrics) RecordRegistration(ctx context.Context, eventID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_id", strings.TrimSpace(eventID)))
	m.registrations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDuplicateRegistration increments rejected duplicate counts.
func (m *Metrics) RecordDuplicateRegistration(ctx context.Context, eventID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_id", strings.TrimSpace(eventID)))
	m.duplicateAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTicketIssued increments issued ticket counts.
func (m *Metrics) RecordTicketIssued(ctx context.Context, eventID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_id", strings.TrimSpace(eventID)))
	m.ticketsIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCheckIn increments check-in counts per outcome.
func (m *Metrics) RecordCheckIn(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.checkIns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCertificateIssued increments rendered certificate counts.
func (m *Metrics) RecordCertificateIssued(ctx context.Context, variant string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("variant", strings.TrimSpace(variant)))
	m.certificatesIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEmailSent increments outbound email counts per outcome.
func (m *Metrics) RecordEmailSent(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.emailsSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"event_id":    {},
	"provider":    {},
	"outcome":     {},
	"variant":     {},
	"kind":        {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
