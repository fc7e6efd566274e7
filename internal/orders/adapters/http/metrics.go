package http

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration histogram: %w", err)
	}

	m.requestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total counter: %w", err)
	}

	return m, nil
}

// RecordRequest labels by route pattern so path parameters do not explode cardinality.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, statusCode int, durationSeconds float64) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status_code", statusCode),
	))
	m.requestDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}

// SecurityMetrics are scraped from /metrics so alerting can watch for forged
// payment confirmations.
type SecurityMetrics struct {
	signatureRejections *prometheus.CounterVec
}

func NewSecurityMetrics(reg prometheus.Registerer) (*SecurityMetrics, error) {
	m := &SecurityMetrics{
		signatureRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_signature_rejections_total",
			Help: "Payment confirmations rejected because the signature did not verify.",
		}, []string{"source"}),
	}
	if err := reg.Register(m.signatureRejections); err != nil {
		return nil, fmt.Errorf("register webhook_signature_rejections_total: %w", err)
	}
	return m, nil
}

func (m *SecurityMetrics) SignatureRejected(source string) {
	if m == nil {
		return
	}
	m.signatureRejections.WithLabelValues(source).Inc()
}
