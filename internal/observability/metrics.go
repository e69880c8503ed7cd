package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/trainings take
// - Traffic: Request/job throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (concurrent trainings, webhook queue)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job lifecycle metrics (Latency, Traffic, Errors, Saturation)
	JobsRegistered   metric.Int64Counter
	TrainingDuration metric.Float64Histogram
	TrainingsTotal   metric.Int64Counter
	TrainingErrors   metric.Int64Counter
	TrainingsActive  metric.Int64UpDownCounter

	// Webhook notifier metrics (Latency, Traffic, Errors, Saturation)
	WebhookDuration  metric.Float64Histogram
	WebhookDelivered metric.Int64Counter
	WebhookFailed    metric.Int64Counter
	WebhookDropped   metric.Int64Counter
	WebhookQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("trainer")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job lifecycle metrics
	m.JobsRegistered, err = meter.Int64Counter(
		"jobs_registered_total",
		metric.WithDescription("Total number of jobs registered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TrainingDuration, err = meter.Float64Histogram(
		"training_duration_seconds",
		metric.WithDescription("Training task duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TrainingsTotal, err = meter.Int64Counter(
		"trainings_total",
		metric.WithDescription("Total number of training tasks dispatched"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TrainingErrors, err = meter.Int64Counter(
		"training_errors_total",
		metric.WithDescription("Total number of training tasks ending in failure"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TrainingsActive, err = meter.Int64UpDownCounter(
		"trainings_active",
		metric.WithDescription("Number of currently running training tasks (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Webhook notifier metrics
	m.WebhookDuration, err = meter.Float64Histogram(
		"webhook_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookDelivered, err = meter.Int64Counter(
		"webhook_delivered_total",
		metric.WithDescription("Total lifecycle events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookFailed, err = meter.Int64Counter(
		"webhook_failed_total",
		metric.WithDescription("Total lifecycle events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookDropped, err = meter.Int64Counter(
		"webhook_dropped_total",
		metric.WithDescription("Total lifecycle events dropped (buffer full)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookQueueSize, err = meter.Int64Gauge(
		"webhook_queue_size",
		metric.WithDescription("Current number of events in the webhook queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobRegistered records a new job being registered.
func (m *Metrics) RecordJobRegistered(ctx context.Context) {
	m.JobsRegistered.Add(ctx, 1)
}

// RecordTrainingStarted records a training task beginning.
func (m *Metrics) RecordTrainingStarted(ctx context.Context) {
	m.TrainingsTotal.Add(ctx, 1)
	m.TrainingsActive.Add(ctx, 1)
}

// RecordTrainingFinished records a training task ending (success or failure).
func (m *Metrics) RecordTrainingFinished(ctx context.Context, success bool, durationSeconds float64) {
	m.TrainingDuration.Record(ctx, durationSeconds, metric.WithAttributes(successAttr(success)))
	m.TrainingsActive.Add(ctx, -1)

	if !success {
		m.TrainingErrors.Add(ctx, 1)
	}
}

// RecordWebhookDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordWebhookDelivered(ctx context.Context, durationSeconds float64) {
	m.WebhookDelivered.Add(ctx, 1)
	m.WebhookDuration.Record(ctx, durationSeconds)
}

// RecordWebhookFailed records a failed event delivery.
func (m *Metrics) RecordWebhookFailed(ctx context.Context) {
	m.WebhookFailed.Add(ctx, 1)
}

// RecordWebhookDropped records a dropped event.
func (m *Metrics) RecordWebhookDropped(ctx context.Context) {
	m.WebhookDropped.Add(ctx, 1)
}

// RecordWebhookQueueSize records the current queue size.
func (m *Metrics) RecordWebhookQueueSize(ctx context.Context, size int64) {
	m.WebhookQueueSize.Record(ctx, size)
}
