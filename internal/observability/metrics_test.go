package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/models", 201, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/models/abc123", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/models/xyz789", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "PUT", "/v1/models/abc123", 409, 0.002)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/models", 500, 0.001)
}

func TestRecordTrainingMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordJobRegistered(ctx)
	metrics.RecordTrainingStarted(ctx)
	metrics.RecordTrainingFinished(ctx, true, 42.0)
	metrics.RecordTrainingStarted(ctx)
	metrics.RecordTrainingFinished(ctx, false, 120.0)
}

func TestRecordWebhookMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordWebhookDelivered(ctx, 0.05)
	metrics.RecordWebhookFailed(ctx)
	metrics.RecordWebhookDropped(ctx)
	metrics.RecordWebhookQueueSize(ctx, 3)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/readyz", "/readyz"},
		{"/v1/models", "/v1/models"},
		{"/v1/models/abc123", "/v1/models/{modelId}"},
		{"/v1/models/abc123/trainingset", "/v1/models/{modelId}/trainingset"},
		{"/v1/models/abc123/artifacts/abc123.zip", "/v1/models/{modelId}/artifacts/{artifact}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
