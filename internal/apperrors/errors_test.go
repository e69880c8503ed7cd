package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("test_size", "test_size must be in (0, 1]")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "test_size must be in (0, 1]" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "test_size" {
		t.Errorf("expected field 'test_size', got %q", appErr.Field)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	err := NotFound("job", "abc123")

	if !errors.Is(err, ErrNotFound) {
		t.Error("expected error to match ErrNotFound")
	}
	if err.Error() != "job abc123 not found" {
		t.Errorf("expected message 'job abc123 not found', got %q", err.Error())
	}
}

func TestConflict(t *testing.T) {
	t.Parallel()
	err := Conflict("job", "abc123", "job already dispatched")

	if !errors.Is(err, ErrConflict) {
		t.Error("expected error to match ErrConflict")
	}
	if err.Error() != "job already dispatched" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestNotReady(t *testing.T) {
	t.Parallel()
	err := NotReady("artifact", "model not trained yet, current stage: training")

	if !errors.Is(err, ErrNotReady) {
		t.Error("expected error to match ErrNotReady")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("NotReady must not classify as Conflict")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Resource != "artifact" {
		t.Errorf("expected resource 'artifact', got %q", appErr.Resource)
	}
}

func TestUnavailable(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("connection refused")
	err := Unavailable("store.get", cause)

	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected error to match ErrUnavailable")
	}
	if err.Error() != "store.get: connection refused" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", Validation("f", "bad"), http.StatusBadRequest},
		{"not found", NotFound("job", "x"), http.StatusNotFound},
		{"conflict", Conflict("job", "x", "busy"), http.StatusConflict},
		{"not ready", NotReady("artifact", "not trained"), http.StatusConflict},
		{"unavailable", Unavailable("store.ping", fmt.Errorf("down")), http.StatusServiceUnavailable},
		{"internal", Internal("op", fmt.Errorf("boom")), http.StatusInternalServerError},
		{"plain error", fmt.Errorf("unclassified"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tt.err); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		kind string
	}{
		{Validation("f", "bad"), "invalid_input"},
		{NotFound("job", "x"), "not_found"},
		{Conflict("job", "x", "busy"), "conflict"},
		{NotReady("artifact", "not trained"), "not_ready"},
		{Unavailable("blob.put", fmt.Errorf("down")), "unavailable"},
		{fmt.Errorf("unclassified"), "internal"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.kind {
			t.Errorf("Kind(%v) = %q, expected %q", tt.err, got, tt.kind)
		}
	}
}
