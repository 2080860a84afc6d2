package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_ErrorString(t *testing.T) {
	err := NewNotFoundError("stream")
	if got := err.Error(); got != "NOT_FOUND: stream not found" {
		t.Fatalf("unexpected error string: %q", got)
	}

	wrapped := WrapError(errors.New("boom"), ErrCodeInternal, "internal error", http.StatusInternalServerError)
	if got := wrapped.Error(); got != "INTERNAL_ERROR: internal error (caused by: boom)" {
		t.Fatalf("unexpected wrapped error string: %q", got)
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := WrapError(cause, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the cause")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewInvalidStateError("cannot delete live stream").
		WithContext("stream_id", "s1").
		WithContext("status", "live")

	if err.Context["stream_id"] != "s1" {
		t.Fatalf("missing stream_id context: %v", err.Context)
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Fatalf("expected 409, got %d", err.HTTPStatus)
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewForbiddenError("nope")

	if got := GetAppError(appErr); got != appErr {
		t.Fatal("expected identity for direct AppError")
	}

	chained := fmt.Errorf("handler: %w", appErr)
	if got := GetAppError(chained); got != appErr {
		t.Fatal("expected GetAppError to unwrap the chain")
	}

	if got := GetAppError(errors.New("plain")); got != nil {
		t.Fatalf("expected nil for plain error, got %v", got)
	}
	if got := GetAppError(nil); got != nil {
		t.Fatalf("expected nil for nil error, got %v", got)
	}
}

func TestConstructors_StatusCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
		code   ErrorCode
	}{
		{NewInvalidInputError("bad"), http.StatusBadRequest, ErrCodeInvalidInput},
		{NewNotFoundError("stream"), http.StatusNotFound, ErrCodeNotFound},
		{NewUnauthorizedError("who"), http.StatusUnauthorized, ErrCodeUnauthorized},
		{NewForbiddenError("no"), http.StatusForbidden, ErrCodeForbidden},
		{NewInvalidStateError("state"), http.StatusConflict, ErrCodeInvalidState},
		{NewRateLimitError(), http.StatusTooManyRequests, ErrCodeRateLimit},
		{NewInternalError("oops"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tc := range cases {
		if tc.err.HTTPStatus != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.err.Code, tc.status, tc.err.HTTPStatus)
		}
		if tc.err.Code != tc.code {
			t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
		}
	}
}
