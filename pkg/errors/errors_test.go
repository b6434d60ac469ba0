package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestCopiesMatchSentinelWithErrorsIs(t *testing.T) {
	sentinel := New("NOTIFICATION_NOT_FOUND", "Notification not found", http.StatusNotFound)
	wrapped := fmt.Errorf("load: %w", sentinel.WithInternal(stdErrors.New("record not found")))

	if !stdErrors.Is(wrapped, sentinel) {
		t.Fatal("expected wrapped copy to match its sentinel")
	}
	if stdErrors.Is(wrapped, ErrForbidden) {
		t.Fatal("expected copy not to match an unrelated sentinel")
	}
}

func TestWithMessageKeepsCode(t *testing.T) {
	custom := ErrUnprocessable.WithMessage("type is required")
	if custom.Code != ErrUnprocessable.Code {
		t.Fatalf("expected code %s, got %s", ErrUnprocessable.Code, custom.Code)
	}
	if ErrUnprocessable.Message == custom.Message {
		t.Fatal("expected original message to remain unchanged")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}
