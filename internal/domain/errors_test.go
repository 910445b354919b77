package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfTypedAndWrapped(t *testing.T) {
	err := NotFound("book not found")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", KindOf(err))
	}
	wrapped := fmt.Errorf("get book: %w", err)
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("expected wrapped error to keep its kind")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("expected plain error to map to KindUnknown")
	}
}

func TestClientMessageHidesInternals(t *testing.T) {
	inner := errors.New("dial tcp 10.0.0.1:5432: connection refused")
	err := Upstream("error talking to the database", inner)
	if got := ClientMessage(err); got != "error talking to the database" {
		t.Fatalf("unexpected client message %q", got)
	}
	if got := ClientMessage(inner); got != "internal server error" {
		t.Fatalf("untyped error should get a generic message, got %q", got)
	}
	if !errors.Is(err, inner) {
		t.Fatalf("expected Unwrap to reach the inner error")
	}
}
