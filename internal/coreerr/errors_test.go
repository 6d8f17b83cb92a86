package coreerr_test

import (
	"errors"
	"testing"

	"github.com/felias-fogg/PyAvrOCD/internal/coreerr"
)

func TestIs(t *testing.T) {
	err := coreerr.Errorf(coreerr.PolicyImpossible, "too many breakpoints")
	if !coreerr.Is(err, coreerr.PolicyImpossible) {
		t.Fatalf("expected PolicyImpossible, got %v", err)
	}
	if coreerr.Is(err, coreerr.IllegalState) {
		t.Fatalf("did not expect IllegalState match")
	}
	if coreerr.Is(nil, coreerr.PolicyImpossible) {
		t.Fatalf("nil error should never match")
	}
}

func TestFatalError(t *testing.T) {
	var err error = &coreerr.FatalError{Reason: "sram exceeds 64KiB"}
	if err.Error() == "" {
		t.Fatalf("expected non-empty message")
	}
	var fe *coreerr.FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected errors.As to find FatalError")
	}
}
