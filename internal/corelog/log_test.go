package corelog_test

import (
	"strings"
	"testing"

	"github.com/felias-fogg/PyAvrOCD/internal/corelog"
)

func TestLog(t *testing.T) {
	corelog.Clear()

	var sb strings.Builder
	corelog.Write(&sb)
	if sb.String() != "" {
		t.Fatalf("expected empty log, got %q", sb.String())
	}

	corelog.Log("test", "this is a test")
	sb.Reset()
	corelog.Write(&sb)
	if got, want := sb.String(), "test: this is a test\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	corelog.Log("test2", "this is another test")
	sb.Reset()
	corelog.Write(&sb)
	want := "test: this is a test\ntest2: this is another test\n"
	if got := sb.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	sb.Reset()
	corelog.Tail(&sb, 1)
	if got, want := sb.String(), "test2: this is another test\n"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	sb.Reset()
	corelog.Tail(&sb, 0)
	if got := sb.String(); got != "" {
		t.Fatalf("expected no entries, got %q", got)
	}
}
