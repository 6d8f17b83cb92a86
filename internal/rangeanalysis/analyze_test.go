package rangeanalysis_test

import (
	"testing"

	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/rangeanalysis"
)

// program lays down NOP, NOP, ... RET at 0x0118, matching spec.md §8
// scenario 3: a single RET inside a debugWIRE-sized range.
func nopsThenRet(retAt avr.Addr) rangeanalysis.FlashReader {
	return func(addr avr.Addr) uint16 {
		if addr == retAt {
			return 0x9508 // RET
		}
		return 0x0000 // NOP
	}
}

func TestAnalyzeSingleRet(t *testing.T) {
	read := nopsThenRet(0x0118)
	a := rangeanalysis.New(read)

	res, changed := a.Analyze(0x0100, 0x0120)
	if !changed {
		t.Fatalf("expected first analysis to report changed=true")
	}
	if _, ok := res.Exit[0x0118]; !ok || len(res.Exit) != 1 {
		t.Fatalf("expected exit set {0x118}, got %v", res.Exit)
	}
	want := []avr.Addr{0x0118, 0x0120}
	if len(res.Branch) != len(want) {
		t.Fatalf("branch list %v, want %v", res.Branch, want)
	}
	for i := range want {
		if res.Branch[i] != want[i] {
			t.Fatalf("branch list %v, want %v", res.Branch, want)
		}
	}
}

func TestAnalyzeMemoizes(t *testing.T) {
	calls := 0
	read := func(addr avr.Addr) uint16 {
		calls++
		return 0x0000
	}
	a := rangeanalysis.New(read)

	_, changed := a.Analyze(0x0200, 0x0210)
	if !changed {
		t.Fatalf("first call should report changed")
	}
	firstCalls := calls

	_, changed = a.Analyze(0x0200, 0x0210)
	if changed {
		t.Fatalf("repeated call with identical interval should not re-analyze")
	}
	if calls != firstCalls {
		t.Fatalf("memoized call should not re-read flash, got %d extra reads", calls-firstCalls)
	}
}

func TestAnalyzeRelativeBranchExit(t *testing.T) {
	// RJMP -2 at 0x0100 (branches to itself - inside range) should not
	// be an exit; RJMP +0x10 at 0x0102 jumps outside [0x0100,0x0104).
	read := func(addr avr.Addr) uint16 {
		switch addr {
		case 0x0100:
			return 0xCFFF // RJMP -2 -> 0x0100
		case 0x0102:
			return 0xC008 // RJMP +16 -> 0x0102+2+16 = 0x0114
		default:
			return 0x0000
		}
	}
	a := rangeanalysis.New(read)
	res, _ := a.Analyze(0x0100, 0x0104)
	if _, ok := res.Exit[0x0100]; ok {
		t.Fatalf("self-branch should not be an exit point")
	}
	if _, ok := res.Exit[0x0102]; !ok {
		t.Fatalf("branch leaving the range must be an exit point")
	}
}
