package stepexec_test

import (
	"testing"

	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/policy"
	"github.com/felias-fogg/PyAvrOCD/internal/stepexec"
)

func TestRangeStepFallsBackWhenDisabled(t *testing.T) {
	tgt, _, eng := newEngine(t, policy.Policy{SafeStepping: true}) // RangeStepping left false
	const addr = avr.Addr(0x0800)
	tgt.LoadFlashWord(addr, 0x0000) // NOP
	tgt.ProgramCounterWrite(addr >> 1)

	sig, running := eng.RangeStep(addr, addr+0x10)
	if running {
		t.Fatalf("range-stepping should have fallen back to a single step")
	}
	if sig != stepexec.SIGTRAP {
		t.Fatalf("sig = %v, want SIGTRAP from the single-step fallback", sig)
	}
}

func TestRangeStepMalformedIntervalFallsBack(t *testing.T) {
	tgt, _, eng := newEngine(t, policy.Policy{SafeStepping: true, RangeStepping: true})
	const addr = avr.Addr(0x0810)
	tgt.LoadFlashWord(addr, 0x0000)
	tgt.ProgramCounterWrite(addr >> 1)

	sig, running := eng.RangeStep(addr, addr) // empty interval
	if running {
		t.Fatalf("malformed interval should fall back to a single step")
	}
	if sig != stepexec.SIGTRAP {
		t.Fatalf("sig = %v, want SIGTRAP", sig)
	}
}

// A range with a single RET exit point, and enough hardware slots to
// cover it, resumes execution with a run-to-cursor instead of
// single-stepping through every instruction in the interval, once the
// interval analysis is memoized (the first call always pays for that
// analysis with one single step).
func TestRangeStepCoversSingleExitWithHWBP(t *testing.T) {
	tgt, _, eng := newEngine(t, policy.Policy{SafeStepping: true, RangeStepping: true})
	const start = avr.Addr(0x0900)
	const end = avr.Addr(0x0910)
	const ret = avr.Addr(0x0908)

	for a := start; a < end; a += 2 {
		tgt.LoadFlashWord(a, 0x0000) // NOP filler
	}
	tgt.LoadFlashWord(ret, 0x9508) // RET
	tgt.ProgramCounterWrite(start >> 1)
	// RET needs a plausible stack pointer, though this path never
	// executes it directly - only positions a run-to-cursor on it.
	tgt.StackPointerWrite(tgt.MemoryInfo().SRAMBase + 0x10)

	sig, running := eng.RangeStep(start, end)
	if running {
		t.Fatalf("first call pays for interval analysis with a single step, sig=%v", sig)
	}

	sig, running = eng.RangeStep(start, end)
	if !running {
		t.Fatalf("expected the memoized call to start free execution, sig=%v", sig)
	}
}

// When the starting PC already sits on the lone exit point, RangeStep
// must not try to scaffold around it - it hands off to a single step.
func TestRangeStepStartingOnExitSingleSteps(t *testing.T) {
	tgt, _, eng := newEngine(t, policy.Policy{SafeStepping: true, RangeStepping: true})
	const start = avr.Addr(0x0A00)
	const end = avr.Addr(0x0A10)

	for a := start; a < end; a += 2 {
		tgt.LoadFlashWord(a, 0x0000)
	}
	tgt.LoadFlashWord(start, 0x9508) // RET right at the entry point
	tgt.ProgramCounterWrite(start >> 1)
	tgt.StackPointerWrite(tgt.MemoryInfo().SRAMBase + 0x10)

	sig, running := eng.RangeStep(start, end)
	if running {
		t.Fatalf("starting on the exit point should single-step, not resume")
	}
	if sig != stepexec.SIGTRAP {
		t.Fatalf("sig = %v, want SIGTRAP", sig)
	}
}

func TestResumeExecutionLegacyExec(t *testing.T) {
	tgt, _, eng := newEngine(t, policy.Policy{LegacyExec: true})
	const addr = avr.Addr(0x0B00)
	tgt.LoadFlashWord(addr, 0x0000)
	tgt.ProgramCounterWrite(addr >> 1)

	a := addr
	sig, running := eng.ResumeExecution(&a)
	if !running {
		t.Fatalf("ResumeExecution should report running under legacy exec, sig=%v", sig)
	}
}

func TestResumeExecutionSkipsSleep(t *testing.T) {
	tgt, _, eng := newEngine(t, policy.Policy{SafeStepping: true})
	const addr = avr.Addr(0x0B10)
	tgt.LoadFlashWord(addr, 0x9588) // SLEEP
	tgt.ProgramCounterWrite(addr >> 1)

	a := addr
	sig, running := eng.ResumeExecution(&a)
	if !running {
		t.Fatalf("ResumeExecution should keep running past a SLEEP, sig=%v", sig)
	}
	if tgt.ProgramCounterRead() != (addr+2)>>1 {
		t.Fatalf("PC should have advanced past the skipped SLEEP, got %#x", tgt.ProgramCounterRead())
	}
}

func TestResumeExecutionStrayBreakIsFatal(t *testing.T) {
	tgt, _, eng := newEngine(t, policy.Policy{SafeStepping: true})
	const addr = avr.Addr(0x0B20)
	tgt.LoadFlashWord(addr, 0x9598) // BREAK with no matching descriptor
	tgt.ProgramCounterWrite(addr >> 1)

	a := addr
	sig, running := eng.ResumeExecution(&a)
	if running {
		t.Fatalf("a stray BREAK must not be resumed across")
	}
	if sig != stepexec.SIGILL {
		t.Fatalf("sig = %v, want SIGILL", sig)
	}
}
