package stepexec

import (
	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/corelog"
	"github.com/felias-fogg/PyAvrOCD/internal/rangeanalysis"
)

// RangeStep steps through [start, end), breaking only on instructions
// that may leave the interval. It degrades to SingleStep whenever
// range-stepping is unavailable, the interval is malformed, or the
// current position forces a one-instruction detour anyway.
func (e *Engine) RangeStep(start, end avr.Addr) (sig Signal, running bool) {
	pol := e.pol.Get()
	if !pol.RangeStepping || pol.LegacyExec {
		corelog.Log("stepexec", "range stepping disabled, falling back to single step")
		return e.SingleStep(nil, true), false
	}
	if start%2 != 0 || end%2 != 0 || start == end {
		corelog.Log("stepexec", "malformed range [%#x,%#x), falling back to single step", start, end)
		return e.SingleStep(nil, true), false
	}

	result, newRange := e.ana.Analyze(start, end)

	reserve := len(result.Exit)
	if reserve > e.pool.RealSlotCount() || pol.OnlyHWBPs {
		reserve = 1
	}

	pc := e.tgt.ProgramCounterRead() << 1
	if err := e.reg.Commit(&pc, newRange); err != nil {
		corelog.Log("stepexec", "range-step commit failed: %v", err)
		return SIGABRT, false
	}

	if pc < start || pc >= end {
		corelog.Log("stepexec", "pc %#x outside range [%#x,%#x), invariant violated", pc, start, end)
		return e.SingleStep(nil, true), false
	}

	_, exitHere := result.Exit[pc]
	opcodeHere := e.reg.ReadFilteredFlashWord(pc)
	_, swbpHere := e.reg.Descriptor(pc)
	special := opcodeHere == avr.BREAK || opcodeHere == avr.SLEEP
	if exitHere || special || swbpHere || newRange {
		return e.SingleStep(nil, false), false
	}

	if e.pool.TempAllocated() == 0 {
		if pol.OnlyHWBPs && e.pool.Available() == 0 {
			corelog.Log("stepexec", "no HWBP slot available for range-step scaffold")
			return SIGABRT, false
		}
		var addrs []avr.Addr
		if len(result.Exit) <= reserve {
			for a := range result.Exit {
				addrs = append(addrs, a)
			}
		} else {
			addrs = []avr.Addr{nextBranchPoint(result, pc)}
		}
		demoted := e.pool.SetTemp(addrs)
		for _, a := range demoted {
			if e.tgt.SoftwareBreakpointSet(a) {
				corelog.Log("stepexec", "range-step scaffold demoted %#x to SWBP", a)
			}
		}
	}

	if len(result.Exit) <= reserve && e.pool.TempAllocated() >= len(result.Exit) {
		e.scaffoldsBuilt++
		e.pool.Execute()
		return 0, true
	}

	if isBranchPoint(result, pc) {
		e.scaffoldFallbacks++
		return e.SingleStep(nil, false), false
	}
	for _, b := range result.Branch {
		if pc < b {
			e.scaffoldsBuilt++
			e.tgt.RunTo(b)
			return 0, true
		}
	}
	e.scaffoldFallbacks++
	return e.SingleStep(nil, false), false
}

func isBranchPoint(r rangeanalysis.Result, addr avr.Addr) bool {
	for _, b := range r.Branch {
		if b == addr {
			return true
		}
	}
	return false
}

// nextBranchPoint picks the single address to watch when there are
// more exit points than available temporary HWBP slots: the nearest
// branch point strictly after pc, matching the "hop branch-to-branch"
// fallback used once the scaffold can no longer cover every exit.
func nextBranchPoint(r rangeanalysis.Result, pc avr.Addr) avr.Addr {
	for _, b := range r.Branch {
		if pc < b {
			return b
		}
	}
	return r.End
}
