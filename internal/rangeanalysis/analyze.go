// Package rangeanalysis builds the exit-point and branch-point sets
// for a half-open flash interval [start, end), the information
// range-stepping needs to decide where temporary hardware breakpoints
// should go.
package rangeanalysis

import "github.com/felias-fogg/PyAvrOCD/internal/avr"

// FlashReader reads a flash word, transparently un-patching any
// software-breakpoint trap in place (see bpreg.ReadFilteredFlashWord).
type FlashReader func(addr avr.Addr) uint16

// Result is the memoized analysis of one interval.
type Result struct {
	Start, End avr.Addr

	// Branch is the ordered list of branch/skip/call/jmp/ret/rcall/
	// rjmp addresses inside the interval, with End appended as a
	// sentinel.
	Branch []avr.Addr

	// Exit is the set of source addresses inside the interval whose
	// instruction cannot be batch-executed past: every indirect
	// transfer (unknown destination), and every conditional or
	// multi-destination instruction with at least one destination
	// outside the interval. A plain straight-line instruction whose
	// sole successor lands exactly on End is not included - that case
	// is already covered by End's place in Branch, the boundary every
	// range-step scaffold runs to regardless of Exit's contents.
	Exit map[avr.Addr]struct{}
}

// Analyzer lazily memoizes range analysis against the last interval
// analyzed.
type Analyzer struct {
	read FlashReader
	last Result
	has  bool
}

// New creates an Analyzer reading flash words through read.
func New(read FlashReader) *Analyzer {
	return &Analyzer{read: read}
}

// Reset discards the memoized interval, forcing the next Analyze call
// to re-walk flash regardless of the interval requested. Callers clear
// memoization this way whenever resume_execution or a fresh
// single_step invalidates any assumption the last range analysis made
// about what is in flash (a SWBP trap coming or going, for instance).
func (a *Analyzer) Reset() {
	a.has = false
}

// Analyze returns the analysis of [start, end), re-running the walk
// only if the interval differs from the last one analyzed. changed
// reports whether a fresh analysis was performed.
func (a *Analyzer) Analyze(start, end avr.Addr) (result Result, changed bool) {
	if a.has && a.last.Start == start && a.last.End == end {
		return a.last, false
	}

	r := Result{Start: start, End: end, Exit: make(map[avr.Addr]struct{})}

	words := make([]uint16, 0, (end-start)/2+1)
	for addr := start; addr <= end; addr += 2 {
		words = append(words, a.read(addr))
	}

	i := 0
	for i < len(words)-1 {
		addr := start + avr.Addr(i)*2
		op := words[i]
		second := words[i+1]

		if avr.IsBranch(op) {
			r.Branch = append(r.Branch, addr)
		}

		var dests []int64
		indirect := false

		// boundaryIsExit is false for instructions whose only possible
		// successor is the single, statically known next address: if
		// that address lands exactly on End, it's ordinary fall-through
		// off the edge of the interval, not a branch away from it, and
		// End's place in Branch already covers stopping there.
		// Conditional, multi-destination and indirect instructions keep
		// the boundary as an exit because the instruction's outcome
		// isn't known until it executes.
		boundaryIsExit := true

		switch {
		case avr.IsTwoWord(op):
			if avr.IsBranch(op) { // JMP, CALL
				dests = []int64{int64(second) << 1}
			} else { // LDS, STS
				dests = []int64{int64(addr) + 4}
				boundaryIsExit = false
			}
		case !avr.IsBranch(op):
			dests = []int64{int64(addr) + 2}
			boundaryIsExit = false
		case avr.IsSkip(op):
			nextSize := avr.Addr(2)
			if avr.IsTwoWord(second) {
				nextSize = 4
			}
			dests = []int64{int64(addr) + 2, int64(addr) + 2 + int64(nextSize)}
		case avr.IsCondBranch(op):
			dests = []int64{int64(addr) + 2, int64(avr.CondBranchTarget(op, addr))}
		case avr.IsRelBranch(op):
			dests = []int64{int64(avr.RelBranchTarget(op, addr))}
		default: // IJMP, EIJMP, RET, ICALL, RETI, EICALL
			indirect = true
		}

		if indirect {
			r.Exit[addr] = struct{}{}
		} else {
			for _, d := range dests {
				if d < int64(start) || d > int64(end) || (d == int64(end) && boundaryIsExit) {
					r.Exit[addr] = struct{}{}
					break
				}
			}
		}

		step := 1
		if avr.IsTwoWord(op) {
			step = 2
		}
		i += step
	}

	r.Branch = append(r.Branch, end)

	a.last = r
	a.has = true
	return r, true
}
