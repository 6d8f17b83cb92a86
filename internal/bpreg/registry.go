// Package bpreg maps even flash byte-addresses to breakpoint
// descriptors and performs the commit step that reconciles the
// registry with hardware immediately before every resume, step, or
// range-step.
package bpreg

import (
	"math"
	"sort"

	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/coreerr"
	"github.com/felias-fogg/PyAvrOCD/internal/corelog"
	"github.com/felias-fogg/PyAvrOCD/internal/hwbp"
	"github.com/felias-fogg/PyAvrOCD/internal/policy"
	"github.com/felias-fogg/PyAvrOCD/internal/target"
)

// AllocKind is the concrete hardware realization of a breakpoint, or
// the lack of one yet.
type AllocKind int

const (
	Unallocated AllocKind = iota
	Sw
	Hw
)

// Descriptor is the registry's record for one breakpoint address.
type Descriptor struct {
	Active     bool
	Alloc      AllocKind
	Slot       int // meaningful only when Alloc == Hw
	Opcode     uint16
	SecondWord uint16
	Timestamp  uint64
}

// Registry owns the breakpoint descriptors for one debug session.
type Registry struct {
	tgt  target.Target
	pool *hwbp.Pool
	pol  *policy.Store

	descs map[avr.Addr]*Descriptor
	clock uint64

	commits       uint64
	commitFailure uint64
}

// New creates an empty registry.
func New(tgt target.Target, pool *hwbp.Pool, pol *policy.Store) *Registry {
	return &Registry{
		tgt:   tgt,
		pool:  pool,
		pol:   pol,
		descs: make(map[avr.Addr]*Descriptor),
	}
}

// InsertBreakpoint records that the frontend wants to stop at addr.
// In legacy-exec mode it delegates straight to the transport. Odd
// addresses are logged and ignored.
func (r *Registry) InsertBreakpoint(addr avr.Addr) {
	if addr%2 != 0 {
		corelog.Log("bpreg", "breakpoint at odd address %#x ignored", addr)
		return
	}
	if r.pol.Get().LegacyExec {
		r.tgt.SoftwareBreakpointSet(addr)
		return
	}
	if d, ok := r.descs[addr]; ok {
		if !d.Active {
			d.Active = true
			corelog.Log("bpreg", "reactivated breakpoint at %#x", addr)
		}
		return
	}
	r.clock++
	d := &Descriptor{
		Active:     true,
		Alloc:      Unallocated,
		Opcode:     r.tgt.FlashReadWord(addr),
		SecondWord: r.tgt.FlashReadWord(addr + 2),
		Timestamp:  r.clock,
	}
	r.descs[addr] = d
	corelog.Log("bpreg", "new breakpoint at %#x, timestamp %d", addr, d.Timestamp)
}

// RemoveBreakpoint marks the descriptor at addr inactive. In
// legacy-exec mode it issues the immediate clear.
func (r *Registry) RemoveBreakpoint(addr avr.Addr) {
	if addr%2 != 0 {
		corelog.Log("bpreg", "breakpoint at odd address %#x ignored", addr)
		return
	}
	if r.pol.Get().LegacyExec {
		r.tgt.SoftwareBreakpointClear(addr)
		return
	}
	if d, ok := r.descs[addr]; ok {
		d.Active = false
	}
}

// CleanupBreakpoints forgets every descriptor and clears all hardware
// and software breakpoints on the target.
func (r *Registry) CleanupBreakpoints() {
	r.descs = make(map[avr.Addr]*Descriptor)
	r.pool.ClearAll()
	r.tgt.SoftwareBreakpointClearAll()
}

// ReadFilteredFlashWord returns the original opcode captured at
// insert time if a descriptor exists at addr, otherwise the raw
// transport read. Decoders must always go through this so they are
// never fooled by a SWBP trap.
func (r *Registry) ReadFilteredFlashWord(addr avr.Addr) uint16 {
	if d, ok := r.descs[addr]; ok {
		return d.Opcode
	}
	return r.tgt.FlashReadWord(addr)
}

// MaxBPCount reports how many breakpoints may be active at once under
// the current policy.
func (r *Registry) MaxBPCount() int {
	return r.maxAllowed(r.pol.Get())
}

// maxAllowed computes the commit-time breakpoint ceiling for pol. Under
// OnlyHWBPs it's the HWBP slots available or already allocated to a
// breakpoint, less one reserved slot0 comparator when SafeStepping
// needs it for interrupt-safe single-stepping. Otherwise software
// breakpoints make the ceiling effectively unbounded.
func (r *Registry) maxAllowed(pol policy.Policy) int {
	if !pol.OnlyHWBPs {
		return math.MaxInt
	}
	n := r.pool.Available() + r.countAllocated(Hw)
	if pol.SafeStepping {
		n--
	}
	if n < 0 {
		return 0
	}
	return n
}

func (r *Registry) countAllocated(kind AllocKind) int {
	n := 0
	for _, d := range r.descs {
		if d.Alloc == kind {
			n++
		}
	}
	return n
}

// Descriptor exposes a descriptor by address for callers (stepexec,
// rangeanalysis) that need to know whether an address already carries
// a breakpoint, and tests/sessionstats that report on registry state.
func (r *Registry) Descriptor(addr avr.Addr) (Descriptor, bool) {
	d, ok := r.descs[addr]
	if !ok {
		return Descriptor{}, false
	}
	return *d, true
}

// Len reports the number of descriptors held, including inactive ones
// that the next Commit has not yet pruned.
func (r *Registry) Len() int {
	return len(r.descs)
}

// Commit reconciles the registry with the target's hardware
// immediately before a resume, step, or range-step. protectedBP, when
// non-nil, names an address that must survive this commit even if it
// is currently inactive - the stepping engine is about to execute
// exactly one instruction there before the frontend re-arms it.
// releaseTemp frees any outstanding range-step HWBP scaffold first.
func (r *Registry) Commit(protectedBP *avr.Addr, releaseTemp bool) error {
	r.commits++
	pol := r.pol.Get()

	if releaseTemp && r.pool.TempAllocated() > 0 {
		r.pool.ClearTemp()
	}

	for addr, d := range r.descs {
		if d.Alloc == Sw && pol.OnlyHWBPs {
			r.tgt.SoftwareBreakpointClear(addr)
			d.Alloc = Unallocated
		}
		if d.Alloc == Hw && pol.OnlySWBPs {
			r.pool.Clear(addr)
			d.Alloc = Unallocated
		}

		protected := protectedBP != nil && addr == *protectedBP
		if !d.Active && !protected {
			switch d.Alloc {
			case Sw:
				r.tgt.SoftwareBreakpointClear(addr)
			case Hw:
				r.pool.Clear(addr)
			}
			delete(r.descs, addr)
		}
	}

	maxAllowed := r.maxAllowed(pol)
	if len(r.descs) > maxAllowed {
		r.commitFailure++
		return coreerr.Errorf(coreerr.PolicyImpossible, "%d breakpoints requested, %d allowed", len(r.descs), maxAllowed)
	}

	if len(r.descs) == 0 {
		return nil
	}

	if mostRecent := r.mostRecent(); mostRecent != nil &&
		mostRecent.Alloc == Unallocated &&
		r.pool.TempAllocated() == 0 &&
		!pol.OnlySWBPs {
		addr := r.addrOf(mostRecent)
		if evicted, ok := r.pool.UnallocateHWBP0(); ok {
			if ed, ok := r.descs[evicted]; ok {
				ed.Alloc = Unallocated
			}
		}
		if slot, ok := r.pool.Set(addr); ok {
			mostRecent.Alloc = Hw
			mostRecent.Slot = slot
		}
	}

	var pending []*Descriptor
	for _, d := range r.descs {
		if d.Alloc == Unallocated {
			pending = append(pending, d)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Timestamp < pending[j].Timestamp })

	for _, d := range pending {
		addr := r.addrOf(d)
		if !pol.OnlySWBPs {
			if slot, ok := r.pool.Set(addr); ok {
				d.Alloc = Hw
				d.Slot = slot
				continue
			}
		}
		if pol.OnlyHWBPs {
			r.commitFailure++
			return coreerr.Errorf(coreerr.PolicyImpossible, "no hardware breakpoint slot for %#x", addr)
		}
		if !r.tgt.SoftwareBreakpointSet(addr) {
			r.commitFailure++
			return coreerr.Errorf(coreerr.PolicyImpossible, "transport refused software breakpoint at %#x", addr)
		}
		d.Alloc = Sw
	}
	return nil
}

func (r *Registry) mostRecent() *Descriptor {
	var best *Descriptor
	for _, d := range r.descs {
		if best == nil || d.Timestamp > best.Timestamp {
			best = d
		}
	}
	return best
}

func (r *Registry) addrOf(target *Descriptor) avr.Addr {
	for addr, d := range r.descs {
		if d == target {
			return addr
		}
	}
	return 0
}

// Stats reports session-wide commit counters (see SPEC_FULL.md
// "Session counters").
type Stats struct {
	Active         int
	HWAllocated    int
	SWAllocated    int
	Commits        uint64
	CommitFailures uint64
}

// Stats returns the current registry statistics.
func (r *Registry) Stats() Stats {
	s := Stats{Commits: r.commits, CommitFailures: r.commitFailure}
	for _, d := range r.descs {
		if d.Active {
			s.Active++
		}
		switch d.Alloc {
		case Hw:
			s.HWAllocated++
		case Sw:
			s.SWAllocated++
		}
	}
	return s
}
