// Package hwbp manages the target's fixed-size hardware-breakpoint
// comparator slots, including the transient "temporary" overlay used
// by range-stepping.
//
// Slot 0 is special: the probe uses it as the implicit comparator for
// the single-shot "run until address" primitive, so it is allocated
// and freed without the wire effects slots 1 and above have - see
// Execute.
package hwbp

import (
	"sort"

	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/corelog"
	"github.com/felias-fogg/PyAvrOCD/internal/target"
)

// Pool tracks which hardware-breakpoint slots hold which byte
// addresses. It does not know anything about software breakpoints;
// the breakpoint registry decides when an address should live here
// versus in flash.
type Pool struct {
	tgt target.Target

	// slots[0] is the run-to comparator, slots[1:] are real HWBPs.
	slots []*avr.Addr

	// timestamp of the request that put each slot's occupant there,
	// used to steal the oldest allocation when set_temp needs more
	// slots than are free.
	stamped []uint64
	clock   uint64

	// slot indices reserved by the most recent set_temp call, so
	// clear_temp can free exactly those and nothing else.
	temp []int
}

// New creates a pool with the given number of hardware-breakpoint
// slots total, including slot 0's implicit run-to comparator.
// hwbpCount must be at least 1.
func New(tgt target.Target, hwbpCount int) *Pool {
	return &Pool{
		tgt:     tgt,
		slots:   make([]*avr.Addr, hwbpCount),
		stamped: make([]uint64, hwbpCount),
	}
}

// RealSlotCount returns the number of slots usable as a standing
// hardware breakpoint - every slot except the implicit run-to slot 0.
func (p *Pool) RealSlotCount() int {
	return len(p.slots) - 1
}

// Available returns the number of free slots, including slot 0.
func (p *Pool) Available() int {
	n := 0
	for _, s := range p.slots {
		if s == nil {
			n++
		}
	}
	return n
}

// Find reports the slot currently holding addr, if any.
func (p *Pool) Find(addr avr.Addr) (slot int, ok bool) {
	for i, s := range p.slots {
		if s != nil && *s == addr {
			return i, true
		}
	}
	return 0, false
}

// Set allocates the lowest-indexed free slot for addr. The wire
// comparator write is issued only for slots 1 and above; slot 0 is
// programmed implicitly by Execute when the run starts.
func (p *Pool) Set(addr avr.Addr) (slot int, ok bool) {
	for i, s := range p.slots {
		if s == nil {
			p.clock++
			a := addr
			p.slots[i] = &a
			p.stamped[i] = p.clock
			if i >= 1 {
				p.tgt.HardwareBreakpointSet(i, addr)
			}
			return i, true
		}
	}
	return 0, false
}

// Clear frees the slot holding addr, issuing a wire clear for slots 1
// and above.
func (p *Pool) Clear(addr avr.Addr) bool {
	slot, ok := p.Find(addr)
	if !ok {
		return false
	}
	p.clearSlot(slot)
	return true
}

func (p *Pool) clearSlot(slot int) {
	p.slots[slot] = nil
	p.stamped[slot] = 0
	if slot >= 1 {
		p.tgt.HardwareBreakpointClear(slot)
	}
}

// ClearAll forgets every slot and issues a wire clear for every slot
// 1 and above.
func (p *Pool) ClearAll() {
	for i := range p.slots {
		if p.slots[i] != nil {
			p.clearSlot(i)
		}
	}
	p.temp = nil
}

// UnallocateHWBP0 frees slot 0 cleanly.
//
// If a free slot at index 1 or above exists, the slot-0 occupant is
// migrated there and UnallocateHWBP0 returns (0, false) - nothing for
// the caller to do. Otherwise, if there is only one HWBP slot total
// (no slots above 0 exist), the slot-0 address is returned so the
// caller can demote it to a software breakpoint. Otherwise slot 1's
// occupant is evicted (and returned for demotion) and slot 0's
// address takes its place.
func (p *Pool) UnallocateHWBP0() (evicted avr.Addr, ok bool) {
	if p.slots[0] == nil {
		return 0, false
	}
	addr := *p.slots[0]
	for i := 1; i < len(p.slots); i++ {
		if p.slots[i] == nil {
			a := addr
			p.slots[i] = &a
			p.stamped[i] = p.stamped[0]
			p.tgt.HardwareBreakpointSet(i, addr)
			p.slots[0] = nil
			p.stamped[0] = 0
			return 0, false
		}
	}
	if len(p.slots) == 1 {
		p.slots[0] = nil
		p.stamped[0] = 0
		return addr, true
	}
	evictedAddr := *p.slots[1]
	a := addr
	p.slots[1] = &a
	p.stamped[1] = p.stamped[0]
	p.tgt.HardwareBreakpointSet(1, addr)
	p.slots[0] = nil
	p.stamped[0] = 0
	return evictedAddr, true
}

// SetTemp attempts to reserve hardware breakpoints for every address
// in addrs on behalf of a range-step scaffold. It first vacates slot
// 0 (possibly demoting whatever it held to a software breakpoint),
// then allocates free slots, then - if still short - evicts the
// oldest existing hardware breakpoints one at a time. It returns the
// full list of addresses the caller must now realize as software
// breakpoints, because they could not be kept as hardware ones.
func (p *Pool) SetTemp(addrs []avr.Addr) []avr.Addr {
	var demote []avr.Addr
	if evicted, ok := p.UnallocateHWBP0(); ok {
		demote = append(demote, evicted)
	}

	pending := append([]avr.Addr(nil), addrs...)
	for len(pending) > 0 {
		a := pending[0]
		if slot, ok := p.Set(a); ok {
			p.temp = append(p.temp, slot)
			pending = pending[1:]
			continue
		}

		victim, ok := p.oldestNonTemp()
		if !ok {
			// nothing left to steal; everything remaining must be SW.
			demote = append(demote, pending...)
			break
		}
		addr := *p.slots[victim]
		p.clearSlot(victim)
		demote = append(demote, addr)
	}
	return demote
}

func (p *Pool) oldestNonTemp() (slot int, ok bool) {
	type cand struct {
		slot  int
		stamp uint64
	}
	var cands []cand
	for i, s := range p.slots {
		if s == nil || p.isTemp(i) {
			continue
		}
		cands = append(cands, cand{i, p.stamped[i]})
	}
	if len(cands) == 0 {
		return 0, false
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].stamp < cands[j].stamp })
	return cands[0].slot, true
}

func (p *Pool) isTemp(slot int) bool {
	for _, t := range p.temp {
		if t == slot {
			return true
		}
	}
	return false
}

// ClearTemp frees every slot reserved by the most recent SetTemp
// call, leaving any non-temporary hardware breakpoint untouched.
func (p *Pool) ClearTemp() {
	for _, slot := range p.temp {
		if p.slots[slot] != nil {
			p.clearSlot(slot)
		}
	}
	p.temp = nil
}

// TempAllocated returns the number of slots currently held by an
// outstanding temporary reservation; 0 means none is outstanding.
func (p *Pool) TempAllocated() int {
	return len(p.temp)
}

// Execute starts execution on the target: a run-to-cursor using slot
// 0's address if one is set, otherwise a plain run.
func (p *Pool) Execute() {
	if p.slots[0] != nil {
		addr := *p.slots[0]
		corelog.Log("hwbp", "run to cursor at %#x", addr)
		p.tgt.RunTo(addr)
		return
	}
	corelog.Log("hwbp", "run without cursor")
	p.tgt.Run()
}
