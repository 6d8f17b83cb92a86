// Package core wires the breakpoint registry, hardware-breakpoint
// pool and step/resume engine into the single object an RSP server,
// REPL harness, or diagnostic dashboard drives. It carries no wire
// protocol of its own; §1's GDB remote-serial framing stays a layer
// above this package, exactly as spec.md's External API names it.
package core

import (
	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/bpreg"
	"github.com/felias-fogg/PyAvrOCD/internal/hwbp"
	"github.com/felias-fogg/PyAvrOCD/internal/policy"
	"github.com/felias-fogg/PyAvrOCD/internal/sessionstats"
	"github.com/felias-fogg/PyAvrOCD/internal/stepexec"
	"github.com/felias-fogg/PyAvrOCD/internal/target"
)

// Core is the composition root. It is not safe for concurrent use
// from more than one goroutine, matching the single cooperative
// driving loop spec.md §5 assumes.
type Core struct {
	tgt  target.Target
	reg  *bpreg.Registry
	pool *hwbp.Pool
	pol  *policy.Store
	eng  *stepexec.Engine
}

// New wires a Core against tgt. hwbpCount is the total number of
// hardware-breakpoint comparator slots the probe exposes, including
// the implicit run-to comparator in slot 0. New fails only when tgt's
// device properties are architecturally unsupported (see
// stepexec.New).
func New(tgt target.Target, hwbpCount int, pol policy.Policy) (*Core, error) {
	store := policy.NewStore(pol)
	pool := hwbp.New(tgt, hwbpCount)
	reg := bpreg.New(tgt, pool, store)
	eng, err := stepexec.New(tgt, reg, pool, store)
	if err != nil {
		return nil, err
	}
	return &Core{tgt: tgt, reg: reg, pool: pool, pol: store, eng: eng}, nil
}

// InsertBreakpoint records that the frontend wants to stop at addr.
func (c *Core) InsertBreakpoint(addr avr.Addr) { c.reg.InsertBreakpoint(addr) }

// RemoveBreakpoint marks the breakpoint at addr inactive.
func (c *Core) RemoveBreakpoint(addr avr.Addr) { c.reg.RemoveBreakpoint(addr) }

// CleanupBreakpoints forgets every breakpoint and clears the
// transport's hardware and software traps.
func (c *Core) CleanupBreakpoints() { c.reg.CleanupBreakpoints() }

// ResumeExecution starts free (or run-to-cursor) execution at addr,
// or the current PC if addr is nil.
func (c *Core) ResumeExecution(addr *avr.Addr) (stepexec.Signal, bool) {
	return c.eng.ResumeExecution(addr)
}

// SingleStep executes exactly one instruction at addr, or the current
// PC if addr is nil.
func (c *Core) SingleStep(addr *avr.Addr) stepexec.Signal {
	return c.eng.SingleStep(addr, true)
}

// RangeStep steps through [start, end), stopping only on instructions
// that may leave the interval.
func (c *Core) RangeStep(start, end avr.Addr) (stepexec.Signal, bool) {
	return c.eng.RangeStep(start, end)
}

// MaxBPCount reports how many breakpoints the current policy allows
// active at once.
func (c *Core) MaxBPCount() int { return c.reg.MaxBPCount() }

// SetPolicy replaces the active policy snapshot; the out-of-scope
// monitor subsystem calls this in response to a GDB "monitor" command.
func (c *Core) SetPolicy(pol policy.Policy) { c.pol.Set(pol) }

// Policy returns the currently active policy snapshot.
func (c *Core) Policy() policy.Policy { return c.pol.Get() }

// BreakpointStats, StepStats and FreeHWBPSlots implement
// sessionstats.Source, letting a dashboard poll live counters without
// this package depending on the charting stack.
func (c *Core) BreakpointStats() bpreg.Stats { return c.reg.Stats() }
func (c *Core) StepStats() stepexec.Stats    { return c.eng.Stats() }
func (c *Core) FreeHWBPSlots() int           { return c.pool.Available() }

// Stats bundles the session counters breakexec.py and monitor.py only
// ever surfaced piecemeal through debug logging into a single
// snapshot, the struct sessionstats charts over time.
func (c *Core) Stats() sessionstats.Counters { return sessionstats.Snapshot(c) }
