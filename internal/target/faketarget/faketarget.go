// Package faketarget provides an in-memory target.Target for tests
// and the coreharness demo tool, grounded on the teacher's minimal
// fake-memory-for-CPU-tests pattern.
package faketarget

import (
	"github.com/felias-fogg/PyAvrOCD/internal/corelog"
	"github.com/felias-fogg/PyAvrOCD/internal/target"
)

// Target is a flat-memory fake of the on-chip-debug transport: flash
// and SRAM are plain byte slices, breakpoints are recorded rather than
// realized against wire hardware, and execution primitives just log
// and move the program counter in the obvious way so tests can drive
// a whole session without a probe attached.
type Target struct {
	flash []byte // byte-addressed, little-endian words
	sram  []byte

	sw  map[uint32]bool
	hw  map[int]uint32
	pc  uint32 // word address
	sp  uint16
	sreg uint8

	mem MemoryState
	dev target.DeviceInfo

	runTo  *uint32
	stopped bool
	steps   int

	// LatencyPerCall, when non-zero, is slept before every flash read,
	// breakpoint set/clear and execution primitive (see latency.go);
	// the PC, SREG, SP and SRAM accessors are not delayed. Zero
	// means no artificial delay, the default and the only mode used
	// outside of the latency-specific tests.
	LatencyPerCall NanoDuration
}

// MemoryState mirrors target.MemoryInfo; kept distinct so New can
// build the backing slices before MemoryInfo() has anything to
// report.
type MemoryState struct {
	PageSize  int
	FlashSize int
	SRAMBase  uint16
	SRAMSize  int
}

// New creates a fake target with the given memory geometry and
// device properties. Flash and SRAM start zeroed. The SRAM slice is
// indexed by data-space address, so it covers everything from address
// 0 up to SRAMBase+SRAMSize-1.
func New(mem MemoryState, dev target.DeviceInfo) *Target {
	return &Target{
		flash: make([]byte, mem.FlashSize),
		sram:  make([]byte, int(mem.SRAMBase)+mem.SRAMSize),
		sw:    make(map[uint32]bool),
		hw:    make(map[int]uint32),
		mem:   mem,
		dev:   dev,
	}
}

// LoadFlashWord writes a 16-bit little-endian word at a byte address,
// the fixture-building primitive tests use to lay down a program.
func (t *Target) LoadFlashWord(addr uint32, word uint16) {
	t.flash[addr] = byte(word)
	t.flash[addr+1] = byte(word >> 8)
}

func (t *Target) FlashReadWord(addr uint32) uint16 {
	t.sleep()
	return uint16(t.flash[addr]) | uint16(t.flash[addr+1])<<8
}

func (t *Target) SoftwareBreakpointSet(addr uint32) bool {
	t.sleep()
	t.sw[addr] = true
	corelog.Log("faketarget", "swbp set at %#x", addr)
	return true
}

func (t *Target) SoftwareBreakpointClear(addr uint32) {
	t.sleep()
	delete(t.sw, addr)
}

func (t *Target) SoftwareBreakpointClearAll() {
	t.sleep()
	t.sw = make(map[uint32]bool)
}

func (t *Target) HardwareBreakpointSet(slot int, addr uint32) {
	t.sleep()
	t.hw[slot] = addr
}

func (t *Target) HardwareBreakpointClear(slot int) {
	t.sleep()
	delete(t.hw, slot)
}

func (t *Target) ProgramCounterRead() uint32  { return t.pc }
func (t *Target) ProgramCounterWrite(w uint32) { t.pc = w }

func (t *Target) StatusRegisterRead() uint8   { return t.sreg }
func (t *Target) StatusRegisterWrite(v uint8) { t.sreg = v }

func (t *Target) StackPointerRead() uint16   { return t.sp }
func (t *Target) StackPointerWrite(v uint16) { t.sp = v }

func (t *Target) SRAMRead(addr uint16, length int) []byte {
	out := make([]byte, length)
	copy(out, t.sram[addr:int(addr)+length])
	return out
}

func (t *Target) SRAMWrite(addr uint16, data []byte) {
	copy(t.sram[addr:], data)
}

// Step advances the fake PC by one instruction word. It does not
// decode the opcode; callers that need real flow control should drive
// ProgramCounterWrite directly, as stepexec does when it simulates an
// instruction rather than delegating to Step.
func (t *Target) Step() {
	t.sleep()
	t.stopped = false
	t.steps++
	t.pc++
	corelog.Log("faketarget", "step to word address %#x", t.pc)
}

// StepCount reports how many times Step has issued a real wire step,
// for tests asserting that stepexec's instruction simulation paths
// avoid the transport entirely.
func (t *Target) StepCount() int { return t.steps }

// Run marks the target as free-running. Tests that need Run to stop
// at a breakpoint call StopAt (see below) to simulate the probe's own
// breakpoint-triggered halt.
func (t *Target) Run() {
	t.sleep()
	t.stopped = false
	corelog.Log("faketarget", "run")
}

func (t *Target) RunTo(addr uint32) {
	t.sleep()
	t.stopped = false
	a := addr
	t.runTo = &a
	corelog.Log("faketarget", "run to %#x", addr)
}

func (t *Target) Stop() {
	t.sleep()
	t.stopped = true
	t.runTo = nil
}

// StopAt simulates the probe reaching addr (a byte address) during a
// Run/RunTo and halting there, for tests that need to assert on PC
// after a resume.
func (t *Target) StopAt(addr uint32) {
	t.pc = addr >> 1
	t.stopped = true
	t.runTo = nil
}

// Stopped reports whether the fake target believes it is halted.
func (t *Target) Stopped() bool { return t.stopped }

// SoftwareBreakpointAt reports whether addr currently carries a fake
// software breakpoint, for assertions in registry and core tests.
func (t *Target) SoftwareBreakpointAt(addr uint32) bool { return t.sw[addr] }

// HardwareBreakpointAt reports the address held in slot, if any.
func (t *Target) HardwareBreakpointAt(slot int) (uint32, bool) {
	a, ok := t.hw[slot]
	return a, ok
}

func (t *Target) MemoryInfo() target.MemoryInfo {
	return target.MemoryInfo{
		PageSize:  t.mem.PageSize,
		FlashSize: t.mem.FlashSize,
		SRAMBase:  t.mem.SRAMBase,
		SRAMSize:  t.mem.SRAMSize,
	}
}

func (t *Target) DeviceInfo() target.DeviceInfo { return t.dev }

var _ target.Target = (*Target)(nil)
