package stepexec

import (
	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/bpreg"
	"github.com/felias-fogg/PyAvrOCD/internal/coreerr"
	"github.com/felias-fogg/PyAvrOCD/internal/corelog"
	"github.com/felias-fogg/PyAvrOCD/internal/hwbp"
	"github.com/felias-fogg/PyAvrOCD/internal/policy"
	"github.com/felias-fogg/PyAvrOCD/internal/rangeanalysis"
	"github.com/felias-fogg/PyAvrOCD/internal/target"
)

// maxSafeSRAM is the SRAM size above which interrupt-safe stepping's
// register-file assumptions (RAMPx-free, 16-bit SRAM addressing) stop
// holding.
const maxSafeSRAM = 64 * 1024

// Engine implements resume_execution, single_step and range_step. It
// issues the transport's step/run/run_to primitives, either directly
// or through hwbp.Pool.Execute.
type Engine struct {
	tgt  target.Target
	reg  *bpreg.Registry
	pool *hwbp.Pool
	pol  *policy.Store
	ana  *rangeanalysis.Analyzer

	steps             uint64
	scaffoldsBuilt    uint64
	scaffoldFallbacks uint64
}

// Stats reports session-wide step/resume counters (see SPEC_FULL.md
// "Session counters").
type Stats struct {
	StepsExecuted           uint64
	RangeScaffoldsBuilt     uint64
	RangeSingleStepFallback uint64
}

// Stats returns the current engine statistics.
func (e *Engine) Stats() Stats {
	return Stats{
		StepsExecuted:           e.steps,
		RangeScaffoldsBuilt:     e.scaffoldsBuilt,
		RangeSingleStepFallback: e.scaffoldFallbacks,
	}
}

// New creates an Engine bound to tgt/reg/pool/pol. It refuses devices
// the interrupt-safe stepping logic cannot support: anything but
// avr8, or more SRAM than a 16-bit address can safely index without
// RAMPx extensions this decoder does not model.
func New(tgt target.Target, reg *bpreg.Registry, pool *hwbp.Pool, pol *policy.Store) (*Engine, error) {
	dev := tgt.DeviceInfo()
	if dev.Architecture != "avr8" {
		return nil, &coreerr.FatalError{Reason: "unsupported architecture: " + dev.Architecture}
	}
	if tgt.MemoryInfo().SRAMSize > maxSafeSRAM {
		return nil, &coreerr.FatalError{Reason: "SRAM exceeds 64 KiB, interrupt-safe stepping unsupported"}
	}
	e := &Engine{tgt: tgt, reg: reg, pool: pool, pol: pol}
	e.ana = rangeanalysis.New(reg.ReadFilteredFlashWord)
	return e, nil
}

func (e *Engine) positionPC(addr *avr.Addr) avr.Addr {
	if addr != nil {
		e.tgt.ProgramCounterWrite(*addr >> 1)
		return *addr
	}
	return e.tgt.ProgramCounterRead() << 1
}

// ResumeExecution starts free (or run-to-cursor) execution at addr,
// or at the current PC if addr is nil. running is true when execution
// was actually started; sig is only meaningful when running is false.
func (e *Engine) ResumeExecution(addr *avr.Addr) (sig Signal, running bool) {
	e.ana.Reset()
	if err := e.reg.Commit(nil, true); err != nil {
		corelog.Log("stepexec", "resume commit failed: %v", err)
		return SIGABRT, false
	}
	a := e.positionPC(addr)
	opcode := e.reg.ReadFilteredFlashWord(a)
	if opcode == avr.BREAK {
		corelog.Log("stepexec", "stray BREAK at %#x on resume", a)
		return SIGILL, false
	}
	if opcode == avr.SLEEP {
		corelog.Log("stepexec", "skipping SLEEP at %#x", a)
		a += 2
		e.tgt.ProgramCounterWrite(a >> 1)
	}
	if e.pol.Get().LegacyExec {
		e.tgt.Run()
		return 0, true
	}
	e.pool.Execute()
	return 0, true
}

// SingleStep executes exactly one instruction starting at addr (or
// the current PC if nil). fresh controls whether range-step
// memoization is cleared first; range_step passes false so its own
// interval analysis survives a one-instruction detour.
func (e *Engine) SingleStep(addr *avr.Addr, fresh bool) Signal {
	if fresh {
		e.ana.Reset()
	}
	a := e.positionPC(addr)
	opcode := e.reg.ReadFilteredFlashWord(a)

	if opcode == avr.SLEEP {
		corelog.Log("stepexec", "skipping SLEEP at %#x", a)
		a += 2
		e.tgt.ProgramCounterWrite(a >> 1)
		e.steps++
		return SIGTRAP
	}
	if e.pol.Get().LegacyExec {
		e.tgt.Step()
		e.steps++
		return SIGTRAP
	}
	if opcode == avr.BREAK {
		corelog.Log("stepexec", "stray BREAK at %#x on single step", a)
		return SIGILL
	}

	if err := e.reg.Commit(&a, true); err != nil {
		corelog.Log("stepexec", "single-step commit failed: %v", err)
		return SIGABRT
	}

	if !e.stackPointerPlausible(opcode) {
		corelog.Log("stepexec", "stack pointer implausible for opcode %#04x at %#x", opcode, a)
		return SIGBUS
	}

	if d, ok := e.reg.Descriptor(a); ok && d.Alloc == bpreg.Sw && avr.IsTwoWord(d.Opcode) {
		newAddr := e.simulateTwoWord(d.Opcode, d.SecondWord, a)
		e.tgt.ProgramCounterWrite(newAddr >> 1)
		corelog.Log("stepexec", "simulated two-word SWBP instruction at %#x, new pc %#x", a, newAddr)
		e.steps++
		return SIGTRAP
	}

	if !e.pol.Get().SafeStepping {
		e.tgt.Step()
		e.steps++
		return SIGTRAP
	}

	if e.simulateUnsafe(opcode, a) {
		e.steps++
		return SIGTRAP
	}

	sreg := e.tgt.StatusRegisterRead()
	ibit := sreg & 0x80
	e.tgt.StatusRegisterWrite(sreg &^ 0x80)
	e.tgt.Step()
	sreg = e.tgt.StatusRegisterRead()
	e.tgt.StatusRegisterWrite(sreg | ibit)
	e.steps++
	return SIGTRAP
}

func (e *Engine) stackPointerPlausible(opcode uint16) bool {
	sramStart := int(e.tgt.MemoryInfo().SRAMBase)
	sp := int(e.tgt.StackPointerRead())
	switch {
	case avr.IsPop(opcode) || avr.IsRet(opcode):
		return sp >= sramStart-1
	case avr.IsPush(opcode):
		return sp >= sramStart
	case avr.IsCallFamily(opcode):
		return sp >= sramStart+1
	default:
		return true
	}
}

// simulateTwoWord implements §4.D.2: LDS/STS move one byte between a
// register and SRAM; JMP/CALL compute the absolute target, CALL also
// pushing the big-endian return address.
func (e *Engine) simulateTwoWord(opcode, second uint16, addr avr.Addr) avr.Addr {
	switch {
	case avr.IsLDS(opcode):
		reg := avr.Register5(opcode)
		val := e.tgt.SRAMRead(second, 1)[0]
		e.tgt.SRAMWrite(uint16(reg), []byte{val})
		return addr + 4
	case avr.IsSTS(opcode):
		reg := avr.Register5(opcode)
		val := e.tgt.SRAMRead(uint16(reg), 1)[0]
		e.tgt.SRAMWrite(second, []byte{val})
		return addr + 4
	case avr.IsJMP(opcode):
		return jmpTarget(opcode, second)
	case avr.IsCALL(opcode):
		returnWord := (addr + 4) >> 1
		width := 2
		if e.tgt.DeviceInfo().FlashOver128K {
			width = 3
		}
		sp := e.tgt.StackPointerRead() - uint16(width)
		e.tgt.StackPointerWrite(sp)
		buf := make([]byte, width)
		for i := 0; i < width; i++ {
			buf[width-1-i] = byte(returnWord >> uint(8*i))
		}
		e.tgt.SRAMWrite(sp+1, buf)
		return jmpTarget(opcode, second)
	}
	return addr
}

func jmpTarget(opcode, second uint16) avr.Addr {
	return avr.Addr(uint32(second)<<1 | uint32(opcode&1)<<17)
}

// simulateUnsafe implements the §4.D.1 unsafe-instruction filter: the
// small set of opcodes that manipulate or read SREG directly and so
// cannot be safely single-stepped under I-bit masking alone. Returns
// true if it fully handled (and advanced past) the instruction.
func (e *Engine) simulateUnsafe(opcode uint16, addr avr.Addr) bool {
	if avr.IsIBranch(opcode) {
		ibit := e.tgt.StatusRegisterRead()&0x80 != 0
		dest := avr.IBranchTarget(opcode, ibit, addr)
		e.tgt.ProgramCounterWrite(dest >> 1)
		return true
	}

	if avr.IsLDS(opcode) {
		if e.reg.ReadFilteredFlashWord(addr+2) == avr.SREGAddr {
			reg := avr.Register5(opcode)
			val := e.tgt.StatusRegisterRead()
			e.tgt.SRAMWrite(uint16(reg), []byte{val})
			e.tgt.ProgramCounterWrite((addr + 4) >> 1)
			return true
		}
	}
	if avr.IsSTS(opcode) {
		if e.reg.ReadFilteredFlashWord(addr+2) == avr.SREGAddr {
			reg := avr.Register5(opcode)
			val := e.tgt.SRAMRead(uint16(reg), 1)[0]
			e.tgt.StatusRegisterWrite(val)
			e.tgt.ProgramCounterWrite((addr + 4) >> 1)
			return true
		}
	}

	if store, index, preDec, postInc, ok := avr.DecodeIndirectLoadStore(opcode); ok {
		ptr := e.readIndexReg(index)
		eff := ptr
		if preDec {
			eff--
		}
		if eff == avr.SREGAddr {
			e.transferSREG(store, avr.Register5(opcode))
			newPtr := ptr
			if preDec {
				newPtr = eff
			} else if postInc {
				newPtr = ptr + 1
			}
			e.writeIndexReg(index, newPtr)
			e.tgt.ProgramCounterWrite((addr + 2) >> 1)
			return true
		}
	}

	if store, index, disp, ok := avr.DecodeDisplacementLoadStore(opcode); ok {
		ptr := e.readIndexReg(index)
		if ptr+uint16(disp) == avr.SREGAddr {
			e.transferSREG(store, avr.Register5(opcode))
			e.tgt.ProgramCounterWrite((addr + 2) >> 1)
			return true
		}
	}

	if ioAddr, reg, isOut, ok := avr.IsInOut(opcode); ok {
		if ioAddr == avr.SREGAddr-0x20 {
			e.transferSREG(isOut, reg)
			e.tgt.ProgramCounterWrite((addr + 2) >> 1)
			return true
		}
	}

	if avr.IsCLI(opcode) {
		e.tgt.StatusRegisterWrite(e.tgt.StatusRegisterRead() &^ 0x80)
		e.tgt.ProgramCounterWrite((addr + 2) >> 1)
		return true
	}
	if avr.IsSEI(opcode) {
		e.tgt.StatusRegisterWrite(e.tgt.StatusRegisterRead() | 0x80)
		e.tgt.ProgramCounterWrite((addr + 2) >> 1)
		return true
	}

	if avr.IsXCH(opcode) {
		if e.readIndexReg(avr.IndexZ) == avr.SREGAddr {
			reg := avr.Register5(opcode)
			rVal := e.tgt.SRAMRead(uint16(reg), 1)[0]
			sregVal := e.tgt.StatusRegisterRead()
			e.tgt.SRAMWrite(uint16(reg), []byte{sregVal})
			e.tgt.StatusRegisterWrite(rVal)
			e.tgt.ProgramCounterWrite((addr + 2) >> 1)
			return true
		}
	}

	return false
}

func (e *Engine) readIndexReg(index avr.IndexReg) uint16 {
	b := e.tgt.SRAMRead(index.SRAMAddr(), 2)
	return uint16(b[0]) | uint16(b[1])<<8
}

func (e *Engine) writeIndexReg(index avr.IndexReg, val uint16) {
	e.tgt.SRAMWrite(index.SRAMAddr(), []byte{byte(val), byte(val >> 8)})
}

// transferSREG moves one byte between SREG and register reg; store
// true means register -> SREG (the instruction is a store-to-memory
// form targeting the SREG address), false means SREG -> register.
func (e *Engine) transferSREG(store bool, reg uint8) {
	if store {
		val := e.tgt.SRAMRead(uint16(reg), 1)[0]
		e.tgt.StatusRegisterWrite(val)
		return
	}
	val := e.tgt.StatusRegisterRead()
	e.tgt.SRAMWrite(uint16(reg), []byte{val})
}
