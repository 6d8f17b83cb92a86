package avr_test

import (
	"testing"

	"github.com/felias-fogg/PyAvrOCD/internal/avr"
)

func TestIsTwoWord(t *testing.T) {
	cases := []struct {
		name string
		op   uint16
		want bool
	}{
		{"LDS", 0x9000, true},
		{"STS", 0x9200, true},
		{"JMP", 0x940C, true},
		{"CALL", 0x940E, true},
		{"NOP", 0x0000, false},
		{"RJMP", 0xC000, false},
	}
	for _, c := range cases {
		if got := avr.IsTwoWord(c.op); got != c.want {
			t.Errorf("%s: IsTwoWord(%#04x) = %v, want %v", c.name, c.op, got, c.want)
		}
	}
}

func TestRelBranchTarget(t *testing.T) {
	// RJMP -2 (0xCFFF) at 0x0100 jumps back to itself.
	if got := avr.RelBranchTarget(0xCFFF, 0x0100); got != 0x0100 {
		t.Errorf("RJMP -2 at 0x100 = %#x, want 0x100", got)
	}
	// RJMP +8 words (0xC008) at 0x0102.
	// rdist=8 -> target = addr+2+2*8 = addr+18
	if got := avr.RelBranchTarget(0xC008, 0x0102); got != 0x0102+2+16 {
		t.Errorf("RJMP +8 at 0x102 = %#x, want %#x", got, 0x0102+18)
	}
}

func TestCondBranchTarget(t *testing.T) {
	// BREQ +2 words: opcode bits 3-9 = 2 -> target = addr+2+4
	op := uint16(0xF001 &^ 0x0007) // BREQ template with rdist encoded separately
	op = (2 << 3) | 0xF000 | 0x0001
	if got := avr.CondBranchTarget(op, 0x0200); got != 0x0200+2+4 {
		t.Errorf("BREQ +2 at 0x200 = %#x, want %#x", got, 0x0200+6)
	}
}

func TestIBranchTaken(t *testing.T) {
	// BRIE (branch if I set): op&0x0400 == 0
	brie := uint16(0xF007)
	if !avr.IBranchTaken(brie, true) {
		t.Errorf("BRIE with I=1 should be taken")
	}
	if avr.IBranchTaken(brie, false) {
		t.Errorf("BRIE with I=0 should not be taken")
	}
	// BRID (branch if I clear): op&0x0400 != 0
	brid := uint16(0xF407)
	if !avr.IBranchTaken(brid, false) {
		t.Errorf("BRID with I=0 should be taken")
	}
}

func TestIsBclrBset(t *testing.T) {
	if bit, set, ok := avr.IsBclrBset(avr.BREAK); ok {
		t.Errorf("BREAK misclassified as BCLR/BSET (bit=%d set=%v)", bit, set)
	}
	if bit, set, ok := avr.IsBclrBset(0x9478); !ok || bit != 7 || !set { // SEI
		t.Errorf("SEI: bit=%d set=%v ok=%v, want bit=7 set=true ok=true", bit, set, ok)
	}
	if bit, set, ok := avr.IsBclrBset(0x94F8); !ok || bit != 7 || set { // CLI
		t.Errorf("CLI: bit=%d set=%v ok=%v, want bit=7 set=false ok=true", bit, set, ok)
	}
}

func TestDecodeIndirectLoadStore(t *testing.T) {
	// LD R0, Z+ (post-increment): opcode 0x9001
	store, index, preDec, postInc, ok := avr.DecodeIndirectLoadStore(0x9001)
	if !ok || store || index != avr.IndexZ || preDec || !postInc {
		t.Errorf("LD R0,Z+ decode = store=%v index=%v preDec=%v postInc=%v ok=%v", store, index, preDec, postInc, ok)
	}
	// ST -X, R0: opcode 0x920E | 0x0200 = 0x920E
	store, index, preDec, postInc, ok = avr.DecodeIndirectLoadStore(0x920E)
	if !ok || !store || index != avr.IndexX || !preDec || postInc {
		t.Errorf("ST -X decode = store=%v index=%v preDec=%v postInc=%v ok=%v", store, index, preDec, postInc, ok)
	}
}

func TestDecodeDisplacementLoadStore(t *testing.T) {
	// LDD R0, Y+5: base 0x8008 with displacement bits for 5 = 0b000101 -> q5 q3q2q1 0 q0
	// displacement 6-bit field d5 d4 d3... encoded per Displacement6 extraction.
	// Build an opcode whose Displacement6 extraction yields 5: bits (op&0x2000)>>8 | (op&0x0C00)>>7 | (op&0x0007)
	// For disp=5 (0b000101): low 3 bits (bit2..0)=101 -> op bits 2:0 = 0b101=5's low3=5&7=5
	// mid 2 bits (bits 11:10) from (disp>>3)&0x3 = 0
	// high bit (bit13) from (disp>>5)&0x1 = 0
	op := uint16(0x8008) | 0x0005
	store, index, disp, ok := avr.DecodeDisplacementLoadStore(op)
	if !ok || store || index != avr.IndexY || disp != 5 {
		t.Errorf("LDD Y+5 decode = store=%v index=%v disp=%d ok=%v", store, index, disp, ok)
	}
}

func TestIsInOut(t *testing.T) {
	// OUT 0x3F (SREG io addr), R16: ioaddr bits = ((op>>5)&0x30)|(op&0x0F)
	// 0x3F = 0b111111 -> high2=0b11 low4=0b1111
	op := uint16(0xB800) | (0x3 << 9) | (0x10 << 4) | 0xF
	ioAddr, reg, isOut, ok := avr.IsInOut(op)
	if !ok || !isOut || ioAddr != 0x3F || reg != 0x10 {
		t.Errorf("OUT decode = ioAddr=%#x reg=%d isOut=%v ok=%v", ioAddr, reg, isOut, ok)
	}
}
