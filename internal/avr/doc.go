// Package avr classifies and decodes classic 8-bit AVR (avr8) opcodes.
//
// Every function here is pure: given an opcode (and, for two-word
// instructions, the following flash word) it reports a fact about the
// instruction or computes a derived value such as a branch target. No
// function touches the target, flash, or any mutable state - that is
// the job of the stepexec and rangeanalysis packages, which use this
// package to decide what to do next.
package avr
