// Package stepexec implements resume, single-step and range-step on
// top of the breakpoint registry, the hardware-breakpoint pool and
// the opcode decoder, including the interrupt-safe stepping dance and
// the partial instruction simulator that lets a step over a software
// breakpoint avoid two flash rewrites.
package stepexec

// Signal is a GDB signal number, as returned by resume/step/range-step
// to tell the RSP layer why (or whether) the target stopped.
type Signal uint8

const (
	SIGHUP  Signal = 1
	SIGINT  Signal = 2
	SIGILL  Signal = 4
	SIGTRAP Signal = 5
	SIGABRT Signal = 6
	SIGBUS  Signal = 10
)
