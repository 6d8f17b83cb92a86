// Package coreerr provides a small curated-error type in the style of
// Gopher2600's curated package: errors are keyed by a stable pattern
// string rather than compared by formatted message, so call sites can
// ask "was this a policy-impossible error" without string matching.
package coreerr

import "fmt"

// Pattern identifies a class of error the core can raise.
type Pattern string

const (
	// PolicyImpossible is raised when the committed breakpoint set
	// cannot be satisfied under the current allocation policy (more
	// breakpoints than hardware slots while software breakpoints are
	// forbidden, or a software-breakpoint program failed).
	PolicyImpossible Pattern = "policy impossible: %s"

	// IllegalState classifies a stray BREAK opcode at the program
	// counter. The step engine reports that condition to GDB as
	// SIGILL and does not construct this error.
	IllegalState Pattern = "illegal state: %s"

	// StackOverflow classifies a failed stack-pointer plausibility
	// check before a PUSH/POP/RET/CALL-family instruction. The step
	// engine reports that condition as SIGBUS and does not construct
	// this error.
	StackOverflow Pattern = "stack overflow: %s"
)

type curated struct {
	pattern Pattern
	detail  string
}

// Errorf creates an error of the given pattern with a formatted
// detail message.
func Errorf(pattern Pattern, format string, args ...interface{}) error {
	return curated{pattern: pattern, detail: fmt.Sprintf(format, args...)}
}

func (e curated) Error() string {
	return fmt.Sprintf(string(e.pattern), e.detail)
}

// Is reports whether err is a curated error of the given pattern.
func Is(err error, pattern Pattern) bool {
	if err == nil {
		return false
	}
	c, ok := err.(curated)
	return ok && c.pattern == pattern
}

// FatalError reports an architecture the core cannot safely operate
// on: anything other than avr8, or an avr8 target whose SRAM exceeds
// 64KiB. stepexec.New returns it at construction time, whatever the
// stepping policy. It is distinct from the
// curated errors above because it means the debug session must end,
// not that a single command failed.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Reason
}
