// Command coreharness is a line-oriented REPL that drives core.Core
// directly, with no RSP framing, against an in-memory fake target. It
// plays the role the teacher's colorterm debugger plays for the
// emulator: a place to poke the breakpoint/stepping core by hand.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/term/termios"

	"github.com/felias-fogg/PyAvrOCD/core"
	"github.com/felias-fogg/PyAvrOCD/internal/avr"
	"github.com/felias-fogg/PyAvrOCD/internal/policy"
	"github.com/felias-fogg/PyAvrOCD/internal/stepexec"
	"github.com/felias-fogg/PyAvrOCD/internal/target"
	"github.com/felias-fogg/PyAvrOCD/internal/target/faketarget"
)

// rawTerm puts stdin into cbreak mode for the REPL's lifetime, the
// way debugger/terminal/colorterm/easyterm.EasyTerm does for the
// emulator's interactive debugger.
type rawTerm struct {
	fd      uintptr
	canAttr syscall.Termios
	cbAttr  syscall.Termios
	usable  bool
}

func newRawTerm(f *os.File) *rawTerm {
	rt := &rawTerm{fd: f.Fd()}
	if err := termios.Tcgetattr(rt.fd, &rt.canAttr); err != nil {
		fmt.Fprintln(os.Stderr, "coreharness: terminal control unavailable, using canonical mode:", err)
		return rt
	}
	rt.cbAttr = rt.canAttr
	termios.Cfmakecbreak(&rt.cbAttr)
	rt.usable = true
	return rt
}

func (rt *rawTerm) cbreak() {
	if rt.usable {
		termios.Tcsetattr(rt.fd, termios.TCIFLUSH, &rt.cbAttr)
	}
}

func (rt *rawTerm) canonical() {
	if rt.usable {
		termios.Tcsetattr(rt.fd, termios.TCIFLUSH, &rt.canAttr)
	}
}

func main() {
	rt := newRawTerm(os.Stdin)
	rt.cbreak()
	defer rt.canonical()

	tgt := faketarget.New(
		faketarget.MemoryState{PageSize: 128, FlashSize: 32 * 1024, SRAMBase: 0x0100, SRAMSize: 2048},
		target.DeviceInfo{Architecture: "avr8"},
	)
	c, err := core.New(tgt, 2, policy.Policy{SafeStepping: true, RangeStepping: true})
	if err != nil {
		fmt.Fprintln(os.Stderr, "coreharness:", err)
		os.Exit(1)
	}

	fmt.Println("coreharness ready (fake avr8 target, 2 HWBP slots)")
	fmt.Println("commands: ins <addr> | rm <addr> | cleanup | c | s | rs <start> <end> | stats | q")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("coreharness> ")
		if !scanner.Scan() {
			break
		}
		if !dispatch(c, strings.Fields(scanner.Text())) {
			break
		}
	}
}

func dispatch(c *core.Core, fields []string) bool {
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "q", "quit":
		return false
	case "ins":
		if addr, ok := parseAddr(fields); ok {
			c.InsertBreakpoint(addr)
		}
	case "rm":
		if addr, ok := parseAddr(fields); ok {
			c.RemoveBreakpoint(addr)
		}
	case "cleanup":
		c.CleanupBreakpoints()
	case "c":
		sig, running := c.ResumeExecution(nil)
		reportSignal("resume", sig, running)
	case "s":
		sig := c.SingleStep(nil)
		fmt.Printf("single step -> signal %d\n", sig)
	case "rs":
		if len(fields) < 3 {
			fmt.Println("usage: rs <start> <end>")
			break
		}
		start, ok1 := parseHex(fields[1])
		end, ok2 := parseHex(fields[2])
		if !ok1 || !ok2 {
			fmt.Println("bad address")
			break
		}
		sig, running := c.RangeStep(avr.Addr(start), avr.Addr(end))
		reportSignal("range step", sig, running)
	case "stats":
		printStats(c)
	default:
		fmt.Println("unrecognised command:", fields[0])
	}
	return true
}

func reportSignal(label string, sig stepexec.Signal, running bool) {
	if running {
		fmt.Printf("%s -> running\n", label)
		return
	}
	fmt.Printf("%s -> signal %v\n", label, sig)
}

func printStats(c *core.Core) {
	s := c.Stats()
	fmt.Printf("active=%d hw=%d sw=%d free_hwbp=%d commits=%d failures=%d steps=%d scaffolds=%d fallbacks=%d\n",
		s.Active, s.HWAllocated, s.SWAllocated, s.HWBPFree,
		s.Commits, s.CommitFailures,
		s.StepsExecuted, s.RangeScaffoldsBuilt, s.RangeSingleStepFallback)
}

func parseAddr(fields []string) (avr.Addr, bool) {
	if len(fields) < 2 {
		fmt.Println("usage:", fields[0], "<addr>")
		return 0, false
	}
	v, ok := parseHex(fields[1])
	if !ok {
		fmt.Println("bad address:", fields[1])
		return 0, false
	}
	return avr.Addr(v), true
}

func parseHex(s string) (uint64, bool) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}
