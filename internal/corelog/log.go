// Package corelog is a small ring-buffered logger in the style of
// Gopher2600's logger package: entries are tagged, kept in memory up
// to a fixed capacity, and can be written out or tailed by anything that
// wants to display them (a terminal, a test, a dashboard). It never
// writes to stdout/stderr itself.
package corelog

import (
	"fmt"
	"io"
	"sync"
)

const capacity = 1000

type entry struct {
	tag string
	msg string
}

var (
	mu      sync.Mutex
	entries []entry
)

// Log appends a formatted entry under tag. Safe for concurrent use,
// although the core itself is single-threaded (see SPEC_FULL.md §5).
func Log(tag, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	entries = append(entries, entry{tag: tag, msg: fmt.Sprintf(format, args...)})
	if len(entries) > capacity {
		entries = entries[len(entries)-capacity:]
	}
}

// Write writes every retained log entry recorded since the last Clear
// to w, in "tag: message\n" form. The entries stay in the buffer.
func Write(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	for _, e := range entries {
		fmt.Fprintf(w, "%s: %s\n", e.tag, e.msg)
	}
}

// Tail writes the most recent n entries (or fewer, if there aren't n)
// to w.
func Tail(w io.Writer, n int) {
	mu.Lock()
	defer mu.Unlock()
	start := len(entries) - n
	if start < 0 {
		start = 0
	}
	for _, e := range entries[start:] {
		fmt.Fprintf(w, "%s: %s\n", e.tag, e.msg)
	}
}

// Clear discards all recorded entries. Intended for tests.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	entries = nil
}
