//go:build !linux && !darwin

package faketarget

import "time"

// nanosleep falls back to time.Sleep on platforms without the
// x/sys/unix syscall, so the fake target still builds everywhere even
// though the latency knob is a Linux/macOS-oriented diagnostic.
func nanosleep(d NanoDuration) {
	time.Sleep(time.Duration(d))
}
