//go:build linux || darwin

package faketarget

import "golang.org/x/sys/unix"

// nanosleep blocks for d using a raw unix.Nanosleep rather than
// time.Sleep, so LatencyPerCall tests exercise a real syscall-level
// stall the same shape as waiting on a USB HID transfer would be.
func nanosleep(d NanoDuration) {
	ts := unix.NsecToTimespec(int64(d))
	for {
		var rem unix.Timespec
		if err := unix.Nanosleep(&ts, &rem); err != unix.EINTR {
			return
		}
		ts = rem
	}
}
