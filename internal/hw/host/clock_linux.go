//go:build linux

package host

import "golang.org/x/sys/unix"

// monotonicNanos — CLOCK_MONOTONIC_RAW: без подстройки частоты NTP.
func monotonicNanos() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		return fallbackNanos()
	}
	return uint64(ts.Nano())
}
