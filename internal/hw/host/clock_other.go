//go:build !linux

package host

func monotonicNanos() uint64 {
	return fallbackNanos()
}
