// Package pps — опорный фронт от ядра Linux (/dev/ppsN, PPS_FETCH).
// Ядро ставит метку времени в прерывании, поэтому задержка доставки фронта
// в программу известна и передаётся получателю как возраст фронта.
package pps

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Раскладка struct pps_fdata (include/uapi/linux/pps.h):
// pps_kinfo { u32 assert_sequence; u32 clear_sequence; pps_ktime assert_tu; pps_ktime clear_tu; int current_mode }
// pps_ktime { s64 sec; s32 nsec; u32 flags }, затем pps_ktime timeout.
const (
	fdataSize     = 64
	offAssertSeq  = 0
	offAssertSec  = 8
	offAssertNsec = 16
	offTimeoutSec = 48
	offTimeoutNs  = 56
)

// ErrUnsupported — PPS API ядра недоступен на этой платформе.
var ErrUnsupported = errors.New("pps: kernel PPS API is linux-only")

// Assert — последняя метка фронта.
type Assert struct {
	Sequence uint32
	Time     time.Time
}

func parseFdata(buf []byte) (Assert, error) {
	if len(buf) < fdataSize {
		return Assert{}, fmt.Errorf("pps: fdata %d bytes, want %d", len(buf), fdataSize)
	}
	sec := int64(binary.LittleEndian.Uint64(buf[offAssertSec:]))
	nsec := int32(binary.LittleEndian.Uint32(buf[offAssertNsec:]))
	return Assert{
		Sequence: binary.LittleEndian.Uint32(buf[offAssertSeq:]),
		Time:     time.Unix(sec, int64(nsec)),
	}, nil
}

func putTimeout(buf []byte, d time.Duration) {
	binary.LittleEndian.PutUint64(buf[offTimeoutSec:], uint64(d/time.Second))
	binary.LittleEndian.PutUint32(buf[offTimeoutNs:], uint32(d%time.Second))
}

// age — возраст фронта относительно now; отрицательный (часы шагнули) считается нулём.
func age(a Assert, now time.Time) time.Duration {
	d := now.Sub(a.Time)
	if d < 0 {
		return 0
	}
	return d
}

// fresh — фронт новый: последовательность сдвинулась.
func fresh(a Assert, last uint32, seen bool) bool {
	return a.Sequence != 0 && (!seen || a.Sequence != last)
}
