package sim

import (
	"math"
	"math/rand"
)

// Reference — опорный PPS глазами неточного генератора: импульс n приходит на тике
// Start + n·ticksPerSecond·(1+ppm·1e-6) ± jitter.
type Reference struct {
	Start          uint64
	TicksPerSecond float64
	Jitter         uint64
	rng            *rand.Rand
}

// NewReference создаёт опору для генератора nominal с ошибкой ppm.
func NewReference(start, nominal uint64, ppm float64, jitter uint64, seed int64) *Reference {
	if start < jitter {
		start = jitter
	}
	return &Reference{
		Start:          start,
		TicksPerSecond: float64(nominal) * (1 + ppm*1e-6),
		Jitter:         jitter,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// Pulse — тик n-го импульса.
func (r *Reference) Pulse(n uint64) uint64 {
	at := r.Start + uint64(math.Round(float64(n)*r.TicksPerSecond))
	if r.Jitter > 0 {
		at += uint64(r.rng.Int63n(int64(2*r.Jitter + 1)))
		at -= r.Jitter
	}
	return at
}

// Schedule ставит импульсы first..first+count-1 как аппаратный захват.
func (r *Reference) Schedule(t *Timer, first, count uint64) {
	for n := first; n < first+count; n++ {
		t.ScheduleCapture(r.Pulse(n))
	}
}
