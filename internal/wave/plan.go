// Package wave — генератор меандра, привязанного по фазе к опорной секунде.
//
// За откалиброванную секунду укладывается ровно 2·f полупериодов, сумма их длин
// равна ticksPerSecond. Остаток деления раздаётся по одному тику накопителем,
// а цель сравнения всегда отсчитывается от фронта: target(k) = edge + Offset(k).
package wave

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrequency — частота 0.
	ErrInvalidFrequency = errors.New("wave: frequency must be at least 1 Hz")
	// ErrFrequencyTooHigh — полупериод короче одного тика.
	ErrFrequencyTooHigh = errors.New("wave: frequency too high for the tick rate")
)

// Plan — разбиение секунды на полупериоды.
type Plan struct {
	TicksPerSecond uint64
	Frequency      uint32
	HalfPulses     uint64 // 2·f
	Base           uint64 // ticksPerSecond / (2·f)
	Remainder      uint64 // ticksPerSecond mod (2·f)
}

// NewPlan делит секунду на 2·freq полупериодов. Деление — только здесь, вне прерываний.
func NewPlan(tps uint64, freq uint32) (Plan, error) {
	if freq == 0 {
		return Plan{}, ErrInvalidFrequency
	}
	n := 2 * uint64(freq)
	if tps < n {
		return Plan{}, fmt.Errorf("%w: %d Hz at %d ticks/s", ErrFrequencyTooHigh, freq, tps)
	}
	return Plan{
		TicksPerSecond: tps,
		Frequency:      freq,
		HalfPulses:     n,
		Base:           tps / n,
		Remainder:      tps % n,
	}, nil
}

// Offset — смещение k-го переключения от фронта: k·base + ⌊k·rem / 2f⌋.
// Совпадает с суммой первых k длин, выданных накопителем.
func (p Plan) Offset(k uint64) uint64 {
	if p.HalfPulses == 0 {
		return 0
	}
	return k*p.Base + k*p.Remainder/p.HalfPulses
}

// Length — длина полупериода с номером k (от 0).
func (p Plan) Length(k uint64) uint64 {
	return p.Offset(k+1) - p.Offset(k)
}

// accumulator возвращает значение накопителя после k шагов.
func (p Plan) accumulator(k uint64) uint64 {
	if p.HalfPulses == 0 {
		return 0
	}
	return k * p.Remainder % p.HalfPulses
}

func (p Plan) String() string {
	return fmt.Sprintf("%d Hz: %d x %d ticks + %d", p.Frequency, p.HalfPulses, p.Base, p.Remainder)
}
