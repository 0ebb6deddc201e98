package frame

import "periph.io/x/conn/v3/gpio"

// Sampler — приёмная сторона: собирает кадр из уровней вывода данных,
// снятых в конце каждого высокого полупериода (на спаде меандра).
// Простой выход — низкий уровень; кадр начинается с первого высокого бита.
type Sampler struct {
	interval uint32
	onFrame  func(Snapshot, error)

	synced bool
	bits   []byte
	count  uint32
	ones   uint32
}

// NewSampler создаёт приёмник; onFrame вызывается на каждом собранном кадре.
func NewSampler(interval uint32, onFrame func(Snapshot, error)) (*Sampler, error) {
	if interval == 0 {
		return nil, ErrInvalidInterval
	}
	return &Sampler{interval: interval, onFrame: onFrame, bits: make([]byte, 0, Size)}, nil
}

// Sample принимает один отсчёт.
func (s *Sampler) Sample(l gpio.Level) {
	if !s.synced {
		if !l {
			return
		}
		s.synced = true
	}
	s.count++
	if l {
		s.ones++
	}
	if s.count < s.interval {
		return
	}
	var bit byte
	if 2*s.ones > s.interval {
		bit = 1
	}
	s.bits = append(s.bits, bit)
	s.count, s.ones = 0, 0
	if len(s.bits) < Size {
		return
	}
	snap, err := Decode(s.bits)
	s.Reset()
	if s.onFrame != nil {
		s.onFrame(snap, err)
	}
}

// Reset сбрасывает синхронизацию.
func (s *Sampler) Reset() {
	s.synced = false
	s.bits = s.bits[:0]
	s.count, s.ones = 0, 0
}
