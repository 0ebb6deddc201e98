// Package frame — 110-битный кадр времени и координат, передаваемый поверх меандра:
// start(1)=1 | location(64) | time(44) | end(1)=1, каждое поле младшим битом вперёд.
// Поле времени: секунды(6) минуты(6) часы(6) день(6) месяц(4) год(16).
package frame

import (
	"errors"
	"fmt"
	"math"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
)

// Ширины полей.
const (
	StartWidth    = 1
	LocationWidth = 64
	TimeWidth     = 44
	EndWidth      = 1

	// Size — длина кадра в битах.
	Size = StartWidth + LocationWidth + TimeWidth + EndWidth
)

// Раскладка поля времени: second[0:6] | minute[6:12] | hour[12:18] | day[18:24] | month[24:28] | year[28:44].
const (
	secondShift = 0
	minuteShift = 6
	hourShift   = 12
	dayShift    = 18
	monthShift  = 24
	yearShift   = 28

	sixBits  = 0x3f
	fourBits = 0x0f
)

var (
	ErrShortFrame      = errors.New("frame: fewer than 110 bits")
	ErrFraming         = errors.New("frame: bad start or end bit")
	ErrInvalidInterval = errors.New("frame: bit interval must be at least 1")
)

// Snapshot — данные одного кадра. Снимаются один раз на фронте.
type Snapshot struct {
	TimeValid     bool
	Time          calendar.Time
	LocationValid bool
	Latitude      float32
	Longitude     float32
}

// Field — значение и ширина одного поля.
type Field struct {
	Value uint64
	Width uint8
}

// Frame — поля в порядке передачи.
type Frame [4]Field

// Build строит кадр. Невалидные поля передаются нулями, длина кадра не меняется.
func Build(s Snapshot) Frame {
	var loc, tm uint64
	if s.LocationValid {
		loc = PackLocation(s.Latitude, s.Longitude)
	}
	if s.TimeValid {
		tm = PackTime(s.Time)
	}
	return Frame{
		{Value: 1, Width: StartWidth},
		{Value: loc, Width: LocationWidth},
		{Value: tm, Width: TimeWidth},
		{Value: 1, Width: EndWidth},
	}
}

// PackLocation: биты float32 широты в младших 32 битах, долготы — в старших.
func PackLocation(lat, lng float32) uint64 {
	return uint64(math.Float32bits(lng))<<32 | uint64(math.Float32bits(lat))
}

// UnpackLocation — обратное к PackLocation.
func UnpackLocation(v uint64) (lat, lng float32) {
	return math.Float32frombits(uint32(v)), math.Float32frombits(uint32(v >> 32))
}

// PackTime упаковывает календарное время в 44 бита.
func PackTime(c calendar.Time) uint64 {
	return uint64(c.Second&sixBits)<<secondShift |
		uint64(c.Minute&sixBits)<<minuteShift |
		uint64(c.Hour&sixBits)<<hourShift |
		uint64(c.Day&sixBits)<<dayShift |
		uint64(c.Month&fourBits)<<monthShift |
		uint64(c.Year)<<yearShift
}

// UnpackTime — обратное к PackTime.
func UnpackTime(v uint64) calendar.Time {
	return calendar.Time{
		Second: uint8(v >> secondShift & sixBits),
		Minute: uint8(v >> minuteShift & sixBits),
		Hour:   uint8(v >> hourShift & sixBits),
		Day:    uint8(v >> dayShift & sixBits),
		Month:  uint8(v >> monthShift & fourBits),
		Year:   uint16(v >> yearShift),
	}
}

// Bits разворачивает кадр в последовательность 0/1 в порядке передачи.
func (f Frame) Bits() []byte {
	out := make([]byte, 0, Size)
	for _, fl := range f {
		v := fl.Value
		for i := uint8(0); i < fl.Width; i++ {
			out = append(out, byte(v&1))
			v >>= 1
		}
	}
	return out
}

// Decode собирает кадр из первых Size битов (сдвиговый регистр, младший бит первым).
func Decode(bits []byte) (Snapshot, error) {
	if len(bits) < Size {
		return Snapshot{}, fmt.Errorf("%w: got %d", ErrShortFrame, len(bits))
	}
	take := func(from, width int) uint64 {
		var v uint64
		for i := width - 1; i >= 0; i-- {
			v = v<<1 | uint64(bits[from+i]&1)
		}
		return v
	}
	if bits[0]&1 != 1 || bits[Size-1]&1 != 1 {
		return Snapshot{}, ErrFraming
	}
	var s Snapshot
	if loc := take(StartWidth, LocationWidth); loc != 0 {
		s.LocationValid = true
		s.Latitude, s.Longitude = UnpackLocation(loc)
	}
	if tm := take(StartWidth+LocationWidth, TimeWidth); tm != 0 {
		s.TimeValid = true
		s.Time = UnpackTime(tm)
	}
	return s, nil
}
