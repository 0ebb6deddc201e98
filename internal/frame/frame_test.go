package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
)

var snap = Snapshot{
	TimeValid:     true,
	Time:          calendar.Time{Year: 2025, Month: 1, Day: 15, Hour: 12, Minute: 30, Second: 46},
	LocationValid: true,
	Latitude:      55.7558,
	Longitude:     37.6173,
}

func TestBuildLayout(t *testing.T) {
	bits := Build(snap).Bits()
	require.Len(t, bits, Size)
	assert.Equal(t, 110, Size)
	assert.Equal(t, byte(1), bits[0], "start bit")
	assert.Equal(t, byte(1), bits[Size-1], "end bit")

	latBits := math.Float32bits(snap.Latitude)
	for i := 0; i < 32; i++ {
		assert.Equal(t, byte(latBits>>i&1), bits[1+i], "lat bit %d", i)
	}
	lngBits := math.Float32bits(snap.Longitude)
	for i := 0; i < 32; i++ {
		assert.Equal(t, byte(lngBits>>i&1), bits[33+i], "lng bit %d", i)
	}
	// Секунды идут первыми: 46 = 0b101110, младший бит вперёд.
	assert.Equal(t, []byte{0, 1, 1, 1, 0, 1}, bits[65:71])
}

func TestPackTime(t *testing.T) {
	v := PackTime(snap.Time)
	assert.Less(t, v, uint64(1)<<TimeWidth)
	assert.Equal(t, uint64(46), v&0x3f)
	assert.Equal(t, uint64(30), v>>6&0x3f)
	assert.Equal(t, uint64(12), v>>12&0x3f)
	assert.Equal(t, uint64(15), v>>18&0x3f)
	assert.Equal(t, uint64(1), v>>24&0x0f)
	assert.Equal(t, uint64(2025), v>>28)
	assert.Equal(t, snap.Time, UnpackTime(v))

	dec := calendar.Time{Year: 65535, Month: 12, Day: 31, Hour: 23, Minute: 59, Second: 59}
	assert.Equal(t, dec, UnpackTime(PackTime(dec)))
}

func TestInvalidFieldsAreZero(t *testing.T) {
	f := Build(Snapshot{Time: snap.Time, Latitude: 1, Longitude: 2})
	assert.Equal(t, uint64(0), f[1].Value)
	assert.Equal(t, uint64(0), f[2].Value)
	bits := f.Bits()
	require.Len(t, bits, Size, "длина кадра не зависит от валидности")
	for i := 1; i < Size-1; i++ {
		assert.Equal(t, byte(0), bits[i])
	}
	got, err := Decode(bits)
	require.NoError(t, err)
	assert.False(t, got.TimeValid)
	assert.False(t, got.LocationValid)
}

func TestDecodeRoundTrip(t *testing.T) {
	got, err := Decode(Build(snap).Bits())
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestDecodeErrors(t *testing.T) {
	bits := Build(snap).Bits()
	_, err := Decode(bits[:Size-1])
	assert.ErrorIs(t, err, ErrShortFrame)

	bad := append([]byte(nil), bits...)
	bad[0] = 0
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrFraming)

	bad = append([]byte(nil), bits...)
	bad[Size-1] = 0
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrFraming)
}

type dataPin struct {
	level  gpio.Level
	writes int
}

func (d *dataPin) Out(l gpio.Level) error {
	d.level = l
	d.writes++
	return nil
}

// transmit прогоняет halfPulses полупериодов (первый — высокий) и возвращает
// уровень данных в конце каждого высокого полупериода.
func transmit(e *Encoder, pin *dataPin, halfPulses int, active bool) []byte {
	var out []byte
	for i := 0; i < halfPulses; i++ {
		high := i%2 == 0
		e.OnHalfPulse(high, active)
		if high {
			var b byte
			if pin.level {
				b = 1
			}
			out = append(out, b)
		}
	}
	return out
}

func TestEncoderSendsFrameLSBFirst(t *testing.T) {
	e := NewEncoder(irq.New())
	pin := &dataPin{}
	require.NoError(t, e.Enable(pin, 1))

	f := Build(snap)
	e.Rebuild(f)
	got := transmit(e, pin, 2*Size, true)
	assert.Equal(t, f.Bits(), got)
	assert.False(t, e.Status().Finished, "конец кадра фиксируется на следующем высоком полупериоде")

	tail := transmit(e, pin, 4, true)
	assert.Equal(t, []byte{0, 0}, tail, "после кадра вывод низкий")
	st := e.Status()
	assert.True(t, st.Finished)
	assert.Equal(t, uint64(1), st.Frames)
}

func TestEncoderHoldsBitForInterval(t *testing.T) {
	const interval = 3
	e := NewEncoder(irq.New())
	pin := &dataPin{}
	require.NoError(t, e.Enable(pin, interval))
	f := Build(snap)
	e.Rebuild(f)

	got := transmit(e, pin, 2*Size*interval, true)
	want := make([]byte, 0, Size*interval)
	for _, b := range f.Bits() {
		for i := 0; i < interval; i++ {
			want = append(want, b)
		}
	}
	assert.Equal(t, want, got)

	var decoded []Snapshot
	s, err := NewSampler(interval, func(sn Snapshot, err error) {
		require.NoError(t, err)
		decoded = append(decoded, sn)
	})
	require.NoError(t, err)
	for _, b := range append([]byte{0, 0, 0}, got...) {
		s.Sample(b == 1)
	}
	require.Len(t, decoded, 1)
	assert.Equal(t, snap, decoded[0])
}

func TestEncoderLowOnLowPhase(t *testing.T) {
	e := NewEncoder(irq.New())
	pin := &dataPin{}
	require.NoError(t, e.Enable(pin, 1))
	e.Rebuild(Build(snap))
	e.OnHalfPulse(true, true)
	assert.Equal(t, gpio.High, pin.level, "start bit")
	e.OnHalfPulse(false, true)
	assert.Equal(t, gpio.Low, pin.level)
}

func TestEncoderIdleWhenInactive(t *testing.T) {
	e := NewEncoder(irq.New())
	pin := &dataPin{}
	require.NoError(t, e.Enable(pin, 1))
	e.Rebuild(Build(snap))
	got := transmit(e, pin, 20, false)
	assert.Equal(t, make([]byte, 10), got)
	assert.Equal(t, 1, pin.writes, "повторный одинаковый уровень не пишется")

	e.Disable()
	e.OnHalfPulse(true, true)
	assert.Equal(t, gpio.Low, pin.level)
}

func TestEncoderStartsFinished(t *testing.T) {
	e := NewEncoder(irq.New())
	pin := &dataPin{}
	require.NoError(t, e.Enable(pin, 1))
	assert.True(t, e.Status().Finished)
	e.OnHalfPulse(true, true)
	assert.Equal(t, gpio.Low, pin.level)
}

func TestEncoderRebuildTruncates(t *testing.T) {
	e := NewEncoder(irq.New())
	pin := &dataPin{}
	require.NoError(t, e.Enable(pin, 1))
	e.Rebuild(Build(snap))
	transmit(e, pin, 10, true)
	e.Rebuild(Build(snap))
	assert.Equal(t, uint64(1), e.Status().Truncated)
	got := transmit(e, pin, 2*Size, true)
	assert.Equal(t, Build(snap).Bits(), got)
}

func TestEnableRejectsZeroInterval(t *testing.T) {
	e := NewEncoder(irq.New())
	err := e.Enable(&dataPin{}, 0)
	assert.True(t, errors.Is(err, ErrInvalidInterval))
	_, err = NewSampler(0, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestSamplerResyncsAfterFramingError(t *testing.T) {
	var results []error
	s, err := NewSampler(1, func(_ Snapshot, err error) { results = append(results, err) })
	require.NoError(t, err)

	bad := Build(snap).Bits()
	bad[Size-1] = 0
	good := Build(snap).Bits()
	for _, b := range append(append(bad, 0, 0, 0), good...) {
		s.Sample(b == 1)
	}
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0], ErrFraming)
	assert.NoError(t, results[1])
}
