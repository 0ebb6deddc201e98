package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantOffset(t *testing.T) {
	d := NewDrift(16_000_000)
	for i := 0; i < 10; i++ {
		d.Add(16_000_003)
	}
	s := d.Summary()
	assert.Equal(t, uint64(10), s.Samples)
	assert.Equal(t, uint64(16_000_003), s.TicksPerSecond)
	assert.InDelta(t, 0.1875, s.OffsetPPM, 1e-9)
	assert.InDelta(t, 0.1875, s.MeanPPM, 1e-9)
	assert.InDelta(t, 0, s.DriftPPBPerSec, 1e-9)
	assert.Equal(t, int64(0), s.DeltaMax)
}

func TestLinearDrift(t *testing.T) {
	d := NewDrift(16_000_000)
	for i := 0; i < 3*Window; i++ {
		d.Add(16_000_000 + uint64(i))
	}
	s := d.Summary()
	// +1 тик в секунду = 1/16 ppm/с = 62.5 ppb/с.
	assert.InDelta(t, 62.5, s.DriftPPBPerSec, 1e-6)
	assert.Equal(t, int64(1), s.DeltaP50)
	assert.Equal(t, int64(1), s.DeltaMax)
}

func TestTooFewSamples(t *testing.T) {
	d := NewDrift(16_000_000)
	assert.Equal(t, Summary{}, d.Summary())
	d.Add(16_000_000)
	d.Add(16_000_016)
	s := d.Summary()
	assert.Equal(t, 0.0, s.DriftPPBPerSec)
	assert.InDelta(t, 1.0, s.OffsetPPM, 1e-9)
	assert.Equal(t, int64(16), s.DeltaMax)
}

func TestResetKeepsHistogram(t *testing.T) {
	d := NewDrift(16_000_000)
	d.Add(16_000_000)
	d.Add(16_000_100)
	d.Reset()
	d.Add(15_000_000)
	s := d.Summary()
	assert.Equal(t, uint64(3), s.Samples)
	assert.Equal(t, int64(100), s.DeltaMax, "скачок через сброс не учитывается")
	assert.Equal(t, uint64(15_000_000), s.TicksPerSecond)
}
