package gpstimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/discipline"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/frame"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw/sim"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/metrics"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/nav"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/wave"
)

const nominal = 16_000_000

type bench struct {
	sim   *sim.Timer
	timer *Timer
	nav   *nav.Latest
}

func newBench(t *testing.T, opts Options) *bench {
	t.Helper()
	ctrl := irq.New()
	st := sim.New(ctrl, sim.Config{Width: 16, NominalTicksPerSecond: nominal, OverflowLatency: 8})
	latest := &nav.Latest{}
	opts.Nav = latest
	if opts.Discipline.StaleFactor == 0 {
		opts.Discipline = discipline.DefaultConfig()
	}
	tm, err := New(ctrl, st, opts)
	require.NoError(t, err)
	st.Attach(tm)
	return &bench{sim: st, timer: tm, nav: latest}
}

// run продвигает время до until, вызывая Update каждые step тиков.
func (b *bench) run(until, step uint64) {
	for at := b.sim.Now() + step; at <= until; at += step {
		b.sim.At(at, b.timer.Update)
	}
	b.sim.AdvanceTo(until)
}

func TestWaveLengthsFollowCalibration(t *testing.T) {
	b := newBench(t, Options{})
	pin := b.sim.NewPin("wave", true)
	require.NoError(t, b.timer.EnableWave(pin, 1000))

	// 16 000 003 тика на секунду опоры.
	ref := sim.NewReference(1000, nominal, 0.1875, 0, 1)
	ref.Schedule(b.sim, 0, 4)
	e2, e3 := ref.Pulse(2), ref.Pulse(3)
	b.run(e3+100, 1_000_000)

	require.Equal(t, uint64(16_000_003), b.timer.TicksPerSecond())

	var second []sim.Transition
	for _, tr := range pin.Transitions() {
		if tr.At >= e2 && tr.At < e3 {
			second = append(second, tr)
		}
	}
	require.Len(t, second, 2000)
	assert.Equal(t, e2, second[0].At)
	assert.Equal(t, gpio.High, second[0].Level)

	long := 0
	for i := range second {
		next := e3
		if i+1 < len(second) {
			next = second[i+1].At
		}
		d := next - second[i].At
		require.True(t, d == 8000 || d == 8001, "полупериод %d: %d тиков", i, d)
		if d == 8001 {
			long++
		}
	}
	assert.Equal(t, 3, long)
	assert.Equal(t, gpio.High, pin.Level(), "новая секунда начинается с высокого уровня")
}

func TestStaleReferenceFallsBackToNominal(t *testing.T) {
	b := newBench(t, Options{})
	pin := b.sim.NewPin("wave", false)
	require.NoError(t, b.timer.EnableWave(pin, 1000))

	ref := sim.NewReference(1000, nominal, 0.1875, 0, 1)
	ref.Schedule(b.sim, 0, 3)
	e2 := ref.Pulse(2)

	b.run(e2+nominal, 1_000_000)
	assert.True(t, b.timer.IsReferenceActive())

	b.run(e2+3*16_000_003, 1_000_000)
	assert.False(t, b.timer.IsReferenceActive())

	s := b.timer.Stats()
	assert.Equal(t, discipline.Stale, s.State)
	assert.Equal(t, uint64(nominal), s.TicksPerSecond)
	assert.Equal(t, uint64(1), s.Counters.StaleResets)
	assert.True(t, s.Wave.Running, "меандр продолжает идти без опоры")
	assert.Equal(t, uint64(nominal), s.Wave.Plan.TicksPerSecond)
	assert.Equal(t, uint64(2), s.Drift.Samples)
	assert.Equal(t, EdgeCounts{Calibrated: 2, Armed: 1}, s.Edges[edge.KindCapture])
}

func TestDataFrameRoundTrip(t *testing.T) {
	b := newBench(t, Options{})
	wavePin := b.sim.NewPin("wave", false)
	dataPin := b.sim.NewPin("data", false)

	var frames []frame.Snapshot
	sampler, err := frame.NewSampler(1, func(s frame.Snapshot, err error) {
		assert.NoError(t, err)
		frames = append(frames, s)
	})
	require.NoError(t, err)
	wavePin.OnChange(func(_ uint64, l gpio.Level) {
		if l == gpio.Low {
			sampler.Sample(dataPin.Level())
		}
	})
	require.NoError(t, b.timer.EnableWave(wavePin, 128))
	require.NoError(t, b.timer.EnableDataOutput(dataPin, 1))

	ref := sim.NewReference(1000, nominal, 0, 0, 1)
	ref.Schedule(b.sim, 0, 4)
	fix := nav.Fix{
		TimeValid:     true,
		Time:          calendar.Time{Year: 2025, Month: 1, Day: 15, Hour: 12, Minute: 30, Second: 45},
		LocationValid: true,
		Latitude:      55.7558,
		Longitude:     37.6173,
	}
	// Решение описывает секунду, начатую фронтом 1, и приходит через 0,1 с.
	b.sim.At(ref.Pulse(1)+1_600_000, func() { b.nav.Publish(fix) })
	b.run(ref.Pulse(3)+nominal*9/10, 500_000)

	require.Len(t, frames, 3)
	assert.False(t, frames[0].TimeValid, "до решения время не передаётся")
	assert.False(t, frames[0].LocationValid)

	assert.True(t, frames[1].TimeValid)
	assert.Equal(t, calendar.Time{Year: 2025, Month: 1, Day: 15, Hour: 12, Minute: 30, Second: 46}, frames[1].Time)
	assert.True(t, frames[1].LocationValid)
	assert.Equal(t, float32(55.7558), frames[1].Latitude)
	assert.Equal(t, float32(37.6173), frames[1].Longitude)
	assert.Equal(t, uint8(47), frames[2].Time.Second)

	s := b.timer.Stats()
	assert.Equal(t, uint64(3), s.Data.Frames)
	assert.Zero(t, s.Data.Truncated)
	assert.Equal(t, uint64(1), s.Fixes)

	now, ok := b.timer.Now()
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 15, 12, 30, 47, 900_000_000, time.UTC), now)
}

func TestDisableWaveDropsDataPin(t *testing.T) {
	b := newBench(t, Options{})
	wavePin := b.sim.NewPin("wave", false)
	dataPin := b.sim.NewPin("data", false)
	require.NoError(t, b.timer.EnableWave(wavePin, 128))
	require.NoError(t, b.timer.EnableDataOutput(dataPin, 1))

	ref := sim.NewReference(1000, nominal, 0, 0, 1)
	ref.Schedule(b.sim, 0, 2)
	e1 := ref.Pulse(1)
	var before gpio.Level
	b.sim.At(e1+100, func() {
		before = dataPin.Level()
		b.timer.DisableWave()
	})
	b.run(e1+5*nominal, 1_000_000)

	require.Equal(t, gpio.High, before, "стартовый бит кадра выдан на фронте")
	assert.Equal(t, gpio.Low, dataPin.Level())
	tr := dataPin.Transitions()
	require.NotEmpty(t, tr)
	// Полупериод 128 Гц — 62 500 тиков: вывод опускается на первом же сравнении.
	assert.Equal(t, e1+62_500, tr[len(tr)-1].At)
	assert.Equal(t, gpio.Low, tr[len(tr)-1].Level)
	assert.Equal(t, gpio.High, wavePin.Level(), "меандр остаётся на последнем уровне")
	assert.False(t, b.timer.Stats().Wave.Running)
}

// fixes публикует решения раз в секунду и сразу вызывает Update.
func fixes(b *bench, start calendar.Time, count int) {
	for i := 0; i < count; i++ {
		at := uint64(1000) + uint64(i)*nominal
		fix := nav.Fix{TimeValid: true, Time: start.AddSeconds(uint32(i))}
		b.sim.At(at, func() { b.nav.Publish(fix) })
		b.sim.At(at, b.timer.Update)
	}
}

func TestNavigationFallbackEdges(t *testing.T) {
	b := newBench(t, Options{})
	start := calendar.Time{Year: 2025, Month: 1, Day: 15, Hour: 12, Minute: 30, Second: 45}
	fixes(b, start, 3)
	b.sim.AdvanceTo(1000 + 2*nominal + nominal/2)

	s := b.timer.Stats()
	assert.Equal(t, discipline.Active, s.State)
	assert.Equal(t, edge.KindNavigation, s.Source)
	assert.Equal(t, uint64(nominal), s.TicksPerSecond)
	assert.Equal(t, EdgeCounts{Calibrated: 2, Armed: 1}, s.Edges[edge.KindNavigation])
	assert.Equal(t, uint64(3), s.Fixes)
	assert.Equal(t, start.AddSeconds(2), b.timer.Calendar())
	assert.Equal(t, uint32(500_000), b.timer.Microsecond())
}

func TestDisallowedSourceIgnored(t *testing.T) {
	b := newBench(t, Options{Sources: []edge.Kind{edge.KindCapture}})
	start := calendar.Time{Year: 2025, Month: 1, Day: 15, Hour: 12, Minute: 30, Second: 45}
	fixes(b, start, 3)
	b.sim.AdvanceTo(1000 + 2*nominal + nominal/2)

	s := b.timer.Stats()
	assert.Equal(t, discipline.Uncalibrated, s.State)
	assert.Equal(t, EdgeCounts{Ignored: 3}, s.Edges[edge.KindNavigation])
	assert.Equal(t, uint64(3), s.Fixes, "без опоры решение применяется всегда")
	assert.True(t, b.timer.IsUpdated())
	assert.Equal(t, uint16(2025), b.timer.Year())
	assert.False(t, b.timer.IsUpdated())
}

func TestTriggerBackdatesByAge(t *testing.T) {
	b := newBench(t, Options{Sources: []edge.Kind{edge.KindPPSDevice}})
	const late = 16_000 // 1 мс при 16 МГц
	e0 := uint64(1000)
	e1 := e0 + nominal
	b.sim.At(e0+late, func() { b.timer.Trigger(edge.KindPPSDevice, time.Millisecond) })
	b.sim.At(e1+late, func() { b.timer.Trigger(edge.KindPPSDevice, time.Millisecond) })
	b.sim.At(e1+late+10, func() { b.timer.Trigger(edge.KindPPSDevice, 2*time.Second) })
	var us uint32
	b.sim.At(e1+nominal/2, func() { us = b.timer.Microsecond() })
	b.sim.AdvanceTo(e1 + nominal/2)

	assert.True(t, b.timer.IsReferenceActive())
	assert.Equal(t, uint64(nominal), b.timer.TicksPerSecond())
	assert.Equal(t, uint32(500_000), us)
	assert.Equal(t, EdgeCounts{Calibrated: 1, Armed: 1}, b.timer.Stats().Edges[edge.KindPPSDevice])
}

func TestEnableErrors(t *testing.T) {
	b := newBench(t, Options{})
	data := b.sim.NewPin("data", false)
	w := b.sim.NewPin("wave", false)

	assert.ErrorIs(t, b.timer.EnableDataOutput(data, 1), ErrWaveNotConfigured)
	assert.ErrorIs(t, b.timer.EnableWave(w, 0), wave.ErrInvalidFrequency)

	require.NoError(t, b.timer.EnableWave(w, 1000))
	b.timer.DisableWave()
	assert.False(t, b.timer.Stats().Wave.Enabled)

	assert.ErrorIs(t, b.timer.EnableDataOutput(data, 0), frame.ErrInvalidInterval)
	require.NoError(t, b.timer.EnableDataOutput(data, 2))
	s := b.timer.Stats()
	assert.True(t, s.Wave.Enabled, "вывод данных включает меандр с прежними параметрами")
	assert.True(t, s.Data.Enabled)
	assert.Equal(t, uint32(2), s.Data.Interval)

	b.timer.DisableDataOutput()
	assert.False(t, b.timer.Stats().Data.Enabled)
}

func TestStatsSample(t *testing.T) {
	s := Stats{
		State:          discipline.Active,
		TicksPerSecond: 16_000_003,
		Edges:          map[edge.Kind]EdgeCounts{edge.KindCapture: {Calibrated: 4, Armed: 1}},
		Data:           frame.EncoderStatus{Frames: 3},
	}
	m := s.Sample()
	assert.True(t, m.ReferenceActive)
	assert.Equal(t, uint64(3), m.Frames)
	require.Len(t, m.Edges, 3)
	assert.Equal(t, metrics.EdgeCount{Source: "capture", Result: metrics.ResultArmed, Total: 1}, m.Edges[0])
	assert.Equal(t, metrics.EdgeCount{Source: "capture", Result: metrics.ResultCalibrated, Total: 4}, m.Edges[1])
}
