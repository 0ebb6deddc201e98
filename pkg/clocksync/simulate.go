package clocksync

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/config"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/frame"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw/sim"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/logger"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/metrics"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/nav"
	"github.com/shiwa/timecard-mini/tc-gpstimer/pkg/gpstimer"
)

// Report — итог эмуляции.
type Report struct {
	Seconds     int
	Stats       gpstimer.Stats
	Frames      []frame.Snapshot // кадры, принятые с вывода данных
	FrameErrors int
	Now         time.Time // время таймера в конце прогона
}

// RunSimulation прогоняет таймер на эмулируемом генераторе: опорный PPS с ошибкой
// частоты и джиттером, навигационное решение через 0,1 с после каждого фронта,
// приём кадра с вывода данных. Время виртуальное; ctx проверяется раз в секунду.
// reg может быть nil.
func RunSimulation(ctx context.Context, cfg *config.Config, reg *metrics.Registry) (*Report, error) {
	if cfg.Timer.Backend != config.BackendSim {
		return nil, fmt.Errorf("timer.backend %q: для эмуляции нужен %q", cfg.Timer.Backend, config.BackendSim)
	}
	kinds, err := cfg.Discipline.Kinds()
	if err != nil {
		return nil, err
	}
	start, err := cfg.Simulation.StartTime()
	if err != nil {
		return nil, err
	}
	seconds := cfg.Simulation.Seconds
	if seconds <= 0 {
		return nil, fmt.Errorf("simulation.seconds: %d", seconds)
	}

	ctrl := irq.New()
	st := sim.New(ctrl, sim.Config{
		Width:                 cfg.Timer.Width(),
		NominalTicksPerSecond: cfg.Timer.TicksPerSecond,
		OverflowLatency:       cfg.Simulation.OverflowLatency,
	})
	nominal := st.NominalTicksPerSecond()
	latest := &nav.Latest{}
	tm, err := gpstimer.New(ctrl, st, gpstimer.Options{
		Discipline: disciplineConfig(cfg, nominal),
		Sources:    kinds,
		Nav:        latest,
	})
	if err != nil {
		return nil, err
	}
	st.Attach(tm)

	rep := &Report{Seconds: seconds}
	if cfg.Wave.Enable {
		wavePin := st.NewPin(cfg.Wave.Pin, false)
		if err := tm.EnableWave(wavePin, cfg.Wave.Frequency); err != nil {
			return nil, err
		}
		if cfg.Data.Enable {
			dataPin := st.NewPin(cfg.Data.Pin, false)
			sampler, err := frame.NewSampler(cfg.Data.Interval, func(s frame.Snapshot, err error) {
				if err != nil {
					rep.FrameErrors++
					return
				}
				rep.Frames = append(rep.Frames, s)
			})
			if err != nil {
				return nil, err
			}
			// Приёмник снимает бит на спаде меандра.
			wavePin.OnChange(func(_ uint64, l gpio.Level) {
				if l == gpio.Low {
					sampler.Sample(dataPin.Level())
				}
			})
			if err := tm.EnableDataOutput(dataPin, cfg.Data.Interval); err != nil {
				return nil, err
			}
		}
	}

	capture := cfg.Discipline.Uses(edge.KindCapture)
	if !capture && !cfg.Discipline.Uses(edge.KindNavigation) {
		logger.Info("эмуляция: среди источников нет capture и navigation, опоры не будет")
	}

	ref := sim.NewReference(nominal/10, nominal, cfg.Simulation.OscillatorPPM, cfg.Simulation.JitterTicks, cfg.Simulation.Seed)
	var last uint64
	for n := 0; n < seconds; n++ {
		pulse := ref.Pulse(uint64(n))
		if capture {
			st.ScheduleCapture(pulse)
		}
		fix := nav.Fix{
			TimeValid:     true,
			Time:          calendar.FromTime(start.Add(time.Duration(n) * time.Second)),
			LocationValid: true,
			Latitude:      cfg.Simulation.Latitude,
			Longitude:     cfg.Simulation.Longitude,
		}
		// Приёмник выдаёт решение через 0,1 с после фронта, цикл просыпается на нём.
		st.At(pulse+nominal/10, func() {
			latest.Publish(fix)
			tm.Update()
		})
		last = pulse
	}
	end := last + nominal*9/10

	step := nominal / 8
	var update func()
	next := step
	update = func() {
		tm.Update()
		next += step
		if next <= end {
			st.At(next, update)
		}
	}
	st.At(next, update)

	report := func() {
		s := tm.Stats()
		if reg != nil {
			reg.Observe(s.Sample())
		}
		now, ok := tm.Now()
		if !ok {
			logger.Debug("эмуляция: %s, календарь не установлен", s.State)
			return
		}
		logger.Info("%s %s, %d тиков/с (%+.4f ppm), источник %s",
			now.Format("2006-01-02T15:04:05.000000Z"), s.State, s.TicksPerSecond, s.Drift.OffsetPPM, s.Source)
	}
	for n := uint64(0); n < uint64(seconds); n++ {
		st.At(ref.Start+n*nominal+nominal/2, report)
	}

	for now := uint64(0); now < end; {
		select {
		case <-ctx.Done():
			return rep, ctx.Err()
		default:
		}
		now += nominal
		if now > end {
			now = end
		}
		st.AdvanceTo(now)
	}

	rep.Stats = tm.Stats()
	if reg != nil {
		reg.Observe(rep.Stats.Sample())
	}
	rep.Now, _ = tm.Now()
	logger.Info("эмуляция: %d с, %d тиков/с, дрейф %.4f ppm (%.3f ppb/с), кадров %d, ошибок кадра %d",
		seconds, rep.Stats.TicksPerSecond, rep.Stats.Drift.OffsetPPM, rep.Stats.Drift.DriftPPBPerSec,
		len(rep.Frames), rep.FrameErrors)
	return rep, nil
}
