// Package gpstimer — таймер, дисциплинированный опорным PPS: собирает вместе
// движок калибровки, генератор меандра и кодер кадра поверх одного аппаратного
// счётчика. Timer — обработчик прерываний счётчика (hw.Handlers) и приёмник
// программных фронтов (edge.Sink); остальные методы вызываются из основного цикла.
package gpstimer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/discipline"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/frame"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/logger"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/nav"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/stats"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/wave"
)

// ErrWaveNotConfigured — вывод данных включают раньше, чем меандр получил вывод и частоту.
var ErrWaveNotConfigured = errors.New("gpstimer: wave output was never enabled")

// maxEdgeAge — фронты старше этого не принимаются: секунда уже другая.
const maxEdgeAge = time.Second

// Options — параметры таймера.
type Options struct {
	Discipline discipline.Config
	// Sources — допустимые источники фронта; пусто — все.
	Sources []edge.Kind
	// Nav — навигационный приёмник; nil — календарь не ведётся.
	Nav nav.Source
}

// EdgeCounts — фронты одного источника по итогу обработки.
type EdgeCounts struct {
	Calibrated uint64
	Armed      uint64
	Ignored    uint64
}

// Timer — дисциплинированный таймер.
type Timer struct {
	ctrl    *irq.Controller
	hw      hw.Timer
	engine  *discipline.Engine
	wave    *wave.Generator
	enc     *frame.Encoder
	nav     nav.Source
	drift   *stats.Drift
	allowed map[edge.Kind]bool

	// Под ctrl.
	edges map[edge.Kind]*EdgeCounts

	// Основной цикл.
	mu         sync.Mutex
	waveOut    hw.Output
	waveFreq   uint32
	lastState  discipline.State
	lastFrames uint64
	fixes      uint64
	lateFixes  uint64
}

// New собирает таймер. Обработчики подключает вызывающий: sim.Timer.Attach или host.Timer.Start.
func New(ctrl *irq.Controller, timer hw.Timer, opts Options) (*Timer, error) {
	engine, err := discipline.New(ctrl, timer, opts.Discipline)
	if err != nil {
		return nil, err
	}
	sources := opts.Sources
	if len(sources) == 0 {
		sources = edge.Kinds()
	}
	allowed := make(map[edge.Kind]bool, len(sources))
	edges := make(map[edge.Kind]*EdgeCounts)
	for _, k := range edge.Kinds() {
		edges[k] = &EdgeCounts{}
	}
	for _, k := range sources {
		allowed[k] = true
	}
	return &Timer{
		ctrl:      ctrl,
		hw:        timer,
		engine:    engine,
		wave:      wave.New(ctrl, timer),
		enc:       frame.NewEncoder(ctrl),
		nav:       opts.Nav,
		drift:     stats.NewDrift(engine.Config().NominalTicksPerSecond),
		allowed:   allowed,
		edges:     edges,
		lastState: engine.State(),
	}, nil
}

// OnCapture — прерывание захвата опорного фронта.
func (t *Timer) OnCapture(raw uint32, overflowPending bool) {
	t.accept(edge.Edge{Source: edge.KindCapture, Raw: raw, Pending: overflowPending})
}

// OnCompareMatch — прерывание сравнения: следующий полупериод меандра и бит данных.
func (t *Timer) OnCompareMatch() {
	level, ok := t.wave.OnCompareMatch()
	if !ok {
		// Меандр остановлен: без полупериодов данные не передаются, вывод в Low.
		t.enc.OnHalfPulse(false, false)
		return
	}
	t.enc.OnHalfPulse(level == gpio.High, t.engine.IsReferenceActive())
}

// OnOverflow — прерывание переполнения счётчика.
func (t *Timer) OnOverflow() {
	t.engine.Overflow()
}

// Trigger принимает фронт программного источника (/dev/pps, вывод, навигация):
// счётчик защёлкивается в прерывании, а фронт сдвигается назад на age.
func (t *Timer) Trigger(kind edge.Kind, age time.Duration) {
	if age > maxEdgeAge {
		logger.Debug("фронт %s старше секунды (%v), пропущен", kind, age)
		return
	}
	var ticks uint64
	if age > 0 {
		ticks = uint64(age) * t.engine.TicksPerSecond() / uint64(time.Second)
	}
	t.ctrl.Raise(func() {
		t.accept(edge.Edge{
			Source:  kind,
			Raw:     t.hw.Counter(),
			Pending: t.hw.OverflowPending(),
			Age:     ticks,
		})
	})
}

// accept — общий путь фронта в контексте прерывания.
func (t *Timer) accept(ed edge.Edge) {
	c := t.counts(ed.Source)
	if !t.allowed[ed.Source] {
		c.Ignored++
		return
	}
	res := t.engine.AcceptEdge(ed)
	switch {
	case !res.Accepted:
		c.Ignored++
	case res.Calibrated:
		c.Calibrated++
	default:
		c.Armed++
	}
	if !res.Accepted || res.State != discipline.Active {
		return
	}
	t.enc.Rebuild(frame.Build(snapshot(t.engine.Reading())))
	level, running := t.wave.OnEdge(res.Edge)
	t.enc.OnHalfPulse(running && level == gpio.High, true)
}

func (t *Timer) counts(k edge.Kind) *EdgeCounts {
	c, ok := t.edges[k]
	if !ok {
		c = &EdgeCounts{}
		t.edges[k] = c
	}
	return c
}

func snapshot(r discipline.Reading) frame.Snapshot {
	return frame.Snapshot{
		TimeValid:     r.TimeValid,
		Time:          r.Time,
		LocationValid: r.Location.Valid,
		Latitude:      float32(r.Location.Latitude),
		Longitude:     float32(r.Location.Longitude),
	}
}

// EnableWave включает меандр частоты freq на out. Фаза берётся со следующего фронта.
func (t *Timer) EnableWave(out hw.Output, freq uint32) error {
	if err := t.wave.Enable(out, freq); err != nil {
		return fmt.Errorf("enable wave: %w", err)
	}
	t.mu.Lock()
	t.waveOut, t.waveFreq = out, freq
	t.mu.Unlock()
	logger.Info("меандр %d Гц на %v", freq, out)
	return nil
}

// DisableWave останавливает меандр на ближайшем сравнении; вывод остаётся на последнем уровне.
func (t *Timer) DisableWave() {
	t.wave.Disable()
}

// EnableDataOutput включает вывод кадра на out; каждый бит держится interval
// высоких полупериодов. Выключенный меандр включается с прежними параметрами.
func (t *Timer) EnableDataOutput(out hw.Output, interval uint32) error {
	if interval == 0 {
		return fmt.Errorf("enable data output: %w", frame.ErrInvalidInterval)
	}
	t.mu.Lock()
	waveOut, freq := t.waveOut, t.waveFreq
	t.mu.Unlock()
	if waveOut == nil {
		return ErrWaveNotConfigured
	}
	if !t.wave.Status().Enabled {
		if err := t.wave.Enable(waveOut, freq); err != nil {
			return fmt.Errorf("enable data output: %w", err)
		}
	}
	if err := t.enc.Enable(out, interval); err != nil {
		return fmt.Errorf("enable data output: %w", err)
	}
	logger.Info("кадр данных на %v, бит = %d полупериодов", out, interval)
	return nil
}

// DisableDataOutput выключает вывод кадра; вывод опустится на ближайшем полупериоде.
func (t *Timer) DisableDataOutput() {
	t.enc.Disable()
}

// Update — шаг основного цикла: навигационное решение, перенастройка меандра
// под новую частоту, проверка потери опоры. Вызывать чаще раза в секунду.
func (t *Timer) Update() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nav != nil && t.nav.Updated() {
		f := t.nav.Fix()
		if f.TimeValid {
			// Секундный тик приёмника — резервный фронт.
			t.Trigger(edge.KindNavigation, 0)
		}
		if t.engine.ApplyFix(f) {
			t.fixes++
		} else {
			t.lateFixes++
			logger.Debug("навигационное решение пришло поздно (%d тиков от фронта)", t.engine.ElapsedTicks())
		}
	}

	if tps, ok := t.engine.TakeRetune(); ok {
		t.retune(tps)
		if t.engine.State() == discipline.Active {
			t.drift.Add(tps)
		}
	}

	if t.engine.CheckStale() {
		t.drift.Reset()
		if tps, ok := t.engine.TakeRetune(); ok {
			t.retune(tps)
		}
		logger.Info("опора потеряна: нет фронта дольше %d тиков", t.engine.StaleTimeout())
	}

	if st := t.engine.State(); st != t.lastState {
		logger.Info("опора: %s -> %s, %d тиков/с, источник %s",
			t.lastState, st, t.engine.TicksPerSecond(), t.engine.Source())
		t.lastState = st
	}
	if s := t.enc.Status(); s.Frames != t.lastFrames {
		logger.Debug("передан кадр %d", s.Frames)
		t.lastFrames = s.Frames
	}
}

func (t *Timer) retune(tps uint64) {
	if err := t.wave.Configure(tps); err != nil {
		logger.Error("перенастройка меандра на %d тиков/с: %v", tps, err)
	}
}

// Calendar — календарное время текущей секунды. Сбрасывает признак обновления.
func (t *Timer) Calendar() calendar.Time { return t.engine.Calendar() }

// Year..Second читают по одному полю, каждое из своего снимка: между вызовами
// может начаться новая секунда. Для согласованных полей используйте Calendar.
func (t *Timer) Year() uint16  { return t.Calendar().Year }
func (t *Timer) Month() uint8  { return t.Calendar().Month }
func (t *Timer) Day() uint8    { return t.Calendar().Day }
func (t *Timer) Hour() uint8   { return t.Calendar().Hour }
func (t *Timer) Minute() uint8 { return t.Calendar().Minute }
func (t *Timer) Second() uint8 { return t.Calendar().Second }

// Microsecond — доля текущей секунды, 0..999999.
func (t *Timer) Microsecond() uint32 { return t.engine.Microsecond() }

// Now — абсолютное время UTC; false, пока календарь не установлен.
func (t *Timer) Now() (time.Time, bool) { return t.engine.Now() }

// IsUpdated — календарь обновился с прошлой проверки.
func (t *Timer) IsUpdated() bool { return t.engine.IsUpdated() }

// IsReferenceActive — опора жива и частота откалибрована.
func (t *Timer) IsReferenceActive() bool { return t.engine.IsReferenceActive() }

// TicksPerSecond — текущая откалиброванная частота.
func (t *Timer) TicksPerSecond() uint64 { return t.engine.TicksPerSecond() }

// Stats — снимок состояния для логов и метрик.
type Stats struct {
	State          discipline.State
	Source         edge.Kind
	TicksPerSecond uint64
	StaleTimeout   uint64
	Counters       discipline.Counters
	Edges          map[edge.Kind]EdgeCounts
	Wave           wave.Status
	Data           frame.EncoderStatus
	Drift          stats.Summary
	Fixes          uint64
	LateFixes      uint64
}

// Stats собирает снимок.
func (t *Timer) Stats() Stats {
	s := Stats{
		State:          t.engine.State(),
		Source:         t.engine.Source(),
		TicksPerSecond: t.engine.TicksPerSecond(),
		StaleTimeout:   t.engine.StaleTimeout(),
		Counters:       t.engine.Counters(),
		Edges:          make(map[edge.Kind]EdgeCounts),
		Wave:           t.wave.Status(),
		Data:           t.enc.Status(),
		Drift:          t.drift.Summary(),
	}
	t.ctrl.Critical(func() {
		for k, c := range t.edges {
			s.Edges[k] = *c
		}
	})
	t.mu.Lock()
	s.Fixes, s.LateFixes = t.fixes, t.lateFixes
	t.mu.Unlock()
	return s
}
