// Package discipline — калибровка свободно бегущего генератора по опорным секундным фронтам.
//
// Состояния: Uncalibrated → Armed (первый фронт) → Active (второй и последующие).
// Частота ticksPerSecond всегда равна точному интервалу между двумя последними
// принятыми фронтами. Если фронтов нет дольше StaleFactor секунд, основной цикл
// (CheckStale) переводит движок в Stale, что эквивалентно Uncalibrated.
//
// AcceptEdge, Overflow и Reading вызываются из контекста прерывания,
// остальные методы — из основного цикла.
package discipline

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/nav"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/timebase"
)

// MaxMicrosecond — верхняя граница доли секунды.
const MaxMicrosecond = 999_999

// State — состояние калибровки.
type State int32

const (
	Uncalibrated State = iota
	Armed
	Active
	Stale
)

func (s State) String() string {
	switch s {
	case Uncalibrated:
		return "uncalibrated"
	case Armed:
		return "armed"
	case Active:
		return "active"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Config — параметры движка.
type Config struct {
	// NominalTicksPerSecond — частота до калибровки; 0 — взять у таймера.
	NominalTicksPerSecond uint64
	// StaleFactor — через сколько секунд без фронта опора считается потерянной.
	StaleFactor uint64
	// RecalibrationGuard — навигационное решение применяется, только пока от фронта
	// прошло меньше стольких тиков (решение описывает секунду, начатую этим фронтом).
	RecalibrationGuard uint64
}

// DefaultConfig — 16 МГц, таймаут 2 с, окно 4 000 000 тиков (0,25 с).
func DefaultConfig() Config {
	return Config{
		NominalTicksPerSecond: 16_000_000,
		StaleFactor:           2,
		RecalibrationGuard:    4_000_000,
	}
}

// Location — координаты для кадра.
type Location struct {
	Valid     bool
	Latitude  float64
	Longitude float64
}

// Reading — согласованный снимок времени и координат, из которого строится кадр.
type Reading struct {
	TimeValid bool
	Time      calendar.Time
	Location  Location
}

// Result — итог обработки фронта.
type Result struct {
	Accepted       bool
	State          State  // состояние после фронта
	Calibrated     bool   // ticksPerSecond перемерен на этом фронте
	Edge           uint64 // широкий тик фронта
	TicksPerSecond uint64
}

// Counters — счётчики событий движка.
type Counters struct {
	Edges        uint64 // принятые фронты
	Ignored      uint64 // отброшенные арбитром или повторные
	Calibrations uint64
	Rearms       uint64 // фронт после слишком длинной паузы или от другого источника
	StaleResets  uint64
}

// Engine — движок дисциплинирования.
type Engine struct {
	ctrl    *irq.Controller
	timer   hw.Timer
	cfg     Config
	counter *timebase.Counter
	arb     *edge.Arbiter

	state   atomic.Int32
	updated atomic.Bool

	// Поля ниже меняются только в прерывании или под ctrl.Critical.
	tps        uint64
	staleAfter uint64
	cal        calendar.Time
	calSet     bool
	timeValid  bool
	loc        Location
	retune     bool
	lastSource edge.Kind
	counters   Counters
}

// New создаёт движок для таймера.
func New(ctrl *irq.Controller, timer hw.Timer, cfg Config) (*Engine, error) {
	if cfg.NominalTicksPerSecond == 0 {
		cfg.NominalTicksPerSecond = timer.NominalTicksPerSecond()
	}
	if cfg.NominalTicksPerSecond == 0 {
		return nil, fmt.Errorf("discipline: nominal ticks per second is zero")
	}
	if cfg.StaleFactor < 2 {
		return nil, fmt.Errorf("discipline: stale factor %d, must be at least 2", cfg.StaleFactor)
	}
	if cfg.RecalibrationGuard == 0 {
		cfg.RecalibrationGuard = cfg.NominalTicksPerSecond / 4
	}
	counter, err := timebase.New(timer.Width())
	if err != nil {
		return nil, err
	}
	e := &Engine{
		ctrl:       ctrl,
		timer:      timer,
		cfg:        cfg,
		counter:    counter,
		tps:        cfg.NominalTicksPerSecond,
		staleAfter: cfg.StaleFactor * cfg.NominalTicksPerSecond,
	}
	e.arb = edge.NewArbiter(e.staleAfter)
	return e, nil
}

// Config возвращает действующие параметры.
func (e *Engine) Config() Config {
	return e.cfg
}

// Overflow — обработчик переполнения счётчика.
func (e *Engine) Overflow() {
	e.counter.Overflow()
}

// AcceptEdge обрабатывает опорный фронт.
func (e *Engine) AcceptEdge(ed edge.Edge) Result {
	wide := e.counter.CaptureTick(ed.Raw, ed.Pending)
	if ed.Age > 0 && wide >= ed.Age {
		wide -= ed.Age
	}
	st := State(e.state.Load())
	res := Result{State: st, Edge: wide, TicksPerSecond: e.tps}

	if !e.arb.Admit(ed.Source, wide) {
		e.counters.Ignored++
		return res
	}

	switch st {
	case Armed, Active:
		last := e.counter.Edge()
		if wide <= last {
			e.counters.Ignored++
			return res
		}
		interval := wide - last
		e.counter.Mark(wide)
		if interval > e.staleAfter || ed.Source != e.lastSource {
			// Пауза длиннее таймаута или смена источника: интервал не секунда,
			// только перевзводим.
			e.counters.Rearms++
			e.setState(Armed)
			res.State = Armed
			break
		}
		e.tps = interval
		e.staleAfter = e.cfg.StaleFactor * interval
		e.retune = true
		if e.calSet {
			e.cal = e.cal.AddSeconds(1)
		}
		e.setState(Active)
		e.updated.Store(true)
		e.counters.Calibrations++
		res.State = Active
		res.Calibrated = true
		res.TicksPerSecond = interval
	default:
		e.counter.Mark(wide)
		e.setState(Armed)
		res.State = Armed
	}
	e.counters.Edges++
	e.lastSource = ed.Source
	e.arb.SetHoldoff(e.staleAfter)
	res.Accepted = true
	return res
}

// Reading возвращает снимок для кадра. Вызывается из прерывания сразу после AcceptEdge.
func (e *Engine) Reading() Reading {
	return Reading{TimeValid: e.timeValid && e.calSet, Time: e.cal, Location: e.loc}
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// State — текущее состояние (без блокировки).
func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsReferenceActive — опора жива и частота откалибрована.
func (e *Engine) IsReferenceActive() bool {
	return e.State() == Active
}

// elapsed — тиков от последнего фронта. Только под Critical.
func (e *Engine) elapsed() uint64 {
	return e.counter.ElapsedTicks(e.timer.Counter(), e.timer.OverflowPending())
}

// ElapsedTicks — тиков от последнего фронта.
func (e *Engine) ElapsedTicks() uint64 {
	var el uint64
	e.ctrl.Critical(func() { el = e.elapsed() })
	return el
}

// TicksPerSecond — текущая откалиброванная частота.
func (e *Engine) TicksPerSecond() uint64 {
	var tps uint64
	e.ctrl.Critical(func() { tps = e.tps })
	return tps
}

// Microsecond — доля текущей секунды в микросекундах, не больше 999 999.
func (e *Engine) Microsecond() uint32 {
	var el, tps uint64
	e.ctrl.Critical(func() {
		el = e.elapsed()
		tps = e.tps
	})
	return microseconds(el, tps)
}

func microseconds(elapsed, tps uint64) uint32 {
	if elapsed >= tps {
		return MaxMicrosecond
	}
	us := elapsed * 1_000_000 / tps
	if us > MaxMicrosecond {
		return MaxMicrosecond
	}
	return uint32(us)
}

// Calendar возвращает календарное время текущей секунды и сбрасывает признак обновления.
func (e *Engine) Calendar() calendar.Time {
	var c calendar.Time
	e.ctrl.Critical(func() { c = e.cal })
	e.updated.Store(false)
	return c
}

// Now — абсолютное время UTC с микросекундами; false, если календарь не установлен.
func (e *Engine) Now() (time.Time, bool) {
	var (
		c       calendar.Time
		set     bool
		el, tps uint64
	)
	e.ctrl.Critical(func() {
		c, set = e.cal, e.calSet
		el, tps = e.elapsed(), e.tps
	})
	if !set {
		return time.Time{}, false
	}
	return c.Time(microseconds(el, tps)), true
}

// IsUpdated — было ли обновление календаря с прошлой проверки (одноразовый признак).
func (e *Engine) IsUpdated() bool {
	return e.updated.Swap(false)
}

// ApplyFix применяет навигационное решение (основной цикл).
// При живой калибровке решение принимается только в начале секунды, пока
// от фронта прошло меньше RecalibrationGuard тиков. Возвращает, применено ли оно.
func (e *Engine) ApplyFix(f nav.Fix) bool {
	applied := false
	e.ctrl.Critical(func() {
		st := e.State()
		if (st == Armed || st == Active) && e.elapsed() >= e.cfg.RecalibrationGuard {
			return
		}
		e.timeValid = f.TimeValid
		if f.TimeValid {
			e.cal = f.Time
			e.calSet = true
		}
		e.loc = Location{Valid: f.LocationValid, Latitude: f.Latitude, Longitude: f.Longitude}
		applied = true
	})
	if applied && f.TimeValid {
		e.updated.Store(true)
	}
	return applied
}

// CheckStale сбрасывает калибровку, если фронтов нет дольше таймаута (основной цикл).
// Возвращает true, если сброс произошёл сейчас.
func (e *Engine) CheckStale() bool {
	reset := false
	e.ctrl.Critical(func() {
		st := e.State()
		if st != Armed && st != Active {
			return
		}
		el := e.elapsed()
		if el <= e.staleAfter {
			return
		}
		e.counter.Mark(e.counter.Edge() + el)
		e.tps = e.cfg.NominalTicksPerSecond
		e.staleAfter = e.cfg.StaleFactor * e.tps
		e.retune = true
		e.arb.Reset()
		e.arb.SetHoldoff(e.staleAfter)
		e.counters.StaleResets++
		e.setState(Stale)
		reset = true
	})
	return reset
}

// TakeRetune возвращает новую частоту, если она изменилась с прошлого вызова (основной цикл).
func (e *Engine) TakeRetune() (uint64, bool) {
	var (
		tps uint64
		ok  bool
	)
	e.ctrl.Critical(func() {
		if e.retune {
			tps, ok = e.tps, true
			e.retune = false
		}
	})
	return tps, ok
}

// StaleTimeout — текущий порог потери опоры в тиках.
func (e *Engine) StaleTimeout() uint64 {
	var s uint64
	e.ctrl.Critical(func() { s = e.staleAfter })
	return s
}

// Source — источник последнего принятого фронта.
func (e *Engine) Source() edge.Kind {
	var k edge.Kind
	e.ctrl.Critical(func() { k = e.lastSource })
	return k
}

// Counters — снимок счётчиков.
func (e *Engine) Counters() Counters {
	var c Counters
	e.ctrl.Critical(func() { c = e.counters })
	return c
}
