package wave

import (
	"periph.io/x/conn/v3/gpio"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
)

// Generator ведёт выход меандра по прерываниям сравнения таймера.
// OnEdge и OnCompareMatch вызываются из прерывания, остальное — из основного цикла.
type Generator struct {
	ctrl  *irq.Controller
	timer hw.Timer

	// Под ctrl: пишутся в основном цикле только внутри Critical.
	out     hw.Output
	enabled bool
	plan    Plan

	// Состояние прерывания.
	running bool
	edge    uint64
	k       uint64 // номер следующего переключения
	offset  uint64 // Offset(k)
	acc     uint64 // k·rem mod 2f
	level   gpio.Level

	reconfigs uint64
	pinErrs   uint64
}

// New создаёт генератор. До первой калибровки план строится по паспортной частоте.
func New(ctrl *irq.Controller, timer hw.Timer) *Generator {
	return &Generator{
		ctrl:  ctrl,
		timer: timer,
		out:   hw.Discard,
		plan:  Plan{TicksPerSecond: timer.NominalTicksPerSecond()},
	}
}

// Enable включает выход на out с частотой freq. Меандр стартует со следующего фронта.
func (g *Generator) Enable(out hw.Output, freq uint32) error {
	var tps uint64
	g.ctrl.Critical(func() { tps = g.plan.TicksPerSecond })
	plan, err := NewPlan(tps, freq)
	if err != nil {
		return err
	}
	g.ctrl.Critical(func() {
		g.out = out
		g.enabled = true
		g.swap(plan)
	})
	return nil
}

// Disable снимает флаг. Выход остаётся на последнем уровне, прерывание сравнения
// на ближайшем совпадении остановит меандр.
func (g *Generator) Disable() {
	g.ctrl.Critical(func() { g.enabled = false })
}

// Configure пересчитывает план под новую частоту тиков (раз в секунду, основной цикл).
func (g *Generator) Configure(tps uint64) error {
	var freq uint32
	g.ctrl.Critical(func() { freq = g.plan.Frequency })
	if freq == 0 {
		// Частота ещё не задана: просто запоминаем скорость.
		g.ctrl.Critical(func() { g.plan.TicksPerSecond = tps })
		return nil
	}
	plan, err := NewPlan(tps, freq)
	if err != nil {
		return err
	}
	g.ctrl.Critical(func() {
		g.swap(plan)
		g.reconfigs++
	})
	return nil
}

// swap подменяет план и, если меандр идёт, пересчитывает текущую цель. Под Critical.
func (g *Generator) swap(plan Plan) {
	g.plan = plan
	if !g.running {
		return
	}
	g.offset = plan.Offset(g.k)
	g.acc = plan.accumulator(g.k)
	g.timer.SetCompare(g.edge + g.offset)
}

// OnEdge фазирует меандр по опорному фронту: индекс в 0, уровень сначала Low,
// затем сразу первое переключение в High. Возвращает новый уровень.
func (g *Generator) OnEdge(wide uint64) (gpio.Level, bool) {
	if !g.enabled || g.plan.HalfPulses == 0 {
		g.running = false
		return g.level, false
	}
	g.edge = wide
	g.k, g.offset, g.acc = 0, 0, 0
	g.level = gpio.Low
	g.running = true
	g.toggle()
	return g.level, true
}

// OnCompareMatch переключает выход и программирует следующее сравнение.
func (g *Generator) OnCompareMatch() (gpio.Level, bool) {
	if !g.running {
		return g.level, false
	}
	if !g.enabled {
		g.running = false
		return g.level, false
	}
	g.toggle()
	return g.level, true
}

func (g *Generator) toggle() {
	g.level = !g.level
	if err := g.out.Out(g.level); err != nil {
		g.pinErrs++
	}
	g.step()
	g.timer.SetCompare(g.edge + g.offset)
}

// step — один полупериод накопителя.
func (g *Generator) step() {
	g.acc += g.plan.Remainder
	g.offset += g.plan.Base
	if g.acc >= g.plan.HalfPulses {
		g.acc -= g.plan.HalfPulses
		g.offset++
	}
	g.k++
}

// Status — снимок состояния генератора.
type Status struct {
	Enabled          bool
	Running          bool
	Plan             Plan
	HalfPulseIndex   uint64
	Level            gpio.Level
	NextTarget       uint64
	Reconfigurations uint64
	PinErrors        uint64
}

// Status читает состояние под маской прерываний.
func (g *Generator) Status() Status {
	var s Status
	g.ctrl.Critical(func() {
		s = Status{
			Enabled:          g.enabled,
			Running:          g.running,
			Plan:             g.plan,
			HalfPulseIndex:   g.k,
			Level:            g.level,
			NextTarget:       g.edge + g.offset,
			Reconfigurations: g.reconfigs,
			PinErrors:        g.pinErrs,
		}
	})
	return s
}
