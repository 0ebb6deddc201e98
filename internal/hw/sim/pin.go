package sim

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Transition — смена уровня вывода.
type Transition struct {
	At    uint64
	Level gpio.Level
}

// Pin — эмулируемый цифровой выход с журналом переключений.
type Pin struct {
	name  string
	timer *Timer

	mu       sync.Mutex
	level    gpio.Level
	written  bool
	log      []Transition
	keep     bool
	onChange func(at uint64, l gpio.Level)
}

// NewPin создаёт вывод; переключения помечаются тиком таймера.
// record — хранить журнал (для тестов; в долгой симуляции выключают).
func (t *Timer) NewPin(name string, record bool) *Pin {
	return &Pin{name: name, timer: t, keep: record}
}

func (p *Pin) String() string { return p.name }

// Out выставляет уровень. Вызывается из прерывания.
func (p *Pin) Out(l gpio.Level) error {
	at := p.timer.now
	p.mu.Lock()
	if p.written && p.level == l {
		p.mu.Unlock()
		return nil
	}
	p.written = true
	p.level = l
	if p.keep {
		p.log = append(p.log, Transition{At: at, Level: l})
	}
	hook := p.onChange
	p.mu.Unlock()
	if hook != nil {
		hook(at, l)
	}
	return nil
}

// OnChange вешает обработчик на смену уровня. Обработчик вызывается до возврата из Out,
// то есть в контексте прерывания.
func (p *Pin) OnChange(fn func(at uint64, l gpio.Level)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Level — текущий уровень.
func (p *Pin) Level() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// Transitions — копия журнала.
func (p *Pin) Transitions() []Transition {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Transition(nil), p.log...)
}

// Reset очищает журнал.
func (p *Pin) Reset() {
	p.mu.Lock()
	p.log = nil
	p.mu.Unlock()
}
