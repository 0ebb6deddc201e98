package frame

import (
	"periph.io/x/conn/v3/gpio"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
)

// Encoder выдаёт кадр на вывод данных по полупериодам меандра.
// Rebuild и OnHalfPulse вызываются из прерывания, остальное — из основного цикла.
type Encoder struct {
	ctrl *irq.Controller

	out      hw.Output
	enabled  bool
	interval uint32

	frame     Frame
	field     int    // следующее поле
	buf       uint64 // остаток текущего поля
	remaining uint8  // битов в buf
	count     uint32 // высоких полупериодов на текущем бите
	finished  bool

	driven  gpio.Level
	written bool

	frames  uint64 // переданные до конца кадры
	cut     uint64 // кадры, прерванные новым фронтом
	pinErrs uint64
}

// NewEncoder создаёт выключенный кодер без кадра.
func NewEncoder(ctrl *irq.Controller) *Encoder {
	return &Encoder{ctrl: ctrl, out: hw.Discard, interval: 1, finished: true}
}

// Enable включает вывод данных: каждый бит держится interval высоких полупериодов.
func (e *Encoder) Enable(out hw.Output, interval uint32) error {
	if interval == 0 {
		return ErrInvalidInterval
	}
	e.ctrl.Critical(func() {
		e.out = out
		e.written = false
		e.interval = interval
		e.enabled = true
	})
	return nil
}

// Disable снимает флаг; вывод опустится на ближайшем полупериоде.
func (e *Encoder) Disable() {
	e.ctrl.Critical(func() { e.enabled = false })
}

// Rebuild ставит новый кадр в начало передачи.
func (e *Encoder) Rebuild(f Frame) {
	if !e.finished && e.field > 0 {
		e.cut++
	}
	e.frame = f
	e.field = 0
	e.buf = 0
	e.remaining = 0
	e.count = 0
	e.finished = false
}

// OnHalfPulse — очередной полупериод меандра: high — меандр перешёл в высокий уровень,
// active — опора откалибрована. Бит продвигается только на высоких полупериодах,
// на низких вывод опускается.
func (e *Encoder) OnHalfPulse(high, active bool) {
	if !e.enabled || !active || e.finished || !high {
		e.drive(gpio.Low)
		return
	}
	for e.remaining == 0 {
		if e.field >= len(e.frame) {
			e.finished = true
			e.frames++
			e.drive(gpio.Low)
			return
		}
		f := e.frame[e.field]
		e.field++
		e.buf, e.remaining = f.Value, f.Width
	}
	e.drive(e.buf&1 == 1)
	e.count++
	if e.count >= e.interval {
		e.buf >>= 1
		e.remaining--
		e.count = 0
	}
}

func (e *Encoder) drive(l gpio.Level) {
	if e.written && e.driven == l {
		return
	}
	if err := e.out.Out(l); err != nil {
		e.pinErrs++
		return
	}
	e.driven = l
	e.written = true
}

// EncoderStatus — снимок состояния кодера.
type EncoderStatus struct {
	Enabled   bool
	Interval  uint32
	Finished  bool
	Frames    uint64
	Truncated uint64
	PinErrors uint64
}

// Status читает состояние под маской прерываний.
func (e *Encoder) Status() EncoderStatus {
	var s EncoderStatus
	e.ctrl.Critical(func() {
		s = EncoderStatus{
			Enabled:   e.enabled,
			Interval:  e.interval,
			Finished:  e.finished,
			Frames:    e.frames,
			Truncated: e.cut,
			PinErrors: e.pinErrs,
		}
	})
	return s
}
