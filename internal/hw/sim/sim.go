// Package sim — детерминированный эмулятор таймера: узкий счётчик с переполнением,
// захват фронта, сравнение, а также отложенные вызовы в виртуальном времени.
// Время идёт только в Advance/AdvanceTo; все события доставляются через irq.Controller.
package sim

import (
	"sort"
	"sync"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
)

// Config — параметры эмулируемого таймера.
type Config struct {
	Width                 uint   // разрядность счётчика, обычно 16
	NominalTicksPerSecond uint64 // паспортная частота генератора
	// OverflowLatency — через сколько тиков после перехода через ноль выполняется
	// обработчик переполнения (окно гонки захвата и переполнения).
	OverflowLatency uint64
}

type eventKind int

// Порядок важен: при совпадении тика захват раньше сравнения, сравнение раньше переполнения.
const (
	evCapture eventKind = iota
	evCompare
	evOverflow
	evCall
	evNone
)

type call struct {
	at  uint64
	seq uint64
	fn  func()
}

// Timer реализует hw.Timer в виртуальном времени.
type Timer struct {
	ctrl *irq.Controller
	cfg  Config
	mask uint64
	h    hw.Handlers

	// Под ctrl.
	now      uint64
	serviced uint64 // обслуженные переполнения
	compare  uint64
	armed    bool
	matches  uint64

	qmu      sync.Mutex
	captures []uint64
	calls    []call
	seq      uint64
}

// New создаёт эмулятор.
func New(ctrl *irq.Controller, cfg Config) *Timer {
	if cfg.Width == 0 || cfg.Width > 32 {
		cfg.Width = 16
	}
	if cfg.NominalTicksPerSecond == 0 {
		cfg.NominalTicksPerSecond = 16_000_000
	}
	return &Timer{ctrl: ctrl, cfg: cfg, mask: 1<<cfg.Width - 1}
}

// Attach подключает обработчики прерываний.
func (t *Timer) Attach(h hw.Handlers) {
	t.ctrl.Critical(func() { t.h = h })
}

func (t *Timer) Width() uint { return t.cfg.Width }

func (t *Timer) NominalTicksPerSecond() uint64 { return t.cfg.NominalTicksPerSecond }

// Counter — узкое значение счётчика. Вызывается из прерывания или под Critical.
func (t *Timer) Counter() uint32 {
	return uint32(t.now & t.mask)
}

// OverflowPending — переход через ноль уже был, обработчик ещё не выполнен.
func (t *Timer) OverflowPending() bool {
	return t.now>>t.cfg.Width > t.serviced
}

// SetCompare программирует сравнение. Цель в прошлом срабатывает на текущем тике.
func (t *Timer) SetCompare(target uint64) {
	t.compare = target
	t.armed = true
}

// Now — текущий широкий тик. Только из потока, который вызывает Advance.
func (t *Timer) Now() uint64 {
	return t.now
}

// Matches — сколько раз сработало сравнение.
func (t *Timer) Matches() uint64 {
	var n uint64
	t.ctrl.Critical(func() { n = t.matches })
	return n
}

// ScheduleCapture ставит в очередь аппаратный захват фронта на тике at.
func (t *Timer) ScheduleCapture(at uint64) {
	t.qmu.Lock()
	i := sort.Search(len(t.captures), func(i int) bool { return t.captures[i] > at })
	t.captures = append(t.captures, 0)
	copy(t.captures[i+1:], t.captures[i:])
	t.captures[i] = at
	t.qmu.Unlock()
}

// At выполняет fn на тике at вне контекста прерывания (основной цикл, навигация).
func (t *Timer) At(at uint64, fn func()) {
	t.qmu.Lock()
	t.seq++
	c := call{at: at, seq: t.seq, fn: fn}
	i := sort.Search(len(t.calls), func(i int) bool {
		return t.calls[i].at > at
	})
	t.calls = append(t.calls, call{})
	copy(t.calls[i+1:], t.calls[i:])
	t.calls[i] = c
	t.qmu.Unlock()
}

// Advance продвигает время на d тиков.
func (t *Timer) Advance(d uint64) {
	t.AdvanceTo(t.now + d)
}

// AdvanceTo доставляет все события до тика target включительно. Нельзя вызывать из
// обработчиков и критических секций.
func (t *Timer) AdvanceTo(target uint64) {
	for {
		at, kind := t.next()
		if kind == evNone || at > target {
			break
		}
		t.fire(at, kind)
	}
	t.ctrl.Critical(func() {
		if target > t.now {
			t.now = target
		}
	})
}

func (t *Timer) next() (uint64, eventKind) {
	var now, ovf, cmp uint64
	var armed bool
	t.ctrl.Critical(func() {
		now = t.now
		cmp, armed = t.compare, t.armed
		ovf = (t.serviced+1)<<t.cfg.Width + t.cfg.OverflowLatency
	})
	bestAt, bestKind := uint64(0), evNone
	consider := func(at uint64, k eventKind) {
		if at < now {
			at = now
		}
		if bestKind == evNone || at < bestAt || (at == bestAt && k < bestKind) {
			bestAt, bestKind = at, k
		}
	}
	t.qmu.Lock()
	if len(t.captures) > 0 {
		consider(t.captures[0], evCapture)
	}
	if len(t.calls) > 0 {
		consider(t.calls[0].at, evCall)
	}
	t.qmu.Unlock()
	if armed {
		consider(cmp, evCompare)
	}
	consider(ovf, evOverflow)
	return bestAt, bestKind
}

func (t *Timer) fire(at uint64, kind eventKind) {
	t.ctrl.Critical(func() {
		if at > t.now {
			t.now = at
		}
	})
	switch kind {
	case evCapture:
		t.qmu.Lock()
		t.captures = t.captures[1:]
		t.qmu.Unlock()
		t.ctrl.Raise(func() {
			if t.h != nil {
				t.h.OnCapture(t.Counter(), t.OverflowPending())
			}
		})
	case evCompare:
		t.ctrl.Raise(func() {
			t.armed = false
			t.matches++
			if t.h != nil {
				t.h.OnCompareMatch()
			}
		})
	case evOverflow:
		t.ctrl.Raise(func() {
			t.serviced++
			if t.h != nil {
				t.h.OnOverflow()
			}
		})
	case evCall:
		t.qmu.Lock()
		c := t.calls[0]
		t.calls = t.calls[1:]
		t.qmu.Unlock()
		c.fn()
	}
}
