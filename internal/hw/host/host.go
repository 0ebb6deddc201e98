// Package host — таймер на монотонных часах хоста: тик = 1 нс, 32-битный узкий
// счётчик (переход через ноль раз в 4,29 с), сравнение через time.AfterFunc,
// переполнение отдельной горутиной.
// Точность ограничена планировщиком ОС; для работы с реальным PPS на Linux.
package host

import (
	"fmt"
	"sync"
	"time"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
)

// TicksPerSecond — частота часов хоста.
const TicksPerSecond = 1_000_000_000

// Width — ширина счётчика. При 1 нс на тик более узкий счётчик переполняется
// за десятки микросекунд, и задержка планировщика теряет целые обороты.
const Width = 32

// Timer реализует hw.Timer.
type Timer struct {
	ctrl  *irq.Controller
	width uint
	mask  uint64
	base  uint64

	// Под ctrl.
	h        hw.Handlers
	serviced uint64
	gen      uint64
	cmp      *time.Timer

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New создаёт таймер хоста.
func New(ctrl *irq.Controller) *Timer {
	t, _ := newTimer(ctrl, Width)
	return t
}

// newTimer допускает узкий счётчик для проверки обслуживания переполнений.
func newTimer(ctrl *irq.Controller, width uint) (*Timer, error) {
	if width < 16 || width > 32 {
		return nil, fmt.Errorf("host timer: width %d out of range 16..32", width)
	}
	return &Timer{
		ctrl:  ctrl,
		width: width,
		mask:  1<<width - 1,
		base:  monotonicNanos(),
		stop:  make(chan struct{}),
	}, nil
}

// Start подключает обработчики и запускает обслуживание переполнений.
func (t *Timer) Start(h hw.Handlers) {
	t.ctrl.Critical(func() { t.h = h })
	t.wg.Add(1)
	go t.overflowLoop()
}

func (t *Timer) ticks() uint64 {
	return monotonicNanos() - t.base
}

func (t *Timer) Width() uint { return t.width }

func (t *Timer) NominalTicksPerSecond() uint64 { return TicksPerSecond }

func (t *Timer) Counter() uint32 {
	return uint32(t.ticks() & t.mask)
}

func (t *Timer) OverflowPending() bool {
	return t.ticks()>>t.width > t.serviced
}

// SetCompare вызывается из прерывания или под Critical.
func (t *Timer) SetCompare(target uint64) {
	t.gen++
	gen := t.gen
	if t.cmp != nil {
		t.cmp.Stop()
	}
	var d time.Duration
	if now := t.ticks(); target > now {
		d = time.Duration(target - now)
	}
	t.cmp = time.AfterFunc(d, func() {
		t.ctrl.Raise(func() {
			if gen != t.gen || t.h == nil {
				return
			}
			t.h.OnCompareMatch()
		})
	})
}

func (t *Timer) overflowLoop() {
	defer t.wg.Done()
	for {
		var next uint64
		t.ctrl.Critical(func() { next = (t.serviced + 1) << t.width })
		if now := t.ticks(); now < next {
			wait := time.NewTimer(time.Duration(next - now))
			select {
			case <-wait.C:
			case <-t.stop:
				wait.Stop()
				return
			}
			continue
		}
		t.ctrl.Raise(func() {
			t.serviced++
			if t.h != nil {
				t.h.OnOverflow()
			}
		})
	}
}

// Close останавливает горутины таймера.
func (t *Timer) Close() error {
	t.once.Do(func() {
		close(t.stop)
		t.ctrl.Critical(func() {
			t.gen++
			if t.cmp != nil {
				t.cmp.Stop()
			}
		})
	})
	t.wg.Wait()
	return nil
}
