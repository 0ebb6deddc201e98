// Package pins — выводы GPIO через periph.io: выходы меандра и данных,
// вход опорного импульса с подавлением дребезга.
package pins

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpioutil"
	"periph.io/x/host/v3"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init загружает драйверы periph.io один раз на процесс.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// Output открывает вывод по имени ("GPIO17", "P1_11") и опускает его.
func Output(name string) (hw.Output, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s out: %w", name, err)
	}
	return p, nil
}

// edgeWait — период проверки остановки при ожидании фронта.
const edgeWait = 500 * time.Millisecond

// EdgeSource — опорный фронт с внешнего вывода (нарастающий фронт PPS).
type EdgeSource struct {
	pin  gpio.PinIO
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// OpenEdgeSource открывает вход по имени.
func OpenEdgeSource(name string, debounce time.Duration) (*EdgeSource, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return NewEdgeSource(p, debounce)
}

// NewEdgeSource настраивает вход на нарастающий фронт; debounce > 0 — окно
// подавления повторных фронтов.
func NewEdgeSource(p gpio.PinIO, debounce time.Duration) (*EdgeSource, error) {
	if err := p.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("gpio %s in: %w", p, err)
	}
	if debounce > 0 {
		d, err := gpioutil.Debounce(p, 0, debounce, gpio.RisingEdge)
		if err != nil {
			return nil, fmt.Errorf("gpio %s debounce: %w", p, err)
		}
		p = d
	}
	return &EdgeSource{pin: p, stop: make(chan struct{})}, nil
}

func (s *EdgeSource) Kind() edge.Kind { return edge.KindPin }

// Start ждёт фронты в отдельной горутине.
func (s *EdgeSource) Start(sink edge.Sink) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			default:
			}
			if s.pin.WaitForEdge(edgeWait) && s.pin.Read() == gpio.High {
				sink.Trigger(edge.KindPin, 0)
			}
		}
	}()
	return nil
}

// Close останавливает ожидание.
func (s *EdgeSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.pin.Halt()
	})
	s.wg.Wait()
	return err
}
