//go:build linux

package pps

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
)

// ppsFetch = _IOWR('p', 0xa4, struct pps_fdata *): размер аргумента — размер указателя.
var ppsFetch = uintptr(0xc00070a4) | unsafe.Sizeof(uintptr(0))<<16

// fetchTimeout — сколько ядро ждёт фронт за один вызов.
const fetchTimeout = time.Second

// Source — источник фронтов /dev/ppsN.
type Source struct {
	f    *os.File
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Open открывает /dev/pps<index>.
func Open(index int) (*Source, error) {
	path := fmt.Sprintf("/dev/pps%d", index)
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("pps open %s: %w", path, err)
	}
	return &Source{f: f, stop: make(chan struct{})}, nil
}

func (s *Source) Kind() edge.Kind { return edge.KindPPSDevice }

// Fetch ждёт следующий фронт не дольше timeout.
func (s *Source) Fetch(timeout time.Duration) (Assert, error) {
	buf := make([]byte, fdataSize)
	putTimeout(buf, timeout)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), ppsFetch, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return Assert{}, errno
	}
	return parseFdata(buf)
}

// Start передаёт каждый новый фронт в sink вместе с его возрастом.
func (s *Source) Start(sink edge.Sink) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var (
			last uint32
			seen bool
		)
		for {
			select {
			case <-s.stop:
				return
			default:
			}
			a, err := s.Fetch(fetchTimeout)
			if errors.Is(err, unix.ETIMEDOUT) || errors.Is(err, unix.EINTR) {
				continue
			}
			if err != nil {
				return
			}
			if !fresh(a, last, seen) {
				continue
			}
			last, seen = a.Sequence, true
			sink.Trigger(edge.KindPPSDevice, age(a, time.Now()))
		}
	}()
	return nil
}

// Close закрывает устройство; ожидание фронта завершится по таймауту.
func (s *Source) Close() error {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
	return s.f.Close()
}
