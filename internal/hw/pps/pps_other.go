//go:build !linux

package pps

import (
	"time"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
)

// Source — заглушка для платформ без PPS API ядра.
type Source struct{}

// Open всегда возвращает ErrUnsupported.
func Open(index int) (*Source, error) {
	return nil, ErrUnsupported
}

func (s *Source) Kind() edge.Kind { return edge.KindPPSDevice }

func (s *Source) Fetch(time.Duration) (Assert, error) { return Assert{}, ErrUnsupported }

func (s *Source) Start(edge.Sink) error { return ErrUnsupported }

func (s *Source) Close() error { return nil }
