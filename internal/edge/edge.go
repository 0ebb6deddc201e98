// Package edge — единый интерфейс источников опорных секундных фронтов
// (аппаратный захват PPS, /dev/pps, внешний вывод, секундный тик навигационного приёмника)
// и арбитраж между ними.
package edge

import (
	"fmt"
	"strings"
	"time"
)

// Kind — тип источника фронта. Меньшее значение — более предпочтительный источник.
type Kind int

const (
	KindCapture    Kind = iota // аппаратный захват PPS таймером
	KindPPSDevice              // ядро Linux, /dev/ppsN
	KindPin                    // внешний вывод с антидребезгом
	KindNavigation             // секундное обновление навигационного приёмника (резерв)
	numKinds
)

// Kinds перечисляет все типы источников.
func Kinds() []Kind {
	return []Kind{KindCapture, KindPPSDevice, KindPin, KindNavigation}
}

func (k Kind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindPPSDevice:
		return "pps"
	case KindPin:
		return "pin"
	case KindNavigation:
		return "navigation"
	default:
		return "unknown"
	}
}

// ParseKind разбирает имя источника из конфига.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "capture", "icp":
		return KindCapture, nil
	case "pps", "kernel_pps":
		return KindPPSDevice, nil
	case "pin", "gpio":
		return KindPin, nil
	case "navigation", "nav", "gnss", "nmea":
		return KindNavigation, nil
	}
	return 0, fmt.Errorf("unknown edge source: %q", s)
}

// Edge — один опорный фронт.
type Edge struct {
	Source Kind
	// Raw — узкое значение счётчика, защёлкнутое при доставке фронта.
	Raw uint32
	// Pending — флаг необслуженного переполнения в том же прерывании.
	Pending bool
	// Age — сколько тиков прошло от фронта до защёлкивания Raw (для источников
	// с программной отметкой времени; у аппаратного захвата 0).
	Age uint64
}

// Sink принимает фронты. Trigger вызывается вне контекста прерывания:
// реализация сама защёлкивает счётчик внутри прерывания.
// age — сколько прошло от фронта до вызова (0, если неизвестно).
type Sink interface {
	Trigger(kind Kind, age time.Duration)
}

// Source — источник фронтов, выбираемый конфигурацией.
type Source interface {
	Kind() Kind
	// Start начинает доставку фронтов в sink и не блокирует.
	Start(sink Sink) error
	// Close останавливает источник.
	Close() error
}
