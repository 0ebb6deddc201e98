// Package nav — навигационный приёмник как источник календарного времени и координат.
// Адаптеры: NMEA (RMC/GGA через tarm/serial) и UBX (NAV-PVT через internal/ubx).
// Разбор протоколов минимален: наружу отдаются только поля и флаги валидности.
package nav

import (
	"sync"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/calendar"
)

// Fix — снимок навигационного решения.
type Fix struct {
	TimeValid     bool
	Time          calendar.Time
	LocationValid bool
	Latitude      float64 // градусы, север положительный
	Longitude     float64 // градусы, восток положительный
}

// Source — навигационный источник.
type Source interface {
	// Updated сообщает о новом решении с прошлого вызова и сбрасывает признак.
	Updated() bool
	// Fix возвращает последнее решение.
	Fix() Fix
	// Close освобождает порт.
	Close() error
}

// Latest — потокобезопасное хранилище последнего решения.
// Читатели порта публикуют в него, основной цикл забирает через Updated/Fix.
type Latest struct {
	mu      sync.Mutex
	fix     Fix
	updated bool
	count   uint64
}

// Publish сохраняет новое решение.
func (l *Latest) Publish(f Fix) {
	l.mu.Lock()
	l.fix = f
	l.updated = true
	l.count++
	l.mu.Unlock()
}

// Merge обновляет только валидные части решения: RMC и GGA приходят раздельно.
func (l *Latest) Merge(f Fix) {
	l.mu.Lock()
	if f.TimeValid {
		l.fix.TimeValid = true
		l.fix.Time = f.Time
	}
	if f.LocationValid {
		l.fix.LocationValid = true
		l.fix.Latitude = f.Latitude
		l.fix.Longitude = f.Longitude
	}
	l.updated = true
	l.count++
	l.mu.Unlock()
}

func (l *Latest) Updated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.updated
	l.updated = false
	return u
}

func (l *Latest) Fix() Fix {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fix
}

// Count — сколько решений опубликовано.
func (l *Latest) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *Latest) Close() error { return nil }
