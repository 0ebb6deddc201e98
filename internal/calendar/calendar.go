// Package calendar — календарное время с секундной точностью и переносами
// секунда → минута → час → день → месяц → год.
// Високосные годы не моделируются: в феврале всегда 28 дней.
package calendar

import (
	"fmt"
	"time"
)

// monthDays — дней в каждом месяце.
var monthDays = [12]uint8{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Time — календарная дата и время (UTC).
type Time struct {
	Year   uint16
	Month  uint8 // 1..12
	Day    uint8 // 1..31
	Hour   uint8
	Minute uint8
	Second uint8
}

// FromTime строит Time из time.Time (в UTC).
func FromTime(t time.Time) Time {
	t = t.UTC()
	return Time{
		Year:   uint16(t.Year()),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Second: uint8(t.Second()),
	}
}

// Valid проверяет диапазоны полей.
func (c Time) Valid() bool {
	if c.Month < 1 || c.Month > 12 {
		return false
	}
	if c.Day < 1 || c.Day > monthDays[c.Month-1] {
		return false
	}
	return c.Hour < 24 && c.Minute < 60 && c.Second < 60
}

// IsZero — время ещё ни разу не устанавливалось.
func (c Time) IsZero() bool {
	return c == Time{}
}

// AddSeconds возвращает время, сдвинутое на n секунд вперёд.
func (c Time) AddSeconds(n uint32) Time {
	total := uint32(c.Second) + n
	c.Second = uint8(total % 60)
	return c.addMinutes(total / 60)
}

func (c Time) addMinutes(n uint32) Time {
	total := uint32(c.Minute) + n
	c.Minute = uint8(total % 60)
	return c.addHours(total / 60)
}

func (c Time) addHours(n uint32) Time {
	total := uint32(c.Hour) + n
	c.Hour = uint8(total % 24)
	return c.addDays(total / 24)
}

func (c Time) addDays(n uint32) Time {
	if c.Month < 1 || c.Month > 12 {
		c.Month = 1
	}
	if c.Day < 1 {
		c.Day = 1
	}
	for ; n > 0; n-- {
		c.Day++
		if c.Day > monthDays[c.Month-1] {
			c.Day = 1
			c.Month++
			if c.Month > 12 {
				c.Month = 1
				c.Year++
			}
		}
	}
	return c
}

// Time переводит в time.Time (UTC) с заданными микросекундами.
func (c Time) Time(microsecond uint32) time.Time {
	return time.Date(int(c.Year), time.Month(c.Month), int(c.Day),
		int(c.Hour), int(c.Minute), int(c.Second), int(microsecond)*1000, time.UTC)
}

func (c Time) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02dZ", c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second)
}
