// Package hw описывает аппаратные возможности, которыми пользуется таймер:
// счётчик с захватом фронта, сравнением и переполнением, а также цифровые выходы.
// Реализации: hw/sim (эмулятор), hw/host (монотонные часы хоста), hw/pins (GPIO через periph.io).
package hw

import "periph.io/x/conn/v3/gpio"

// Output — цифровой выход. Любой gpio.PinOut из periph.io ему удовлетворяет.
type Output interface {
	Out(l gpio.Level) error
}

// Timer — свободно бегущий счётчик тиков генератора.
type Timer interface {
	// Width возвращает разрядность аппаратного счётчика (например 16).
	Width() uint
	// Counter возвращает текущее узкое значение счётчика.
	Counter() uint32
	// OverflowPending — счётчик перевалил через ноль, но обработчик переполнения ещё не выполнен.
	OverflowPending() bool
	// SetCompare перепрограммирует цель сравнения (в широких тиках).
	// Драйвер сам дожидается нужной эпохи переполнений; цель в прошлом срабатывает сразу.
	SetCompare(target uint64)
	// NominalTicksPerSecond — паспортная частота генератора.
	NominalTicksPerSecond() uint64
}

// Handlers — обработчики прерываний таймера. Вызываются только через irq.Controller.Raise.
type Handlers interface {
	// OnCapture — аппаратный захват опорного фронта: raw — значение регистра захвата,
	// overflowPending — флаг переполнения, видимый в этом же прерывании.
	OnCapture(raw uint32, overflowPending bool)
	// OnCompareMatch — счётчик достиг цели сравнения.
	OnCompareMatch()
	// OnOverflow — счётчик перевалил через ноль.
	OnOverflow()
}

// Discard — выход, который ничего не делает.
var Discard Output = discard{}

type discard struct{}

func (discard) Out(gpio.Level) error { return nil }
