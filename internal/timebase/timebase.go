// Package timebase расширяет узкий аппаратный счётчик тиков (обычно 16 бит)
// счётчиком переполнений до 64-битного монотонного значения.
package timebase

import "fmt"

// Counter — адаптер таймера: число переполнений + метка последнего опорного фронта.
// Все методы вызываются из контекста прерывания или под irq.Critical.
type Counter struct {
	bits      uint
	mask      uint64
	half      uint32
	overflows uint64
	edge      uint64 // широкий тик последнего принятого фронта
}

// New создаёт адаптер для счётчика шириной bits (1..32).
func New(bits uint) (*Counter, error) {
	if bits == 0 || bits > 32 {
		return nil, fmt.Errorf("timebase: counter width %d out of range 1..32", bits)
	}
	return &Counter{
		bits: bits,
		mask: 1<<bits - 1,
		half: uint32(1) << (bits - 1),
	}, nil
}

// Bits возвращает ширину аппаратного счётчика.
func (c *Counter) Bits() uint {
	return c.bits
}

// Overflow вызывается обработчиком переполнения.
func (c *Counter) Overflow() {
	c.overflows++
}

// Overflows возвращает число учтённых переполнений.
func (c *Counter) Overflows() uint64 {
	return c.overflows
}

// CaptureTick переводит узкое значение raw в широкое.
// pending — флаг переполнения, ещё не обслуженного обработчиком: если он взведён,
// а raw лежит в нижней половине диапазона, счётчик уже перевалил через ноль
// и переполнение нужно учесть здесь же.
func (c *Counter) CaptureTick(raw uint32, pending bool) uint64 {
	ovf := c.overflows
	raw32 := uint64(raw) & c.mask
	if pending && uint32(raw32) < c.half {
		ovf++
	}
	return ovf<<c.bits | raw32
}

// ElapsedTicks возвращает число тиков от последнего опорного фронта.
func (c *Counter) ElapsedTicks(raw uint32, pending bool) uint64 {
	now := c.CaptureTick(raw, pending)
	if now < c.edge {
		return 0
	}
	return now - c.edge
}

// Mark запоминает широкий тик принятого фронта.
func (c *Counter) Mark(wide uint64) {
	c.edge = wide
}

// Edge возвращает широкий тик последнего фронта.
func (c *Counter) Edge() uint64 {
	return c.edge
}
