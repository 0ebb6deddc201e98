// Package irq — модель контроллера прерываний: обработчики аппаратных событий
// (захват фронта, совпадение сравнения, переполнение) выполняются строго по одному,
// а основной цикл может замаскировать их на время короткой критической секции.
package irq

import (
	"sync"
	"sync/atomic"
)

// Controller сериализует обработчики прерываний и критические секции основного цикла.
// Нулевое значение готово к использованию.
type Controller struct {
	mu     sync.Mutex
	raised atomic.Uint64
}

// New создаёт контроллер прерываний.
func New() *Controller {
	return &Controller{}
}

// Disable маскирует прерывания (аналог cli). Вложенные вызовы не поддерживаются.
func (c *Controller) Disable() {
	c.mu.Lock()
}

// Enable снимает маску (аналог sei).
func (c *Controller) Enable() {
	c.mu.Unlock()
}

// Critical выполняет fn с замаскированными прерываниями.
// fn должна быть короткой и не должна вызывать Raise или Critical.
func (c *Controller) Critical(fn func()) {
	c.Disable()
	defer c.Enable()
	fn()
}

// Raise доставляет прерывание: handler выполняется, когда маска снята и
// никакой другой обработчик не активен.
func (c *Controller) Raise(handler func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.raised.Add(1)
	handler()
}

// Raised возвращает число доставленных прерываний.
func (c *Controller) Raised() uint64 {
	return c.raised.Load()
}
