package irq

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriticalExcludesHandlers(t *testing.T) {
	c := New()
	var a, b int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Raise(func() {
					a++
					b++
				})
			}
		}()
	}
	torn := false
	for j := 0; j < 1000; j++ {
		c.Critical(func() {
			if a != b {
				torn = true
			}
		})
	}
	wg.Wait()
	assert.False(t, torn, "критическая секция увидела половину обновления")
	assert.Equal(t, 8000, a)
	assert.Equal(t, uint64(8000), c.Raised())
}
