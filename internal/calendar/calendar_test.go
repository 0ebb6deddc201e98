package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddSeconds(t *testing.T) {
	tests := []struct {
		name string
		in   Time
		n    uint32
		want Time
	}{
		{"секунда", Time{2024, 5, 10, 12, 0, 0}, 1, Time{2024, 5, 10, 12, 0, 1}},
		{"минута", Time{2024, 5, 10, 12, 0, 59}, 1, Time{2024, 5, 10, 12, 1, 0}},
		{"час", Time{2024, 5, 10, 12, 59, 59}, 1, Time{2024, 5, 10, 13, 0, 0}},
		{"день", Time{2024, 5, 10, 23, 59, 59}, 1, Time{2024, 5, 11, 0, 0, 0}},
		{"месяц", Time{2024, 4, 30, 23, 59, 59}, 1, Time{2024, 5, 1, 0, 0, 0}},
		{"год", Time{2024, 12, 31, 23, 59, 59}, 1, Time{2025, 1, 1, 0, 0, 0}},
		{"февраль без високосных", Time{2024, 2, 28, 23, 59, 59}, 1, Time{2024, 3, 1, 0, 0, 0}},
		{"много секунд", Time{2024, 1, 1, 0, 0, 0}, 86400 + 3661, Time{2024, 1, 2, 1, 1, 1}},
		{"ноль", Time{2024, 1, 1, 0, 0, 0}, 0, Time{2024, 1, 1, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.AddSeconds(tt.n))
		})
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Time{2024, 2, 28, 23, 59, 59}.Valid())
	assert.False(t, Time{2024, 2, 29, 0, 0, 0}.Valid())
	assert.False(t, Time{2024, 13, 1, 0, 0, 0}.Valid())
	assert.False(t, Time{}.Valid())
	assert.True(t, Time{}.IsZero())
}

func TestFromTime(t *testing.T) {
	ref := time.Date(2025, 1, 15, 12, 30, 45, 0, time.UTC)
	c := FromTime(ref)
	assert.Equal(t, Time{2025, 1, 15, 12, 30, 45}, c)
	assert.Equal(t, ref.Add(250*time.Millisecond), c.Time(250000))
	assert.Equal(t, "2025-01-15T12:30:45Z", c.String())
}
