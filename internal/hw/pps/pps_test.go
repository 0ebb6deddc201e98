package pps

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFdata(t *testing.T) {
	buf := make([]byte, fdataSize)
	binary.LittleEndian.PutUint32(buf[offAssertSeq:], 42)
	binary.LittleEndian.PutUint64(buf[offAssertSec:], 1736944245)
	binary.LittleEndian.PutUint32(buf[offAssertNsec:], 1500)

	a, err := parseFdata(buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), a.Sequence)
	assert.True(t, a.Time.Equal(time.Unix(1736944245, 1500)))

	_, err = parseFdata(buf[:40])
	assert.Error(t, err)
}

func TestPutTimeout(t *testing.T) {
	buf := make([]byte, fdataSize)
	putTimeout(buf, 1500*time.Millisecond)
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(buf[offTimeoutSec:]))
	assert.Equal(t, uint32(500_000_000), binary.LittleEndian.Uint32(buf[offTimeoutNs:]))
}

func TestAgeAndFreshness(t *testing.T) {
	at := time.Unix(100, 0)
	a := Assert{Sequence: 7, Time: at}
	assert.Equal(t, 250*time.Microsecond, age(a, at.Add(250*time.Microsecond)))
	assert.Equal(t, time.Duration(0), age(a, at.Add(-time.Second)))

	assert.True(t, fresh(a, 0, false))
	assert.False(t, fresh(a, 7, true))
	assert.True(t, fresh(a, 6, true))
	assert.False(t, fresh(Assert{}, 0, false), "нулевая последовательность — фронтов ещё не было")
}
