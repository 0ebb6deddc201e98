package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/ubx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  port: /dev/ttyAMA0
navigation:
  protocol: ubx
timer:
  backend: host
  counter_bits: 32
discipline:
  stale_factor: 3
  edge_sources: [pps, nav]
reference:
  pps_index: 1
  debounce: 2ms
wave:
  enable: true
  frequency: 128
data:
  enable: true
  interval: 3
timepulse:
  align_to_tow: false
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", c.Device.Port)
	assert.Equal(t, 9600, c.Device.Baud)
	assert.Equal(t, "ubx", c.Navigation.Protocol)
	assert.Equal(t, BackendHost, c.Timer.Backend)
	assert.Equal(t, uint64(3), c.Discipline.StaleFactor)
	assert.Equal(t, 2*time.Millisecond, c.Reference.Debounce)
	assert.Equal(t, uint32(128), c.Wave.Frequency)
	assert.Equal(t, uint32(3), c.Data.Interval)
	assert.Equal(t, "GPIO17", c.Wave.Pin)

	kinds, err := c.Discipline.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []edge.Kind{edge.KindPPSDevice, edge.KindNavigation}, kinds)
	assert.True(t, c.Discipline.Uses(edge.KindNavigation))
	assert.False(t, c.Discipline.Uses(edge.KindCapture))

	tp := c.Timepulse.TP5()
	assert.Equal(t, uint32(5_000_000), tp.PulseLenNs)
	assert.Zero(t, tp.Flags&ubx.TP5AlignToTow)
}

func TestLoadZeroedFieldsGetDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  baud: 0
discipline:
  stale_factor: 0
  edge_sources: []
log:
  level: ""
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9600, c.Device.Baud)
	assert.Equal(t, uint64(2), c.Discipline.StaleFactor)
	assert.Len(t, c.Discipline.EdgeSources, 3)
	assert.Equal(t, "info", c.Log.Level)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"protocol", func(c *Config) { c.Navigation.Protocol = "sirf" }},
		{"backend", func(c *Config) { c.Timer.Backend = "fpga" }},
		{"sim bits", func(c *Config) { c.Timer.CounterBits = 33 }},
		{"host bits", func(c *Config) { c.Timer.Backend = BackendHost; c.Timer.CounterBits = 16 }},
		{"stale factor", func(c *Config) { c.Discipline.StaleFactor = 1 }},
		{"edge source", func(c *Config) { c.Discipline.EdgeSources = []string{"ntp"} }},
		{"wave frequency", func(c *Config) { c.Wave.Enable = true; c.Wave.Frequency = 0 }},
		{"data without wave", func(c *Config) { c.Data.Enable = true }},
		{"pulse width", func(c *Config) { c.Timepulse.PulseWidthMs = 1500 }},
		{"start", func(c *Config) { c.Simulation.Start = "вчера" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestCounterWidthFollowsBackend(t *testing.T) {
	c := Default()
	assert.Equal(t, uint(SimCounterBits), c.Timer.Width())

	c.Timer.Backend = BackendHost
	require.NoError(t, c.Validate(), "счётчик хоста по умолчанию 32 бита")
	assert.Equal(t, uint(HostCounterBits), c.Timer.Width())

	c, err := Load(writeConfig(t, "timer:\n  backend: host\n"))
	require.NoError(t, err)
	assert.Equal(t, uint(32), c.Timer.Width())

	_, err = Load(writeConfig(t, "timer:\n  backend: host\n  counter_bits: 16\n"))
	assert.Error(t, err)

	c, err = Load(writeConfig(t, "timer:\n  counter_bits: 24\n"))
	require.NoError(t, err)
	assert.Equal(t, uint(24), c.Timer.Width())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "wave: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "timer:\n  backend: fpga\n"))
	assert.Error(t, err)
}

func TestSimulationStart(t *testing.T) {
	s := Default().Simulation
	start, err := s.StartTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 12, 30, 45, 0, time.UTC), start)
}
