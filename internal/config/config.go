package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/ubx"
	"gopkg.in/yaml.v3"
)

// Бэкенды таймера.
const (
	BackendSim  = "sim"
	BackendHost = "host"
)

// Config — конфигурация tc-gpstimer.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Navigation NavigationConfig `yaml:"navigation"`
	Timer      TimerConfig      `yaml:"timer"`
	Discipline DisciplineConfig `yaml:"discipline"`
	Reference  ReferenceConfig  `yaml:"reference"`
	Wave       WaveConfig       `yaml:"wave"`
	Data       DataConfig       `yaml:"data"`
	Timepulse  TimepulseConfig  `yaml:"timepulse"`
	Simulation SimulationConfig `yaml:"simulation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// DeviceConfig — последовательный порт навигационного приёмника.
type DeviceConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// NavigationConfig — протокол приёмника: nmea или ubx.
type NavigationConfig struct {
	Protocol string `yaml:"protocol"`
}

// TimerConfig — счётчик-генератор.
type TimerConfig struct {
	Backend        string `yaml:"backend"`
	TicksPerSecond uint64 `yaml:"ticks_per_second"`
	CounterBits    uint   `yaml:"counter_bits"` // 0 — по бэкенду
}

// Ширина счётчика по умолчанию.
const (
	SimCounterBits  = 16
	HostCounterBits = 32 // тик хоста 1 нс
)

// Width — действующая ширина счётчика: заданная или умолчание бэкенда.
func (t TimerConfig) Width() uint {
	if t.CounterBits != 0 {
		return t.CounterBits
	}
	if t.Backend == BackendHost {
		return HostCounterBits
	}
	return SimCounterBits
}

// DisciplineConfig — калибровка.
type DisciplineConfig struct {
	StaleFactor        uint64   `yaml:"stale_factor"`
	RecalibrationGuard uint64   `yaml:"recalibration_guard"` // тиков; 0 — четверть секунды
	EdgeSources        []string `yaml:"edge_sources"`
}

// ReferenceConfig — откуда брать секундный фронт на хосте.
type ReferenceConfig struct {
	PPSIndex int           `yaml:"pps_index"` // /dev/ppsN; -1 — не использовать
	EdgePin  string        `yaml:"edge_pin"`
	Debounce time.Duration `yaml:"debounce"`
}

// WaveConfig — выходной меандр.
type WaveConfig struct {
	Enable    bool   `yaml:"enable"`
	Pin       string `yaml:"pin"`
	Frequency uint32 `yaml:"frequency"`
}

// DataConfig — вывод кадра времени и координат.
type DataConfig struct {
	Enable   bool   `yaml:"enable"`
	Pin      string `yaml:"pin"`
	Interval uint32 `yaml:"interval"`
}

// TimepulseConfig — параметры PPS/time pulse приёмника (CFG-TP5).
type TimepulseConfig struct {
	PulseWidthMs    float64 `yaml:"pulse_width_ms"`
	TPIdx           uint8   `yaml:"tp_idx"`
	AntCableDelayNs int16   `yaml:"ant_cable_delay_ns"`
	AlignToTow      bool    `yaml:"align_to_tow"`
}

// SimulationConfig — эмулируемый генератор и опора.
type SimulationConfig struct {
	OscillatorPPM   float64 `yaml:"oscillator_ppm"`
	JitterTicks     uint64  `yaml:"jitter_ticks"`
	OverflowLatency uint64  `yaml:"overflow_latency"`
	Seconds         int     `yaml:"seconds"`
	Seed            int64   `yaml:"seed"`
	Start           string  `yaml:"start"` // RFC 3339, UTC
	Latitude        float64 `yaml:"latitude"`
	Longitude       float64 `yaml:"longitude"`
}

// MetricsConfig — адрес выдачи Prometheus; пусто — не поднимать.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig — уровень лога.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Port: "/dev/ttyS0",
			Baud: 9600,
		},
		Navigation: NavigationConfig{Protocol: "nmea"},
		Timer: TimerConfig{
			Backend:        BackendSim,
			TicksPerSecond: 16_000_000,
		},
		Discipline: DisciplineConfig{
			StaleFactor: 2,
			EdgeSources: []string{"capture", "pps", "navigation"},
		},
		Reference: ReferenceConfig{
			PPSIndex: 0,
			Debounce: 0,
		},
		Wave: WaveConfig{
			Pin:       "GPIO17",
			Frequency: 1000,
		},
		Data: DataConfig{
			Pin:      "GPIO27",
			Interval: 1,
		},
		Timepulse: TimepulseConfig{
			PulseWidthMs: 5,
			AlignToTow:   true,
		},
		Simulation: SimulationConfig{
			OscillatorPPM:   0.1875,
			JitterTicks:     2,
			OverflowLatency: 8,
			Seconds:         10,
			Seed:            1,
			Start:           "2025-01-15T12:30:45Z",
			Latitude:        55.7558,
			Longitude:       37.6173,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load читает конфиг из YAML поверх значений по умолчанию.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults подставляет умолчания вместо явно обнулённых полей.
func applyDefaults(c *Config) {
	d := Default()
	if c.Device.Port == "" {
		c.Device.Port = d.Device.Port
	}
	if c.Device.Baud == 0 {
		c.Device.Baud = d.Device.Baud
	}
	if c.Navigation.Protocol == "" {
		c.Navigation.Protocol = d.Navigation.Protocol
	}
	if c.Timer.Backend == "" {
		c.Timer.Backend = d.Timer.Backend
	}
	if c.Discipline.StaleFactor == 0 {
		c.Discipline.StaleFactor = d.Discipline.StaleFactor
	}
	if len(c.Discipline.EdgeSources) == 0 {
		c.Discipline.EdgeSources = d.Discipline.EdgeSources
	}
	if c.Data.Interval == 0 {
		c.Data.Interval = d.Data.Interval
	}
	if c.Timepulse.PulseWidthMs == 0 {
		c.Timepulse.PulseWidthMs = d.Timepulse.PulseWidthMs
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate проверяет согласованность параметров.
func (c *Config) Validate() error {
	var errs []error
	switch c.Navigation.Protocol {
	case "nmea", "ubx":
	default:
		errs = append(errs, fmt.Errorf("navigation.protocol: %q (nmea|ubx)", c.Navigation.Protocol))
	}
	switch c.Timer.Backend {
	case BackendSim:
		if w := c.Timer.Width(); w < 1 || w > 32 {
			errs = append(errs, fmt.Errorf("timer.counter_bits: %d (1..32)", w))
		}
	case BackendHost:
		if w := c.Timer.Width(); w != HostCounterBits {
			errs = append(errs, fmt.Errorf("timer.counter_bits: %d (host counter is %d bits)", w, HostCounterBits))
		}
	default:
		errs = append(errs, fmt.Errorf("timer.backend: %q (sim|host)", c.Timer.Backend))
	}
	if c.Discipline.StaleFactor < 2 {
		errs = append(errs, fmt.Errorf("discipline.stale_factor: %d (>= 2)", c.Discipline.StaleFactor))
	}
	if _, err := c.Discipline.Kinds(); err != nil {
		errs = append(errs, fmt.Errorf("discipline.edge_sources: %w", err))
	}
	if c.Wave.Enable && c.Wave.Frequency == 0 {
		errs = append(errs, errors.New("wave.frequency: must be positive"))
	}
	if c.Data.Enable && !c.Wave.Enable {
		errs = append(errs, errors.New("data.enable: requires wave.enable"))
	}
	if c.Timepulse.PulseWidthMs <= 0 || c.Timepulse.PulseWidthMs >= 1000 {
		errs = append(errs, fmt.Errorf("timepulse.pulse_width_ms: %v (0..1000)", c.Timepulse.PulseWidthMs))
	}
	if c.Simulation.Start != "" {
		if _, err := c.Simulation.StartTime(); err != nil {
			errs = append(errs, fmt.Errorf("simulation.start: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Kinds разбирает список источников фронта.
func (d DisciplineConfig) Kinds() ([]edge.Kind, error) {
	kinds := make([]edge.Kind, 0, len(d.EdgeSources))
	for _, s := range d.EdgeSources {
		k, err := edge.ParseKind(s)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Uses — включён ли источник k.
func (d DisciplineConfig) Uses(k edge.Kind) bool {
	kinds, _ := d.Kinds()
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// StartTime — момент начала эмуляции.
func (s SimulationConfig) StartTime() (time.Time, error) {
	if s.Start == "" {
		return time.Now().UTC().Truncate(time.Second), nil
	}
	t, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// TP5 переводит параметры в CFG-TP5.
func (t TimepulseConfig) TP5() ubx.TP5Config {
	c := ubx.DefaultTP5()
	c.TPIdx = t.TPIdx
	c.AntCableDelayNs = t.AntCableDelayNs
	width := uint32(t.PulseWidthMs * 1e6)
	c.PulseLenNs, c.PulseLenLockNs = width, width
	if !t.AlignToTow {
		c.Flags &^= ubx.TP5AlignToTow
	}
	return c
}
