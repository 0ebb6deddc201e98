// Package metrics — Prometheus-метрики таймера.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gpstimer"

// Результаты обработки фронта (метка result).
const (
	ResultCalibrated = "calibrated"
	ResultArmed      = "armed"
	ResultIgnored    = "ignored"
)

// EdgeCount — накопленное число фронтов источника с данным результатом.
type EdgeCount struct {
	Source string
	Result string
	Total  uint64
}

// Sample — снимок состояния таймера. Счётчики накопительные: Observe сам
// считает приращения.
type Sample struct {
	TicksPerSecond   uint64
	ReferenceActive  bool
	DriftPPM         float64
	Edges            []EdgeCount
	StaleResets      uint64
	Frames           uint64
	Reconfigurations uint64
}

// Registry — набор метрик на собственном реестре.
type Registry struct {
	reg *prometheus.Registry

	TicksPerSecond   prometheus.Gauge
	ReferenceActive  prometheus.Gauge
	DriftPPM         prometheus.Gauge
	Edges            *prometheus.CounterVec
	StaleResets      prometheus.Counter
	Frames           prometheus.Counter
	Reconfigurations prometheus.Counter

	mu   sync.Mutex
	last map[string]uint64
}

// New регистрирует метрики в новом реестре.
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Registry{
		reg: reg,
		TicksPerSecond: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ticks_per_second",
			Help:      "Measured oscillator ticks per reference second",
		}),
		ReferenceActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_active",
			Help:      "1 while the reference edge is live and the timebase is calibrated",
		}),
		DriftPPM: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drift_ppm",
			Help:      "Oscillator frequency offset from nominal, ppm",
		}),
		Edges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_total",
			Help:      "Reference edges by source and result",
		}, []string{"source", "result"}),
		StaleResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_resets_total",
			Help:      "Timebase resets after the reference went silent",
		}),
		Frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Data frames fully transmitted",
		}),
		Reconfigurations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wave_reconfigurations_total",
			Help:      "Wave plan recomputations after a calibration change",
		}),
		last: make(map[string]uint64),
	}
}

// Gatherer — реестр для выдачи.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler — HTTP-обработчик /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Observe переносит снимок в метрики.
func (r *Registry) Observe(s Sample) {
	r.TicksPerSecond.Set(float64(s.TicksPerSecond))
	if s.ReferenceActive {
		r.ReferenceActive.Set(1)
	} else {
		r.ReferenceActive.Set(0)
	}
	r.DriftPPM.Set(s.DriftPPM)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range s.Edges {
		if d := r.delta("edges/"+e.Source+"/"+e.Result, e.Total); d > 0 {
			r.Edges.WithLabelValues(e.Source, e.Result).Add(float64(d))
		}
	}
	if d := r.delta("stale", s.StaleResets); d > 0 {
		r.StaleResets.Add(float64(d))
	}
	if d := r.delta("frames", s.Frames); d > 0 {
		r.Frames.Add(float64(d))
	}
	if d := r.delta("reconf", s.Reconfigurations); d > 0 {
		r.Reconfigurations.Add(float64(d))
	}
}

// delta — приращение накопительного значения; уменьшение считается сбросом
// источника.
func (r *Registry) delta(key string, v uint64) uint64 {
	prev := r.last[key]
	r.last[key] = v
	if v < prev {
		return v
	}
	return v - prev
}
