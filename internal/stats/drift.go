// Package stats — статистика генератора по посекундным калибровкам:
// отклонение частоты от паспортной (ppm), дрейф (линейная регрессия по окну)
// и разброс соседних измерений (HDR-гистограмма).
package stats

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Window — размер окна регрессии, секунд.
const Window = 64

// maxDelta — верхняя граница гистограммы скачков, тиков.
const maxDelta = 10_000_000

// Drift накапливает статистику. Безопасен для вызова из разных горутин.
type Drift struct {
	mu      sync.Mutex
	nominal float64

	xs     [Window]float64 // секунда
	ys     [Window]float64 // отклонение, ppm
	n      int
	idx    int
	second float64

	last     uint64
	haveLast bool
	samples  uint64
	histo    *hdrhistogram.Histogram
}

// NewDrift создаёт трекер для генератора с паспортной частотой nominal.
func NewDrift(nominal uint64) *Drift {
	return &Drift{
		nominal: float64(nominal),
		histo:   hdrhistogram.New(1, maxDelta, 3),
	}
}

// Add учитывает очередную откалиброванную секунду.
func (d *Drift) Add(tps uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples++
	d.xs[d.idx] = d.second
	d.ys[d.idx] = (float64(tps) - d.nominal) / d.nominal * 1e6
	d.second++
	d.idx = (d.idx + 1) % Window
	if d.n < Window {
		d.n++
	}
	if d.haveLast {
		delta := int64(tps) - int64(d.last)
		if delta < 0 {
			delta = -delta
		}
		if delta > maxDelta {
			delta = maxDelta
		}
		_ = d.histo.RecordValue(delta)
	}
	d.last, d.haveLast = tps, true
}

// Reset начинает окно заново (после потери опоры). Гистограмма сохраняется.
func (d *Drift) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n, d.idx, d.second = 0, 0, 0
	d.haveLast = false
}

// Summary — сводка.
type Summary struct {
	Samples        uint64
	TicksPerSecond uint64
	OffsetPPM      float64 // последнее измерение
	MeanPPM        float64 // среднее по окну
	DriftPPBPerSec float64 // наклон регрессии
	DeltaP50       int64   // медиана скачка между соседними секундами, тиков
	DeltaP99       int64
	DeltaMax       int64
}

// Summary считает сводку по окну.
func (d *Drift) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Summary{
		Samples:  d.samples,
		DeltaP50: d.histo.ValueAtQuantile(50),
		DeltaP99: d.histo.ValueAtQuantile(99),
		DeltaMax: d.histo.Max(),
	}
	if d.n == 0 {
		return s
	}
	if d.haveLast {
		s.TicksPerSecond = d.last
		s.OffsetPPM = (float64(d.last) - d.nominal) / d.nominal * 1e6
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < d.n; i++ {
		sumX += d.xs[i]
		sumY += d.ys[i]
		sumXY += d.xs[i] * d.ys[i]
		sumX2 += d.xs[i] * d.xs[i]
	}
	n := float64(d.n)
	s.MeanPPM = sumY / n
	if d.n < 4 {
		return s
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return s
	}
	s.DriftPPBPerSec = (n*sumXY - sumX*sumY) / denom * 1000
	return s
}
