package gpstimer

import (
	"sort"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/discipline"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/metrics"
)

// Sample переводит снимок в метрики.
func (s Stats) Sample() metrics.Sample {
	m := metrics.Sample{
		TicksPerSecond:   s.TicksPerSecond,
		ReferenceActive:  s.State == discipline.Active,
		DriftPPM:         s.Drift.OffsetPPM,
		StaleResets:      s.Counters.StaleResets,
		Frames:           s.Data.Frames,
		Reconfigurations: s.Wave.Reconfigurations,
	}
	for k, c := range s.Edges {
		src := k.String()
		m.Edges = append(m.Edges,
			metrics.EdgeCount{Source: src, Result: metrics.ResultCalibrated, Total: c.Calibrated},
			metrics.EdgeCount{Source: src, Result: metrics.ResultArmed, Total: c.Armed},
			metrics.EdgeCount{Source: src, Result: metrics.ResultIgnored, Total: c.Ignored},
		)
	}
	sort.Slice(m.Edges, func(i, j int) bool {
		if m.Edges[i].Source != m.Edges[j].Source {
			return m.Edges[i].Source < m.Edges[j].Source
		}
		return m.Edges[i].Result < m.Edges[j].Result
	})
	return m
}
