package manager

import (
	"github.com/BaSui01/memflow/types"
)

// HealthMetrics is the on-demand snapshot of memory health.
type HealthMetrics struct {
	TotalEntries       int                      `json:"total_entries"`
	TierCounts         map[types.MemoryTier]int `json:"tier_counts"`
	AverageImportance  float64                  `json:"average_importance"`
	Pressure           float64                  `json:"pressure"`
	ConsolidationRatio float64                  `json:"consolidation_ratio"`
	ForgettingRate     float64                  `json:"forgetting_rate"`
	HealthScore        float64                  `json:"health_score"`
}

// Health recomputes the health metrics from the current store contents.
// The derived score penalizes pressure and forgetting, rewards average
// importance and consolidation, clamped to [0,1].
func (m *Manager) Health() HealthMetrics {
	now := m.config.Now()
	entries := m.store.Snapshot()

	h := HealthMetrics{
		TotalEntries: len(entries),
		TierCounts:   make(map[types.MemoryTier]int),
		Pressure:     m.store.Pressure(),
	}

	consolidated := 0
	var importanceSum float64
	for _, e := range entries {
		tier := e.Tier
		if tier == "" {
			tier = types.TierWorking
		}
		h.TierCounts[tier]++
		importanceSum += e.EffectiveImportance(now)
		if e.Consolidated {
			consolidated++
		}
	}
	if len(entries) > 0 {
		h.AverageImportance = importanceSum / float64(len(entries))
		h.ConsolidationRatio = float64(consolidated) / float64(len(entries))
	}

	m.mu.Lock()
	forgotten := m.forgotten
	m.mu.Unlock()
	if total := forgotten + int64(len(entries)); total > 0 {
		h.ForgettingRate = float64(forgotten) / float64(total)
	}

	score := 0.4*(1-h.Pressure) +
		0.2*(1-h.ForgettingRate) +
		0.2*h.AverageImportance +
		0.2*h.ConsolidationRatio
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	h.HealthScore = score

	m.collector.SetHealthScore(score)
	m.collector.SetMemoryPressure(h.Pressure)
	return h
}
