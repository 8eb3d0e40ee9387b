package manager

import (
	"time"

	"github.com/BaSui01/memflow/types"
)

// Minimum access counts required for promotion into each tier.
const (
	semanticMinAccess   = 3
	proceduralMinAccess = 5
	archivalMinAccess   = 10
)

// TierFor computes the lifecycle tier an entry belongs in. Tiers are
// evaluated top down; promotion into the upper tiers additionally requires
// the per-tier minimum access count.
func TierFor(e *types.MemoryEntry, now time.Time) types.MemoryTier {
	age := e.Age(now)
	score := e.EffectiveImportance(now)

	if (score >= 0.8) && e.AccessCount >= archivalMinAccess {
		return types.TierArchival
	}
	if (score >= 0.7 || e.Kind == types.MemoryProcedural) && e.AccessCount >= proceduralMinAccess {
		return types.TierProcedural
	}
	if (score >= 0.6 || e.Kind == types.MemorySemantic) && e.AccessCount >= semanticMinAccess {
		return types.TierSemantic
	}
	if age < time.Hour {
		return types.TierWorking
	}
	if age < 168*time.Hour && score >= 0.3 {
		return types.TierEpisodic
	}
	if e.Tier != "" {
		return e.Tier
	}
	return types.TierEpisodic
}
