package engagement

import (
	"math/rand"

	"github.com/sololeveling/lifesystem/internal/domain"
)

// Selector picks a batch of quest templates with unique ids and mutually
// non-similar titles.
type Selector struct {
	// Threshold is the similarity above which two titles collide.
	Threshold float64
	// Rand seeds the shuffles. Nil uses the package source, which is safe
	// for concurrent sweeps; a *rand.Rand is not.
	Rand *rand.Rand
}

// NewSelector creates a selector. A non-positive threshold means the default.
func NewSelector(threshold float64) *Selector {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Selector{Threshold: threshold}
}

// Select returns at most target templates: first from the shuffled primary
// pool, then topped up from the shuffled backfill pool. The result is
// shuffled once more for presentation. A short result is normal when both
// pools run dry.
func (s *Selector) Select(primary, backfill []domain.QuestTemplate, target int) []domain.QuestTemplate {
	if target <= 0 {
		return nil
	}

	// Call-scoped uniqueness state.
	usedIDs := make(map[string]bool, target)
	usedTitles := make([]string, 0, target)
	chosen := make([]domain.QuestTemplate, 0, target)

	walk := func(pool []domain.QuestTemplate) {
		for _, t := range Shuffle(pool, s.Rand) {
			if len(chosen) >= target {
				return
			}
			if usedIDs[t.ID] || !isUniqueWithin(t.Title, usedTitles, s.threshold()) {
				continue
			}
			usedIDs[t.ID] = true
			usedTitles = append(usedTitles, normalizeTitle(t.Title))
			chosen = append(chosen, t)
		}
	}

	walk(primary)
	if len(chosen) < target {
		walk(backfill)
	}

	chosen = Shuffle(chosen, s.Rand)
	if len(chosen) > target {
		chosen = chosen[:target]
	}
	return chosen
}

func (s *Selector) threshold() float64 {
	if s.Threshold <= 0 {
		return DefaultSimilarityThreshold
	}
	return s.Threshold
}
