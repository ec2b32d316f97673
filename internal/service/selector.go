package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/convergelabs/beliefd/internal/domain"
	"go.uber.org/zap"
)

// unknownPrefix marks placeholder values emitted when a document supports a
// category family without pinning a concrete value. A top-ranked placeholder
// suppresses the whole family from selection output.
const unknownPrefix = "Unknown "

// SelectionConfig holds the tunable knobs for tiered belief selection.
type SelectionConfig struct {
	// MinConfidence is the floor below which beliefs never surface.
	MinConfidence float64
	// MaxAlternativeDelta bounds how far an alternative's confidence may
	// trail the primary's.
	MaxAlternativeDelta float64
	// GranularityBonus is the per-tier score bonus for deeper classifications.
	GranularityBonus float64
	// GranularityThreshold is the confidence a belief needs before tier
	// depth counts toward its score.
	GranularityThreshold float64
	// NonExclusiveGroups names grouping values where several beliefs may
	// hold at once (e.g. someone can be both employed and a student).
	NonExclusiveGroups map[string]bool
	// NonExclusiveSections names sections that are non-exclusive wholesale.
	NonExclusiveSections map[string]bool
}

func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		MinConfidence:        0.5,
		MaxAlternativeDelta:  0.3,
		GranularityBonus:     0.05,
		GranularityThreshold: 0.7,
		NonExclusiveGroups: map[string]bool{
			"Employment Status": true,
		},
		NonExclusiveSections: map[string]bool{
			"interests":       true,
			"purchase_intent": true,
		},
	}
}

// GranularityScore computes the selection score for a belief. Deeper tiers
// add a bonus, but only once the belief is confident enough to trust the
// extra specificity.
func (c SelectionConfig) GranularityScore(b domain.Belief) float64 {
	score := b.Confidence
	if b.Confidence >= c.GranularityThreshold {
		score += float64(b.TierDepth()) * c.GranularityBonus
	}
	return score
}

// IsExclusive reports whether only one belief in the family may be primary.
func (c SelectionConfig) IsExclusive(section, groupingValue string) bool {
	if c.NonExclusiveSections[section] {
		return false
	}
	return !c.NonExclusiveGroups[groupingValue]
}

// ScoredBelief pairs a belief with its selection score and, for alternatives,
// the signed gap primary.confidence - alternative.confidence. The gap is
// negative when the alternative is more confident than the primary but lost
// on specificity.
type ScoredBelief struct {
	Belief          domain.Belief `json:"belief"`
	Score           float64       `json:"score"`
	ConfidenceDelta float64       `json:"confidence_delta"`
}

// TieredSelection is the outcome of selecting within one category family.
type TieredSelection struct {
	Family          string         `json:"family"`
	Primary         ScoredBelief   `json:"primary"`
	Alternatives    []ScoredBelief `json:"alternatives,omitempty"`
	SelectionMethod string         `json:"selection_method"`
}

// Selection methods reported per family.
const (
	MethodGranularityWeighted = "granularity_weighted"
	MethodHighestConfidence   = "highest_confidence"
	MethodNonExclusive        = "non_exclusive"
)

// Selector applies tiered selection across the belief families of a section.
type Selector struct {
	cfg    SelectionConfig
	logger *zap.Logger
}

func NewSelector(cfg SelectionConfig, logger *zap.Logger) *Selector {
	return &Selector{cfg: cfg, logger: logger}
}

// GroupByFamily buckets beliefs by grouping value. Beliefs without one cannot
// be compared against siblings and are skipped with a warning.
func (s *Selector) GroupByFamily(beliefs []domain.Belief) map[string][]domain.Belief {
	families := make(map[string][]domain.Belief)
	for _, b := range beliefs {
		if b.GroupingValue == "" {
			s.logger.Warn("belief missing grouping value, excluded from selection",
				zap.String("belief_id", b.ID),
				zap.Int("taxonomy_id", b.TaxonomyID))
			continue
		}
		families[b.GroupingValue] = append(families[b.GroupingValue], b)
	}
	return families
}

// SelectPrimaryAndAlternatives picks the best belief of an exclusive family
// plus close runners-up. Returns nil when nothing clears the confidence floor
// or the winner is an "Unknown" placeholder.
func (s *Selector) SelectPrimaryAndAlternatives(family string, beliefs []domain.Belief) *TieredSelection {
	candidates := make([]ScoredBelief, 0, len(beliefs))
	for _, b := range beliefs {
		if b.Confidence < s.cfg.MinConfidence {
			continue
		}
		candidates = append(candidates, ScoredBelief{Belief: b, Score: s.cfg.GranularityScore(b)})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Belief.Confidence > candidates[j].Belief.Confidence
	})

	primary := candidates[0]
	if strings.HasPrefix(primary.Belief.Value, unknownPrefix) {
		s.logger.Debug("family suppressed by unknown placeholder",
			zap.String("family", family),
			zap.String("value", primary.Belief.Value))
		return nil
	}

	method := MethodHighestConfidence
	if primary.Belief.Confidence >= s.cfg.GranularityThreshold {
		method = MethodGranularityWeighted
	}

	sel := &TieredSelection{
		Family:          family,
		Primary:         primary,
		SelectionMethod: method,
	}

	for _, cand := range candidates[1:] {
		delta := primary.Belief.Confidence - cand.Belief.Confidence
		if delta > s.cfg.MaxAlternativeDelta {
			continue
		}
		cand.ConfidenceDelta = delta
		sel.Alternatives = append(sel.Alternatives, cand)
	}
	return sel
}

// ApplyTieredSelection runs selection over all families of a section. For
// exclusive families the result is one entry keyed by family; non-exclusive
// families produce one entry per belief, keyed family_taxonomyID.
func (s *Selector) ApplyTieredSelection(section string, beliefs []domain.Belief) map[string]TieredSelection {
	selected := make(map[string]TieredSelection)

	for family, members := range s.GroupByFamily(beliefs) {
		if s.cfg.IsExclusive(section, family) {
			if sel := s.SelectPrimaryAndAlternatives(family, members); sel != nil {
				selected[family] = *sel
			}
			continue
		}

		for _, b := range members {
			if b.Confidence < s.cfg.MinConfidence {
				continue
			}
			if strings.HasPrefix(b.Value, unknownPrefix) {
				continue
			}
			key := fmt.Sprintf("%s_%d", family, b.TaxonomyID)
			selected[key] = TieredSelection{
				Family:          family,
				Primary:         ScoredBelief{Belief: b, Score: s.cfg.GranularityScore(b)},
				SelectionMethod: MethodNonExclusive,
			}
		}
	}
	return selected
}
