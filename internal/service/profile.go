package service

import (
	"context"
	"time"

	"github.com/convergelabs/beliefd/internal/domain"
	"go.uber.org/zap"
)

// ProfileService assembles the consolidated view of a user's beliefs: per
// section, the tiered selection of what we currently hold true about them.
type ProfileService struct {
	beliefs  domain.BeliefStore
	selector *Selector
	logger   *zap.Logger
}

func NewProfileService(beliefs domain.BeliefStore, selector *Selector, logger *zap.Logger) *ProfileService {
	return &ProfileService{beliefs: beliefs, selector: selector, logger: logger}
}

// Profile is the consolidated belief view keyed by section.
type Profile struct {
	UserID      string                                `json:"user_id"`
	GeneratedAt time.Time                             `json:"generated_at"`
	Sections    map[string]map[string]TieredSelection `json:"sections"`
	BeliefCount int                                   `json:"belief_count"`
}

// Build produces the profile. When applyDecay is set, each belief's
// confidence is recalibrated for staleness before selection; the stored
// records are left untouched.
func (s *ProfileService) Build(ctx context.Context, userID string, applyDecay bool) (*Profile, error) {
	all, err := s.beliefs.ListAll(ctx, userID, domain.KindSemantic)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	bySection := make(map[string][]domain.Belief)
	for _, b := range all {
		if applyDecay {
			b.Confidence, _ = RecalibrateWithDecay(b.Confidence, b.LastValidated, now)
		}
		bySection[b.Section] = append(bySection[b.Section], b)
	}

	profile := &Profile{
		UserID:      userID,
		GeneratedAt: now,
		Sections:    make(map[string]map[string]TieredSelection, len(bySection)),
		BeliefCount: len(all),
	}
	for section, beliefs := range bySection {
		selected := s.selector.ApplyTieredSelection(section, beliefs)
		if len(selected) > 0 {
			profile.Sections[section] = selected
		}
	}

	s.logger.Debug("built profile",
		zap.String("user_id", userID),
		zap.Int("beliefs", len(all)),
		zap.Int("sections", len(profile.Sections)))

	return profile, nil
}

// StaleBeliefs returns beliefs whose decayed confidence fell under the review
// threshold, ordered as stored.
func (s *ProfileService) StaleBeliefs(ctx context.Context, userID string) ([]domain.Belief, error) {
	all, err := s.beliefs.ListAll(ctx, userID, domain.KindSemantic)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var stale []domain.Belief
	for _, b := range all {
		decayed, review := RecalibrateWithDecay(b.Confidence, b.LastValidated, now)
		if review {
			b.Confidence = decayed
			stale = append(stale, b)
		}
	}
	return stale, nil
}
