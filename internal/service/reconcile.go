package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/convergelabs/beliefd/internal/domain"
	"github.com/convergelabs/beliefd/internal/metrics"
	"github.com/convergelabs/beliefd/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentDocuments bounds the errgroup used for multi-document batches.
const maxConcurrentDocuments = 4

// ReconcileService merges incoming observations into persisted beliefs:
// classify each observation against the existing belief value, move the
// confidence score, and maintain the evidence trail. A failure on one
// observation never aborts the rest of the document.
type ReconcileService struct {
	beliefs  domain.BeliefStore
	episodes domain.EpisodeStore
	tracker  domain.ProcessedTracker
	taxonomy domain.TaxonomyLookup
	metrics  *metrics.Metrics
	logger   *zap.Logger

	locks stripedLock
}

func NewReconcileService(
	beliefs domain.BeliefStore,
	episodes domain.EpisodeStore,
	tracker domain.ProcessedTracker,
	taxonomy domain.TaxonomyLookup,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconcileService {
	return &ReconcileService{
		beliefs:  beliefs,
		episodes: episodes,
		tracker:  tracker,
		taxonomy: taxonomy,
		metrics:  m,
		logger:   logger,
	}
}

// DocumentResult reports what one document's reconciliation touched.
type DocumentResult struct {
	DocumentID string          `json:"document_id"`
	Beliefs    []domain.Belief `json:"beliefs"`
	Rejected   int             `json:"rejected"`
	Failed     int             `json:"failed"`
}

// ReconcileBatch processes several documents in one invocation. Documents run
// concurrently; observations within a document run sequentially because two
// observations from one document may target the same belief id. An error from
// one document does not stop the others.
func (s *ReconcileService) ReconcileBatch(ctx context.Context, userID string, batches []domain.DocumentBatch) ([]DocumentResult, error) {
	results := make([]DocumentResult, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDocuments)

	for i, batch := range batches {
		g.Go(func() error {
			res, err := s.ReconcileDocument(ctx, userID, batch)
			if err != nil {
				s.logger.Error("document reconciliation failed",
					zap.String("user_id", userID),
					zap.String("document_id", batch.DocumentID),
					zap.Error(err))
				results[i] = DocumentResult{DocumentID: batch.DocumentID}
				return nil
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ReconcileDocument reconciles every observation from a single source
// document. Returns the beliefs created or updated; individual observation
// failures are logged and counted, not escalated.
func (s *ReconcileService) ReconcileDocument(ctx context.Context, userID string, batch domain.DocumentBatch) (*DocumentResult, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &DocumentResult{DocumentID: batch.DocumentID}

	episode := &domain.Episode{
		ID:                      domain.EpisodeID(batch.DocumentID),
		DocumentID:              batch.DocumentID,
		DocumentDate:            batch.DocumentDate,
		Model:                   batch.Model,
		ProcessedAt:             now,
		ConfidenceContributions: make(map[int]float64),
	}

	for _, obs := range batch.Observations {
		belief, err := s.reconcileOne(ctx, userID, batch.DocumentID, obs, now)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidObservation) {
				result.Rejected++
				s.metrics.ObservationsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
				s.logger.Warn("rejected malformed observation",
					zap.String("user_id", userID),
					zap.String("document_id", batch.DocumentID),
					zap.Int("taxonomy_id", obs.TaxonomyID),
					zap.Error(err))
			} else {
				result.Failed++
				s.metrics.ObservationsTotal.WithLabelValues(metrics.OutcomeFailed).Inc()
				s.metrics.ReconcileFailures.Inc()
				s.logger.Error("failed to reconcile observation",
					zap.String("user_id", userID),
					zap.String("document_id", batch.DocumentID),
					zap.Int("taxonomy_id", obs.TaxonomyID),
					zap.Error(err))
			}
			continue
		}

		result.Beliefs = append(result.Beliefs, *belief)
		episode.TaxonomyIDs = append(episode.TaxonomyIDs, obs.TaxonomyID)
		episode.ConfidenceContributions[obs.TaxonomyID] = obs.Confidence
		if episode.Reasoning == "" {
			episode.Reasoning = obs.Reasoning
		}
	}

	if err := s.episodes.Put(ctx, userID, episode); err != nil {
		s.logger.Error("failed to store episode",
			zap.String("user_id", userID),
			zap.String("document_id", batch.DocumentID),
			zap.Error(err))
	}
	if err := s.tracker.MarkProcessed(ctx, userID, []string{batch.DocumentID}); err != nil {
		s.logger.Error("failed to mark document processed",
			zap.String("user_id", userID),
			zap.String("document_id", batch.DocumentID),
			zap.Error(err))
	}

	s.logger.Info("document reconciled",
		zap.String("user_id", userID),
		zap.String("document_id", batch.DocumentID),
		zap.Int("reconciled", len(result.Beliefs)),
		zap.Int("rejected", result.Rejected),
		zap.Int("failed", result.Failed))

	return result, nil
}

// reconcileOne runs the create-or-reconcile flow for a single observation.
func (s *ReconcileService) reconcileOne(ctx context.Context, userID, documentID string, obs domain.Observation, now time.Time) (*domain.Belief, error) {
	if err := obs.Validate(); err != nil {
		return nil, err
	}

	s.backfillGrouping(&obs)

	id := domain.SemanticBeliefID(obs.Section, obs.TaxonomyID, obs.Value)

	mu := s.locks.lock(id)
	defer mu.Unlock()

	existing, err := s.beliefs.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		created, err := s.createBelief(ctx, userID, documentID, id, obs, now)
		if err == nil {
			s.metrics.BeliefsCreated.Inc()
			s.metrics.ObservationsTotal.WithLabelValues(metrics.OutcomeCreated).Inc()
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, err
		}
		// Lost a create race; fall through and reconcile against the winner.
		existing, err = s.beliefs.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("belief %s vanished after duplicate create", id)
		}
	}

	return s.reconcileExisting(ctx, userID, documentID, existing, obs, now)
}

// backfillGrouping fills missing grouping metadata from the taxonomy lookup.
func (s *ReconcileService) backfillGrouping(obs *domain.Observation) {
	if s.taxonomy == nil || (obs.GroupingKey != "" && obs.GroupingValue != "") {
		return
	}
	entry, ok := s.taxonomy.Lookup(obs.TaxonomyID)
	if !ok {
		return
	}
	if obs.GroupingKey == "" {
		obs.GroupingKey = entry.GroupingKey
	}
	if obs.GroupingValue == "" {
		obs.GroupingValue = entry.GroupingValue
	}
}

func (s *ReconcileService) createBelief(ctx context.Context, userID, documentID, id string, obs domain.Observation, now time.Time) (*domain.Belief, error) {
	belief := &domain.Belief{
		ID:                    id,
		TaxonomyID:            obs.TaxonomyID,
		Section:               obs.Section,
		CategoryPath:          obs.CategoryPath,
		Tier1:                 obs.Tier1,
		Tier2:                 obs.Tier2,
		Tier3:                 obs.Tier3,
		Tier4:                 obs.Tier4,
		Tier5:                 obs.Tier5,
		GroupingKey:           obs.GroupingKey,
		GroupingValue:         obs.GroupingValue,
		Value:                 obs.Value,
		Confidence:            InitializeConfidence(obs.Confidence),
		EvidenceCount:         1,
		SupportingEvidence:    []string{documentID},
		ContradictingEvidence: []string{},
		SourceIDs:             []string{documentID},
		FirstObserved:         now,
		LastValidated:         now,
		LastUpdated:           now,
		DataSource:            "document",
		PurchaseIntentFlag:    obs.PurchaseIntentFlag,
	}
	if obs.Reasoning != "" {
		belief.Reasoning = []domain.ReasoningEntry{{At: now, Text: obs.Reasoning}}
	}

	if err := s.beliefs.Create(ctx, userID, belief); err != nil {
		return nil, err
	}

	s.logger.Info("created belief",
		zap.String("user_id", userID),
		zap.String("belief_id", id),
		zap.Int("taxonomy_id", obs.TaxonomyID),
		zap.String("value", obs.Value),
		zap.Float64("confidence", belief.Confidence))

	return belief, nil
}

func (s *ReconcileService) reconcileExisting(ctx context.Context, userID, documentID string, existing *domain.Belief, obs domain.Observation, now time.Time) (*domain.Belief, error) {
	kind := ClassifyEvidence(existing.Value, obs.Value)
	newConfidence := UpdateConfidence(existing.Confidence, obs.Confidence, kind)

	s.logger.Debug("classified evidence",
		zap.String("user_id", userID),
		zap.String("belief_id", existing.ID),
		zap.String("kind", string(kind)),
		zap.String("existing_value", existing.Value),
		zap.String("new_value", obs.Value),
		zap.Float64("old_confidence", existing.Confidence),
		zap.Float64("new_confidence", newConfidence))

	supporting := existing.SupportingEvidence
	contradicting := existing.ContradictingEvidence
	switch kind {
	case domain.EvidenceConfirming:
		supporting = appendUnique(supporting, documentID)
		s.metrics.ObservationsTotal.WithLabelValues(metrics.OutcomeConfirmed).Inc()
	case domain.EvidenceContradicting:
		contradicting = appendUnique(contradicting, documentID)
		s.metrics.ObservationsTotal.WithLabelValues(metrics.OutcomeContradicted).Inc()
	}

	evidenceCount := len(supporting) + len(contradicting)
	sourceIDs := appendUnique(existing.SourceIDs, documentID)

	upd := domain.BeliefUpdate{
		Confidence:            &newConfidence,
		EvidenceCount:         &evidenceCount,
		SupportingEvidence:    supporting,
		ContradictingEvidence: contradicting,
		SourceIDs:             sourceIDs,
		LastValidated:         &now,
		LastUpdated:           &now,
	}
	if obs.Reasoning != "" {
		upd.Reasoning = append(existing.Reasoning, domain.ReasoningEntry{At: now, Text: obs.Reasoning})
	}
	if obs.GroupingKey != "" && existing.GroupingKey == "" {
		upd.GroupingKey = &obs.GroupingKey
	}
	if obs.GroupingValue != "" && existing.GroupingValue == "" {
		upd.GroupingValue = &obs.GroupingValue
	}
	if obs.PurchaseIntentFlag != "" {
		upd.PurchaseIntentFlag = &obs.PurchaseIntentFlag
	}

	ok, err := s.beliefs.Update(ctx, userID, existing.ID, upd)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("belief %s disappeared during update", existing.ID)
	}

	s.metrics.BeliefsUpdated.Inc()

	updated, err := s.beliefs.Get(ctx, userID, existing.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("belief %s not readable after update", existing.ID)
	}
	return updated, nil
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

// Conflicting returns beliefs in a section whose contradicting-evidence count
// meets the threshold; useful for surfacing classifications needing review.
func (s *ReconcileService) Conflicting(ctx context.Context, userID, section string, minContradictions int) ([]domain.Belief, error) {
	all, err := s.beliefs.ListAll(ctx, userID, domain.KindSemantic)
	if err != nil {
		return nil, err
	}

	var conflicts []domain.Belief
	for _, b := range all {
		if section != "" && b.Section != section {
			continue
		}
		if len(b.ContradictingEvidence) >= minContradictions {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts, nil
}

// Resolution actions for manually reviewed beliefs.
const (
	ResolutionKeep   = "keep"
	ResolutionDelete = "delete"
)

// Resolve applies a manual resolution to a conflicted belief: keep revalidates
// it, delete removes it so future evidence recreates a fresh record.
func (s *ReconcileService) Resolve(ctx context.Context, userID, beliefID, resolution string) error {
	switch resolution {
	case ResolutionKeep:
		now := time.Now().UTC()
		existing, err := s.beliefs.Get(ctx, userID, beliefID)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("belief %s: %w", beliefID, store.ErrNotFound)
		}
		reasoning := append(existing.Reasoning, domain.ReasoningEntry{At: now, Text: "manually reviewed and confirmed"})
		ok, err := s.beliefs.Update(ctx, userID, beliefID, domain.BeliefUpdate{
			LastValidated: &now,
			Reasoning:     reasoning,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("belief %s: %w", beliefID, store.ErrNotFound)
		}
		return nil
	case ResolutionDelete:
		return s.beliefs.Delete(ctx, userID, beliefID)
	default:
		return fmt.Errorf("invalid resolution %q", resolution)
	}
}
