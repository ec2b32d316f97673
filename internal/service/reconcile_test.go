package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/convergelabs/beliefd/internal/domain"
	"github.com/convergelabs/beliefd/internal/metrics"
	"github.com/convergelabs/beliefd/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUser = "user-1"

func newTestReconciler(t *testing.T) (*ReconcileService, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(store.NewInMemoryKV(), zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())
	svc := NewReconcileService(mem, mem, mem, nil, m, zap.NewNop())
	return svc, mem
}

func genderObservation(value string, confidence float64) domain.Observation {
	return domain.Observation{
		TaxonomyID:    42,
		Section:       "demographics",
		Value:         value,
		Confidence:    confidence,
		Tier1:         "Demographics",
		Tier2:         "Gender",
		GroupingKey:   "tier_2",
		GroupingValue: "Gender",
		Reasoning:     "document mentions " + value,
	}
}

func TestReconcileDocumentCreatesBelief(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	res, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{genderObservation("Male", 0.9)},
	})
	require.NoError(t, err)
	require.Len(t, res.Beliefs, 1)

	b := res.Beliefs[0]
	assert.Equal(t, "semantic_demographics_42_male", b.ID)
	assert.Equal(t, 0.9, b.Confidence)
	assert.Equal(t, 1, b.EvidenceCount)
	assert.Equal(t, []string{"doc-1"}, b.SupportingEvidence)
	assert.Empty(t, b.ContradictingEvidence)
	require.Len(t, b.Reasoning, 1)

	stored, err := mem.Get(ctx, testUser, b.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, b.Confidence, stored.Confidence)

	processed, err := mem.ProcessedIDs(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, processed)

	ep, err := mem.GetEpisode(ctx, testUser, domain.EpisodeID("doc-1"))
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, []int{42}, ep.TaxonomyIDs)
	assert.Equal(t, 0.9, ep.ConfidenceContributions[42])
}

func TestReconcileConfirmingEvidenceRaisesConfidence(t *testing.T) {
	svc, _ := newTestReconciler(t)
	ctx := context.Background()

	_, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{genderObservation("Male", 0.8)},
	})
	require.NoError(t, err)

	res, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-2",
		Observations: []domain.Observation{genderObservation("Male", 0.9)},
	})
	require.NoError(t, err)
	require.Len(t, res.Beliefs, 1)

	b := res.Beliefs[0]
	assert.InDelta(t, 0.8+0.2*0.9*0.3, b.Confidence, 1e-9)
	assert.Equal(t, 2, b.EvidenceCount)
	assert.Equal(t, []string{"doc-1", "doc-2"}, b.SupportingEvidence)
	assert.Len(t, b.Reasoning, 2)
}

func TestReconcileContradictionCreatesCompetingBelief(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	_, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{genderObservation("Male", 0.8)},
	})
	require.NoError(t, err)

	// A different value under the same taxonomy id addresses a different
	// belief record; the existing one is untouched.
	res, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-2",
		Observations: []domain.Observation{genderObservation("Female", 0.7)},
	})
	require.NoError(t, err)
	require.Len(t, res.Beliefs, 1)
	assert.Equal(t, "semantic_demographics_42_female", res.Beliefs[0].ID)

	all, err := mem.ListAll(ctx, testUser, domain.KindSemantic)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReconcileSameDocumentTwiceIsIdempotentOnEvidence(t *testing.T) {
	svc, _ := newTestReconciler(t)
	ctx := context.Background()

	batch := domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{genderObservation("Male", 0.8)},
	}

	_, err := svc.ReconcileDocument(ctx, testUser, batch)
	require.NoError(t, err)
	res, err := svc.ReconcileDocument(ctx, testUser, batch)
	require.NoError(t, err)

	b := res.Beliefs[0]
	assert.Equal(t, []string{"doc-1"}, b.SupportingEvidence, "same document must not be listed twice")
	assert.Equal(t, []string{"doc-1"}, b.SourceIDs)
	assert.Equal(t, 1, b.EvidenceCount)
	assert.Greater(t, b.Confidence, 0.8, "confidence still moves on re-observation")
}

func TestReconcileRejectsMalformedObservation(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	bad := genderObservation("Male", 0.8)
	bad.TaxonomyID = 0

	res, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{bad, genderObservation("Female", 0.7)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Beliefs, 1)
	assert.Equal(t, "Female", res.Beliefs[0].Value)

	all, err := mem.ListAll(ctx, testUser, domain.KindSemantic)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReconcileRejectsBlankDocumentID(t *testing.T) {
	svc, _ := newTestReconciler(t)

	_, err := svc.ReconcileDocument(context.Background(), testUser, domain.DocumentBatch{
		DocumentID:   " ",
		Observations: []domain.Observation{genderObservation("Male", 0.8)},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidObservation)
}

// failingBeliefStore fails writes for one belief id to exercise the
// partial-failure path.
type failingBeliefStore struct {
	domain.BeliefStore
	failID string
}

func (f *failingBeliefStore) Create(ctx context.Context, userID string, b *domain.Belief) error {
	if b.ID == f.failID {
		return errors.New("simulated write failure")
	}
	return f.BeliefStore.Create(ctx, userID, b)
}

func TestReconcileSurvivesStoreFailure(t *testing.T) {
	mem := store.NewMemoryStore(store.NewInMemoryKV(), zap.NewNop())
	failing := &failingBeliefStore{BeliefStore: mem, failID: "semantic_demographics_42_male"}
	svc := NewReconcileService(failing, mem, mem, nil, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	ctx := context.Background()

	res, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID: "doc-1",
		Observations: []domain.Observation{
			genderObservation("Male", 0.8),
			genderObservation("Female", 0.7),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Beliefs, 1)
	assert.Equal(t, "Female", res.Beliefs[0].Value)

	// The document is still recorded as processed.
	processed, err := mem.ProcessedIDs(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1"}, processed)
}

func TestReconcileBatchMultipleDocuments(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	batches := []domain.DocumentBatch{
		{DocumentID: "doc-1", Observations: []domain.Observation{genderObservation("Male", 0.8)}},
		{DocumentID: "doc-2", Observations: []domain.Observation{genderObservation("Male", 0.9)}},
		{DocumentID: "doc-3", Observations: []domain.Observation{genderObservation("Female", 0.6)}},
	}

	results, err := svc.ReconcileBatch(ctx, testUser, batches)
	require.NoError(t, err)
	require.Len(t, results, 3)

	male, err := mem.Get(ctx, testUser, "semantic_demographics_42_male")
	require.NoError(t, err)
	require.NotNil(t, male)
	assert.Equal(t, 2, male.EvidenceCount)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, male.SupportingEvidence)

	processed, err := mem.ProcessedIDs(ctx, testUser)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2", "doc-3"}, processed)
}

// Concurrent documents create distinct beliefs that all funnel into the
// shared per-user index; none may vanish from enumeration.
func TestReconcileBatchConcurrentDocumentsKeepIndexComplete(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	const docs = 100
	batches := make([]domain.DocumentBatch, docs)
	for i := range batches {
		obs := genderObservation(fmt.Sprintf("Value %d", i), 0.8)
		batches[i] = domain.DocumentBatch{
			DocumentID:   fmt.Sprintf("doc-%d", i),
			Observations: []domain.Observation{obs},
		}
	}

	results, err := svc.ReconcileBatch(ctx, testUser, batches)
	require.NoError(t, err)
	require.Len(t, results, docs)
	for _, res := range results {
		assert.Len(t, res.Beliefs, 1, "document %s", res.DocumentID)
	}

	all, err := mem.ListAll(ctx, testUser, domain.KindSemantic)
	require.NoError(t, err)
	assert.Len(t, all, docs)

	processed, err := mem.ProcessedIDs(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, processed, docs)
}

func TestReconcileBackfillsGroupingFromTaxonomy(t *testing.T) {
	mem := store.NewMemoryStore(store.NewInMemoryKV(), zap.NewNop())
	taxonomy := domain.StaticTaxonomy{
		42: {ID: 42, Section: "demographics", Tier1: "Demographics", Tier2: "Gender", GroupingKey: "tier_2", GroupingValue: "Gender"},
	}
	svc := NewReconcileService(mem, mem, mem, taxonomy, metrics.New(prometheus.NewRegistry()), zap.NewNop())

	obs := genderObservation("Male", 0.8)
	obs.GroupingKey = ""
	obs.GroupingValue = ""

	res, err := svc.ReconcileDocument(context.Background(), testUser, domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{obs},
	})
	require.NoError(t, err)
	require.Len(t, res.Beliefs, 1)
	assert.Equal(t, "Gender", res.Beliefs[0].GroupingValue)
	assert.Equal(t, "tier_2", res.Beliefs[0].GroupingKey)
}

func TestResolveKeepRevalidates(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	_, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{genderObservation("Male", 0.8)},
	})
	require.NoError(t, err)

	id := "semantic_demographics_42_male"
	require.NoError(t, svc.Resolve(ctx, testUser, id, ResolutionKeep))

	b, err := mem.Get(ctx, testUser, id)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Len(t, b.Reasoning, 2)
}

func TestResolveDeleteRemovesBelief(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	_, err := svc.ReconcileDocument(ctx, testUser, domain.DocumentBatch{
		DocumentID:   "doc-1",
		Observations: []domain.Observation{genderObservation("Male", 0.8)},
	})
	require.NoError(t, err)

	id := "semantic_demographics_42_male"
	require.NoError(t, svc.Resolve(ctx, testUser, id, ResolutionDelete))

	b, err := mem.Get(ctx, testUser, id)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestResolveRejectsUnknownResolution(t *testing.T) {
	svc, _ := newTestReconciler(t)
	err := svc.Resolve(context.Background(), testUser, "some-id", "merge")
	assert.Error(t, err)
}

func TestConflictingFiltersByContradictions(t *testing.T) {
	svc, mem := newTestReconciler(t)
	ctx := context.Background()

	belief := &domain.Belief{
		ID:                    "semantic_demographics_42_male",
		TaxonomyID:            42,
		Section:               "demographics",
		Tier1:                 "Demographics",
		Tier2:                 "Gender",
		Value:                 "Male",
		Confidence:            0.6,
		EvidenceCount:         3,
		SupportingEvidence:    []string{"doc-1"},
		ContradictingEvidence: []string{"doc-2", "doc-3"},
	}
	require.NoError(t, mem.Create(ctx, testUser, belief))

	conflicts, err := svc.Conflicting(ctx, testUser, "demographics", 2)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Male", conflicts[0].Value)

	conflicts, err = svc.Conflicting(ctx, testUser, "demographics", 3)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = svc.Conflicting(ctx, testUser, "interests", 1)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
