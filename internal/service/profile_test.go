package service

import (
	"context"
	"testing"
	"time"

	"github.com/convergelabs/beliefd/internal/domain"
	"github.com/convergelabs/beliefd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProfileService(t *testing.T) (*ProfileService, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(store.NewInMemoryKV(), zap.NewNop())
	svc := NewProfileService(mem, newTestSelector(), zap.NewNop())
	return svc, mem
}

func seedBelief(t *testing.T, mem *store.MemoryStore, b domain.Belief) {
	t.Helper()
	if b.LastValidated.IsZero() {
		b.LastValidated = time.Now().UTC()
	}
	require.NoError(t, mem.Create(context.Background(), testUser, &b))
}

func TestProfileBuildGroupsBySection(t *testing.T) {
	svc, mem := newTestProfileService(t)

	seedBelief(t, mem, genderBelief("Female", 0.9))
	seedBelief(t, mem, domain.Belief{
		ID: "semantic_interests_301_gaming", TaxonomyID: 301, Section: "interests",
		Tier1: "Interest", Tier2: "Gaming",
		GroupingValue: "Interests", Value: "Gaming", Confidence: 0.8,
	})

	profile, err := svc.Build(context.Background(), testUser, false)
	require.NoError(t, err)
	assert.Equal(t, testUser, profile.UserID)
	assert.Equal(t, 2, profile.BeliefCount)
	require.Len(t, profile.Sections, 2)

	gender, ok := profile.Sections["demographics"]["Gender"]
	require.True(t, ok)
	assert.Equal(t, "Female", gender.Primary.Belief.Value)
}

func TestProfileBuildOmitsSuppressedFamilies(t *testing.T) {
	svc, mem := newTestProfileService(t)
	seedBelief(t, mem, genderBelief("Unknown Gender", 0.95))

	profile, err := svc.Build(context.Background(), testUser, false)
	require.NoError(t, err)
	assert.Empty(t, profile.Sections)
	assert.Equal(t, 1, profile.BeliefCount)
}

func TestProfileBuildWithDecayDropsStaleBeliefs(t *testing.T) {
	svc, mem := newTestProfileService(t)

	// 0.52 loses ~30% over 210 weeks and falls under the 0.5 floor.
	stale := genderBelief("Male", 0.52)
	stale.LastValidated = time.Now().UTC().Add(-210 * 7 * 24 * time.Hour)
	seedBelief(t, mem, stale)

	profile, err := svc.Build(context.Background(), testUser, false)
	require.NoError(t, err)
	assert.Len(t, profile.Sections, 1, "without decay the belief clears the floor")

	profile, err = svc.Build(context.Background(), testUser, true)
	require.NoError(t, err)
	assert.Empty(t, profile.Sections, "decayed confidence falls under the selection floor")
}

func TestStaleBeliefs(t *testing.T) {
	svc, mem := newTestProfileService(t)

	fresh := genderBelief("Female", 0.9)
	seedBelief(t, mem, fresh)

	stale := genderBelief("Male", 0.52)
	stale.LastValidated = time.Now().UTC().Add(-210 * 7 * 24 * time.Hour)
	seedBelief(t, mem, stale)

	out, err := svc.StaleBeliefs(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Male", out[0].Value)
	assert.Less(t, out[0].Confidence, 0.5)
}
