package domain

import "context"

// BeliefStore persists beliefs keyed by their deterministic identifier and
// maintains the per-user memory index used for enumeration.
type BeliefStore interface {
	// Get returns nil (not an error) when the id is absent.
	Get(ctx context.Context, userID, id string) (*Belief, error)
	// Create fails with store.ErrDuplicateKey when the id already exists.
	Create(ctx context.Context, userID string, b *Belief) error
	// Update merges the partial update into an existing belief. It returns
	// false (not an error) when the id is absent.
	Update(ctx context.Context, userID, id string, upd BeliefUpdate) (bool, error)
	// Delete removes the record and its index entry. Not part of the
	// reconciliation path; provided for external housekeeping.
	Delete(ctx context.Context, userID, id string) error
	// ListAll enumerates every belief of the given kind via the memory index,
	// silently skipping ids whose record has vanished.
	ListAll(ctx context.Context, userID string, kind MemoryKind) ([]Belief, error)
}

// EpisodeStore persists per-document evidence trails.
type EpisodeStore interface {
	Put(ctx context.Context, userID string, ep *Episode) error
	// GetEpisode returns nil (not an error) when the id is absent.
	GetEpisode(ctx context.Context, userID, id string) (*Episode, error)
	ListEpisodes(ctx context.Context, userID string) ([]Episode, error)
}

// ProcessedTracker records which source documents have already been ingested,
// so incremental runs can skip them.
type ProcessedTracker interface {
	MarkProcessed(ctx context.Context, userID string, documentIDs []string) error
	ProcessedIDs(ctx context.Context, userID string) ([]string, error)
}
