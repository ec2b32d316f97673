package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/convergelabs/beliefd/internal/domain"
	"go.uber.org/zap"
)

const (
	collectionProfile   = "taxonomy_profile"
	collectionIndex     = "memory_index"
	collectionProcessed = "processed_documents"

	indexKey   = "memory_id_index"
	trackerKey = "tracker_processed_documents"
)

// MemoryStore persists beliefs, episodes and the processed-document tracker on
// top of a KV backend. It implements domain.BeliefStore, domain.EpisodeStore
// and domain.ProcessedTracker.
//
// The backend only supports point get/put, so a per-user memory index record
// tracks every belief and episode id; ListAll reads the index and point-reads
// each id. Index writes are best-effort: a record write is authoritative even
// when the index update fails, and the index is repaired lazily on the next
// ListAll miss.
//
// The index and tracker records are shared across every belief of a user, so
// their read-modify-write cycles are serialized in-process. Concurrent
// reconcilers only hold per-belief locks and would otherwise lose entries.
type MemoryStore struct {
	kv     KV
	logger *zap.Logger

	indexMu   sync.Mutex
	trackerMu sync.Mutex
}

func NewMemoryStore(kv KV, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{kv: kv, logger: logger}
}

func userNamespace(userID, collection string) string {
	return userID + "/" + collection
}

type memoryIndex struct {
	Semantic []string `json:"semantic"`
	Episodic []string `json:"episodic"`
}

func (idx *memoryIndex) ids(kind domain.MemoryKind) []string {
	if kind == domain.KindEpisodic {
		return idx.Episodic
	}
	return idx.Semantic
}

func (idx *memoryIndex) setIDs(kind domain.MemoryKind, ids []string) {
	if kind == domain.KindEpisodic {
		idx.Episodic = ids
	} else {
		idx.Semantic = ids
	}
}

func (s *MemoryStore) getIndex(ctx context.Context, userID string) (*memoryIndex, error) {
	raw, err := s.kv.Get(ctx, userNamespace(userID, collectionIndex), indexKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &memoryIndex{}, nil
		}
		return nil, fmt.Errorf("read memory index: %w", err)
	}

	var idx memoryIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode memory index: %w", err)
	}
	return &idx, nil
}

func (s *MemoryStore) putIndex(ctx context.Context, userID string, idx *memoryIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, userNamespace(userID, collectionIndex), indexKey, raw)
}

// addToIndex records an id under the given kind. Failures are logged, never
// escalated: the record write stays authoritative.
func (s *MemoryStore) addToIndex(ctx context.Context, userID, id string, kind domain.MemoryKind) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	idx, err := s.getIndex(ctx, userID)
	if err != nil {
		s.logger.Error("failed to read memory index for add",
			zap.String("user_id", userID), zap.String("memory_id", id), zap.Error(err))
		return
	}

	ids := idx.ids(kind)
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	idx.setIDs(kind, append(ids, id))

	if err := s.putIndex(ctx, userID, idx); err != nil {
		s.logger.Error("failed to write memory index",
			zap.String("user_id", userID), zap.String("memory_id", id), zap.Error(err))
	}
}

func (s *MemoryStore) removeFromIndex(ctx context.Context, userID, id string, kind domain.MemoryKind) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	idx, err := s.getIndex(ctx, userID)
	if err != nil {
		s.logger.Error("failed to read memory index for remove",
			zap.String("user_id", userID), zap.String("memory_id", id), zap.Error(err))
		return
	}

	ids := idx.ids(kind)
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	idx.setIDs(kind, kept)

	if err := s.putIndex(ctx, userID, idx); err != nil {
		s.logger.Error("failed to write memory index",
			zap.String("user_id", userID), zap.String("memory_id", id), zap.Error(err))
	}
}

// Get returns nil when the belief does not exist.
func (s *MemoryStore) Get(ctx context.Context, userID, id string) (*domain.Belief, error) {
	raw, err := s.kv.Get(ctx, userNamespace(userID, collectionProfile), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get belief %s: %w", id, err)
	}

	var b domain.Belief
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode belief %s: %w", id, err)
	}
	return &b, nil
}

func (s *MemoryStore) Create(ctx context.Context, userID string, b *domain.Belief) error {
	ns := userNamespace(userID, collectionProfile)

	if _, err := s.kv.Get(ctx, ns, b.ID); err == nil {
		return fmt.Errorf("belief %s: %w", b.ID, ErrDuplicateKey)
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("check belief %s: %w", b.ID, err)
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode belief %s: %w", b.ID, err)
	}
	if err := s.kv.Put(ctx, ns, b.ID, raw); err != nil {
		return fmt.Errorf("create belief %s: %w", b.ID, err)
	}

	s.addToIndex(ctx, userID, b.ID, domain.KindSemantic)
	return nil
}

// Update merges the partial update into the stored belief. Returns false when
// the belief does not exist.
func (s *MemoryStore) Update(ctx context.Context, userID, id string, upd domain.BeliefUpdate) (bool, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if upd.Confidence != nil {
		existing.Confidence = *upd.Confidence
	}
	if upd.EvidenceCount != nil {
		existing.EvidenceCount = *upd.EvidenceCount
	}
	if upd.SupportingEvidence != nil {
		existing.SupportingEvidence = upd.SupportingEvidence
	}
	if upd.ContradictingEvidence != nil {
		existing.ContradictingEvidence = upd.ContradictingEvidence
	}
	if upd.SourceIDs != nil {
		existing.SourceIDs = upd.SourceIDs
	}
	if upd.GroupingKey != nil {
		existing.GroupingKey = *upd.GroupingKey
	}
	if upd.GroupingValue != nil {
		existing.GroupingValue = *upd.GroupingValue
	}
	if upd.LastValidated != nil {
		existing.LastValidated = *upd.LastValidated
	}
	if upd.Reasoning != nil {
		existing.Reasoning = upd.Reasoning
	}
	if upd.PurchaseIntentFlag != nil {
		existing.PurchaseIntentFlag = *upd.PurchaseIntentFlag
	}

	if upd.LastUpdated != nil {
		existing.LastUpdated = *upd.LastUpdated
	} else {
		existing.LastUpdated = time.Now().UTC()
	}

	raw, err := json.Marshal(existing)
	if err != nil {
		return false, fmt.Errorf("encode belief %s: %w", id, err)
	}
	if err := s.kv.Put(ctx, userNamespace(userID, collectionProfile), id, raw); err != nil {
		return false, fmt.Errorf("update belief %s: %w", id, err)
	}
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("belief %s: %w", id, ErrNotFound)
	}

	if err := s.kv.Delete(ctx, userNamespace(userID, collectionProfile), id); err != nil {
		return fmt.Errorf("delete belief %s: %w", id, err)
	}
	s.removeFromIndex(ctx, userID, id, domain.KindSemantic)
	return nil
}

// ListAll enumerates beliefs of the given kind through the memory index.
// Ids whose record has vanished are skipped and pruned from the index.
func (s *MemoryStore) ListAll(ctx context.Context, userID string, kind domain.MemoryKind) ([]domain.Belief, error) {
	idx, err := s.getIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := idx.ids(kind)
	beliefs := make([]domain.Belief, 0, len(ids))
	var vanished []string

	for _, id := range ids {
		b, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if b == nil {
			vanished = append(vanished, id)
			continue
		}
		beliefs = append(beliefs, *b)
	}

	if len(vanished) > 0 {
		s.logger.Warn("memory index contained vanished records, repairing",
			zap.String("user_id", userID), zap.Int("count", len(vanished)))
		for _, id := range vanished {
			s.removeFromIndex(ctx, userID, id, kind)
		}
	}

	return beliefs, nil
}

// Put stores an episode record and indexes it under the episodic kind.
func (s *MemoryStore) Put(ctx context.Context, userID string, ep *domain.Episode) error {
	raw, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("encode episode %s: %w", ep.ID, err)
	}
	if err := s.kv.Put(ctx, userNamespace(userID, collectionProfile), ep.ID, raw); err != nil {
		return fmt.Errorf("store episode %s: %w", ep.ID, err)
	}

	s.addToIndex(ctx, userID, ep.ID, domain.KindEpisodic)
	return nil
}

// GetEpisode returns nil when the episode does not exist.
func (s *MemoryStore) GetEpisode(ctx context.Context, userID, id string) (*domain.Episode, error) {
	raw, err := s.kv.Get(ctx, userNamespace(userID, collectionProfile), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}

	var ep domain.Episode
	if err := json.Unmarshal(raw, &ep); err != nil {
		return nil, fmt.Errorf("decode episode %s: %w", id, err)
	}
	return &ep, nil
}

// ListEpisodes enumerates every episode through the memory index.
func (s *MemoryStore) ListEpisodes(ctx context.Context, userID string) ([]domain.Episode, error) {
	idx, err := s.getIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	episodes := make([]domain.Episode, 0, len(idx.Episodic))
	var vanished []string

	for _, id := range idx.Episodic {
		ep, err := s.GetEpisode(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if ep == nil {
			vanished = append(vanished, id)
			continue
		}
		episodes = append(episodes, *ep)
	}

	for _, id := range vanished {
		s.removeFromIndex(ctx, userID, id, domain.KindEpisodic)
	}

	return episodes, nil
}

type processedTracker struct {
	UserID         string    `json:"user_id"`
	DocumentIDs    []string  `json:"processed_document_ids"`
	TotalProcessed int       `json:"total_processed"`
	LastUpdated    time.Time `json:"last_updated"`
}

// MarkProcessed merges the document ids into the per-user processed set.
func (s *MemoryStore) MarkProcessed(ctx context.Context, userID string, documentIDs []string) error {
	s.trackerMu.Lock()
	defer s.trackerMu.Unlock()

	ns := userNamespace(userID, collectionProcessed)

	tracker := processedTracker{UserID: userID}
	raw, err := s.kv.Get(ctx, ns, trackerKey)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("read processed tracker: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(raw, &tracker); err != nil {
			return fmt.Errorf("decode processed tracker: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(tracker.DocumentIDs))
	for _, id := range tracker.DocumentIDs {
		seen[id] = struct{}{}
	}
	for _, id := range documentIDs {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			tracker.DocumentIDs = append(tracker.DocumentIDs, id)
		}
	}
	tracker.TotalProcessed = len(tracker.DocumentIDs)
	tracker.LastUpdated = time.Now().UTC()

	out, err := json.Marshal(&tracker)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, ns, trackerKey, out)
}

// ProcessedIDs lists every document id already ingested for the user.
func (s *MemoryStore) ProcessedIDs(ctx context.Context, userID string) ([]string, error) {
	raw, err := s.kv.Get(ctx, userNamespace(userID, collectionProcessed), trackerKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read processed tracker: %w", err)
	}

	var tracker processedTracker
	if err := json.Unmarshal(raw, &tracker); err != nil {
		return nil, fmt.Errorf("decode processed tracker: %w", err)
	}
	return tracker.DocumentIDs, nil
}
