package domain

import (
	"fmt"
	"strings"
	"time"
)

// MemoryKind partitions the memory index.
type MemoryKind string

const (
	KindSemantic MemoryKind = "semantic"
	KindEpisodic MemoryKind = "episodic"
)

// EvidenceKind classifies how a new observation relates to an existing belief.
type EvidenceKind string

const (
	EvidenceConfirming    EvidenceKind = "confirming"
	EvidenceContradicting EvidenceKind = "contradicting"
	EvidenceNeutral       EvidenceKind = "neutral"
)

// ReasoningEntry is one timestamped entry in a belief's append-only reasoning log.
type ReasoningEntry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Belief is a persisted, confidence-scored statement about one attribute value
// for one user. One belief exists per (section, taxonomy id, value) triple;
// competing values under the same attribute family are separate beliefs and
// contradiction is detected at the family level by the selector.
type Belief struct {
	ID           string `json:"memory_id"`
	TaxonomyID   int    `json:"taxonomy_id"`
	Section      string `json:"section"`
	CategoryPath string `json:"category_path"`

	Tier1 string `json:"tier_1"`
	Tier2 string `json:"tier_2,omitempty"`
	Tier3 string `json:"tier_3,omitempty"`
	Tier4 string `json:"tier_4,omitempty"`
	Tier5 string `json:"tier_5,omitempty"`

	// GroupingKey names which tier carries the attribute-family label
	// ("tier_2" or "tier_3"); GroupingValue is the label itself (e.g. "Gender").
	GroupingKey   string `json:"grouping_key,omitempty"`
	GroupingValue string `json:"grouping_value,omitempty"`

	// Value is the most specific non-empty tier value; observations are
	// compared against it for confirmation/contradiction.
	Value string `json:"value"`

	Confidence    float64 `json:"confidence"`
	EvidenceCount int     `json:"evidence_count"`

	SupportingEvidence    []string `json:"supporting_evidence"`
	ContradictingEvidence []string `json:"contradicting_evidence"`
	SourceIDs             []string `json:"source_ids"`

	FirstObserved time.Time `json:"first_observed"`
	LastValidated time.Time `json:"last_validated"`
	LastUpdated   time.Time `json:"last_updated"`

	DataSource string           `json:"data_source"`
	Reasoning  []ReasoningEntry `json:"reasoning,omitempty"`

	PurchaseIntentFlag string `json:"purchase_intent_flag,omitempty"`
}

// TierDepth is the count of non-empty, non-whitespace tier fields (0-5).
func (b *Belief) TierDepth() int {
	depth := 0
	for _, t := range []string{b.Tier1, b.Tier2, b.Tier3, b.Tier4, b.Tier5} {
		if strings.TrimSpace(t) != "" {
			depth++
		}
	}
	return depth
}

// BeliefUpdate is a partial update merged into an existing belief by the store.
// Nil fields are left untouched. LastUpdated is force-set by the store when the
// caller does not supply it.
type BeliefUpdate struct {
	Confidence            *float64
	EvidenceCount         *int
	SupportingEvidence    []string
	ContradictingEvidence []string
	SourceIDs             []string
	GroupingKey           *string
	GroupingValue         *string
	LastValidated         *time.Time
	LastUpdated           *time.Time
	Reasoning             []ReasoningEntry
	PurchaseIntentFlag    *string
}

// SemanticBeliefID builds the deterministic identifier for a belief so that
// two independent observations about the same value always address the same
// record, while different values under the same taxonomy id stay distinct.
// Format: semantic_{section}_{taxonomyID}_{slug}.
func SemanticBeliefID(section string, taxonomyID int, value string) string {
	return fmt.Sprintf("semantic_%s_%d_%s", section, taxonomyID, slugify(value))
}

// EpisodeID builds the identifier for a source document's evidence trail.
func EpisodeID(documentID string) string {
	return "episodic_doc_" + documentID
}

// slugify lower-cases the value and replaces whitespace and separator runs
// with a single underscore.
func slugify(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	mapped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '|', '/', '\\':
			return '_'
		default:
			return r
		}
	}, lowered)
	parts := strings.FieldsFunc(mapped, func(r rune) bool { return r == '_' })
	return strings.Join(parts, "_")
}
