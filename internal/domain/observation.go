package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidObservation is returned when an observation fails boundary
// validation. Invalid observations are rejected before they reach the
// classifier and are never persisted.
var ErrInvalidObservation = errors.New("invalid observation")

var validate = validator.New()

// Observation is one incoming, unpersisted piece of evidence about a belief.
// It is consumed once by the reconciliation orchestrator.
type Observation struct {
	TaxonomyID   int     `json:"taxonomy_id" validate:"required,gt=0"`
	Section      string  `json:"section" validate:"required"`
	Value        string  `json:"value" validate:"required"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	CategoryPath string  `json:"category_path"`

	Tier1 string `json:"tier_1" validate:"required"`
	Tier2 string `json:"tier_2,omitempty"`
	Tier3 string `json:"tier_3,omitempty"`
	Tier4 string `json:"tier_4,omitempty"`
	Tier5 string `json:"tier_5,omitempty"`

	GroupingKey   string `json:"grouping_key,omitempty"`
	GroupingValue string `json:"grouping_value,omitempty"`

	Reasoning          string `json:"reasoning,omitempty"`
	PurchaseIntentFlag string `json:"purchase_intent_flag,omitempty"`
}

// Validate rejects observations missing required fields or carrying a
// non-contiguous tier path (once a tier is empty, deeper tiers must be empty).
func (o *Observation) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}

	tiers := []string{o.Tier1, o.Tier2, o.Tier3, o.Tier4, o.Tier5}
	sawEmpty := false
	for i, t := range tiers {
		if strings.TrimSpace(t) == "" {
			sawEmpty = true
			continue
		}
		if sawEmpty {
			return fmt.Errorf("%w: tier_%d set after an empty tier", ErrInvalidObservation, i+1)
		}
	}
	return nil
}

// DocumentBatch groups the observations produced from one source document.
// Evidence provenance is tracked at document granularity, so batches must be
// partitioned by document before reconciliation.
type DocumentBatch struct {
	DocumentID   string        `json:"document_id" validate:"required"`
	DocumentDate string        `json:"document_date,omitempty"`
	Model        string        `json:"model,omitempty"`
	Observations []Observation `json:"observations"`
}

// Validate checks the batch envelope; per-observation validation happens in
// the orchestrator so one bad observation does not reject the whole document.
func (b *DocumentBatch) Validate() error {
	if strings.TrimSpace(b.DocumentID) == "" {
		return fmt.Errorf("%w: document_id is required", ErrInvalidObservation)
	}
	return nil
}

// Episode is the persisted evidence trail for one ingested source document:
// which taxonomy ids it contributed to and with what strength.
type Episode struct {
	ID           string    `json:"episode_id"`
	DocumentID   string    `json:"document_id"`
	DocumentDate string    `json:"document_date,omitempty"`
	Model        string    `json:"model,omitempty"`
	ProcessedAt  time.Time `json:"processed_at"`

	TaxonomyIDs             []int           `json:"taxonomy_ids"`
	ConfidenceContributions map[int]float64 `json:"confidence_contributions"`
	Reasoning               string          `json:"reasoning,omitempty"`
}
