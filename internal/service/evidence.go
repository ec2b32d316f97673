package service

import (
	"strings"

	"github.com/convergelabs/beliefd/internal/domain"
)

// ClassifyEvidence decides whether a new observed value confirms or
// contradicts the existing belief value. Both sides are trimmed and
// lower-cased; exact equality confirms, anything else contradicts.
//
// The neutral kind exists for evidence paths that are not driven by value
// comparison; it never arises here.
func ClassifyEvidence(existingValue, newValue string) domain.EvidenceKind {
	existing := strings.ToLower(strings.TrimSpace(existingValue))
	incoming := strings.ToLower(strings.TrimSpace(newValue))

	if existing == incoming {
		return domain.EvidenceConfirming
	}
	return domain.EvidenceContradicting
}
