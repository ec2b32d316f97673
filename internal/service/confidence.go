package service

import (
	"fmt"
	"time"

	"github.com/convergelabs/beliefd/internal/domain"
)

const (
	// ConfirmingWeight damps confidence growth so repeated weak evidence
	// cannot saturate a belief in a handful of updates.
	ConfirmingWeight = 0.3
	// ContradictionWeight makes a single contradiction less impactful than
	// the accumulated confirmations it argues against.
	ContradictionWeight = 0.5
	// ReviewThreshold marks beliefs below it as needing review.
	ReviewThreshold = 0.5
	// WeeklyDecayRate is the fraction of confidence lost per week without
	// validation.
	WeeklyDecayRate = 0.01
)

// InitializeConfidence sets the confidence of a first-time belief. The first
// observation's strength is taken directly; the update curves only apply from
// the second observation onward.
func InitializeConfidence(evidenceStrength float64) float64 {
	return clampConfidence(evidenceStrength)
}

// UpdateConfidence moves a belief's confidence given new evidence.
//
// Confirming:    new = current + (1 - current) * strength * 0.3
// Contradicting: new = current * (1 - strength * 0.5)
// Neutral:       new = current
//
// The result is always clamped to [0, 1]. Confirming evidence never lowers
// confidence, contradicting evidence never raises it, and both curves are
// monotonic in evidence strength.
func UpdateConfidence(current, evidenceStrength float64, kind domain.EvidenceKind) float64 {
	current = clampConfidence(current)
	evidenceStrength = clampConfidence(evidenceStrength)

	switch kind {
	case domain.EvidenceConfirming:
		return clampConfidence(current + (1-current)*evidenceStrength*ConfirmingWeight)
	case domain.EvidenceContradicting:
		return clampConfidence(current * (1 - evidenceStrength*ContradictionWeight))
	default:
		return current
	}
}

// ApplyTemporalDecay reduces confidence by 1% per week since last validation,
// so unreinforced classifications lose certainty over time.
func ApplyTemporalDecay(confidence float64, daysSinceValidation int) float64 {
	if daysSinceValidation < 0 {
		daysSinceValidation = 0
	}
	weeks := float64(daysSinceValidation) / 7.0
	return clampConfidence(confidence * (1 - WeeklyDecayRate*weeks))
}

// DaysSinceValidation returns whole days elapsed since the given timestamp,
// never negative.
func DaysSinceValidation(lastValidated time.Time, now time.Time) int {
	days := int(now.Sub(lastValidated).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// NeedsReview reports whether a confidence score indicates enough uncertainty
// to warrant manual review.
func NeedsReview(confidence float64) bool {
	return confidence < ReviewThreshold
}

// RecalibrateWithDecay applies temporal decay and reports whether the decayed
// belief needs review. Read-side only; the stored confidence is untouched.
func RecalibrateWithDecay(confidence float64, lastValidated time.Time, now time.Time) (float64, bool) {
	decayed := ApplyTemporalDecay(confidence, DaysSinceValidation(lastValidated, now))
	return decayed, NeedsReview(decayed)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ValidateConfidence rejects scores outside [0, 1]; used at ingest boundaries
// where an out-of-range value signals a malformed observation rather than
// drift to be clamped.
func ValidateConfidence(v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("confidence must be in [0, 1], got %v", v)
	}
	return nil
}
