package models

import (
	"time"

	"github.com/google/uuid"
)

// DetectedLine is one raw text line produced by a recognizer. No
// structure is guaranteed; lines may contain numbering, noise, or
// partial words.
type DetectedLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// MatchResult records the outcome of fuzzy-matching one detected line
// against the roster. MatchedRollNumber is empty when the best score
// fell below the confidence threshold.
type MatchResult struct {
	CandidateString   string  `json:"candidate_string"`
	MatchedRollNumber string  `json:"matched_roll_number,omitempty"`
	Score             float64 `json:"score"`
}

// RecognitionState is the coordinator's position in one attendance
// attempt.
type RecognitionState string

const (
	StateIdle               RecognitionState = "idle"
	StateProcessingLocal    RecognitionState = "processing_local"
	StateEscalationOffered  RecognitionState = "escalation_offered"
	StateProcessingFallback RecognitionState = "processing_fallback"
	StateDecided            RecognitionState = "decided"
)

// RecognitionOutcome is the artifact a recognition attempt yields. In
// StateDecided the presence decision is complete and ready for
// reconciliation; in StateEscalationOffered the caller may accept or
// decline the fallback pass before the attempt settles.
type RecognitionOutcome struct {
	AttemptID uuid.UUID        `json:"attempt_id"`
	State     RecognitionState `json:"state"`
	Date      time.Time        `json:"date"`
	Presence  PresenceDecision `json:"presence"`

	// Matches is the per-line audit trail of the local pass: each
	// detected line with its best roster score, in detected order.
	Matches []MatchResult `json:"matches,omitempty"`

	// DetectedCount is how many raw lines the local pass produced.
	DetectedCount int `json:"detected_count"`
	PresentCount  int `json:"present_count"`

	// CountMismatch is advisory: true when present-vs-detected diverges
	// beyond tolerance. It never blocks persistence.
	CountMismatch bool `json:"count_mismatch"`

	// FallbackError carries a user-visible fallback failure attached to
	// the decided state. Local-pass marks are never reverted by it.
	FallbackError string `json:"fallback_error,omitempty"`
}
