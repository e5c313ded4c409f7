package model

import "time"

// MatchReason tags why two or more positions were flagged as a likely
// duplicate of the same real-world holding.
type MatchReason string

const (
	// MatchAccountNumber means both positions carry the same broker-reported
	// external account number. Confidence 1.0.
	MatchAccountNumber MatchReason = "account_number_match"

	// MatchValueTolerance means quantities agree within 1% and market values
	// within 2%, the signature of one holding surfacing via two data paths.
	// Confidence 0.6.
	MatchValueTolerance MatchReason = "value_within_tolerance"

	// MatchInstrumentOnly means only the instrument key matches. Weak signal,
	// flagged for manual review, never auto-merged. Confidence 0.3.
	MatchInstrumentOnly MatchReason = "instrument_only"
)

// ResolutionStatus is the review state of a duplicate candidate.
type ResolutionStatus string

const (
	ResolutionPending            ResolutionStatus = "pending"
	ResolutionConfirmedDuplicate ResolutionStatus = "confirmed_duplicate"
	ResolutionConfirmedDistinct  ResolutionStatus = "confirmed_distinct"
)

// Valid reports whether s is a known resolution status.
func (s ResolutionStatus) Valid() bool {
	switch s {
	case ResolutionPending, ResolutionConfirmedDuplicate, ResolutionConfirmedDistinct:
		return true
	}
	return false
}

// DuplicateCandidate is a detected group of positions (size >= 2) suspected to
// represent the same real-world holding. Created by the duplicate detector each
// reconciliation run; resolved by user action, or expired when the underlying
// positions disappear.
type DuplicateCandidate struct {
	ID                  string           `json:"id"`
	InstrumentKey       string           `json:"instrumentKey"`
	PositionIDs         []string         `json:"positionIds"`
	CanonicalPositionID string           `json:"canonicalPositionId,omitempty"` // kept position when confidence >= 0.6
	Confidence          float64          `json:"confidence"`                    // match strength in [0,1]
	MatchReason         MatchReason      `json:"matchReason"`
	ResolutionStatus    ResolutionStatus `json:"resolutionStatus"`
	CreatedAt           time.Time        `json:"createdAt"`
}

// ResolutionDecision records a user's verdict on a duplicate candidate.
// Decisions recorded after a cycle's data was fetched apply from the next
// cycle onward, never retroactively.
type ResolutionDecision struct {
	ID                  string           `json:"id"`
	CandidateID         string           `json:"candidateId"`
	InstrumentKey       string           `json:"instrumentKey"`
	PositionIDs         []string         `json:"positionIds"`
	Decision            ResolutionStatus `json:"decision"`
	CanonicalPositionID string           `json:"canonicalPositionId,omitempty"` // override of the detector's pick
	DecidedAt           time.Time        `json:"decidedAt"`
}
