package request

// SubmitResolutionRequest is the request body for resolving a duplicate
// candidate. CanonicalPositionID optionally overrides the detector's pick of
// which position to keep; it must be a member of the candidate's group.
type SubmitResolutionRequest struct {
	CandidateID         string `json:"candidateId"`
	Decision            string `json:"decision"` // confirmed_duplicate or confirmed_distinct
	CanonicalPositionID string `json:"canonicalPositionId,omitempty"`
}
