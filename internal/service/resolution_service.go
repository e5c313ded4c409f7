package service

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/request"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/repository"
)

// ResolutionService handles the duplicate review workflow: listing the
// current candidate queue and recording user verdicts. Verdicts are recorded
// immediately but only take effect in aggregation from the next cycle.
type ResolutionService struct {
	portfolioRepo  *repository.PortfolioRepository
	snapshotRepo   *repository.SnapshotRepository
	resolutionRepo *repository.ResolutionRepository
}

// NewResolutionService creates a new ResolutionService with the provided repository dependencies.
func NewResolutionService(
	portfolioRepo *repository.PortfolioRepository,
	snapshotRepo *repository.SnapshotRepository,
	resolutionRepo *repository.ResolutionRepository,
) *ResolutionService {
	return &ResolutionService{
		portfolioRepo:  portfolioRepo,
		snapshotRepo:   snapshotRepo,
		resolutionRepo: resolutionRepo,
	}
}

// GetCandidates retrieves the portfolio's current duplicate queue, ordered by
// confidence descending.
func (s *ResolutionService) GetCandidates(portfolioID string) ([]model.DuplicateCandidate, error) {
	if _, err := s.portfolioRepo.GetPortfolioOnID(portfolioID); err != nil {
		return nil, err
	}
	return s.snapshotRepo.GetCandidatesOnPortfolioID(portfolioID)
}

// SubmitResolution records a verdict on a pending duplicate candidate.
//
// The decision must be confirmed_duplicate or confirmed_distinct; pending is
// not a verdict. A confirmed_duplicate needs a position to keep: the
// detector's canonical pick, or one named in the request. Low-confidence
// candidates carry no pick, so confirming them requires an explicit choice.
// A canonical override must name a position inside the candidate's group.
// An already-resolved candidate is rejected with ErrCandidateResolved.
//
// Returns:
//   - model.ResolutionDecision: The recorded decision
//   - error: Validation or persistence failure
func (s *ResolutionService) SubmitResolution(portfolioID string, req request.SubmitResolutionRequest) (model.ResolutionDecision, error) {
	if _, err := s.portfolioRepo.GetPortfolioOnID(portfolioID); err != nil {
		return model.ResolutionDecision{}, err
	}

	decision := model.ResolutionStatus(req.Decision)
	if decision != model.ResolutionConfirmedDuplicate && decision != model.ResolutionConfirmedDistinct {
		return model.ResolutionDecision{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidResolution, req.Decision)
	}

	candidate, err := s.snapshotRepo.GetCandidateOnID(req.CandidateID)
	if err != nil {
		return model.ResolutionDecision{}, err
	}
	if candidate.ResolutionStatus != model.ResolutionPending {
		return model.ResolutionDecision{}, fmt.Errorf("%w: %s is %s", apperrors.ErrCandidateResolved, candidate.ID, candidate.ResolutionStatus)
	}

	canonical := ""
	if decision == model.ResolutionConfirmedDuplicate {
		canonical = candidate.CanonicalPositionID
		if req.CanonicalPositionID != "" {
			if !slices.Contains(candidate.PositionIDs, req.CanonicalPositionID) {
				return model.ResolutionDecision{}, fmt.Errorf("%w: %s", apperrors.ErrCanonicalNotInGroup, req.CanonicalPositionID)
			}
			canonical = req.CanonicalPositionID
		}
		if canonical == "" {
			return model.ResolutionDecision{}, fmt.Errorf("%w: candidate %s has no detector pick", apperrors.ErrCanonicalRequired, candidate.ID)
		}
	}

	recorded := model.ResolutionDecision{
		ID:                  uuid.New().String(),
		CandidateID:         candidate.ID,
		InstrumentKey:       candidate.InstrumentKey,
		PositionIDs:         candidate.PositionIDs,
		Decision:            decision,
		CanonicalPositionID: canonical,
		DecidedAt:           time.Now().UTC(),
	}

	if err := s.resolutionRepo.CreateResolution(portfolioID, recorded); err != nil {
		return model.ResolutionDecision{}, err
	}

	// Reflect the verdict in the queue right away so the review UI does not
	// show the candidate as pending until the next cycle regenerates it.
	if err := s.snapshotRepo.UpdateCandidateStatus(candidate.ID, decision); err != nil {
		return model.ResolutionDecision{}, err
	}

	return recorded, nil
}
