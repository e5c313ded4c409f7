package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// ResolutionRepository provides data access methods for the resolution table:
// the append-only record of user decisions on duplicate candidates.
type ResolutionRepository struct {
	db *sql.DB
}

// NewResolutionRepository creates a new ResolutionRepository with the provided database connection.
func NewResolutionRepository(db *sql.DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

// CreateResolution records a resolution decision. Decisions are never
// updated or deleted; a later decision on the same candidate supersedes an
// earlier one by decided_at ordering.
func (s *ResolutionRepository) CreateResolution(portfolioID string, decision model.ResolutionDecision) error {
	positionIDs, err := json.Marshal(decision.PositionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode resolution position ids: %w", err)
	}

	query := `
          INSERT INTO resolution (
              id, portfolio_id, candidate_id, instrument_key, position_ids,
              decision, canonical_position_id, decided_at
          )
          VALUES (?, ?, ?, ?, ?, ?, ?, ?)
      `
	_, err = s.db.Exec(query,
		decision.ID,
		portfolioID,
		decision.CandidateID,
		decision.InstrumentKey,
		string(positionIDs),
		decision.Decision,
		decision.CanonicalPositionID,
		decision.DecidedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into resolution table: %w", err)
	}

	return nil
}

// GetResolutionsOnPortfolioID retrieves all resolution decisions for a
// portfolio, oldest first so a fold over the slice leaves the latest decision
// per candidate in effect.
func (s *ResolutionRepository) GetResolutionsOnPortfolioID(portfolioID string) ([]model.ResolutionDecision, error) {
	query := `
          SELECT id, candidate_id, instrument_key, position_ids,
                 decision, canonical_position_id, decided_at
          FROM resolution
          WHERE portfolio_id = ?
          ORDER BY decided_at, id
      `
	rows, err := s.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolution table: %w", err)
	}
	defer rows.Close()

	decisions := []model.ResolutionDecision{}

	for rows.Next() {
		var d model.ResolutionDecision
		var positionIDs string

		err := rows.Scan(
			&d.ID,
			&d.CandidateID,
			&d.InstrumentKey,
			&positionIDs,
			&d.Decision,
			&d.CanonicalPositionID,
			&d.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution table results: %w", err)
		}

		if err := json.Unmarshal([]byte(positionIDs), &d.PositionIDs); err != nil {
			return nil, fmt.Errorf("failed to decode resolution position ids: %w", err)
		}

		decisions = append(decisions, d)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolution table: %w", err)
	}

	return decisions, nil
}
