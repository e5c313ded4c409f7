package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// SnapshotRepository provides data access methods for committed portfolio
// snapshots and their duplicate review queue. A snapshot spans four tables
// (snapshot, snapshot_holding, snapshot_contributor, snapshot_issue) written
// in one transaction together with the regenerated duplicate_candidate rows.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository with the provided database connection.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// SaveSnapshot persists a committed snapshot and replaces the portfolio's
// duplicate queue with the snapshot's regenerated candidates. Earlier
// snapshots of the portfolio are kept as history.
func (s *SnapshotRepository) SaveSnapshot(snapshot model.PortfolioSnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(`
          INSERT INTO snapshot (
              id, portfolio_id, as_of, base_currency,
              total_value, total_cost, total_unrealized_pnl, has_degraded_conversions
          )
          VALUES (?, ?, ?, ?, ?, ?, ?, ?)
      `,
		snapshot.ID,
		snapshot.PortfolioID,
		snapshot.AsOf.UTC(),
		snapshot.BaseCurrency,
		snapshot.TotalValue.String(),
		snapshot.TotalCost.String(),
		snapshot.TotalUnrealizedPnL.String(),
		snapshot.HasDegradedConversions,
	)
	if err != nil {
		return fmt.Errorf("failed to insert into snapshot table: %w", err)
	}

	for _, h := range snapshot.Holdings {
		_, err = tx.Exec(`
              INSERT INTO snapshot_holding (
                  snapshot_id, instrument_key, total_quantity, total_cost,
                  market_value, unrealized_pnl, unrealized_pnl_percent,
                  price_stale, degraded_conversion
              )
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
          `,
			snapshot.ID,
			h.InstrumentKey,
			h.TotalQuantity.String(),
			h.TotalCost.String(),
			h.MarketValue.String(),
			h.UnrealizedPnL.String(),
			h.UnrealizedPnLPercent.String(),
			h.PriceStale,
			h.DegradedConversion,
		)
		if err != nil {
			return fmt.Errorf("failed to insert into snapshot_holding table: %w", err)
		}

		for _, c := range h.ContributingPositions {
			_, err = tx.Exec(`
                  INSERT INTO snapshot_contributor (
                      snapshot_id, instrument_key, position_id,
                      source_account_id, broker, quantity, excluded_duplicate
                  )
                  VALUES (?, ?, ?, ?, ?, ?, ?)
              `,
				snapshot.ID,
				h.InstrumentKey,
				c.PositionID,
				c.SourceAccountID,
				c.Broker,
				c.Quantity.String(),
				c.ExcludedDuplicate,
			)
			if err != nil {
				return fmt.Errorf("failed to insert into snapshot_contributor table: %w", err)
			}
		}
	}

	for _, issue := range snapshot.Issues {
		_, err = tx.Exec(`
              INSERT INTO snapshot_issue (snapshot_id, kind, subject, detail)
              VALUES (?, ?, ?, ?)
          `,
			snapshot.ID, issue.Kind, issue.Subject, issue.Detail,
		)
		if err != nil {
			return fmt.Errorf("failed to insert into snapshot_issue table: %w", err)
		}
	}

	if err := replaceCandidates(tx, snapshot.PortfolioID, snapshot.Duplicates); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	return nil
}

// replaceCandidates swaps the portfolio's duplicate queue for the given set.
// Candidates regenerate every cycle; resolved statuses were already folded in
// by the cycle from the resolution table.
func replaceCandidates(tx *sql.Tx, portfolioID string, candidates []model.DuplicateCandidate) error {
	if _, err := tx.Exec("DELETE FROM duplicate_candidate WHERE portfolio_id = ?", portfolioID); err != nil {
		return fmt.Errorf("failed to clear duplicate_candidate table: %w", err)
	}

	query := `
          INSERT INTO duplicate_candidate (
              id, portfolio_id, instrument_key, position_ids,
              canonical_position_id, confidence, match_reason,
              resolution_status, created_at
          )
          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
      `
	for _, c := range candidates {
		positionIDs, err := json.Marshal(c.PositionIDs)
		if err != nil {
			return fmt.Errorf("failed to encode candidate position ids: %w", err)
		}

		_, err = tx.Exec(query,
			c.ID,
			portfolioID,
			c.InstrumentKey,
			string(positionIDs),
			c.CanonicalPositionID,
			c.Confidence,
			c.MatchReason,
			c.ResolutionStatus,
			c.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert into duplicate_candidate table: %w", err)
		}
	}

	return nil
}

// GetLatestSnapshot retrieves the portfolio's most recent snapshot with its
// holdings, contributors, issues and the current duplicate queue reassembled.
// Returns ErrSnapshotNotFound when the portfolio has never committed a cycle.
func (s *SnapshotRepository) GetLatestSnapshot(portfolioID string) (model.PortfolioSnapshot, error) {
	var snapshot model.PortfolioSnapshot
	var totalValue, totalCost, totalPnL string

	err := s.db.QueryRow(`
          SELECT id, portfolio_id, as_of, base_currency,
                 total_value, total_cost, total_unrealized_pnl, has_degraded_conversions
          FROM snapshot
          WHERE portfolio_id = ?
          ORDER BY as_of DESC, id DESC
          LIMIT 1
      `, portfolioID).Scan(
		&snapshot.ID,
		&snapshot.PortfolioID,
		&snapshot.AsOf,
		&snapshot.BaseCurrency,
		&totalValue,
		&totalCost,
		&totalPnL,
		&snapshot.HasDegradedConversions,
	)
	if err == sql.ErrNoRows {
		return model.PortfolioSnapshot{}, apperrors.ErrSnapshotNotFound
	}
	if err != nil {
		return model.PortfolioSnapshot{}, fmt.Errorf("failed to query snapshot table: %w", err)
	}

	if snapshot.TotalValue, err = parseDecimal(totalValue); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	if snapshot.TotalCost, err = parseDecimal(totalCost); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	if snapshot.TotalUnrealizedPnL, err = parseDecimal(totalPnL); err != nil {
		return model.PortfolioSnapshot{}, err
	}

	if snapshot.Holdings, err = s.getHoldings(snapshot.ID); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	if snapshot.Issues, err = s.getIssues(snapshot.ID); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	if snapshot.Duplicates, err = s.GetCandidatesOnPortfolioID(portfolioID); err != nil {
		return model.PortfolioSnapshot{}, err
	}

	return snapshot, nil
}

func (s *SnapshotRepository) getHoldings(snapshotID string) ([]model.AggregatedHolding, error) {
	rows, err := s.db.Query(`
          SELECT instrument_key, total_quantity, total_cost, market_value,
                 unrealized_pnl, unrealized_pnl_percent, price_stale, degraded_conversion
          FROM snapshot_holding
          WHERE snapshot_id = ?
          ORDER BY instrument_key
      `, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot_holding table: %w", err)
	}
	defer rows.Close()

	holdings := []model.AggregatedHolding{}

	for rows.Next() {
		var h model.AggregatedHolding
		var totalQuantity, totalCost, marketValue, pnl, pnlPercent string

		err := rows.Scan(
			&h.InstrumentKey,
			&totalQuantity,
			&totalCost,
			&marketValue,
			&pnl,
			&pnlPercent,
			&h.PriceStale,
			&h.DegradedConversion,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot_holding table results: %w", err)
		}

		if h.TotalQuantity, err = parseDecimal(totalQuantity); err != nil {
			return nil, err
		}
		if h.TotalCost, err = parseDecimal(totalCost); err != nil {
			return nil, err
		}
		if h.MarketValue, err = parseDecimal(marketValue); err != nil {
			return nil, err
		}
		if h.UnrealizedPnL, err = parseDecimal(pnl); err != nil {
			return nil, err
		}
		if h.UnrealizedPnLPercent, err = parseDecimal(pnlPercent); err != nil {
			return nil, err
		}

		holdings = append(holdings, h)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot_holding table: %w", err)
	}

	for i := range holdings {
		holdings[i].ContributingPositions, err = s.getContributors(snapshotID, holdings[i].InstrumentKey)
		if err != nil {
			return nil, err
		}
	}

	return holdings, nil
}

func (s *SnapshotRepository) getContributors(snapshotID, instrumentKey string) ([]model.ContributingPosition, error) {
	rows, err := s.db.Query(`
          SELECT position_id, source_account_id, broker, quantity, excluded_duplicate
          FROM snapshot_contributor
          WHERE snapshot_id = ? AND instrument_key = ?
          ORDER BY position_id
      `, snapshotID, instrumentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot_contributor table: %w", err)
	}
	defer rows.Close()

	contributors := []model.ContributingPosition{}

	for rows.Next() {
		var c model.ContributingPosition
		var quantity string

		err := rows.Scan(&c.PositionID, &c.SourceAccountID, &c.Broker, &quantity, &c.ExcludedDuplicate)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot_contributor table results: %w", err)
		}
		if c.Quantity, err = parseDecimal(quantity); err != nil {
			return nil, err
		}

		contributors = append(contributors, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot_contributor table: %w", err)
	}

	return contributors, nil
}

func (s *SnapshotRepository) getIssues(snapshotID string) ([]model.Issue, error) {
	rows, err := s.db.Query(`
          SELECT kind, subject, detail
          FROM snapshot_issue
          WHERE snapshot_id = ?
          ORDER BY id
      `, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot_issue table: %w", err)
	}
	defer rows.Close()

	issues := []model.Issue{}

	for rows.Next() {
		var issue model.Issue

		if err := rows.Scan(&issue.Kind, &issue.Subject, &issue.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot_issue table results: %w", err)
		}
		issues = append(issues, issue)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot_issue table: %w", err)
	}

	return issues, nil
}

// GetCandidatesOnPortfolioID retrieves the portfolio's current duplicate
// queue, ordered by confidence descending then instrument key.
func (s *SnapshotRepository) GetCandidatesOnPortfolioID(portfolioID string) ([]model.DuplicateCandidate, error) {
	rows, err := s.db.Query(`
          SELECT id, instrument_key, position_ids, canonical_position_id,
                 confidence, match_reason, resolution_status, created_at
          FROM duplicate_candidate
          WHERE portfolio_id = ?
          ORDER BY confidence DESC, instrument_key
      `, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate_candidate table: %w", err)
	}
	defer rows.Close()

	candidates := []model.DuplicateCandidate{}

	for rows.Next() {
		c, err := scanCandidate(rows.Scan)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate_candidate table: %w", err)
	}

	return candidates, nil
}

// GetCandidateOnID retrieves a single duplicate candidate by ID.
func (s *SnapshotRepository) GetCandidateOnID(candidateID string) (model.DuplicateCandidate, error) {
	c, err := scanCandidate(s.db.QueryRow(`
          SELECT id, instrument_key, position_ids, canonical_position_id,
                 confidence, match_reason, resolution_status, created_at
          FROM duplicate_candidate
          WHERE id = ?
      `, candidateID).Scan)
	if err == sql.ErrNoRows {
		return model.DuplicateCandidate{}, apperrors.ErrCandidateNotFound
	}
	if err != nil {
		return model.DuplicateCandidate{}, err
	}

	return c, nil
}

// UpdateCandidateStatus marks a candidate's resolution status in the queue so
// the review UI reflects a decision before the next cycle regenerates it.
func (s *SnapshotRepository) UpdateCandidateStatus(candidateID string, status model.ResolutionStatus) error {
	result, err := s.db.Exec(`
          UPDATE duplicate_candidate
          SET resolution_status = ?
          WHERE id = ?
      `, status, candidateID)
	if err != nil {
		return fmt.Errorf("failed to update duplicate_candidate table: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read duplicate_candidate update result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrCandidateNotFound
	}

	return nil
}

func scanCandidate(scan func(...any) error) (model.DuplicateCandidate, error) {
	var c model.DuplicateCandidate
	var positionIDs string

	err := scan(
		&c.ID,
		&c.InstrumentKey,
		&positionIDs,
		&c.CanonicalPositionID,
		&c.Confidence,
		&c.MatchReason,
		&c.ResolutionStatus,
		&c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return model.DuplicateCandidate{}, err
	}
	if err != nil {
		return model.DuplicateCandidate{}, fmt.Errorf("failed to scan duplicate_candidate table results: %w", err)
	}

	if err := json.Unmarshal([]byte(positionIDs), &c.PositionIDs); err != nil {
		return model.DuplicateCandidate{}, fmt.Errorf("failed to decode candidate position ids: %w", err)
	}

	return c, nil
}
