package repository

import (
	"database/sql"
	"fmt"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// PositionRepository provides data access methods for the position table:
// the normalized per-connection holdings produced by reconciliation cycles.
type PositionRepository struct {
	db *sql.DB
}

// NewPositionRepository creates a new PositionRepository with the provided database connection.
func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// ReplacePositions replaces the portfolio's normalized positions with the
// given cycle output, atomically. Position IDs are stable across cycles
// (connection ID + instrument key) so a replace preserves identity for rows
// that survived.
func (s *PositionRepository) ReplacePositions(portfolioID string, positions []model.Position) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin position transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec("DELETE FROM position WHERE portfolio_id = ?", portfolioID); err != nil {
		return fmt.Errorf("failed to clear position table: %w", err)
	}

	query := `
          INSERT INTO position (
              id, portfolio_id, connection_id, instrument_key, symbol, isin,
              exchange, broker, account_number, quantity, average_cost,
              currency, current_price, last_updated, source_sync_time
          )
          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
      `
	for _, p := range positions {
		_, err := tx.Exec(query,
			p.ID,
			portfolioID,
			p.SourceAccountID,
			p.InstrumentKey,
			p.Symbol,
			p.ISIN,
			p.Exchange,
			p.Broker,
			p.AccountNumber,
			p.Quantity.String(),
			p.AverageCost.String(),
			p.Currency,
			nullDecimalString(p.CurrentPrice),
			p.LastUpdated.UTC(),
			p.SourceSyncTime.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert into position table: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit position transaction: %w", err)
	}

	return nil
}

// GetPositionsOnPortfolioID retrieves the portfolio's normalized positions,
// ordered by instrument key then connection for stable listings.
func (s *PositionRepository) GetPositionsOnPortfolioID(portfolioID string) ([]model.Position, error) {
	query := `
          SELECT id, connection_id, instrument_key, symbol, isin, exchange,
                 broker, account_number, quantity, average_cost, currency,
                 current_price, last_updated, source_sync_time
          FROM position
          WHERE portfolio_id = ?
          ORDER BY instrument_key, connection_id
      `
	rows, err := s.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position table: %w", err)
	}
	defer rows.Close()

	positions := []model.Position{}

	for rows.Next() {
		var p model.Position
		var quantity, averageCost string
		var currentPrice sql.NullString

		err := rows.Scan(
			&p.ID,
			&p.SourceAccountID,
			&p.InstrumentKey,
			&p.Symbol,
			&p.ISIN,
			&p.Exchange,
			&p.Broker,
			&p.AccountNumber,
			&quantity,
			&averageCost,
			&p.Currency,
			&currentPrice,
			&p.LastUpdated,
			&p.SourceSyncTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position table results: %w", err)
		}

		if p.Quantity, err = parseDecimal(quantity); err != nil {
			return nil, err
		}
		if p.AverageCost, err = parseDecimal(averageCost); err != nil {
			return nil, err
		}
		if p.CurrentPrice, err = parseNullDecimal(currentPrice); err != nil {
			return nil, err
		}

		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position table: %w", err)
	}

	return positions, nil
}
