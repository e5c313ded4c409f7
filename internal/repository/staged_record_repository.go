package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// StagedRecordRepository provides data access methods for the staged_record
// and staged_transaction tables backing manual and CSV connections.
type StagedRecordRepository struct {
	db *sql.DB
}

// NewStagedRecordRepository creates a new StagedRecordRepository with the provided database connection.
func NewStagedRecordRepository(db *sql.DB) *StagedRecordRepository {
	return &StagedRecordRepository{db: db}
}

// StagedRecords retrieves the raw source records staged for a connection.
// Transaction-kind records come back with their transactions attached, in
// the order they were staged; normalization re-sorts by date before replay.
func (s *StagedRecordRepository) StagedRecords(connectionID string) ([]model.RawSourceRecord, error) {
	query := `
          SELECT id, kind, symbol, isin, exchange, currency, quantity, average_cost, price
          FROM staged_record
          WHERE connection_id = ?
          ORDER BY id
      `
	rows, err := s.db.Query(query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged_record table: %w", err)
	}
	defer rows.Close()

	records := []model.RawSourceRecord{}
	recordIDs := []string{}

	for rows.Next() {
		var r model.RawSourceRecord
		var id, quantity, averageCost string
		var price sql.NullString

		err := rows.Scan(
			&id,
			&r.Kind,
			&r.Symbol,
			&r.ISIN,
			&r.Exchange,
			&r.Currency,
			&quantity,
			&averageCost,
			&price,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staged_record table results: %w", err)
		}

		if r.Quantity, err = parseDecimal(quantity); err != nil {
			return nil, err
		}
		if r.AverageCost, err = parseDecimal(averageCost); err != nil {
			return nil, err
		}
		if r.Price, err = parseNullDecimal(price); err != nil {
			return nil, err
		}

		records = append(records, r)
		recordIDs = append(recordIDs, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged_record table: %w", err)
	}

	for i, recordID := range recordIDs {
		if records[i].Kind != model.RecordTransactions {
			continue
		}
		if records[i].Transactions, err = s.getTransactions(recordID); err != nil {
			return nil, err
		}
	}

	return records, nil
}

func (s *StagedRecordRepository) getTransactions(recordID string) ([]model.SourceTransaction, error) {
	query := `
          SELECT type, date, quantity, price, fees
          FROM staged_transaction
          WHERE record_id = ?
          ORDER BY date, id
      `
	rows, err := s.db.Query(query, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query staged_transaction table: %w", err)
	}
	defer rows.Close()

	transactions := []model.SourceTransaction{}

	for rows.Next() {
		var t model.SourceTransaction
		var quantity, price, fees string

		if err := rows.Scan(&t.Type, &t.Date, &quantity, &price, &fees); err != nil {
			return nil, fmt.Errorf("failed to scan staged_transaction table results: %w", err)
		}

		if t.Quantity, err = parseDecimal(quantity); err != nil {
			return nil, err
		}
		if t.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		if t.Fees, err = parseDecimal(fees); err != nil {
			return nil, err
		}

		transactions = append(transactions, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged_transaction table: %w", err)
	}

	return transactions, nil
}

// ReplaceStagedRecords atomically replaces a connection's staged records,
// used by CSV imports and manual position edits. Each import supersedes the
// previous one; staged data is source input, not history.
func (s *StagedRecordRepository) ReplaceStagedRecords(connectionID string, records []model.RawSourceRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin staged_record transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(`
          DELETE FROM staged_transaction
          WHERE record_id IN (SELECT id FROM staged_record WHERE connection_id = ?)
      `, connectionID)
	if err != nil {
		return fmt.Errorf("failed to clear staged_transaction table: %w", err)
	}
	if _, err = tx.Exec("DELETE FROM staged_record WHERE connection_id = ?", connectionID); err != nil {
		return fmt.Errorf("failed to clear staged_record table: %w", err)
	}

	for _, r := range records {
		recordID := uuid.New().String()

		_, err = tx.Exec(`
              INSERT INTO staged_record (
                  id, connection_id, kind, symbol, isin, exchange,
                  currency, quantity, average_cost, price
              )
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
          `,
			recordID,
			connectionID,
			r.Kind,
			r.Symbol,
			r.ISIN,
			r.Exchange,
			r.Currency,
			r.Quantity.String(),
			r.AverageCost.String(),
			nullDecimalString(r.Price),
		)
		if err != nil {
			return fmt.Errorf("failed to insert into staged_record table: %w", err)
		}

		for _, t := range r.Transactions {
			_, err = tx.Exec(`
                  INSERT INTO staged_transaction (id, record_id, type, date, quantity, price, fees)
                  VALUES (?, ?, ?, ?, ?, ?, ?)
              `,
				uuid.New().String(),
				recordID,
				t.Type,
				t.Date.UTC(),
				t.Quantity.String(),
				t.Price.String(),
				t.Fees.String(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert into staged_transaction table: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staged_record transaction: %w", err)
	}

	return nil
}
