package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// ConnectionRepository provides data access methods for the broker_connection
// table, including the sealed access tokens stored alongside each connection.
type ConnectionRepository struct {
	db *sql.DB
}

// NewConnectionRepository creates a new ConnectionRepository with the provided database connection.
func NewConnectionRepository(db *sql.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `
	id, portfolio_id, broker, status, sync_frequency,
	last_sync_time, last_error, account_number, created_at, updated_at
`

func scanConnection(scan func(...any) error) (model.BrokerConnection, error) {
	var c model.BrokerConnection
	var lastSync sql.NullTime

	err := scan(
		&c.ID,
		&c.PortfolioID,
		&c.Broker,
		&c.Status,
		&c.SyncFrequency,
		&lastSync,
		&c.LastError,
		&c.AccountNumber,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return model.BrokerConnection{}, err
	}
	if lastSync.Valid {
		t := lastSync.Time.UTC()
		c.LastSyncTime = &t
	}
	return c, nil
}

// GetConnectionsOnPortfolioID retrieves all connections belonging to a portfolio.
// Returns an empty slice if the portfolio has no connections.
func (s *ConnectionRepository) GetConnectionsOnPortfolioID(portfolioID string) ([]model.BrokerConnection, error) {
	query := `
          SELECT ` + connectionColumns + `
          FROM broker_connection
          WHERE portfolio_id = ?
          ORDER BY created_at
      `
	rows, err := s.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query broker_connection table: %w", err)
	}
	defer rows.Close()

	connections := []model.BrokerConnection{}

	for rows.Next() {
		c, err := scanConnection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broker_connection table results: %w", err)
		}
		connections = append(connections, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating broker_connection table: %w", err)
	}

	return connections, nil
}

// GetSyncableConnections retrieves the portfolio's connections eligible for a
// reconciliation cycle: everything except disconnected ones. Errored
// connections stay eligible so a transient broker outage heals on the next
// sync without user intervention.
func (s *ConnectionRepository) GetSyncableConnections(portfolioID string) ([]model.BrokerConnection, error) {
	query := `
          SELECT ` + connectionColumns + `
          FROM broker_connection
          WHERE portfolio_id = ? AND status != ?
          ORDER BY created_at
      `
	rows, err := s.db.Query(query, portfolioID, model.ConnectionDisconnected)
	if err != nil {
		return nil, fmt.Errorf("failed to query broker_connection table: %w", err)
	}
	defer rows.Close()

	connections := []model.BrokerConnection{}

	for rows.Next() {
		c, err := scanConnection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broker_connection table results: %w", err)
		}
		connections = append(connections, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating broker_connection table: %w", err)
	}

	return connections, nil
}

// GetConnectionOnID retrieves a single connection by ID.
func (s *ConnectionRepository) GetConnectionOnID(connectionID string) (model.BrokerConnection, error) {
	query := `
          SELECT ` + connectionColumns + `
          FROM broker_connection
          WHERE id = ?
      `
	c, err := scanConnection(s.db.QueryRow(query, connectionID).Scan)
	if err == sql.ErrNoRows {
		return model.BrokerConnection{}, apperrors.ErrConnectionNotFound
	}
	if err != nil {
		return model.BrokerConnection{}, fmt.Errorf("failed to query broker_connection table: %w", err)
	}

	return c, nil
}

// CreateConnection inserts a new broker connection.
func (s *ConnectionRepository) CreateConnection(c model.BrokerConnection) error {
	query := `
          INSERT INTO broker_connection (` + connectionColumns + `)
          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
      `
	var lastSync sql.NullTime
	if c.LastSyncTime != nil {
		lastSync = sql.NullTime{Time: c.LastSyncTime.UTC(), Valid: true}
	}

	_, err := s.db.Exec(query,
		c.ID,
		c.PortfolioID,
		c.Broker,
		c.Status,
		c.SyncFrequency,
		lastSync,
		c.LastError,
		c.AccountNumber,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert into broker_connection table: %w", err)
	}

	return nil
}

// UpdateConnection updates the mutable settings of a connection: status,
// sync frequency and account number. Returns ErrConnectionNotFound if no row
// was updated.
func (s *ConnectionRepository) UpdateConnection(c model.BrokerConnection) error {
	query := `
          UPDATE broker_connection
          SET status = ?, sync_frequency = ?, account_number = ?, updated_at = ?
          WHERE id = ?
      `
	result, err := s.db.Exec(query, c.Status, c.SyncFrequency, c.AccountNumber, time.Now().UTC(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update broker_connection table: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read broker_connection update result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrConnectionNotFound
	}

	return nil
}

// UpdateConnectionSync records a connection's post-cycle sync outcome.
func (s *ConnectionRepository) UpdateConnectionSync(connectionID string, status model.ConnectionStatus, syncTime time.Time, lastError string) error {
	query := `
          UPDATE broker_connection
          SET status = ?, last_sync_time = ?, last_error = ?, updated_at = ?
          WHERE id = ?
      `
	result, err := s.db.Exec(query, status, syncTime.UTC(), lastError, time.Now().UTC(), connectionID)
	if err != nil {
		return fmt.Errorf("failed to update broker_connection table: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read broker_connection update result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrConnectionNotFound
	}

	return nil
}

// SetSealedToken stores the sealed access token for a connection.
func (s *ConnectionRepository) SetSealedToken(connectionID, sealed string) error {
	query := `
          UPDATE broker_connection
          SET sealed_token = ?, updated_at = ?
          WHERE id = ?
      `
	result, err := s.db.Exec(query, sealed, time.Now().UTC(), connectionID)
	if err != nil {
		return fmt.Errorf("failed to update broker_connection table: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read broker_connection update result: %w", err)
	}
	if affected == 0 {
		return apperrors.ErrConnectionNotFound
	}

	return nil
}

// GetSealedToken retrieves the sealed access token for a connection.
// Returns ErrTokenNotFound when the connection has no token stored.
func (s *ConnectionRepository) GetSealedToken(connectionID string) (string, error) {
	query := `
          SELECT sealed_token
          FROM broker_connection
          WHERE id = ?
      `
	var sealed string

	err := s.db.QueryRow(query, connectionID).Scan(&sealed)
	if err == sql.ErrNoRows {
		return "", apperrors.ErrConnectionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query broker_connection table: %w", err)
	}
	if sealed == "" {
		return "", apperrors.ErrTokenNotFound
	}

	return sealed, nil
}
