package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// PortfolioBuilder provides a fluent interface for creating test portfolios.
//
// Example usage:
//
//	// Simple creation with defaults
//	portfolio := testutil.NewPortfolio().Build(t, db)
//
//	// Customized portfolio
//	portfolio := testutil.NewPortfolio().
//	    WithName("Custom Portfolio").
//	    WithBaseCurrency("USD").
//	    Build(t, db)
type PortfolioBuilder struct {
	ID           string
	Name         string
	Description  string
	BaseCurrency string
	IsArchived   bool
}

// NewPortfolio creates a PortfolioBuilder with sensible defaults.
func NewPortfolio() *PortfolioBuilder {
	return &PortfolioBuilder{
		ID:           MakeID(),
		Name:         MakePortfolioName("Test Portfolio"),
		Description:  "Test description",
		BaseCurrency: "EUR",
	}
}

// WithID sets a custom ID.
func (b *PortfolioBuilder) WithID(id string) *PortfolioBuilder {
	b.ID = id
	return b
}

// WithName sets a custom name.
func (b *PortfolioBuilder) WithName(name string) *PortfolioBuilder {
	b.Name = name
	return b
}

// WithBaseCurrency sets a custom base currency.
func (b *PortfolioBuilder) WithBaseCurrency(currency string) *PortfolioBuilder {
	b.BaseCurrency = currency
	return b
}

// Archived marks the portfolio as archived.
func (b *PortfolioBuilder) Archived() *PortfolioBuilder {
	b.IsArchived = true
	return b
}

// Build creates the portfolio in the database and returns it.
func (b *PortfolioBuilder) Build(t *testing.T, db *sql.DB) model.Portfolio {
	t.Helper()

	query := `
		INSERT INTO portfolio (id, name, description, base_currency, is_archived)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.Name, b.Description, b.BaseCurrency, b.IsArchived)
	if err != nil {
		t.Fatalf("Failed to create test portfolio: %v", err)
	}

	return model.Portfolio{
		ID:           b.ID,
		Name:         b.Name,
		Description:  b.Description,
		BaseCurrency: b.BaseCurrency,
		IsArchived:   b.IsArchived,
	}
}

// ConnectionBuilder provides a fluent interface for creating test broker
// connections.
//
// Example usage:
//
//	conn := testutil.NewConnection(portfolio.ID).
//	    WithBroker(model.BrokerSchwab).
//	    WithAccountNumber("U1234567").
//	    Build(t, db)
type ConnectionBuilder struct {
	ID            string
	PortfolioID   string
	Broker        model.Broker
	Status        model.ConnectionStatus
	AccountNumber string
}

// NewConnection creates a ConnectionBuilder with sensible defaults.
func NewConnection(portfolioID string) *ConnectionBuilder {
	return &ConnectionBuilder{
		ID:          MakeID(),
		PortfolioID: portfolioID,
		Broker:      model.BrokerManual,
		Status:      model.ConnectionConnected,
	}
}

// WithID sets a custom ID.
func (b *ConnectionBuilder) WithID(id string) *ConnectionBuilder {
	b.ID = id
	return b
}

// WithBroker sets the broker behind the connection.
func (b *ConnectionBuilder) WithBroker(broker model.Broker) *ConnectionBuilder {
	b.Broker = broker
	return b
}

// WithStatus sets the connection status.
func (b *ConnectionBuilder) WithStatus(status model.ConnectionStatus) *ConnectionBuilder {
	b.Status = status
	return b
}

// WithAccountNumber sets the external account number.
func (b *ConnectionBuilder) WithAccountNumber(number string) *ConnectionBuilder {
	b.AccountNumber = number
	return b
}

// Disconnected marks the connection as disabled.
func (b *ConnectionBuilder) Disconnected() *ConnectionBuilder {
	b.Status = model.ConnectionDisconnected
	return b
}

// Build creates the connection in the database and returns it.
func (b *ConnectionBuilder) Build(t *testing.T, db *sql.DB) model.BrokerConnection {
	t.Helper()

	now := time.Now().UTC()
	query := `
		INSERT INTO broker_connection (id, portfolio_id, broker, status, sync_frequency,
			last_error, account_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', '', ?, ?, ?)
	`

	_, err := db.Exec(query, b.ID, b.PortfolioID, b.Broker, b.Status, b.AccountNumber, now, now)
	if err != nil {
		t.Fatalf("Failed to create test connection: %v", err)
	}

	return model.BrokerConnection{
		ID:            b.ID,
		PortfolioID:   b.PortfolioID,
		Broker:        b.Broker,
		Status:        b.Status,
		AccountNumber: b.AccountNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CandidateBuilder provides a fluent interface for creating test duplicate
// candidates.
type CandidateBuilder struct {
	ID                  string
	PortfolioID         string
	InstrumentKey       string
	PositionIDs         []string
	CanonicalPositionID string
	Confidence          float64
	MatchReason         model.MatchReason
	ResolutionStatus    model.ResolutionStatus
}

// NewCandidate creates a CandidateBuilder with sensible defaults: a pending
// two-position account-number match.
func NewCandidate(portfolioID string, positionIDs ...string) *CandidateBuilder {
	return &CandidateBuilder{
		ID:               MakeID(),
		PortfolioID:      portfolioID,
		InstrumentKey:    MakeISIN("US"),
		PositionIDs:      positionIDs,
		Confidence:       1.0,
		MatchReason:      model.MatchAccountNumber,
		ResolutionStatus: model.ResolutionPending,
	}
}

// WithInstrumentKey sets a custom instrument key.
func (b *CandidateBuilder) WithInstrumentKey(key string) *CandidateBuilder {
	b.InstrumentKey = key
	return b
}

// WithCanonical sets the canonical position.
func (b *CandidateBuilder) WithCanonical(positionID string) *CandidateBuilder {
	b.CanonicalPositionID = positionID
	return b
}

// WithConfidence sets the confidence tier and matching reason together.
func (b *CandidateBuilder) WithConfidence(confidence float64, reason model.MatchReason) *CandidateBuilder {
	b.Confidence = confidence
	b.MatchReason = reason
	return b
}

// WithStatus sets the resolution status.
func (b *CandidateBuilder) WithStatus(status model.ResolutionStatus) *CandidateBuilder {
	b.ResolutionStatus = status
	return b
}

// Build creates the candidate in the database and returns it.
func (b *CandidateBuilder) Build(t *testing.T, db *sql.DB) model.DuplicateCandidate {
	t.Helper()

	now := time.Now().UTC()
	query := `
		INSERT INTO duplicate_candidate (id, portfolio_id, instrument_key, position_ids,
			canonical_position_id, confidence, match_reason, resolution_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		b.ID, b.PortfolioID, b.InstrumentKey, jsonStrings(t, b.PositionIDs),
		b.CanonicalPositionID, b.Confidence, b.MatchReason, b.ResolutionStatus, now,
	)
	if err != nil {
		t.Fatalf("Failed to create test candidate: %v", err)
	}

	return model.DuplicateCandidate{
		ID:                  b.ID,
		InstrumentKey:       b.InstrumentKey,
		PositionIDs:         b.PositionIDs,
		CanonicalPositionID: b.CanonicalPositionID,
		Confidence:          b.Confidence,
		MatchReason:         b.MatchReason,
		ResolutionStatus:    b.ResolutionStatus,
		CreatedAt:           now,
	}
}

// PositionRow inserts a normalized position row directly, for repository and
// service tests that need persisted positions without running a cycle.
func PositionRow(t *testing.T, db *sql.DB, portfolioID string, p model.Position) {
	t.Helper()

	query := `
		INSERT INTO position (id, portfolio_id, connection_id, instrument_key, symbol, isin,
			exchange, broker, account_number, quantity, average_cost, currency,
			current_price, last_updated, source_sync_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`

	_, err := db.Exec(query,
		p.ID, portfolioID, p.SourceAccountID, p.InstrumentKey, p.Symbol, p.ISIN,
		p.Exchange, p.Broker, p.AccountNumber, p.Quantity.String(), p.AverageCost.String(),
		p.Currency, p.LastUpdated.UTC(), p.SourceSyncTime.UTC(),
	)
	if err != nil {
		t.Fatalf("Failed to create test position: %v", err)
	}
}

// MakeDecimal parses a decimal literal, failing the test on bad input.
func MakeDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()

	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("Invalid decimal %q: %v", s, err)
	}
	return d
}
