package testutil

import (
	"database/sql"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/google/uuid"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/broker"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/repository"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

func NewTestPortfolioService(t *testing.T, db *sql.DB) *service.PortfolioService {
	t.Helper()

	portfolioRepo := repository.NewPortfolioRepository(db)

	return service.NewPortfolioService(portfolioRepo, "EUR")
}

func NewTestConnectionService(t *testing.T, db *sql.DB) *service.ConnectionService {
	t.Helper()

	portfolioRepo := repository.NewPortfolioRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)
	stagedRepo := repository.NewStagedRecordRepository(db)

	return service.NewConnectionService(portfolioRepo, connectionRepo, stagedRepo, NewTestVault(t))
}

func NewTestResolutionService(t *testing.T, db *sql.DB) *service.ResolutionService {
	t.Helper()

	portfolioRepo := repository.NewPortfolioRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	resolutionRepo := repository.NewResolutionRepository(db)

	return service.NewResolutionService(portfolioRepo, snapshotRepo, resolutionRepo)
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()

	return service.NewSystemService(db)
}

// NewTestVault creates a token vault with a freshly generated key.
func NewTestVault(t *testing.T) *broker.TokenVault {
	t.Helper()

	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("Failed to generate vault key: %v", err)
	}
	vault, err := broker.NewTokenVault(key.Encode())
	if err != nil {
		t.Fatalf("Failed to create test vault: %v", err)
	}
	return vault
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}

// MakeISIN generates a realistic ISIN code for testing.
//
// Example usage:
//
//	isin := testutil.MakeISIN("US")
//	// Returns: "US1A2B3C4D5E"
func MakeISIN(prefix string) string {
	if prefix == "" {
		prefix = "US"
	}
	return prefix + randomAlphanumeric(10)
}

// MakeSymbol generates a stock ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("AAPL")
//	// Returns: "AAPL1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// MakePortfolioName generates a unique portfolio name for testing.
//
// Example usage:
//
//	name := testutil.MakePortfolioName("MyPortfolio")
//	// Returns: "MyPortfolio ABC123"
func MakePortfolioName(base string) string {
	if base == "" {
		base = "Portfolio"
	}
	return base + " " + randomAlphanumeric(6)
}

// jsonStrings encodes a string slice as a JSON array for TEXT columns.
func jsonStrings(t *testing.T, values []string) string {
	t.Helper()

	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		t.Fatalf("Failed to encode strings: %v", err)
	}
	return string(data)
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}

// Common test constants

var (
	// CommonCurrencies contains frequently used currency codes
	CommonCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CAD", "CHF", "AUD"}

	// CommonExchanges contains frequently used stock exchanges
	CommonExchanges = []string{"NASDAQ", "NYSE", "LSE", "TSE", "XETRA", "EURONEXT"}
)

// RandomCurrency returns a random currency from CommonCurrencies.
func RandomCurrency() string {
	//nolint:gosec // G404: Using math/rand for test data generation is acceptable
	return CommonCurrencies[rand.Intn(len(CommonCurrencies))]
}

// RandomExchange returns a random exchange from CommonExchanges.
func RandomExchange() string {
	//nolint:gosec // G404: Using math/rand for test data generation is acceptable
	return CommonExchanges[rand.Intn(len(CommonExchanges))]
}
