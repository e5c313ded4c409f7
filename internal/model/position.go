package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a normalized holding reported by one source account.
// Quantity is never negative; a position with zero quantity is considered
// closed and is excluded from aggregation.
type Position struct {
	ID              string              `json:"id"`
	InstrumentKey   string              `json:"instrumentKey"`   // ISIN, or SYMBOL@EXCHANGE
	Symbol          string              `json:"symbol"`
	ISIN            string              `json:"isin,omitempty"`
	Exchange        string              `json:"exchange,omitempty"`
	SourceAccountID string              `json:"sourceAccountId"` // owning broker connection ID
	Broker          Broker              `json:"broker"`
	AccountNumber   string              `json:"accountNumber,omitempty"` // external account number, if the broker exposes one
	Quantity        decimal.Decimal     `json:"quantity"`
	AverageCost     decimal.Decimal     `json:"averageCost"` // per unit, in the account's currency
	Currency        string              `json:"currency"`
	CurrentPrice    decimal.NullDecimal `json:"currentPrice,omitempty"` // instrument's native currency
	LastUpdated     time.Time           `json:"lastUpdated"`
	SourceSyncTime  time.Time           `json:"sourceSyncTime"` // connection's lastSyncTime when normalized, used for canonical tie-breaks
}

// Closed reports whether the position holds no shares.
func (p Position) Closed() bool {
	return p.Quantity.IsZero()
}

// CostBasis returns quantity * average cost in the account's currency.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AverageCost)
}
