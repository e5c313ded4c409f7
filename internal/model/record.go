package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind distinguishes the two shapes a source record can take.
type RecordKind string

const (
	// RecordPosition carries a pre-computed position (broker API path).
	RecordPosition RecordKind = "position"

	// RecordTransactions carries a transaction history from which the
	// position must be replayed (manual entry and CSV import paths).
	RecordTransactions RecordKind = "transactions"
)

// TransactionType is the trade direction of a source transaction.
type TransactionType string

const (
	TransactionBuy  TransactionType = "buy"
	TransactionSell TransactionType = "sell"
)

// SourceTransaction is one already-parsed trade from a transaction-history
// source. CSV parsing happens upstream; the engine only sees structured rows.
type SourceTransaction struct {
	Type     TransactionType `json:"type"`
	Date     time.Time       `json:"date"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"` // per unit
	Fees     decimal.Decimal `json:"fees"`
}

// RawSourceRecord is a heterogeneous holding record as delivered by a broker
// client, CSV importer, or manual entry. Every record carries at minimum a
// symbol; cost information arrives either pre-computed (Quantity/AverageCost)
// or as a transaction history to replay.
type RawSourceRecord struct {
	Kind     RecordKind `json:"kind"`
	Symbol   string     `json:"symbol"`
	ISIN     string     `json:"isin,omitempty"`
	Exchange string     `json:"exchange,omitempty"`
	Currency string     `json:"currency"`

	// Position-shaped fields, valid when Kind == RecordPosition.
	Quantity    decimal.Decimal     `json:"quantity,omitempty"`
	AverageCost decimal.Decimal     `json:"averageCost,omitempty"`
	Price       decimal.NullDecimal `json:"price,omitempty"`

	// Transaction-history fields, valid when Kind == RecordTransactions.
	Transactions []SourceTransaction `json:"transactions,omitempty"`
}
