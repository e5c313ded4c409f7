package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributingPosition is an audit reference retained on an aggregated
// holding. Positions excluded as confirmed duplicates stay listed here with
// ExcludedDuplicate set, contributing zero to the totals.
type ContributingPosition struct {
	PositionID        string          `json:"positionId"`
	SourceAccountID   string          `json:"sourceAccountId"`
	Broker            Broker          `json:"broker"`
	Quantity          decimal.Decimal `json:"quantity"`
	ExcludedDuplicate bool            `json:"excludedDuplicate"`
}

// AggregatedHolding is the portfolio-level consolidated view of one
// instrument across all contributing source positions. All monetary values
// are in the snapshot's base currency.
type AggregatedHolding struct {
	InstrumentKey         string                 `json:"instrumentKey"`
	TotalQuantity         decimal.Decimal        `json:"totalQuantity"`
	TotalCost             decimal.Decimal        `json:"totalCost"`
	MarketValue           decimal.Decimal        `json:"marketValue"`
	UnrealizedPnL         decimal.Decimal        `json:"unrealizedPnL"`
	UnrealizedPnLPercent  decimal.Decimal        `json:"unrealizedPnLPercent"`
	PriceStale            bool                   `json:"priceStale"`            // valued at cost basis, no market price available
	DegradedConversion    bool                   `json:"degradedConversion"`    // converted 1:1, no FX rate available
	ContributingPositions []ContributingPosition `json:"contributingPositions"` // ordered for drill-down
}

// IssueKind classifies a recoverable per-item error accumulated during a
// reconciliation cycle.
type IssueKind string

const (
	IssueUnresolvedInstrument IssueKind = "unresolved_instrument"
	IssueConnectionFetch      IssueKind = "connection_fetch"
	IssueMissingFxRate        IssueKind = "missing_fx_rate"
	IssueMissingPrice         IssueKind = "missing_price"
	IssueMalformedPosition    IssueKind = "malformed_position"
)

// Issue is one entry of the structured error report attached to a snapshot.
// Subject identifies the affected item (symbol, connection ID, currency pair).
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail,omitempty"`
}

// PortfolioSnapshot is the committed output of one reconciliation cycle.
type PortfolioSnapshot struct {
	ID                     string               `json:"id"`
	PortfolioID            string               `json:"portfolioId"`
	AsOf                   time.Time            `json:"asOf"`
	BaseCurrency           string               `json:"baseCurrency"`
	Holdings               []AggregatedHolding  `json:"holdings"`
	TotalValue             decimal.Decimal      `json:"totalValue"`
	TotalCost              decimal.Decimal      `json:"totalCost"`
	TotalUnrealizedPnL     decimal.Decimal      `json:"totalUnrealizedPnL"`
	HasDegradedConversions bool                 `json:"hasDegradedConversions"`
	Duplicates             []DuplicateCandidate `json:"duplicates"` // current review queue
	Issues                 []Issue              `json:"issues"`
}
