package model

import "time"

// Broker identifies the external data source behind a connection.
type Broker string

// Supported brokers and import paths.
const (
	BrokerManual             Broker = "manual"
	BrokerCSV                Broker = "csv"
	BrokerPlaid              Broker = "plaid"
	BrokerSchwab             Broker = "schwab"
	BrokerInteractiveBrokers Broker = "interactive_brokers"
	BrokerNordnet            Broker = "nordnet"
)

// Valid reports whether b is a known broker identifier.
func (b Broker) Valid() bool {
	switch b {
	case BrokerManual, BrokerCSV, BrokerPlaid, BrokerSchwab, BrokerInteractiveBrokers, BrokerNordnet:
		return true
	}
	return false
}

// ConnectionStatus represents the lifecycle state of a broker connection.
type ConnectionStatus string

// Connection lifecycle states. Connections are never hard-deleted; disabling
// a connection sets its status to disconnected.
const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)

// BrokerConnection represents a link to an external holdings source.
// Created on successful authentication, mutated on each sync cycle
// (status, last sync time, last error).
type BrokerConnection struct {
	ID            string           `json:"id"`
	PortfolioID   string           `json:"portfolioId"`
	Broker        Broker           `json:"broker"`
	Status        ConnectionStatus `json:"status"`
	SyncFrequency string           `json:"syncFrequency"`           // cron expression, empty for manual-only sync
	LastSyncTime  *time.Time       `json:"lastSyncTime,omitempty"`
	LastError     string           `json:"lastError,omitempty"`
	AccountNumber string           `json:"accountNumber,omitempty"` // broker-reported external account number
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Syncable reports whether the connection should be included in a
// reconciliation cycle. Errored connections are retried on the next cycle;
// only disconnected ones are skipped.
func (c BrokerConnection) Syncable() bool {
	return c.Status != ConnectionDisconnected
}
