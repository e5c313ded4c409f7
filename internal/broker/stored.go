package broker

import (
	"context"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// RecordSource loads the staged source records backing manual and CSV
// connections. The CSV import front-end and the manual-entry UI write rows
// upstream; by the time they reach this source they are already structured.
type RecordSource interface {
	StagedRecords(connectionID string) ([]model.RawSourceRecord, error)
}

// StoredClient serves manual and CSV connections from staged records in the
// database. It satisfies the same client contract as the REST client so the
// coordinator treats every source uniformly.
type StoredClient struct {
	source RecordSource
}

// NewStoredClient creates a client over the given record source.
func NewStoredClient(source RecordSource) *StoredClient {
	return &StoredClient{source: source}
}

// FetchPositions returns the connection's staged records.
func (c *StoredClient) FetchPositions(_ context.Context, conn model.BrokerConnection) ([]model.RawSourceRecord, error) {
	return c.source.StagedRecords(conn.ID)
}

// FetchAccountNumber always returns empty: manual and CSV sources carry no
// broker-reported account number to corroborate duplicates with.
func (c *StoredClient) FetchAccountNumber(context.Context, model.BrokerConnection) (string, error) {
	return "", nil
}
