package request

// CreateConnectionRequest is the request body for linking a new broker
// connection to a portfolio. AccessToken is required for OAuth brokers and
// ignored for manual and CSV connections.
type CreateConnectionRequest struct {
	Broker        string `json:"broker"`
	SyncFrequency string `json:"syncFrequency,omitempty"` // cron expression, empty for manual-only sync
	AccountNumber string `json:"accountNumber,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
}

// UpdateConnectionRequest is the request body for changing a connection's
// settings. Empty fields are left unchanged. Setting status to disconnected
// disables the connection; connections are never hard-deleted.
type UpdateConnectionRequest struct {
	Status        string `json:"status,omitempty"`
	SyncFrequency string `json:"syncFrequency,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

// StagedTransactionPayload is one buy or sell inside a staged import.
type StagedTransactionPayload struct {
	Type     string `json:"type"` // buy or sell
	Date     string `json:"date"` // 2006-01-02 or RFC3339
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Fees     string `json:"fees,omitempty"`
}

// StagedRecordPayload is one instrument's worth of imported source data:
// either a direct position (quantity + average cost) or a transaction list
// to replay.
type StagedRecordPayload struct {
	Kind         string                     `json:"kind"` // position or transactions
	Symbol       string                     `json:"symbol,omitempty"`
	ISIN         string                     `json:"isin,omitempty"`
	Exchange     string                     `json:"exchange,omitempty"`
	Currency     string                     `json:"currency"`
	Quantity     string                     `json:"quantity,omitempty"`
	AverageCost  string                     `json:"averageCost,omitempty"`
	Price        string                     `json:"price,omitempty"`
	Transactions []StagedTransactionPayload `json:"transactions,omitempty"`
}

// ImportRecordsRequest is the request body for staging records on a manual
// or CSV connection. Each import replaces the connection's previous staging.
type ImportRecordsRequest struct {
	Records []StagedRecordPayload `json:"records"`
}
