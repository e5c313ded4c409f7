package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/request"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/broker"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/repository"
)

// ConnectionService handles broker connection lifecycle operations: linking,
// settings changes, disabling, token storage and staged-record imports. It
// also resolves access tokens for the broker REST client.
type ConnectionService struct {
	portfolioRepo  *repository.PortfolioRepository
	connectionRepo *repository.ConnectionRepository
	stagedRepo     *repository.StagedRecordRepository
	vault          *broker.TokenVault
}

// NewConnectionService creates a new ConnectionService with the provided repository dependencies.
func NewConnectionService(
	portfolioRepo *repository.PortfolioRepository,
	connectionRepo *repository.ConnectionRepository,
	stagedRepo *repository.StagedRecordRepository,
	vault *broker.TokenVault,
) *ConnectionService {
	return &ConnectionService{
		portfolioRepo:  portfolioRepo,
		connectionRepo: connectionRepo,
		stagedRepo:     stagedRepo,
		vault:          vault,
	}
}

// GetConnections retrieves all connections of a portfolio.
func (s *ConnectionService) GetConnections(portfolioID string) ([]model.BrokerConnection, error) {
	if _, err := s.portfolioRepo.GetPortfolioOnID(portfolioID); err != nil {
		return nil, err
	}
	return s.connectionRepo.GetConnectionsOnPortfolioID(portfolioID)
}

// CreateConnection links a new broker connection to a portfolio. For OAuth
// brokers the access token is sealed and stored alongside the connection.
func (s *ConnectionService) CreateConnection(portfolioID string, req request.CreateConnectionRequest) (model.BrokerConnection, error) {
	if _, err := s.portfolioRepo.GetPortfolioOnID(portfolioID); err != nil {
		return model.BrokerConnection{}, err
	}

	b := model.Broker(req.Broker)
	if !b.Valid() {
		return model.BrokerConnection{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidBroker, req.Broker)
	}

	now := time.Now().UTC()
	conn := model.BrokerConnection{
		ID:            uuid.New().String(),
		PortfolioID:   portfolioID,
		Broker:        b,
		Status:        model.ConnectionConnected,
		SyncFrequency: req.SyncFrequency,
		AccountNumber: req.AccountNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.connectionRepo.CreateConnection(conn); err != nil {
		return model.BrokerConnection{}, err
	}

	if req.AccessToken != "" {
		sealed, err := s.vault.Seal(req.AccessToken)
		if err != nil {
			return model.BrokerConnection{}, err
		}
		if err := s.connectionRepo.SetSealedToken(conn.ID, sealed); err != nil {
			return model.BrokerConnection{}, err
		}
	}

	return conn, nil
}

// UpdateConnection applies a settings change to a connection. Disabling is a
// status change to disconnected; connection rows are never deleted so
// historical snapshots keep resolving their source.
func (s *ConnectionService) UpdateConnection(connectionID string, req request.UpdateConnectionRequest) (model.BrokerConnection, error) {
	conn, err := s.connectionRepo.GetConnectionOnID(connectionID)
	if err != nil {
		return model.BrokerConnection{}, err
	}

	if req.Status != "" {
		status := model.ConnectionStatus(req.Status)
		switch status {
		case model.ConnectionConnected, model.ConnectionDisconnected:
			conn.Status = status
		default:
			return model.BrokerConnection{}, fmt.Errorf("invalid connection status %q", req.Status)
		}
	}
	if req.SyncFrequency != "" {
		conn.SyncFrequency = req.SyncFrequency
	}
	if req.AccountNumber != "" {
		conn.AccountNumber = req.AccountNumber
	}
	conn.UpdatedAt = time.Now().UTC()

	if err := s.connectionRepo.UpdateConnection(conn); err != nil {
		return model.BrokerConnection{}, err
	}

	return conn, nil
}

// ImportRecords stages source records on a manual or CSV connection,
// replacing any previous staging. OAuth-backed connections reject imports;
// their data comes from the broker.
func (s *ConnectionService) ImportRecords(connectionID string, req request.ImportRecordsRequest) (int, error) {
	conn, err := s.connectionRepo.GetConnectionOnID(connectionID)
	if err != nil {
		return 0, err
	}
	if conn.Broker != model.BrokerManual && conn.Broker != model.BrokerCSV {
		return 0, fmt.Errorf("%w: cannot import records into a %s connection", apperrors.ErrInvalidBroker, conn.Broker)
	}

	records := make([]model.RawSourceRecord, 0, len(req.Records))
	for i, payload := range req.Records {
		record, err := parseStagedRecord(payload)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, record)
	}

	if err := s.stagedRepo.ReplaceStagedRecords(connectionID, records); err != nil {
		return 0, err
	}

	return len(records), nil
}

// AccessToken implements broker.TokenSource: it loads the connection's sealed
// token and opens it with the vault.
func (s *ConnectionService) AccessToken(connectionID string) (string, error) {
	sealed, err := s.connectionRepo.GetSealedToken(connectionID)
	if err != nil {
		return "", err
	}
	return s.vault.Open(sealed)
}

func parseStagedRecord(payload request.StagedRecordPayload) (model.RawSourceRecord, error) {
	record := model.RawSourceRecord{
		Kind:     model.RecordKind(payload.Kind),
		Symbol:   payload.Symbol,
		ISIN:     payload.ISIN,
		Exchange: payload.Exchange,
		Currency: payload.Currency,
	}

	switch record.Kind {
	case model.RecordPosition:
		var err error
		if record.Quantity, err = decimal.NewFromString(payload.Quantity); err != nil {
			return model.RawSourceRecord{}, fmt.Errorf("invalid quantity %q: %w", payload.Quantity, err)
		}
		if record.AverageCost, err = decimal.NewFromString(payload.AverageCost); err != nil {
			return model.RawSourceRecord{}, fmt.Errorf("invalid average cost %q: %w", payload.AverageCost, err)
		}
		if payload.Price != "" {
			price, err := decimal.NewFromString(payload.Price)
			if err != nil {
				return model.RawSourceRecord{}, fmt.Errorf("invalid price %q: %w", payload.Price, err)
			}
			record.Price = decimal.NullDecimal{Decimal: price, Valid: true}
		}
	case model.RecordTransactions:
		for _, t := range payload.Transactions {
			parsed, err := parseStagedTransaction(t)
			if err != nil {
				return model.RawSourceRecord{}, err
			}
			record.Transactions = append(record.Transactions, parsed)
		}
	default:
		return model.RawSourceRecord{}, fmt.Errorf("invalid record kind %q", payload.Kind)
	}

	return record, nil
}

func parseStagedTransaction(payload request.StagedTransactionPayload) (model.SourceTransaction, error) {
	t := model.SourceTransaction{Type: model.TransactionType(payload.Type)}
	if t.Type != model.TransactionBuy && t.Type != model.TransactionSell {
		return model.SourceTransaction{}, fmt.Errorf("invalid transaction type %q", payload.Type)
	}

	date, err := repository.ParseTime(payload.Date)
	if err != nil {
		return model.SourceTransaction{}, err
	}
	t.Date = date

	if t.Quantity, err = decimal.NewFromString(payload.Quantity); err != nil {
		return model.SourceTransaction{}, fmt.Errorf("invalid transaction quantity %q: %w", payload.Quantity, err)
	}
	if t.Price, err = decimal.NewFromString(payload.Price); err != nil {
		return model.SourceTransaction{}, fmt.Errorf("invalid transaction price %q: %w", payload.Price, err)
	}
	t.Fees = decimal.Zero
	if payload.Fees != "" {
		if t.Fees, err = decimal.NewFromString(payload.Fees); err != nil {
			return model.SourceTransaction{}, fmt.Errorf("invalid transaction fees %q: %w", payload.Fees, err)
		}
	}

	return t, nil
}
