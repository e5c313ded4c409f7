package service

import (
	"context"
	"time"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/reconcile"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/repository"
)

// ReconciliationService runs reconciliation cycles and exposes their
// committed output. It adapts the repositories onto the coordinator's store
// contract, so the reconcile package stays free of SQL concerns.
type ReconciliationService struct {
	portfolioRepo  *repository.PortfolioRepository
	connectionRepo *repository.ConnectionRepository
	positionRepo   *repository.PositionRepository
	snapshotRepo   *repository.SnapshotRepository
	resolutionRepo *repository.ResolutionRepository

	coordinator *reconcile.Coordinator
}

// NewReconciliationService creates a new ReconciliationService with the provided repository dependencies.
// The coordinator is constructed here with the service itself as its store.
func NewReconciliationService(
	portfolioRepo *repository.PortfolioRepository,
	connectionRepo *repository.ConnectionRepository,
	positionRepo *repository.PositionRepository,
	snapshotRepo *repository.SnapshotRepository,
	resolutionRepo *repository.ResolutionRepository,
	registry reconcile.ClientRegistry,
	prices reconcile.PriceFeed,
	rates reconcile.RateSource,
	opts reconcile.Options,
) *ReconciliationService {
	s := &ReconciliationService{
		portfolioRepo:  portfolioRepo,
		connectionRepo: connectionRepo,
		positionRepo:   positionRepo,
		snapshotRepo:   snapshotRepo,
		resolutionRepo: resolutionRepo,
	}
	s.coordinator = reconcile.NewCoordinator(registry, prices, rates, s, opts)
	return s
}

// Sync runs one reconciliation cycle for the portfolio and returns the
// committed snapshot. Fails with apperrors.ErrSyncInProgress when a cycle for
// the same portfolio is already running, and with
// apperrors.ErrPortfolioNotFound for unknown portfolios.
func (s *ReconciliationService) Sync(ctx context.Context, portfolioID string) (model.PortfolioSnapshot, error) {
	if _, err := s.portfolioRepo.GetPortfolioOnID(portfolioID); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	return s.coordinator.Run(ctx, portfolioID)
}

// GetLatestSnapshot returns the portfolio's most recent committed snapshot.
func (s *ReconciliationService) GetLatestSnapshot(portfolioID string) (model.PortfolioSnapshot, error) {
	if _, err := s.portfolioRepo.GetPortfolioOnID(portfolioID); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	return s.snapshotRepo.GetLatestSnapshot(portfolioID)
}

// GetPositions returns the portfolio's normalized per-connection positions
// from the last committed cycle.
func (s *ReconciliationService) GetPositions(portfolioID string) ([]model.Position, error) {
	if _, err := s.portfolioRepo.GetPortfolioOnID(portfolioID); err != nil {
		return nil, err
	}
	return s.positionRepo.GetPositionsOnPortfolioID(portfolioID)
}

// The methods below implement reconcile.Store.

// SyncableConnections returns the portfolio's connections eligible for a cycle.
func (s *ReconciliationService) SyncableConnections(portfolioID string) ([]model.BrokerConnection, error) {
	return s.connectionRepo.GetSyncableConnections(portfolioID)
}

// LoadResolutions returns all recorded resolution decisions for the portfolio.
func (s *ReconciliationService) LoadResolutions(portfolioID string) ([]model.ResolutionDecision, error) {
	return s.resolutionRepo.GetResolutionsOnPortfolioID(portfolioID)
}

// SavePositions replaces the portfolio's normalized positions.
func (s *ReconciliationService) SavePositions(portfolioID string, positions []model.Position) error {
	return s.positionRepo.ReplacePositions(portfolioID, positions)
}

// SaveSnapshot persists a committed snapshot.
func (s *ReconciliationService) SaveSnapshot(snapshot model.PortfolioSnapshot) error {
	return s.snapshotRepo.SaveSnapshot(snapshot)
}

// UpdateConnectionSync records a connection's post-cycle status.
func (s *ReconciliationService) UpdateConnectionSync(connectionID string, status model.ConnectionStatus, syncTime time.Time, lastError string) error {
	return s.connectionRepo.UpdateConnectionSync(connectionID, status, syncTime, lastError)
}
