package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/request"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/repository"
)

// PortfolioService handles portfolio-related business logic operations.
type PortfolioService struct {
	portfolioRepo       *repository.PortfolioRepository
	defaultBaseCurrency string
}

// NewPortfolioService creates a new PortfolioService with the provided repository dependencies.
func NewPortfolioService(portfolioRepo *repository.PortfolioRepository, defaultBaseCurrency string) *PortfolioService {
	return &PortfolioService{
		portfolioRepo:       portfolioRepo,
		defaultBaseCurrency: defaultBaseCurrency,
	}
}

// GetPortfolios retrieves all active portfolios.
func (s *PortfolioService) GetPortfolios() ([]model.Portfolio, error) {
	return s.portfolioRepo.GetPortfolios(model.PortfolioFilter{})
}

// GetPortfolio retrieves a single portfolio by ID.
func (s *PortfolioService) GetPortfolio(portfolioID string) (model.Portfolio, error) {
	return s.portfolioRepo.GetPortfolioOnID(portfolioID)
}

// CreatePortfolio creates a new portfolio.
func (s *PortfolioService) CreatePortfolio(req request.CreatePortfolioRequest) (model.Portfolio, error) {
	if req.Name == "" {
		return model.Portfolio{}, fmt.Errorf("portfolio name is required")
	}

	baseCurrency := req.BaseCurrency
	if baseCurrency == "" {
		baseCurrency = s.defaultBaseCurrency
	}

	p := model.Portfolio{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Description:  req.Description,
		BaseCurrency: baseCurrency,
	}

	if err := s.portfolioRepo.CreatePortfolio(p); err != nil {
		return model.Portfolio{}, err
	}

	return p, nil
}
