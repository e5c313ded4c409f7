// Package scheduler runs periodic reconciliation cycles for every active
// portfolio on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

// Scheduler triggers reconciliation cycles on a fixed cron schedule. A
// portfolio whose cycle is still running when the schedule fires is skipped;
// the coordinator's single-flight guard makes that a cheap no-op.
type Scheduler struct {
	cron                  *cron.Cron
	portfolioService      *service.PortfolioService
	reconciliationService *service.ReconciliationService
}

// New creates a Scheduler over the given services.
func New(portfolioService *service.PortfolioService, reconciliationService *service.ReconciliationService) *Scheduler {
	return &Scheduler{
		cron:                  cron.New(),
		portfolioService:      portfolioService,
		reconciliationService: reconciliationService,
	}
}

// Start registers the sync job under the given cron expression and starts the
// scheduler in the background.
func (s *Scheduler) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.syncAll); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("scheduler started with schedule %q", schedule)
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) syncAll() {
	portfolios, err := s.portfolioService.GetPortfolios()
	if err != nil {
		log.Printf("scheduled sync: failed to list portfolios: %v", err)
		return
	}

	for _, portfolio := range portfolios {
		_, err := s.reconciliationService.Sync(context.Background(), portfolio.ID)
		switch {
		case err == nil:
			log.Printf("scheduled sync committed for portfolio %s", portfolio.ID)
		case errors.Is(err, apperrors.ErrSyncInProgress):
			log.Printf("scheduled sync skipped for portfolio %s: cycle already running", portfolio.ID)
		default:
			log.Printf("scheduled sync failed for portfolio %s: %v", portfolio.ID, err)
		}
	}
}
