package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// Phase is one step of the reconciliation state machine.
type Phase string

// Cycle phases. A cycle walks Idle through Committed in order; Errored is
// reachable from any step. Cancellation is checked at every transition.
const (
	PhaseIdle        Phase = "idle"
	PhaseFetching    Phase = "fetching"
	PhaseNormalizing Phase = "normalizing"
	PhaseDetecting   Phase = "detecting"
	PhaseAggregating Phase = "aggregating"
	PhaseCommitted   Phase = "committed"
	PhaseErrored     Phase = "errored"
)

// BrokerClient is the collaborator capability for pulling raw holdings out of
// an external source. Implemented by the Plaid/Schwab adapters and by the
// stored-record adapter backing manual and CSV connections.
type BrokerClient interface {
	// FetchPositions returns the raw records currently reported by the source.
	FetchPositions(ctx context.Context, conn model.BrokerConnection) ([]model.RawSourceRecord, error)

	// FetchAccountNumber returns the broker-reported external account number,
	// or empty when the source does not expose one.
	FetchAccountNumber(ctx context.Context, conn model.BrokerConnection) (string, error)
}

// ClientRegistry resolves the broker client serving a connection.
type ClientRegistry interface {
	ClientFor(broker model.Broker) (BrokerClient, error)
}

// PriceFeed is the collaborator capability for market price lookups.
type PriceFeed interface {
	// GetPrice returns the most recent price for the instrument, or
	// apperrors.ErrMissingPrice when none is available.
	GetPrice(ctx context.Context, instrumentKey string) (decimal.Decimal, error)
}

// RateSource is the collaborator capability for FX rate lookups.
type RateSource interface {
	// GetRate returns the conversion rate from one currency into another, or
	// apperrors.ErrMissingFxRate when no rate is available.
	GetRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Store is the persistence capability the coordinator commits through. The
// coordinator never holds references across cycles; each Run loads fresh
// state and writes one snapshot.
type Store interface {
	// SyncableConnections returns the portfolio's connections eligible for
	// this cycle (everything not disconnected).
	SyncableConnections(portfolioID string) ([]model.BrokerConnection, error)

	// LoadResolutions returns all recorded resolution decisions for the
	// portfolio. Loaded once at cycle start; later decisions apply next cycle.
	LoadResolutions(portfolioID string) ([]model.ResolutionDecision, error)

	// SavePositions upserts the cycle's normalized positions.
	SavePositions(portfolioID string, positions []model.Position) error

	// SaveSnapshot persists the committed snapshot and its duplicate queue.
	SaveSnapshot(snapshot model.PortfolioSnapshot) error

	// UpdateConnectionSync records a connection's post-cycle status.
	UpdateConnectionSync(connectionID string, status model.ConnectionStatus, syncTime time.Time, lastError string) error
}

// Options tunes a Coordinator. Zero values fall back to the defaults below.
type Options struct {
	FetchConcurrency int           // max broker fetches in flight, default 4
	FetchTimeout     time.Duration // per-connection fetch timeout, default 30s
	BaseCurrency     string        // default EUR
}

const (
	defaultFetchConcurrency = 4
	defaultFetchTimeout     = 30 * time.Second
	defaultBaseCurrency     = "EUR"
)

// Coordinator orchestrates one reconciliation cycle per invocation:
// fetch -> normalize -> detect -> aggregate -> commit. At most one cycle per
// portfolio runs at a time; a concurrent request fails immediately with
// apperrors.ErrSyncInProgress rather than queueing behind the running cycle.
type Coordinator struct {
	registry ClientRegistry
	prices   PriceFeed
	rates    RateSource
	store    Store
	opts     Options

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewCoordinator creates a Coordinator over the given collaborators.
func NewCoordinator(registry ClientRegistry, prices PriceFeed, rates RateSource, store Store, opts Options) *Coordinator {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.BaseCurrency == "" {
		opts.BaseCurrency = defaultBaseCurrency
	}
	return &Coordinator{
		registry: registry,
		prices:   prices,
		rates:    rates,
		store:    store,
		opts:     opts,
		inFlight: make(map[string]bool),
	}
}

// fetchOutcome is one connection's result from the fan-out fetch phase.
type fetchOutcome struct {
	conn    model.BrokerConnection
	records []model.RawSourceRecord
	err     error
}

// Run executes one reconciliation cycle for the portfolio and returns the
// committed snapshot.
//
// Per-connection fetch failures are tolerated: each failed connection is
// retried once immediately, then marked errored for this cycle while the rest
// proceed. The cycle itself fails only when zero connections deliver data
// (apperrors.ErrAllConnectionsFailed), on cancellation, or on a commit error.
// On failure no snapshot is written and the previously committed snapshot
// remains authoritative.
func (c *Coordinator) Run(ctx context.Context, portfolioID string) (model.PortfolioSnapshot, error) {
	if !c.acquire(portfolioID) {
		return model.PortfolioSnapshot{}, apperrors.ErrSyncInProgress
	}
	defer c.release(portfolioID)

	snapshot, err := c.runCycle(ctx, portfolioID)
	if err != nil {
		log.Printf("reconciliation cycle for portfolio %s failed: %v", portfolioID, err)
		return model.PortfolioSnapshot{}, err
	}
	return snapshot, nil
}

func (c *Coordinator) runCycle(ctx context.Context, portfolioID string) (model.PortfolioSnapshot, error) {
	asOf := time.Now().UTC()

	// Cancellation is checked at each phase transition. A cancelled cycle
	// discards everything and commits nothing; in-flight broker calls from
	// the fetch phase are allowed to finish first.
	advance := func(next Phase) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: before %s", apperrors.ErrCycleCancelled, next)
		}
		return nil
	}

	// Resolutions are fixed at cycle start. Decisions recorded while this
	// cycle runs apply from the next cycle, never retroactively.
	resolutions, err := c.store.LoadResolutions(portfolioID)
	if err != nil {
		return model.PortfolioSnapshot{}, fmt.Errorf("failed to load resolutions: %w", err)
	}

	if err := advance(PhaseFetching); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	connections, err := c.store.SyncableConnections(portfolioID)
	if err != nil {
		return model.PortfolioSnapshot{}, fmt.Errorf("failed to load connections: %w", err)
	}
	outcomes := c.fetchAll(ctx, connections)

	// Barrier: normalization needs the complete position set, so nothing
	// past this point starts until every fetch has settled.
	if err := advance(PhaseNormalizing); err != nil {
		return model.PortfolioSnapshot{}, err
	}

	var issues []model.Issue
	var positions []model.Position
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.err != nil {
			issues = append(issues, model.Issue{
				Kind:    model.IssueConnectionFetch,
				Subject: outcome.conn.ID,
				Detail:  outcome.err.Error(),
			})
			continue
		}
		succeeded++
		normalized := Normalize(outcome.records, outcome.conn, asOf)
		positions = append(positions, normalized.Positions...)
		issues = append(issues, normalized.Issues...)
	}
	if succeeded == 0 {
		c.markConnections(outcomes, asOf)
		return model.PortfolioSnapshot{}, apperrors.ErrAllConnectionsFailed
	}

	if err := advance(PhaseDetecting); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	detected := Detect(positions)
	if detected.Skipped > 0 {
		log.Printf("duplicate detection skipped %d malformed positions for portfolio %s", detected.Skipped, portfolioID)
	}

	if err := advance(PhaseAggregating); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	prices, fxRates := c.lookupMarketData(ctx, positions)
	aggregated := Aggregate(AggregateInput{
		Positions:    positions,
		Duplicates:   detected.Candidates,
		Resolutions:  resolutions,
		BaseCurrency: c.opts.BaseCurrency,
		FxRates:      fxRates,
		Prices:       prices,
	})
	issues = append(issues, aggregated.Issues...)

	if err := advance(PhaseCommitted); err != nil {
		return model.PortfolioSnapshot{}, err
	}
	// Queue entries get their own identity so review verdicts can target them
	// over the API. Identities are per cycle; a verdict given against an
	// earlier cycle's entry still carries over, matched by instrument and
	// position set.
	queue := applyResolutions(detected.Candidates, resolutions)
	for i := range queue {
		queue[i].ID = uuid.New().String()
		queue[i].CreatedAt = asOf
	}
	snapshot := model.PortfolioSnapshot{
		ID:                     uuid.New().String(),
		PortfolioID:            portfolioID,
		AsOf:                   asOf,
		BaseCurrency:           c.opts.BaseCurrency,
		Holdings:               aggregated.Holdings,
		TotalValue:             aggregated.TotalValue,
		TotalCost:              aggregated.TotalCost,
		TotalUnrealizedPnL:     aggregated.TotalUnrealizedPnL,
		HasDegradedConversions: aggregated.HasDegradedConversions,
		Duplicates:             queue,
		Issues:                 issues,
	}

	if err := c.store.SavePositions(portfolioID, positions); err != nil {
		return model.PortfolioSnapshot{}, fmt.Errorf("failed to save positions: %w", err)
	}
	if err := c.store.SaveSnapshot(snapshot); err != nil {
		return model.PortfolioSnapshot{}, fmt.Errorf("failed to save snapshot: %w", err)
	}
	c.markConnections(outcomes, asOf)

	return snapshot, nil
}

// fetchAll pulls raw records from every connection with bounded parallelism.
// Each fetch gets an independent timeout and one immediate retry for
// transient faults. In-flight calls are left to complete on cancellation so
// broker-side rate-limit accounting stays consistent; their results are
// discarded by the caller's transition check.
func (c *Coordinator) fetchAll(ctx context.Context, connections []model.BrokerConnection) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(connections))

	g := new(errgroup.Group)
	g.SetLimit(c.opts.FetchConcurrency)

	for i, conn := range connections {
		i, conn := i, conn
		g.Go(func() error {
			outcomes[i] = c.fetchOne(ctx, conn)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (c *Coordinator) fetchOne(ctx context.Context, conn model.BrokerConnection) fetchOutcome {
	client, err := c.registry.ClientFor(conn.Broker)
	if err != nil {
		return fetchOutcome{conn: conn, err: fmt.Errorf("%w: %v", apperrors.ErrConnectionFetch, err)}
	}

	records, err := c.fetchWithTimeout(ctx, client, conn)
	if err != nil {
		// One immediate retry for transient network faults. No further
		// automatic retries within the cycle; the next scheduled sync
		// starts fresh.
		records, err = c.fetchWithTimeout(ctx, client, conn)
	}
	if err != nil {
		return fetchOutcome{conn: conn, err: fmt.Errorf("%w: %v", apperrors.ErrConnectionFetch, err)}
	}

	if number, err := client.FetchAccountNumber(ctx, conn); err == nil && number != "" {
		conn.AccountNumber = number
	}

	return fetchOutcome{conn: conn, records: records}
}

func (c *Coordinator) fetchWithTimeout(ctx context.Context, client BrokerClient, conn model.BrokerConnection) ([]model.RawSourceRecord, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	return client.FetchPositions(fetchCtx, conn)
}

// lookupMarketData gathers prices and FX rates for the normalized position
// set. Lookup failures are simply absent from the maps; the aggregation pass
// turns absences into the documented fallbacks and issues.
func (c *Coordinator) lookupMarketData(ctx context.Context, positions []model.Position) (map[string]decimal.Decimal, map[string]decimal.Decimal) {
	prices := make(map[string]decimal.Decimal)
	fxRates := make(map[string]decimal.Decimal)

	instruments := make(map[string]bool)
	currencies := make(map[string]bool)
	for _, p := range positions {
		instruments[p.InstrumentKey] = true
		if p.Currency != "" && p.Currency != c.opts.BaseCurrency {
			currencies[p.Currency] = true
		}
	}

	var keys []string
	for key := range instruments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if price, err := c.prices.GetPrice(ctx, key); err == nil {
			prices[key] = price
		}
	}

	var curs []string
	for cur := range currencies {
		curs = append(curs, cur)
	}
	sort.Strings(curs)
	for _, cur := range curs {
		if rate, err := c.rates.GetRate(ctx, cur, c.opts.BaseCurrency); err == nil {
			fxRates[cur] = rate
		}
	}

	return prices, fxRates
}

// markConnections writes each connection's post-cycle status: connected with
// a fresh sync time on success, errored with the failure detail otherwise.
func (c *Coordinator) markConnections(outcomes []fetchOutcome, syncTime time.Time) {
	for _, outcome := range outcomes {
		status := model.ConnectionConnected
		detail := ""
		if outcome.err != nil {
			status = model.ConnectionError
			detail = outcome.err.Error()
		}
		if err := c.store.UpdateConnectionSync(outcome.conn.ID, status, syncTime, detail); err != nil {
			log.Printf("failed to update connection %s status: %v", outcome.conn.ID, err)
		}
	}
}

// applyResolutions folds recorded decisions into the freshly detected queue,
// so the committed snapshot reflects verdicts already given for identical
// candidates from earlier cycles.
func applyResolutions(candidates []model.DuplicateCandidate, resolutions []model.ResolutionDecision) []model.DuplicateCandidate {
	for i, candidate := range candidates {
		if decision, ok := decisionFor(candidate, resolutions); ok {
			candidates[i].ResolutionStatus = decision.Decision
			if decision.CanonicalPositionID != "" {
				candidates[i].CanonicalPositionID = decision.CanonicalPositionID
			}
		}
	}
	return candidates
}

func (c *Coordinator) acquire(portfolioID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[portfolioID] {
		return false
	}
	c.inFlight[portfolioID] = true
	return true
}

func (c *Coordinator) release(portfolioID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, portfolioID)
}
