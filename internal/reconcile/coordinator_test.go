package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/reconcile"
)

// fakeClient scripts per-connection fetch behavior and records call counts.
type fakeClient struct {
	mu       sync.Mutex
	records  map[string][]model.RawSourceRecord
	failures map[string]int // fetches to fail before succeeding; -1 fails forever
	calls    map[string]int
	block    chan struct{} // when set, fetches wait here first
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		records:  make(map[string][]model.RawSourceRecord),
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
}

func (f *fakeClient) FetchPositions(ctx context.Context, conn model.BrokerConnection) ([]model.RawSourceRecord, error) {
	f.mu.Lock()
	f.calls[conn.ID]++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if remaining := f.failures[conn.ID]; remaining != 0 {
		if remaining > 0 {
			f.failures[conn.ID]--
		}
		return nil, errors.New("connection reset by peer")
	}
	return f.records[conn.ID], nil
}

func (f *fakeClient) FetchAccountNumber(ctx context.Context, conn model.BrokerConnection) (string, error) {
	return conn.AccountNumber, nil
}

func (f *fakeClient) callCount(connectionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[connectionID]
}

type fakeRegistry struct{ client *fakeClient }

func (r fakeRegistry) ClientFor(model.Broker) (reconcile.BrokerClient, error) {
	return r.client, nil
}

type fakePrices struct{ prices map[string]decimal.Decimal }

func (f fakePrices) GetPrice(_ context.Context, key string) (decimal.Decimal, error) {
	if price, ok := f.prices[key]; ok {
		return price, nil
	}
	return decimal.Zero, apperrors.ErrMissingPrice
}

type fakeRates struct{ rates map[string]decimal.Decimal }

func (f fakeRates) GetRate(_ context.Context, from, _ string) (decimal.Decimal, error) {
	if rate, ok := f.rates[from]; ok {
		return rate, nil
	}
	return decimal.Zero, apperrors.ErrMissingFxRate
}

// fakeStore is an in-memory Store recording commits and status updates.
type fakeStore struct {
	mu          sync.Mutex
	connections []model.BrokerConnection
	resolutions []model.ResolutionDecision
	snapshots   []model.PortfolioSnapshot
	positions   []model.Position
	statuses    map[string]model.ConnectionStatus
}

func newFakeStore(connections ...model.BrokerConnection) *fakeStore {
	return &fakeStore{
		connections: connections,
		statuses:    make(map[string]model.ConnectionStatus),
	}
}

func (s *fakeStore) SyncableConnections(string) ([]model.BrokerConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var syncable []model.BrokerConnection
	for _, conn := range s.connections {
		if conn.Syncable() {
			syncable = append(syncable, conn)
		}
	}
	return syncable, nil
}

func (s *fakeStore) LoadResolutions(string) ([]model.ResolutionDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolutions, nil
}

func (s *fakeStore) SavePositions(_ string, positions []model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = positions
	return nil
}

func (s *fakeStore) SaveSnapshot(snapshot model.PortfolioSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

func (s *fakeStore) UpdateConnectionSync(connectionID string, status model.ConnectionStatus, _ time.Time, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[connectionID] = status
	return nil
}

func (s *fakeStore) snapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func appleRecord(t *testing.T, quantity, averageCost string) model.RawSourceRecord {
	t.Helper()
	return model.RawSourceRecord{
		Kind:        model.RecordPosition,
		Symbol:      "AAPL",
		Exchange:    "NASDAQ",
		Currency:    "USD",
		Quantity:    dec(t, quantity),
		AverageCost: dec(t, averageCost),
	}
}

// TestCoordinator_PartialConnectionFailure tests per-connection failure
// isolation.
//
// WHY: A single broker outage must never block the whole portfolio. The
// cycle commits with whatever connections delivered, and the failed one is
// marked errored after exactly one retry.
func TestCoordinator_PartialConnectionFailure(t *testing.T) {
	connX := testConnection("conn-x", model.BrokerSchwab)
	connY := testConnection("conn-y", model.BrokerPlaid)

	client := newFakeClient()
	client.failures["conn-x"] = -1 // fails initial fetch and the retry
	client.records["conn-y"] = []model.RawSourceRecord{appleRecord(t, "10", "100")}

	store := newFakeStore(connX, connY)
	coordinator := reconcile.NewCoordinator(
		fakeRegistry{client}, fakePrices{}, fakeRates{}, store,
		reconcile.Options{BaseCurrency: "USD"},
	)

	snapshot, err := coordinator.Run(context.Background(), "portfolio-1")
	if err != nil {
		t.Fatalf("cycle should commit with the surviving connection: %v", err)
	}

	if got := client.callCount("conn-x"); got != 2 {
		t.Errorf("expected exactly initial fetch + 1 retry for conn-x, got %d calls", got)
	}
	if store.statuses["conn-x"] != model.ConnectionError {
		t.Errorf("expected conn-x marked error, got %s", store.statuses["conn-x"])
	}
	if store.statuses["conn-y"] != model.ConnectionConnected {
		t.Errorf("expected conn-y marked connected, got %s", store.statuses["conn-y"])
	}

	if len(snapshot.Holdings) != 1 {
		t.Fatalf("expected snapshot built from conn-y only, got %d holdings", len(snapshot.Holdings))
	}
	var fetchIssues int
	for _, issue := range snapshot.Issues {
		if issue.Kind == model.IssueConnectionFetch && issue.Subject == "conn-x" {
			fetchIssues++
		}
	}
	if fetchIssues != 1 {
		t.Errorf("expected one connection_fetch issue for conn-x, got %d", fetchIssues)
	}
}

// TestCoordinator_AllConnectionsFailed tests the cycle-fatal path.
//
// WHY: Zero usable data must abort without committing, leaving the previous
// snapshot authoritative instead of publishing an empty portfolio.
func TestCoordinator_AllConnectionsFailed(t *testing.T) {
	conn := testConnection("conn-x", model.BrokerSchwab)

	client := newFakeClient()
	client.failures["conn-x"] = -1

	store := newFakeStore(conn)
	coordinator := reconcile.NewCoordinator(
		fakeRegistry{client}, fakePrices{}, fakeRates{}, store,
		reconcile.Options{BaseCurrency: "USD"},
	)

	_, err := coordinator.Run(context.Background(), "portfolio-1")

	if !errors.Is(err, apperrors.ErrAllConnectionsFailed) {
		t.Fatalf("expected ErrAllConnectionsFailed, got %v", err)
	}
	if store.snapshotCount() != 0 {
		t.Error("no snapshot may be committed when every connection failed")
	}
	if store.statuses["conn-x"] != model.ConnectionError {
		t.Errorf("expected conn-x marked error, got %s", store.statuses["conn-x"])
	}
}

// TestCoordinator_RetrySucceeds tests the single immediate retry.
//
// WHY: Transient network faults are common against broker APIs; one retry
// recovers them without burning rate limits on repeated attempts.
func TestCoordinator_RetrySucceeds(t *testing.T) {
	conn := testConnection("conn-x", model.BrokerSchwab)

	client := newFakeClient()
	client.failures["conn-x"] = 1 // first fetch fails, retry succeeds
	client.records["conn-x"] = []model.RawSourceRecord{appleRecord(t, "10", "100")}

	store := newFakeStore(conn)
	coordinator := reconcile.NewCoordinator(
		fakeRegistry{client}, fakePrices{}, fakeRates{}, store,
		reconcile.Options{BaseCurrency: "USD"},
	)

	snapshot, err := coordinator.Run(context.Background(), "portfolio-1")
	if err != nil {
		t.Fatalf("retry should have recovered the cycle: %v", err)
	}

	if got := client.callCount("conn-x"); got != 2 {
		t.Errorf("expected 2 fetch calls, got %d", got)
	}
	if store.statuses["conn-x"] != model.ConnectionConnected {
		t.Errorf("expected conn-x connected after successful retry, got %s", store.statuses["conn-x"])
	}
	if len(snapshot.Holdings) != 1 {
		t.Errorf("expected 1 holding, got %d", len(snapshot.Holdings))
	}
}

// TestCoordinator_ConcurrentSyncRejected tests the one-in-flight rule.
//
// WHY: Two interleaved cycles could race on duplicate-resolution state. A
// second request must fail fast with a distinct error the API layer can map
// to 409.
func TestCoordinator_ConcurrentSyncRejected(t *testing.T) {
	conn := testConnection("conn-x", model.BrokerSchwab)

	client := newFakeClient()
	client.records["conn-x"] = []model.RawSourceRecord{appleRecord(t, "10", "100")}
	client.block = make(chan struct{})

	store := newFakeStore(conn)
	coordinator := reconcile.NewCoordinator(
		fakeRegistry{client}, fakePrices{}, fakeRates{}, store,
		reconcile.Options{BaseCurrency: "USD"},
	)

	firstDone := make(chan error, 1)
	go func() {
		_, err := coordinator.Run(context.Background(), "portfolio-1")
		firstDone <- err
	}()

	// Wait for the first cycle to reach its (blocked) fetch.
	deadline := time.After(2 * time.Second)
	for client.callCount("conn-x") == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle never started fetching")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := coordinator.Run(context.Background(), "portfolio-1")
	if !errors.Is(err, apperrors.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress for the second request, got %v", err)
	}

	close(client.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	// With the first cycle finished, a new sync is accepted again.
	if _, err := coordinator.Run(context.Background(), "portfolio-1"); err != nil {
		t.Fatalf("follow-up cycle failed: %v", err)
	}
}

// TestCoordinator_Cancellation tests phase-boundary cancellation.
//
// WHY: A cancelled cycle must discard its work and commit nothing; a
// half-committed snapshot would be worse than a stale one.
func TestCoordinator_Cancellation(t *testing.T) {
	conn := testConnection("conn-x", model.BrokerSchwab)

	client := newFakeClient()
	client.records["conn-x"] = []model.RawSourceRecord{appleRecord(t, "10", "100")}
	client.block = make(chan struct{})

	store := newFakeStore(conn)
	coordinator := reconcile.NewCoordinator(
		fakeRegistry{client}, fakePrices{}, fakeRates{}, store,
		reconcile.Options{BaseCurrency: "USD"},
	)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := coordinator.Run(ctx, "portfolio-1")
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for client.callCount("conn-x") == 0 {
		select {
		case <-deadline:
			t.Fatal("cycle never started fetching")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Cancel while the fetch is in flight, then let it complete.
	cancel()
	close(client.block)

	if err := <-done; !errors.Is(err, apperrors.ErrCycleCancelled) {
		t.Fatalf("expected ErrCycleCancelled, got %v", err)
	}
	if store.snapshotCount() != 0 {
		t.Error("cancelled cycle must not commit a snapshot")
	}
}

// TestCoordinator_DuplicateQueueIdentities tests identity stamping on the
// committed queue.
//
// WHY: Review verdicts target queue entries by ID over the API, and the
// snapshot store keys them on that ID. Entries without their own identity
// cannot be resolved, and two of them collide at commit, failing the cycle
// for exactly the portfolios that hold duplicates.
func TestCoordinator_DuplicateQueueIdentities(t *testing.T) {
	connA := testConnection("conn-a", model.BrokerSchwab)
	connB := testConnection("conn-b", model.BrokerPlaid)

	record := func(isin string) model.RawSourceRecord {
		return model.RawSourceRecord{
			Kind:        model.RecordPosition,
			Symbol:      isin,
			ISIN:        isin,
			Currency:    "USD",
			Quantity:    dec(t, "10"),
			AverageCost: dec(t, "100"),
		}
	}

	// Both connections report the same two instruments, producing two
	// duplicate candidates in one cycle.
	client := newFakeClient()
	client.records["conn-a"] = []model.RawSourceRecord{record("NL0010273215"), record("US0378331005")}
	client.records["conn-b"] = []model.RawSourceRecord{record("NL0010273215"), record("US0378331005")}

	store := newFakeStore(connA, connB)
	coordinator := reconcile.NewCoordinator(
		fakeRegistry{client}, fakePrices{}, fakeRates{}, store,
		reconcile.Options{BaseCurrency: "USD"},
	)

	snapshot, err := coordinator.Run(context.Background(), "portfolio-1")
	if err != nil {
		t.Fatalf("cycle with multiple candidates must commit: %v", err)
	}

	if len(snapshot.Duplicates) != 2 {
		t.Fatalf("expected 2 duplicate candidates, got %d", len(snapshot.Duplicates))
	}
	seen := make(map[string]bool)
	for _, candidate := range snapshot.Duplicates {
		if candidate.ID == "" {
			t.Error("expected every queue entry to carry an ID")
		}
		if seen[candidate.ID] {
			t.Errorf("duplicate queue entry ID %s", candidate.ID)
		}
		seen[candidate.ID] = true
		if candidate.CreatedAt.IsZero() {
			t.Error("expected every queue entry to carry a creation time")
		}
		if candidate.ResolutionStatus != model.ResolutionPending {
			t.Errorf("expected fresh candidates pending, got %s", candidate.ResolutionStatus)
		}
	}
	if store.snapshotCount() != 1 {
		t.Errorf("expected exactly one committed snapshot, got %d", store.snapshotCount())
	}
}

// TestCoordinator_MarketDataFlows tests price and FX plumbing end to end.
//
// WHY: The coordinator is the only place that turns collaborator lookups into
// the maps the aggregator consumes; a wiring mistake here produces silently
// wrong valuations.
func TestCoordinator_MarketDataFlows(t *testing.T) {
	conn := testConnection("conn-x", model.BrokerNordnet)

	client := newFakeClient()
	client.records["conn-x"] = []model.RawSourceRecord{{
		Kind:        model.RecordPosition,
		Symbol:      "EQNR",
		ISIN:        "NO0010096985",
		Exchange:    "OSL",
		Currency:    "NOK",
		Quantity:    dec(t, "100"),
		AverageCost: dec(t, "250"),
	}}

	store := newFakeStore(conn)
	coordinator := reconcile.NewCoordinator(
		fakeRegistry{client},
		fakePrices{prices: map[string]decimal.Decimal{"NO0010096985": dec(t, "300")}},
		fakeRates{rates: map[string]decimal.Decimal{"NOK": dec(t, "0.095")}},
		store,
		reconcile.Options{BaseCurrency: "USD"},
	)

	snapshot, err := coordinator.Run(context.Background(), "portfolio-1")
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	if len(snapshot.Holdings) != 1 {
		t.Fatalf("expected 1 holding, got %d", len(snapshot.Holdings))
	}
	h := snapshot.Holdings[0]
	// 100 * 300 NOK * 0.095 = 2850 USD
	if !h.MarketValue.Equal(dec(t, "2850")) {
		t.Errorf("expected market value 2850, got %s", h.MarketValue)
	}
	if snapshot.HasDegradedConversions {
		t.Error("real FX rate present, snapshot must not be degraded")
	}
	if len(store.positions) != 1 {
		t.Errorf("expected normalized positions persisted, got %d", len(store.positions))
	}
}
