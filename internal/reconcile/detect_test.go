package reconcile_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/reconcile"
)

func position(t *testing.T, id, key, account string, quantity, averageCost string) model.Position {
	t.Helper()
	return model.Position{
		ID:              id,
		InstrumentKey:   key,
		SourceAccountID: account,
		Quantity:        dec(t, quantity),
		AverageCost:     dec(t, averageCost),
		Currency:        "USD",
	}
}

// TestDetect_Confidence tests the three confidence tiers.
//
// WHY: Confidence drives whether a candidate is eligible for auto-canonical
// selection or stays manual-review-only. Each tier has distinct downstream
// behavior, so each matching rule is pinned separately.
func TestDetect_Confidence(t *testing.T) {
	t.Run("matching account numbers score 1.0", func(t *testing.T) {
		a := position(t, "conn-a:EQNR.OL@OSL", "EQNR.OL@OSL", "conn-a", "100", "250")
		b := position(t, "conn-b:EQNR.OL@OSL", "EQNR.OL@OSL", "conn-b", "100", "250")
		a.AccountNumber = "12345678"
		b.AccountNumber = "12345678"
		a.Currency, b.Currency = "NOK", "NOK"

		result := reconcile.Detect([]model.Position{a, b})

		if len(result.Candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
		}
		c := result.Candidates[0]
		if c.Confidence != reconcile.ConfidenceAccountMatch {
			t.Errorf("expected confidence 1.0, got %v", c.Confidence)
		}
		if c.MatchReason != model.MatchAccountNumber {
			t.Errorf("expected account_number_match, got %s", c.MatchReason)
		}
		if c.ResolutionStatus != model.ResolutionPending {
			t.Errorf("expected pending status, got %s", c.ResolutionStatus)
		}
	})

	t.Run("quantities within 1% and values within 2% score 0.6", func(t *testing.T) {
		a := position(t, "conn-a:VWRL@AMS", "VWRL@AMS", "conn-a", "100", "95")
		b := position(t, "conn-b:VWRL@AMS", "VWRL@AMS", "conn-b", "100.5", "95.2")

		result := reconcile.Detect([]model.Position{a, b})

		if len(result.Candidates) != 1 {
			t.Fatalf("expected 1 candidate, got %d", len(result.Candidates))
		}
		if got := result.Candidates[0].Confidence; got != reconcile.ConfidenceValueMatch {
			t.Errorf("expected confidence 0.6, got %v", got)
		}
	})

	t.Run("bare instrument match scores 0.3 with no canonical pick", func(t *testing.T) {
		a := position(t, "conn-a:AAPL@NASDAQ", "AAPL@NASDAQ", "conn-a", "100", "90")
		b := position(t, "conn-b:AAPL@NASDAQ", "AAPL@NASDAQ", "conn-b", "20", "150")

		result := reconcile.Detect([]model.Position{a, b})

		c := result.Candidates[0]
		if c.Confidence != reconcile.ConfidenceInstrumentOnly {
			t.Errorf("expected confidence 0.3, got %v", c.Confidence)
		}
		if c.CanonicalPositionID != "" {
			t.Errorf("weak candidates must not pre-select a canonical position, got %q", c.CanonicalPositionID)
		}
	})

	t.Run("same connection repeats are not duplicates", func(t *testing.T) {
		a := position(t, "pos-1", "AAPL@NASDAQ", "conn-a", "100", "90")
		b := position(t, "pos-2", "AAPL@NASDAQ", "conn-a", "100", "90")

		result := reconcile.Detect([]model.Position{a, b})

		if len(result.Candidates) != 0 {
			t.Fatalf("expected no candidates for same-connection repeats, got %d", len(result.Candidates))
		}
	})

	t.Run("closed and malformed positions are skipped", func(t *testing.T) {
		closed := position(t, "conn-a:AAPL@NASDAQ", "AAPL@NASDAQ", "conn-a", "0", "90")
		broken := position(t, "pos-x", "", "conn-b", "10", "90")
		ok := position(t, "conn-c:AAPL@NASDAQ", "AAPL@NASDAQ", "conn-c", "10", "90")

		result := reconcile.Detect([]model.Position{closed, broken, ok})

		if len(result.Candidates) != 0 {
			t.Fatalf("expected no candidates, got %d", len(result.Candidates))
		}
		if result.Skipped != 1 {
			t.Errorf("expected 1 skipped malformed position, got %d", result.Skipped)
		}
	})
}

// TestDetect_TransitiveGrouping tests union-find merging.
//
// WHY: If A matches B and B matches C, presenting two overlapping candidates
// would let a reviewer resolve them inconsistently. The detector must emit
// exactly one candidate covering the whole group.
func TestDetect_TransitiveGrouping(t *testing.T) {
	a := position(t, "conn-a:VWRL@AMS", "VWRL@AMS", "conn-a", "100", "95")
	b := position(t, "conn-b:VWRL@AMS", "VWRL@AMS", "conn-b", "100", "95")
	c := position(t, "conn-c:VWRL@AMS", "VWRL@AMS", "conn-c", "100", "95")

	result := reconcile.Detect([]model.Position{a, b, c})

	if len(result.Candidates) != 1 {
		t.Fatalf("expected one transitive group, got %d candidates", len(result.Candidates))
	}
	if got := len(result.Candidates[0].PositionIDs); got != 3 {
		t.Errorf("expected group of 3 positions, got %d", got)
	}
}

// TestDetect_CanonicalTieBreak tests the kept-position selection order.
//
// WHY: The canonical pick decides which quantity survives a confirmed merge.
// The fallback chain (oldest link, then quantity, then account ID) must be
// deterministic or two runs could keep different positions.
func TestDetect_CanonicalTieBreak(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("earliest established connection wins", func(t *testing.T) {
		a := position(t, "conn-a:VWRL@AMS", "VWRL@AMS", "conn-a", "100", "95")
		b := position(t, "conn-b:VWRL@AMS", "VWRL@AMS", "conn-b", "100", "95")
		a.SourceSyncTime = newer
		b.SourceSyncTime = older

		result := reconcile.Detect([]model.Position{a, b})

		if got := result.Candidates[0].CanonicalPositionID; got != b.ID {
			t.Errorf("expected oldest-link position %q canonical, got %q", b.ID, got)
		}
	})

	t.Run("higher quantity wins when sync times tie", func(t *testing.T) {
		a := position(t, "conn-a:VWRL@AMS", "VWRL@AMS", "conn-a", "100", "95")
		b := position(t, "conn-b:VWRL@AMS", "VWRL@AMS", "conn-b", "100.5", "95")
		a.SourceSyncTime = older
		b.SourceSyncTime = older

		result := reconcile.Detect([]model.Position{a, b})

		if got := result.Candidates[0].CanonicalPositionID; got != b.ID {
			t.Errorf("expected higher-quantity position %q canonical, got %q", b.ID, got)
		}
	})

	t.Run("smallest source account ID is the deterministic fallback", func(t *testing.T) {
		a := position(t, "conn-b:VWRL@AMS", "VWRL@AMS", "conn-b", "100", "95")
		b := position(t, "conn-a:VWRL@AMS", "VWRL@AMS", "conn-a", "100", "95")

		result := reconcile.Detect([]model.Position{a, b})

		if got := result.Candidates[0].CanonicalPositionID; got != b.ID {
			t.Errorf("expected smallest account ID position %q canonical, got %q", b.ID, got)
		}
	})
}

// TestDetect_DeterministicOrdering tests review queue presentation order.
//
// WHY: The review queue is rendered to users; its order must be stable across
// identical runs (confidence descending, then instrument key ascending) or
// the UI would reshuffle under their cursor.
func TestDetect_DeterministicOrdering(t *testing.T) {
	a1 := position(t, "conn-a:AAPL@NASDAQ", "AAPL@NASDAQ", "conn-a", "100", "90")
	a2 := position(t, "conn-b:AAPL@NASDAQ", "AAPL@NASDAQ", "conn-b", "20", "150")
	e1 := position(t, "conn-a:NO0010096985", "NO0010096985", "conn-a", "100", "250")
	e2 := position(t, "conn-b:NO0010096985", "NO0010096985", "conn-b", "100", "250")
	e1.AccountNumber, e2.AccountNumber = "999", "999"
	z1 := position(t, "conn-a:ZZZ@XETRA", "ZZZ@XETRA", "conn-a", "5", "10")
	z2 := position(t, "conn-b:ZZZ@XETRA", "ZZZ@XETRA", "conn-b", "7", "300")

	positions := []model.Position{z1, a1, e1, a2, z2, e2}

	first := reconcile.Detect(positions)
	second := reconcile.Detect(positions)

	if !reflect.DeepEqual(first.Candidates, second.Candidates) {
		t.Fatal("two detection passes over identical input returned different queues")
	}

	if len(first.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(first.Candidates))
	}
	if first.Candidates[0].InstrumentKey != "NO0010096985" {
		t.Errorf("expected highest-confidence candidate first, got %s", first.Candidates[0].InstrumentKey)
	}
	if first.Candidates[1].InstrumentKey != "AAPL@NASDAQ" || first.Candidates[2].InstrumentKey != "ZZZ@XETRA" {
		t.Errorf("expected equal-confidence candidates ordered by instrument key, got %s then %s",
			first.Candidates[1].InstrumentKey, first.Candidates[2].InstrumentKey)
	}
}

// TestDetect_RelativeTolerance tests that comparisons are relative, not exact.
//
// WHY: Brokers round quantities and prices differently. Exact decimal
// equality would miss nearly every real redundant-path duplicate.
func TestDetect_RelativeTolerance(t *testing.T) {
	tests := []struct {
		name       string
		quantityA  string
		quantityB  string
		confidence float64
	}{
		{"just inside 1% quantity tolerance", "100", "100.9", reconcile.ConfidenceValueMatch},
		{"outside 1% quantity tolerance", "100", "103", reconcile.ConfidenceInstrumentOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := position(t, "conn-a:VWRL@AMS", "VWRL@AMS", "conn-a", tt.quantityA, "95")
			b := position(t, "conn-b:VWRL@AMS", "VWRL@AMS", "conn-b", tt.quantityB, "95")
			a.CurrentPrice = decimal.NewNullDecimal(dec(t, "95"))
			b.CurrentPrice = decimal.NewNullDecimal(dec(t, "95"))

			result := reconcile.Detect([]model.Position{a, b})

			if got := result.Candidates[0].Confidence; got != tt.confidence {
				t.Errorf("expected confidence %v, got %v", tt.confidence, got)
			}
		})
	}
}
