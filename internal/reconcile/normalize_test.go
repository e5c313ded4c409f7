package reconcile_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/reconcile"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func testConnection(id string, broker model.Broker) model.BrokerConnection {
	return model.BrokerConnection{
		ID:          id,
		PortfolioID: "portfolio-1",
		Broker:      broker,
		Status:      model.ConnectionConnected,
	}
}

// TestNormalize_WeightedAverageCost tests transaction-history replay.
//
// WHY: The weighted-average-cost method is the only cost-basis accounting the
// engine supports. A wrong blend silently corrupts every downstream P&L
// number, so the canonical sequence is pinned exactly.
func TestNormalize_WeightedAverageCost(t *testing.T) {
	asOf := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	conn := testConnection("conn-a", model.BrokerCSV)

	t.Run("two buys blend to the weighted average", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind:     model.RecordTransactions,
			Symbol:   "AAPL",
			Exchange: "NASDAQ",
			Currency: "USD",
			Transactions: []model.SourceTransaction{
				{Type: model.TransactionBuy, Date: day(1), Quantity: dec(t, "10"), Price: dec(t, "100")},
				{Type: model.TransactionBuy, Date: day(2), Quantity: dec(t, "10"), Price: dec(t, "120")},
			},
		}}

		result := reconcile.Normalize(records, conn, asOf)

		if len(result.Issues) != 0 {
			t.Fatalf("unexpected issues: %v", result.Issues)
		}
		if len(result.Positions) != 1 {
			t.Fatalf("expected 1 position, got %d", len(result.Positions))
		}
		p := result.Positions[0]
		if !p.Quantity.Equal(dec(t, "20")) {
			t.Errorf("expected quantity 20, got %s", p.Quantity)
		}
		if !p.AverageCost.Equal(dec(t, "110")) {
			t.Errorf("expected average cost 110, got %s", p.AverageCost)
		}
	})

	t.Run("sell reduces quantity and leaves average cost unchanged", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind:     model.RecordTransactions,
			Symbol:   "AAPL",
			Exchange: "NASDAQ",
			Currency: "USD",
			Transactions: []model.SourceTransaction{
				{Type: model.TransactionBuy, Date: day(1), Quantity: dec(t, "10"), Price: dec(t, "100")},
				{Type: model.TransactionBuy, Date: day(2), Quantity: dec(t, "10"), Price: dec(t, "120")},
				{Type: model.TransactionSell, Date: day(3), Quantity: dec(t, "5"), Price: dec(t, "130")},
			},
		}}

		result := reconcile.Normalize(records, conn, asOf)

		p := result.Positions[0]
		if !p.Quantity.Equal(dec(t, "15")) {
			t.Errorf("expected quantity 15, got %s", p.Quantity)
		}
		if !p.AverageCost.Equal(dec(t, "110")) {
			t.Errorf("expected average cost still 110 after sell, got %s", p.AverageCost)
		}
	})

	t.Run("fees are folded into the buy cost", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind:     model.RecordTransactions,
			Symbol:   "AAPL",
			Exchange: "NASDAQ",
			Currency: "USD",
			Transactions: []model.SourceTransaction{
				{Type: model.TransactionBuy, Date: day(1), Quantity: dec(t, "10"), Price: dec(t, "100"), Fees: dec(t, "10")},
			},
		}}

		result := reconcile.Normalize(records, conn, asOf)

		p := result.Positions[0]
		if !p.AverageCost.Equal(dec(t, "101")) {
			t.Errorf("expected average cost 101 with fees, got %s", p.AverageCost)
		}
	})

	t.Run("overselling clamps the position at zero", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind:     model.RecordTransactions,
			Symbol:   "AAPL",
			Exchange: "NASDAQ",
			Currency: "USD",
			Transactions: []model.SourceTransaction{
				{Type: model.TransactionBuy, Date: day(1), Quantity: dec(t, "10"), Price: dec(t, "100")},
				{Type: model.TransactionSell, Date: day(2), Quantity: dec(t, "15"), Price: dec(t, "100")},
			},
		}}

		result := reconcile.Normalize(records, conn, asOf)

		p := result.Positions[0]
		if !p.Quantity.IsZero() {
			t.Errorf("expected clamped quantity 0, got %s", p.Quantity)
		}
		if !p.Closed() {
			t.Error("expected position to report closed")
		}
	})

	t.Run("out-of-order history is replayed by date", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind:     model.RecordTransactions,
			Symbol:   "AAPL",
			Exchange: "NASDAQ",
			Currency: "USD",
			Transactions: []model.SourceTransaction{
				{Type: model.TransactionSell, Date: day(3), Quantity: dec(t, "5"), Price: dec(t, "130")},
				{Type: model.TransactionBuy, Date: day(1), Quantity: dec(t, "10"), Price: dec(t, "100")},
			},
		}}

		result := reconcile.Normalize(records, conn, asOf)

		p := result.Positions[0]
		if !p.Quantity.Equal(dec(t, "5")) {
			t.Errorf("expected quantity 5, got %s", p.Quantity)
		}
		if !p.AverageCost.Equal(dec(t, "100")) {
			t.Errorf("expected average cost 100, got %s", p.AverageCost)
		}
	})
}

// TestNormalize_InstrumentKeys tests key resolution and partial failure.
//
// WHY: Instrument keys are the join column for the whole engine. ISIN must
// win over symbol@exchange, and an unresolvable record must never take the
// rest of the batch down with it.
func TestNormalize_InstrumentKeys(t *testing.T) {
	asOf := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	conn := testConnection("conn-a", model.BrokerSchwab)

	t.Run("ISIN is preferred over symbol and exchange", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind:     model.RecordPosition,
			Symbol:   "EQNR",
			ISIN:     "NO0010096985",
			Exchange: "OSL",
			Currency: "NOK",
			Quantity: dec(t, "100"), AverageCost: dec(t, "250"),
		}}

		result := reconcile.Normalize(records, conn, asOf)

		if got := result.Positions[0].InstrumentKey; got != "NO0010096985" {
			t.Errorf("expected ISIN key, got %q", got)
		}
	})

	t.Run("symbol and exchange combine when ISIN is absent", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind:     model.RecordPosition,
			Symbol:   "aapl",
			Exchange: "nasdaq",
			Currency: "USD",
			Quantity: dec(t, "10"), AverageCost: dec(t, "100"),
		}}

		result := reconcile.Normalize(records, conn, asOf)

		if got := result.Positions[0].InstrumentKey; got != "AAPL@NASDAQ" {
			t.Errorf("expected AAPL@NASDAQ, got %q", got)
		}
	})

	t.Run("unresolved symbol is reported and the batch continues", func(t *testing.T) {
		records := []model.RawSourceRecord{
			{Kind: model.RecordPosition, Symbol: "MYSTERY", Currency: "USD", Quantity: dec(t, "1"), AverageCost: dec(t, "1")},
			{Kind: model.RecordPosition, Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD", Quantity: dec(t, "10"), AverageCost: dec(t, "100")},
		}

		result := reconcile.Normalize(records, conn, asOf)

		if len(result.Positions) != 1 {
			t.Fatalf("expected 1 normalized position, got %d", len(result.Positions))
		}
		if len(result.Issues) != 1 {
			t.Fatalf("expected 1 issue, got %d", len(result.Issues))
		}
		if result.Issues[0].Kind != model.IssueUnresolvedInstrument {
			t.Errorf("expected unresolved_instrument issue, got %s", result.Issues[0].Kind)
		}
	})

	t.Run("repeated instrument from one connection merges into one position", func(t *testing.T) {
		records := []model.RawSourceRecord{
			{Kind: model.RecordPosition, Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD", Quantity: dec(t, "10"), AverageCost: dec(t, "100")},
			{Kind: model.RecordPosition, Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD", Quantity: dec(t, "10"), AverageCost: dec(t, "120")},
		}

		result := reconcile.Normalize(records, conn, asOf)

		if len(result.Positions) != 1 {
			t.Fatalf("expected merged position, got %d", len(result.Positions))
		}
		p := result.Positions[0]
		if !p.Quantity.Equal(dec(t, "20")) || !p.AverageCost.Equal(dec(t, "110")) {
			t.Errorf("expected 20 @ 110, got %s @ %s", p.Quantity, p.AverageCost)
		}
	})

	t.Run("negative quantity is rejected as malformed", func(t *testing.T) {
		records := []model.RawSourceRecord{{
			Kind: model.RecordPosition, Symbol: "AAPL", Exchange: "NASDAQ", Currency: "USD",
			Quantity: dec(t, "-5"), AverageCost: dec(t, "100"),
		}}

		result := reconcile.Normalize(records, conn, asOf)

		if len(result.Positions) != 0 {
			t.Fatalf("expected no positions, got %d", len(result.Positions))
		}
		if len(result.Issues) != 1 || result.Issues[0].Kind != model.IssueMalformedPosition {
			t.Fatalf("expected malformed_position issue, got %v", result.Issues)
		}
	})
}

func day(d int) time.Time {
	return time.Date(2026, 7, d, 0, 0, 0, 0, time.UTC)
}
