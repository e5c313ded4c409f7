package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// NormalizeResult carries everything the normalizer could produce from one
// batch. Normalization has partial-failure semantics: records that cannot be
// normalized become issues, the rest become positions. The batch never fails
// as a whole.
type NormalizeResult struct {
	Positions []model.Position
	Issues    []model.Issue
}

// Normalize converts heterogeneous source records from one broker connection
// into canonical positions as of the given time.
//
// Pre-computed position records (broker API path) are validated and mapped
// directly. Transaction-history records (manual entry and CSV import paths)
// are replayed using weighted-average-cost accounting: each buy blends fees
// and price into a single per-unit cost, each sell reduces quantity and
// leaves the average cost unchanged.
//
// Instrument keys prefer ISIN when present, else SYMBOL@EXCHANGE. Records
// whose symbol cannot be resolved to a stable key are reported as issues and
// excluded from the output.
//
// Multiple records for the same instrument from the same connection are
// merged into one position with a blended average cost.
func Normalize(records []model.RawSourceRecord, conn model.BrokerConnection, asOf time.Time) NormalizeResult {
	var result NormalizeResult

	byKey := make(map[string]*model.Position)
	var order []string

	for _, record := range records {
		key, err := instrumentKey(record)
		if err != nil {
			result.Issues = append(result.Issues, model.Issue{
				Kind:    model.IssueUnresolvedInstrument,
				Subject: record.Symbol,
				Detail:  err.Error(),
			})
			continue
		}

		quantity, averageCost, price, err := resolveCost(record)
		if err != nil {
			result.Issues = append(result.Issues, model.Issue{
				Kind:    model.IssueMalformedPosition,
				Subject: key,
				Detail:  err.Error(),
			})
			continue
		}

		existing, ok := byKey[key]
		if !ok {
			syncTime := time.Time{}
			if conn.LastSyncTime != nil {
				syncTime = *conn.LastSyncTime
			}
			byKey[key] = &model.Position{
				ID:              positionID(conn.ID, key),
				InstrumentKey:   key,
				Symbol:          strings.ToUpper(strings.TrimSpace(record.Symbol)),
				ISIN:            strings.ToUpper(strings.TrimSpace(record.ISIN)),
				Exchange:        strings.ToUpper(strings.TrimSpace(record.Exchange)),
				SourceAccountID: conn.ID,
				Broker:          conn.Broker,
				AccountNumber:   conn.AccountNumber,
				Quantity:        quantity,
				AverageCost:     averageCost,
				Currency:        record.Currency,
				CurrentPrice:    price,
				LastUpdated:     asOf,
				SourceSyncTime:  syncTime,
			}
			order = append(order, key)
			continue
		}

		// Same instrument reported twice by one connection: blend into a
		// single position with a weighted average cost.
		combined := existing.Quantity.Add(quantity)
		if combined.IsPositive() {
			blended := existing.Quantity.Mul(existing.AverageCost).
				Add(quantity.Mul(averageCost)).
				Div(combined)
			existing.AverageCost = blended
		}
		existing.Quantity = combined
		if price.Valid {
			existing.CurrentPrice = price
		}
	}

	sort.Strings(order)
	for _, key := range order {
		result.Positions = append(result.Positions, *byKey[key])
	}
	return result
}

// instrumentKey resolves a record to its stable instrument identifier.
// ISIN wins when present; otherwise symbol and exchange combine. A record
// with neither ISIN nor exchange is ambiguous and cannot be keyed.
func instrumentKey(record model.RawSourceRecord) (string, error) {
	isin := strings.ToUpper(strings.TrimSpace(record.ISIN))
	if isin != "" {
		return isin, nil
	}

	symbol := strings.ToUpper(strings.TrimSpace(record.Symbol))
	if symbol == "" {
		return "", fmt.Errorf("record has no symbol")
	}
	exchange := strings.ToUpper(strings.TrimSpace(record.Exchange))
	if exchange == "" {
		return "", fmt.Errorf("symbol %s has no exchange and no ISIN", symbol)
	}
	return symbol + "@" + exchange, nil
}

// resolveCost extracts quantity, per-unit average cost and optional price from
// a record, replaying transaction history when no pre-computed position is
// available.
func resolveCost(record model.RawSourceRecord) (quantity, averageCost decimal.Decimal, price decimal.NullDecimal, err error) {
	switch record.Kind {
	case model.RecordPosition:
		if record.Quantity.IsNegative() {
			return decimal.Zero, decimal.Zero, decimal.NullDecimal{}, fmt.Errorf("negative quantity %s", record.Quantity)
		}
		if record.AverageCost.IsNegative() {
			return decimal.Zero, decimal.Zero, decimal.NullDecimal{}, fmt.Errorf("negative average cost %s", record.AverageCost)
		}
		return record.Quantity, record.AverageCost, record.Price, nil

	case model.RecordTransactions:
		quantity, averageCost, err = replayTransactions(record.Transactions)
		return quantity, averageCost, record.Price, err

	default:
		return decimal.Zero, decimal.Zero, decimal.NullDecimal{}, fmt.Errorf("unknown record kind %q", record.Kind)
	}
}

// replayTransactions computes the running position from a trade history using
// the weighted-average-cost method. On each buy:
//
//	newAvgCost = (oldQty*oldAvgCost + buyQty*buyPrice + fees) / (oldQty + buyQty)
//
// On each sell the quantity decreases and the average cost is unchanged;
// realized gains are not tracked here. Selling more than held clamps the
// position at zero.
func replayTransactions(transactions []model.SourceTransaction) (decimal.Decimal, decimal.Decimal, error) {
	sorted := make([]model.SourceTransaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	quantity := decimal.Zero
	averageCost := decimal.Zero

	for _, tx := range sorted {
		if tx.Quantity.IsNegative() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("transaction on %s has negative quantity", tx.Date.Format("2006-01-02"))
		}

		switch tx.Type {
		case model.TransactionBuy:
			newQuantity := quantity.Add(tx.Quantity)
			if newQuantity.IsPositive() {
				totalCost := quantity.Mul(averageCost).
					Add(tx.Quantity.Mul(tx.Price)).
					Add(tx.Fees)
				averageCost = totalCost.Div(newQuantity)
			}
			quantity = newQuantity
		case model.TransactionSell:
			quantity = quantity.Sub(tx.Quantity)
			if quantity.IsNegative() {
				quantity = decimal.Zero
			}
			if quantity.IsZero() {
				averageCost = decimal.Zero
			}
		default:
			return decimal.Zero, decimal.Zero, fmt.Errorf("unknown transaction type %q", tx.Type)
		}
	}

	return quantity, averageCost, nil
}

// positionID builds the stable identifier for a position. Keyed on connection
// and instrument so the same holding keeps its ID across reconciliation
// cycles, which lets resolution decisions survive re-detection.
func positionID(connectionID, key string) string {
	return connectionID + ":" + key
}
