package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

var hundred = decimal.NewFromInt(100)

// AggregateInput bundles everything one aggregation pass needs. Price and FX
// lookups are plain maps built by the coordinator before the pass; missing
// entries trigger the documented fallbacks rather than failures.
type AggregateInput struct {
	Positions    []model.Position
	Duplicates   []model.DuplicateCandidate
	Resolutions  []model.ResolutionDecision
	BaseCurrency string

	// FxRates maps a source currency to its rate into BaseCurrency.
	FxRates map[string]decimal.Decimal

	// Prices maps an instrument key to its most recent market price.
	Prices map[string]decimal.Decimal
}

// AggregateResult is the consolidated view produced by one aggregation pass.
type AggregateResult struct {
	Holdings               []model.AggregatedHolding
	TotalValue             decimal.Decimal
	TotalCost              decimal.Decimal
	TotalUnrealizedPnL     decimal.Decimal
	HasDegradedConversions bool
	Issues                 []model.Issue
}

// Aggregate consolidates normalized, de-duplicated positions into
// portfolio-level holdings in the base currency.
//
// Exclusion rule: for every candidate confirmed as a duplicate, all positions
// except the canonical one contribute zero to the sums. They remain listed in
// ContributingPositions for audit. Pending candidates are NOT excluded: both
// positions count until someone resolves them. Double counting is preferred
// over silently dropping value absent confirmation.
//
// A missing FX rate degrades that holding to a 1:1 conversion and sets
// HasDegradedConversions on the result. A missing price values the holding at
// cost basis and marks it PriceStale. Both are reported as issues, never as
// failures.
//
// The pass is deterministic: identical inputs produce identical holdings in
// identical order (instrument key ascending).
func Aggregate(in AggregateInput) AggregateResult {
	var result AggregateResult
	result.TotalValue = decimal.Zero
	result.TotalCost = decimal.Zero

	excluded := excludedPositions(in.Duplicates, in.Resolutions)

	byKey := make(map[string][]model.Position)
	var keys []string
	for _, p := range in.Positions {
		if p.Closed() {
			continue
		}
		if _, seen := byKey[p.InstrumentKey]; !seen {
			keys = append(keys, p.InstrumentKey)
		}
		byKey[p.InstrumentKey] = append(byKey[p.InstrumentKey], p)
	}
	sort.Strings(keys)

	missingRates := make(map[string]bool)

	for _, key := range keys {
		group := byKey[key]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ID < group[j].ID
		})

		holding := model.AggregatedHolding{
			InstrumentKey: key,
			TotalQuantity: decimal.Zero,
			TotalCost:     decimal.Zero,
			MarketValue:   decimal.Zero,
		}

		price, havePrice := in.Prices[key]
		if !havePrice {
			holding.PriceStale = true
			result.Issues = append(result.Issues, model.Issue{
				Kind:    model.IssueMissingPrice,
				Subject: key,
				Detail:  "valued at cost basis",
			})
		}

		for _, p := range group {
			contribution := model.ContributingPosition{
				PositionID:        p.ID,
				SourceAccountID:   p.SourceAccountID,
				Broker:            p.Broker,
				Quantity:          p.Quantity,
				ExcludedDuplicate: excluded[p.ID],
			}
			holding.ContributingPositions = append(holding.ContributingPositions, contribution)
			if excluded[p.ID] {
				continue
			}

			rate, degraded := conversionRate(p.Currency, in.BaseCurrency, in.FxRates)
			if degraded {
				holding.DegradedConversion = true
				result.HasDegradedConversions = true
				pair := p.Currency + "/" + in.BaseCurrency
				if !missingRates[pair] {
					missingRates[pair] = true
					result.Issues = append(result.Issues, model.Issue{
						Kind:    model.IssueMissingFxRate,
						Subject: pair,
						Detail:  "converted 1:1",
					})
				}
			}

			value := p.CostBasis()
			if havePrice {
				value = p.Quantity.Mul(price)
			}

			holding.TotalQuantity = holding.TotalQuantity.Add(p.Quantity)
			holding.TotalCost = holding.TotalCost.Add(p.CostBasis().Mul(rate))
			holding.MarketValue = holding.MarketValue.Add(value.Mul(rate))
		}

		holding.UnrealizedPnL = holding.MarketValue.Sub(holding.TotalCost)
		if holding.TotalCost.IsPositive() {
			holding.UnrealizedPnLPercent = holding.UnrealizedPnL.Div(holding.TotalCost).Mul(hundred)
		} else {
			holding.UnrealizedPnLPercent = decimal.Zero
		}

		result.Holdings = append(result.Holdings, holding)
		result.TotalValue = result.TotalValue.Add(holding.MarketValue)
		result.TotalCost = result.TotalCost.Add(holding.TotalCost)
	}

	result.TotalUnrealizedPnL = result.TotalValue.Sub(result.TotalCost)
	return result
}

// excludedPositions computes the set of position IDs excluded from summation:
// every non-canonical member of a candidate whose effective resolution is
// confirmed-duplicate. A user decision may override the detector's canonical
// pick.
func excludedPositions(candidates []model.DuplicateCandidate, resolutions []model.ResolutionDecision) map[string]bool {
	excluded := make(map[string]bool)

	for _, candidate := range candidates {
		status := candidate.ResolutionStatus
		keep := candidate.CanonicalPositionID

		if decision, ok := decisionFor(candidate, resolutions); ok {
			status = decision.Decision
			if decision.CanonicalPositionID != "" {
				keep = decision.CanonicalPositionID
			}
		}

		// No position to keep means no exclusion: zeroing the whole group
		// would be worse than double counting it.
		if status != model.ResolutionConfirmedDuplicate || keep == "" {
			continue
		}
		for _, id := range candidate.PositionIDs {
			if id != keep {
				excluded[id] = true
			}
		}
	}
	return excluded
}

// decisionFor finds the resolution decision applying to a candidate. Matching
// is by candidate ID when present, else by instrument key plus identical
// position set, which lets decisions recorded against a previous cycle's
// candidate carry over to its re-detected equivalent.
func decisionFor(candidate model.DuplicateCandidate, resolutions []model.ResolutionDecision) (model.ResolutionDecision, bool) {
	for _, decision := range resolutions {
		if decision.CandidateID != "" && decision.CandidateID == candidate.ID {
			return decision, true
		}
		if decision.InstrumentKey == candidate.InstrumentKey && samePositionSet(decision.PositionIDs, candidate.PositionIDs) {
			return decision, true
		}
	}
	return model.ResolutionDecision{}, false
}

func samePositionSet(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}

// conversionRate returns the multiplier converting from the position currency
// into the base currency. Same-currency positions convert at exactly 1. A
// missing rate falls back to 1:1 and reports the conversion as degraded.
func conversionRate(from, base string, rates map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if from == base || from == "" {
		return decimal.NewFromInt(1), false
	}
	if rate, ok := rates[from]; ok && rate.IsPositive() {
		return rate, false
	}
	return decimal.NewFromInt(1), true
}
