package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
)

// Confidence scores and tolerances for duplicate matching. Calibrated as
// default policy; see DESIGN.md for the threshold discussion.
const (
	// ConfidenceAccountMatch applies when both positions carry the same
	// broker-reported external account number.
	ConfidenceAccountMatch = 1.0

	// ConfidenceValueMatch applies when quantities agree within
	// quantityTolerance and market values within valueTolerance, the
	// signature of one holding arriving via two data paths.
	ConfidenceValueMatch = 0.6

	// ConfidenceInstrumentOnly applies when only the instrument key matches.
	// Weak signal, surfaced for manual review and never auto-merged.
	ConfidenceInstrumentOnly = 0.3
)

var (
	quantityTolerance = decimal.NewFromFloat(0.01) // 1% relative
	valueTolerance    = decimal.NewFromFloat(0.02) // 2% relative
)

// DetectResult is the output of one duplicate detection pass. Malformed
// positions never abort the pass; they are skipped and counted.
type DetectResult struct {
	Candidates []model.DuplicateCandidate
	Skipped    int
}

// Detect compares positions across broker connections and flags likely
// duplicates: the same instrument held via two connections that plausibly
// report the same underlying account.
//
// Positions are grouped by instrument key and compared pairwise across
// different connections (repeats within one connection are not duplicates by
// definition). Matching pairs merge transitively into groups, so A~B and B~C
// yield one candidate covering all three. Candidates come back sorted by
// confidence descending, then instrument key ascending, giving the review
// queue a deterministic order.
func Detect(positions []model.Position) DetectResult {
	var result DetectResult

	byKey := make(map[string][]model.Position)
	var keys []string
	for _, p := range positions {
		if malformed(p) {
			result.Skipped++
			continue
		}
		if p.Closed() {
			continue
		}
		if _, seen := byKey[p.InstrumentKey]; !seen {
			keys = append(keys, p.InstrumentKey)
		}
		byKey[p.InstrumentKey] = append(byKey[p.InstrumentKey], p)
	}
	sort.Strings(keys)

	for _, key := range keys {
		group := byKey[key]
		if len(group) < 2 {
			continue
		}
		result.Candidates = append(result.Candidates, detectWithinInstrument(key, group)...)
	}

	sort.SliceStable(result.Candidates, func(i, j int) bool {
		a, b := result.Candidates[i], result.Candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.InstrumentKey < b.InstrumentKey
	})
	return result
}

// detectWithinInstrument runs pairwise comparison and transitive grouping for
// all positions of one instrument. Grouping uses an index-arena union-find:
// parent pointers over slice indexes, no node allocation.
func detectWithinInstrument(key string, group []model.Position) []model.DuplicateCandidate {
	arena := newUnionFind(len(group))

	// Best pair evidence per pair of roots, folded into the group after union.
	confidence := make([]float64, len(group))
	reason := make([]model.MatchReason, len(group))

	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			if group[i].SourceAccountID == group[j].SourceAccountID {
				continue
			}
			conf, why := pairConfidence(group[i], group[j])
			arena.union(i, j)
			root := arena.find(i)
			if conf > confidence[root] {
				confidence[root] = conf
				reason[root] = why
			}
		}
	}

	// Propagate the strongest evidence to each final root: unions after a
	// score was recorded may have moved it onto a stale root.
	for i := range group {
		root := arena.find(i)
		if i != root && confidence[i] > confidence[root] {
			confidence[root] = confidence[i]
			reason[root] = reason[i]
		}
	}

	members := make(map[int][]model.Position)
	for i := range group {
		root := arena.find(i)
		members[root] = append(members[root], group[i])
	}

	var candidates []model.DuplicateCandidate
	var roots []int
	for root := range members {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	for _, root := range roots {
		set := members[root]
		if len(set) < 2 {
			continue
		}

		ids := make([]string, len(set))
		for i, p := range set {
			ids[i] = p.ID
		}
		sort.Strings(ids)

		candidate := model.DuplicateCandidate{
			InstrumentKey:    key,
			PositionIDs:      ids,
			Confidence:       confidence[root],
			MatchReason:      reason[root],
			ResolutionStatus: model.ResolutionPending,
		}
		if candidate.Confidence >= ConfidenceValueMatch {
			candidate.CanonicalPositionID = canonical(set).ID
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// pairConfidence scores how strongly two positions of the same instrument
// look like one real-world holding.
func pairConfidence(a, b model.Position) (float64, model.MatchReason) {
	if a.AccountNumber != "" && a.AccountNumber == b.AccountNumber {
		return ConfidenceAccountMatch, model.MatchAccountNumber
	}
	if withinTolerance(a.Quantity, b.Quantity, quantityTolerance) &&
		withinTolerance(marketValue(a), marketValue(b), valueTolerance) {
		return ConfidenceValueMatch, model.MatchValueTolerance
	}
	return ConfidenceInstrumentOnly, model.MatchInstrumentOnly
}

// withinTolerance performs a relative-tolerance comparison:
// |a-b| <= tolerance * max(|a|,|b|). Exact equality on decimals is avoided
// everywhere in detection.
func withinTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	scale := decimal.Max(a.Abs(), b.Abs())
	return diff.LessThanOrEqual(tolerance.Mul(scale))
}

// marketValue values a position for tolerance comparison, preferring the
// reported market price and falling back to cost basis.
func marketValue(p model.Position) decimal.Decimal {
	if p.CurrentPrice.Valid {
		return p.Quantity.Mul(p.CurrentPrice.Decimal)
	}
	return p.CostBasis()
}

// canonical picks the position to keep from a duplicate group: the one from
// the oldest established connection (earliest non-zero sync time), then the
// higher quantity, then the lexicographically smallest source account ID as a
// deterministic fallback.
func canonical(set []model.Position) model.Position {
	best := set[0]
	for _, p := range set[1:] {
		if preferable(p, best) {
			best = p
		}
	}
	return best
}

func preferable(a, b model.Position) bool {
	aSynced, bSynced := !a.SourceSyncTime.IsZero(), !b.SourceSyncTime.IsZero()
	switch {
	case aSynced && !bSynced:
		return true
	case !aSynced && bSynced:
		return false
	case aSynced && bSynced && !a.SourceSyncTime.Equal(b.SourceSyncTime):
		return a.SourceSyncTime.Before(b.SourceSyncTime)
	}
	if !a.Quantity.Equal(b.Quantity) {
		return a.Quantity.GreaterThan(b.Quantity)
	}
	return a.SourceAccountID < b.SourceAccountID
}

// malformed filters positions that cannot safely participate in detection.
func malformed(p model.Position) bool {
	return p.InstrumentKey == "" || p.SourceAccountID == "" || p.Quantity.IsNegative()
}

// unionFind is a minimal arena-based disjoint set over slice indexes.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]] // path halving
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if ri < rj {
		u.parent[rj] = ri
	} else {
		u.parent[ri] = rj
	}
}
