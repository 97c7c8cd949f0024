// Package reduce implements the two post-consensus reducers (C9): a
// list-union merge over list-shaped fields, and a selection-policy
// reducer that derives a scalar from a list field when tolerance allows
// it, per spec.md §4.9. Both passes are pure and side-effect free beyond
// the fields map they return.
package reduce

import (
	"sort"
	"strconv"
	"strings"
)

// ListCandidate is one approved-domain candidate contributing items to a
// list-union field.
type ListCandidate struct {
	Tier           int
	Score          float64
	ApprovedDomain bool
	Items          []string
}

// ListUnionPolicy is the closed set of list_rules.item_union values.
type ListUnionPolicy string

const (
	SetUnion     ListUnionPolicy = "set_union"
	OrderedUnion ListUnionPolicy = "ordered_union"
	EvidenceUnion ListUnionPolicy = "evidence_union"
)

// AppliedEntry records one field's list-union merge outcome.
type AppliedEntry struct {
	Field      string
	Policy     ListUnionPolicy
	AddedCount int
}

// ListUnion merges a winning list value with other approved-domain
// candidates' items, per spec.md §4.9. Candidates are processed sorted
// tier ascending, score descending; set_union dedupes case-insensitively,
// ordered_union additionally preserves each candidate's internal order.
// evidence_union is a reserved no-op.
func ListUnion(field string, policy ListUnionPolicy, winning []string, others []ListCandidate) ([]string, AppliedEntry) {
	applied := AppliedEntry{Field: field, Policy: policy}
	if policy == EvidenceUnion {
		return winning, applied
	}

	sorted := make([]ListCandidate, 0, len(others))
	for _, c := range others {
		if c.ApprovedDomain {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Tier != sorted[j].Tier {
			return sorted[i].Tier < sorted[j].Tier
		}
		return sorted[i].Score > sorted[j].Score
	})

	seen := map[string]bool{}
	result := make([]string, 0, len(winning))
	for _, v := range winning {
		key := strings.ToLower(strings.TrimSpace(v))
		if !seen[key] {
			seen[key] = true
			result = append(result, v)
		}
	}

	added := 0
	for _, cand := range sorted {
		for _, v := range cand.Items {
			key := strings.ToLower(strings.TrimSpace(v))
			if seen[key] {
				continue
			}
			seen[key] = true
			result = append(result, v)
			added++
		}
	}
	applied.AddedCount = added
	return result, applied
}

// SelectionReduceOutcome is the closed set of selection-policy reducer
// results, spec.md §4.9.
type SelectionReduceOutcome string

const (
	SingleValue           SelectionReduceOutcome = "single_value"
	MedianWithinTolerance  SelectionReduceOutcome = "median_within_tolerance"
	ExceedsTolerance       SelectionReduceOutcome = "exceeds_tolerance"
)

// SelectionReduceResult is SelectionReduce's return value.
type SelectionReduceResult struct {
	Value   string
	Outcome SelectionReduceOutcome
}

// SelectionReduce derives a scalar from a list of numeric-ish values
// (e.g. timestamps) using a tolerance window, per spec.md §4.9's
// {source_field, tolerance_ms, rule:"reduce"} selection_policy object.
func SelectionReduce(values []int64, toleranceMs int64) SelectionReduceResult {
	if len(values) == 0 {
		return SelectionReduceResult{Value: "unk", Outcome: ExceedsTolerance}
	}
	if len(values) == 1 {
		return SelectionReduceResult{Value: strconv.FormatInt(values[0], 10), Outcome: SingleValue}
	}

	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	spread := sorted[len(sorted)-1] - sorted[0]
	if spread > toleranceMs {
		return SelectionReduceResult{Value: "unk", Outcome: ExceedsTolerance}
	}

	median := medianInt64(sorted)
	return SelectionReduceResult{Value: strconv.FormatInt(median, 10), Outcome: MedianWithinTolerance}
}

func medianInt64(sorted []int64) int64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
