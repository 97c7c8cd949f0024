package reduce

import "testing"

func TestListUnionSetUnionDedupesCaseInsensitively(t *testing.T) {
	result, applied := ListUnion("features", SetUnion, []string{"Wifi", "Bluetooth"}, []ListCandidate{
		{Tier: 2, ApprovedDomain: true, Items: []string{"wifi", "USB-C"}},
	})
	if len(result) != 3 {
		t.Fatalf("expected 3 deduped items, got %v", result)
	}
	if applied.AddedCount != 1 {
		t.Fatalf("expected added_count=1, got %d", applied.AddedCount)
	}
}

func TestListUnionIgnoresNonApprovedCandidates(t *testing.T) {
	result, applied := ListUnion("features", SetUnion, []string{"Wifi"}, []ListCandidate{
		{Tier: 2, ApprovedDomain: false, Items: []string{"Bluetooth"}},
	})
	if len(result) != 1 {
		t.Fatalf("expected non-approved candidate excluded, got %v", result)
	}
	if applied.AddedCount != 0 {
		t.Fatalf("expected added_count=0, got %d", applied.AddedCount)
	}
}

func TestListUnionOrderedUnionPreservesCandidateOrder(t *testing.T) {
	result, _ := ListUnion("features", OrderedUnion, []string{"a"}, []ListCandidate{
		{Tier: 1, ApprovedDomain: true, Items: []string{"c", "b"}},
	})
	if len(result) != 3 || result[1] != "c" || result[2] != "b" {
		t.Fatalf("expected ordered union to preserve candidate order, got %v", result)
	}
}

func TestEvidenceUnionIsNoOp(t *testing.T) {
	result, applied := ListUnion("features", EvidenceUnion, []string{"a", "b"}, []ListCandidate{
		{Tier: 1, ApprovedDomain: true, Items: []string{"c"}},
	})
	if len(result) != 2 {
		t.Fatalf("expected no-op, got %v", result)
	}
	if applied.AddedCount != 0 {
		t.Fatalf("expected added_count=0 for no-op reducer, got %d", applied.AddedCount)
	}
}

func TestSelectionReduceSingleValue(t *testing.T) {
	res := SelectionReduce([]int64{1000}, 500)
	if res.Outcome != SingleValue || res.Value != "1000" {
		t.Fatalf("expected single_value/1000, got %+v", res)
	}
}

func TestSelectionReduceMedianWithinTolerance(t *testing.T) {
	res := SelectionReduce([]int64{1000, 1100, 1200}, 500)
	if res.Outcome != MedianWithinTolerance || res.Value != "1100" {
		t.Fatalf("expected median 1100 within tolerance, got %+v", res)
	}
}

func TestSelectionReduceExceedsTolerance(t *testing.T) {
	res := SelectionReduce([]int64{1000, 5000}, 500)
	if res.Outcome != ExceedsTolerance || res.Value != "unk" {
		t.Fatalf("expected exceeds_tolerance/unk, got %+v", res)
	}
}
