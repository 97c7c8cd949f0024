package needset

import "testing"

func TestMissingFieldYieldsMissingReason(t *testing.T) {
	result := Build([]FieldState{
		{FieldKey: "noise_db", RequiredLevel: LevelCritical},
	}, IdentityLockState{Status: StatusLocked, Confidence: 1})
	if result.NeedsetSize != 1 {
		t.Fatalf("expected 1 need, got %d", result.NeedsetSize)
	}
	if result.Needs[0].Reasons[0] != ReasonMissing {
		t.Fatalf("expected missing reason first, got %+v", result.Needs[0].Reasons)
	}
}

func TestFieldMeetingPassTargetIsExcluded(t *testing.T) {
	result := Build([]FieldState{
		{FieldKey: "brand", RequiredLevel: LevelIdentity, MeetsPassTarget: true, Confidence: 1, EvidenceRefCount: 3},
	}, IdentityLockState{Status: StatusLocked})
	if result.NeedsetSize != 0 {
		t.Fatalf("expected 0 needs for satisfied field, got %d: %+v", result.NeedsetSize, result.Needs)
	}
}

func TestSortedByNeedScoreDescending(t *testing.T) {
	result := Build([]FieldState{
		{FieldKey: "optional_field", RequiredLevel: LevelOptional},
		{FieldKey: "critical_field", RequiredLevel: LevelCritical},
	}, IdentityLockState{})
	if result.Needs[0].FieldKey != "critical_field" {
		t.Fatalf("expected critical_field to sort first, got %+v", result.Needs)
	}
}

func TestMinRefsGapAddsReason(t *testing.T) {
	result := Build([]FieldState{
		{FieldKey: "weight_lbs", RequiredLevel: LevelRequired, MeetsPassTarget: true, MinEvidenceRefs: 3, EvidenceRefCount: 1},
	}, IdentityLockState{})
	found := false
	for _, r := range result.Needs[0].Reasons {
		if r == ReasonMinRefsFail {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected min_refs_fail reason, got %+v", result.Needs[0].Reasons)
	}
}

func TestTotalFieldsCountsAllStates(t *testing.T) {
	result := Build([]FieldState{
		{FieldKey: "a", RequiredLevel: LevelOptional, MeetsPassTarget: true},
		{FieldKey: "b", RequiredLevel: LevelOptional, MeetsPassTarget: true},
	}, IdentityLockState{})
	if result.TotalFields != 2 {
		t.Fatalf("expected total_fields=2, got %d", result.TotalFields)
	}
}
