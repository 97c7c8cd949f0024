package identity

import "testing"

func TestHardIDMatchForcesConfirmed(t *testing.T) {
	lock := Lock{Brand: "Acme", Model: "X100", SKU: "AC-X100-BLK"}
	page := PageSignal{Candidates: []Candidate{{Field: "sku", Value: "AC-X100-BLK"}}}
	res := Score(page, lock)
	if res.Decision != Confirmed || res.Score != 1.0 {
		t.Fatalf("expected confirmed/1.0, got %+v", res)
	}
}

func TestHardIDMismatchForcesRejected(t *testing.T) {
	lock := Lock{Brand: "Acme", Model: "X100", SKU: "AC-X100-BLK"}
	page := PageSignal{Candidates: []Candidate{
		{Field: "brand", Value: "Acme"},
		{Field: "sku", Value: "AC-X100-WHT"},
	}}
	res := Score(page, lock)
	if res.Decision != Rejected {
		t.Fatalf("expected rejected, got %+v", res)
	}
	if res.CriticalConflict != "sku_mismatch" {
		t.Fatalf("expected sku_mismatch conflict, got %q", res.CriticalConflict)
	}
}

func TestBrandModelOnlyMatchAtThreshold(t *testing.T) {
	lock := Lock{Brand: "Acme", Model: "X100"}
	page := PageSignal{Candidates: []Candidate{
		{Field: "brand", Value: "Acme"},
		{Field: "model", Value: "X100"},
	}}
	res := Score(page, lock)
	if !res.Match || res.Decision != Matched {
		t.Fatalf("expected full brand+model match, got %+v", res)
	}
}

func TestPartialMatchBelowThresholdIsNoMatch(t *testing.T) {
	lock := Lock{Brand: "Acme", Model: "X100"}
	page := PageSignal{Candidates: []Candidate{{Field: "brand", Value: "Acme"}}}
	res := Score(page, lock)
	if res.Match {
		t.Fatalf("expected no match from brand-only signal, got %+v", res)
	}
}

func TestGatePageSetPassesOnManufacturerPlusTwoCredible(t *testing.T) {
	pages := []PageSignal{
		{ManufacturerTier: true, Tier: 1},
		{Tier: 2, ApprovedDomain: true},
		{Tier: 2, ApprovedDomain: true},
	}
	decisions := []ScoreResult{
		{Decision: Confirmed, Score: 1},
		{Decision: Matched, Score: 0.8},
		{Decision: Matched, Score: 0.8},
	}
	gate := GatePageSet(pages, decisions)
	if !gate.Open {
		t.Fatalf("expected gate open, got %+v", gate)
	}
}

func TestGatePageSetPassesOnManufacturerPlusTrustedHelper(t *testing.T) {
	pages := []PageSignal{
		{ManufacturerTier: true, Tier: 1},
		{TrustedHelperFile: true, Tier: 3},
	}
	decisions := []ScoreResult{
		{Decision: Confirmed, Score: 1},
		{Decision: Matched, Score: 0.9},
	}
	gate := GatePageSet(pages, decisions)
	if !gate.Open {
		t.Fatalf("expected gate open via trusted helper path, got %+v", gate)
	}
}

func TestGatePageSetHardConflictClosesEvenWithAgreement(t *testing.T) {
	pages := []PageSignal{
		{ManufacturerTier: true, Tier: 1},
		{Tier: 2, ApprovedDomain: true},
		{Tier: 2, ApprovedDomain: true},
		{Tier: 2, ApprovedDomain: true},
	}
	decisions := []ScoreResult{
		{Decision: Confirmed, Score: 1},
		{Decision: Matched, Score: 0.8},
		{Decision: Matched, Score: 0.8},
		{Decision: Rejected, Score: 0.9, CriticalConflict: "sku_mismatch"},
	}
	gate := GatePageSet(pages, decisions)
	if gate.Open {
		t.Fatal("expected gate closed on hard conflict despite agreement elsewhere")
	}
	if !gate.HardConflict {
		t.Fatal("expected HardConflict=true")
	}
}

func TestGatePageSetWeakContradictionIgnored(t *testing.T) {
	pages := []PageSignal{
		{ManufacturerTier: true, Tier: 1},
		{Tier: 2, ApprovedDomain: true},
		{Tier: 2, ApprovedDomain: true},
		{Tier: 5, ApprovedDomain: false},
	}
	decisions := []ScoreResult{
		{Decision: Confirmed, Score: 1},
		{Decision: Matched, Score: 0.8},
		{Decision: Matched, Score: 0.8},
		{Decision: NoMatch, Score: 0.2},
	}
	gate := GatePageSet(pages, decisions)
	if !gate.Open {
		t.Fatalf("expected gate open, weak contradiction must not block it: %+v", gate)
	}
}
