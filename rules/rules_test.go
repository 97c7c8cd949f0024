package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func setupArtifactDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	rangeMin := 10.0
	rangeMax := 100.0
	fieldRules := map[string]any{
		"blade_span_in": map[string]any{
			"field_key":      "blade_span_in",
			"required_level": "required",
			"contract": map[string]any{
				"type":      "unit_value",
				"shape":     "scalar",
				"range_min": rangeMin,
				"range_max": rangeMax,
			},
			"enum_policy": "none",
			"parse":       map[string]any{"template": "unit_value", "unit_accepts": []string{"in"}},
			"evidence":    map[string]any{"required": true, "min_evidence_refs": 1},
			"selection_policy": "best_evidence",
		},
		"mount_type": map[string]any{
			"field_key":      "mount_type",
			"required_level": "expected",
			"contract":       map[string]any{"type": "enum", "shape": "scalar"},
			"enum_policy":    "closed",
		},
		"product_url": map[string]any{
			"field_key":      "product_url",
			"required_level": "optional",
			"contract":       map[string]any{"type": "url", "shape": "scalar"},
			"enum_policy":    "none",
		},
	}
	writeJSON(t, filepath.Join(dir, "field_rules.runtime.json"), fieldRules)

	known := map[string]any{
		"mount_type": map[string]any{
			"values": []map[string]any{
				{"canonical": "flush_mount", "aliases": []string{"low profile", "hugger"}},
				{"canonical": "downrod", "aliases": []string{"standard"}},
			},
		},
	}
	writeJSON(t, filepath.Join(dir, "known_values.json"), known)

	writeJSON(t, filepath.Join(dir, "key_migrations.json"), map[string]string{
		"fan_span_in": "blade_span_in",
	})

	return dir
}

func TestLoadAndNormalizeUnitValue(t *testing.T) {
	dir := setupArtifactDir(t)
	art, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res := art.NormalizeCandidate("blade_span_in", "52 in", NormalizeContext{})
	if !res.OK {
		t.Fatalf("expected ok, got reason=%s", res.ReasonCode)
	}
	if res.Normalized != "52" {
		t.Fatalf("expected normalized 52, got %q", res.Normalized)
	}
}

func TestNormalizeCandidateOutOfRange(t *testing.T) {
	dir := setupArtifactDir(t)
	art, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res := art.NormalizeCandidate("blade_span_in", "5 in", NormalizeContext{})
	if res.OK {
		t.Fatal("expected out_of_range rejection")
	}
	if res.ReasonCode != "out_of_range" {
		t.Fatalf("expected out_of_range, got %s", res.ReasonCode)
	}
}

func TestEnumAliasResolution(t *testing.T) {
	dir := setupArtifactDir(t)
	art, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res := art.EnforceEnumPolicy("mount_type", "hugger")
	if !res.OK || !res.WasAliased || res.CanonicalValue != "flush_mount" {
		t.Fatalf("expected alias resolution to flush_mount, got %+v", res)
	}
}

func TestEnumClosedPolicyRejectsUnknown(t *testing.T) {
	dir := setupArtifactDir(t)
	art, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res := art.EnforceEnumPolicy("mount_type", "orbital")
	if res.OK {
		t.Fatal("expected closed-policy rejection")
	}
	if res.ReasonCode != "enum_value_not_allowed" {
		t.Fatalf("expected enum_value_not_allowed, got %s", res.ReasonCode)
	}
}

func TestURLContractRejectsNonURL(t *testing.T) {
	dir := setupArtifactDir(t)
	art, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	res := art.NormalizeCandidate("product_url", "not a url", NormalizeContext{})
	if res.OK {
		t.Fatal("expected url_required rejection")
	}
	if res.ReasonCode != "url_required" {
		t.Fatalf("expected url_required, got %s", res.ReasonCode)
	}
}

func TestApplyKeyMigrationsRewritesDeprecatedField(t *testing.T) {
	dir := setupArtifactDir(t)
	art, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out := art.ApplyKeyMigrations(map[string]string{"fan_span_in": "52"})
	if out["blade_span_in"] != "52" {
		t.Fatalf("expected migrated key, got %+v", out)
	}
	if _, stillPresent := out["fan_span_in"]; stillPresent {
		t.Fatal("deprecated key should not survive migration")
	}
}

func TestNormalizeFullRecordDeterministic(t *testing.T) {
	dir := setupArtifactDir(t)
	art, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	record := map[string]string{"blade_span_in": "52 in", "mount_type": "hugger"}
	first := art.NormalizeFullRecord(record, nil)
	second := art.NormalizeFullRecord(record, nil)
	if first.Normalized["blade_span_in"] != second.Normalized["blade_span_in"] {
		t.Fatal("normalize_full_record must be deterministic")
	}
	if first.Normalized["mount_type"] != "flush_mount" {
		t.Fatalf("expected alias-resolved mount_type, got %+v", first.Normalized)
	}
}

func TestAuditEvidenceRequiresQuoteInSnippet(t *testing.T) {
	pack := fakePack{"sn_1": {"Blade Span: 52 in, motor warranty lifetime", "hash1"}}
	res := AuditEvidence("blade_span_in", "52", Evidence{
		URL: "https://example.com", SnippetID: "sn_1", Quote: "52 in",
	}, AuditOptions{EvidencePack: pack})
	if !res.OK {
		t.Fatalf("expected ok with the quote present in the snippet, got %+v", res)
	}
}

func TestAuditEvidenceStrictModeRequiresSpan(t *testing.T) {
	pack := fakePack{"sn_1": {"Blade Span: 52 in", "hash1"}}
	res := AuditEvidence("blade_span_in", "52", Evidence{
		URL: "https://example.com", SnippetID: "sn_1", Quote: "52 in",
		SourceID: "src1", SnippetHash: "hash1", RetrievedAt: "2026-01-01", ExtractionMethod: "table_parse",
		QuoteSpanStart: 12, QuoteSpanEnd: 17,
	}, AuditOptions{Strict: true, EvidencePack: pack})
	if !res.OK {
		t.Fatalf("expected strict audit ok, got %+v", res)
	}
}

type fakePack map[string]struct {
	text string
	hash string
}

func (f fakePack) SnippetText(id string) (string, string, bool) {
	v, ok := f[id]
	return v.text, v.hash, ok
}

func TestCrossValidateBooleanConditionRequiresField(t *testing.T) {
	art := &Artifacts{
		CrossValidationRules: []CrossValidationRule{
			{Type: RuleBooleanCondition, TriggerField: "connection", Condition: "['wireless']", RequiresField: "battery_hours"},
		},
	}
	ok, violations := art.CrossValidate("connection", "wireless", map[string]string{"connection": "wireless"})
	if ok {
		t.Fatal("expected violation for missing battery_hours")
	}
	if len(violations) != 1 || violations[0].Field != "battery_hours" {
		t.Fatalf("unexpected violations: %+v", violations)
	}
}

func TestCrossValidateMutualExclusionSetsField(t *testing.T) {
	art := &Artifacts{
		CrossValidationRules: []CrossValidationRule{
			{Type: RuleMutualExclusion, TriggerField: "connection", Condition: "['wired']", SetField: "battery_hours", SetValue: "unk"},
		},
	}
	record := map[string]string{"connection": "wired", "battery_hours": "12"}
	ok, _ := art.CrossValidate("connection", "wired", record)
	if !ok {
		t.Fatal("mutual_exclusion should not itself report a violation")
	}
	if record["battery_hours"] != "unk" {
		t.Fatalf("expected battery_hours reset to unk, got %q", record["battery_hours"])
	}
}

func TestCrossValidateGroupCompleteness(t *testing.T) {
	art := &Artifacts{
		CrossValidationRules: []CrossValidationRule{
			{Type: RuleGroupCompleteness, TriggerField: "weight_lbs", GroupFields: []string{"weight_lbs", "height_in", "width_in"}, GroupN: 2},
		},
	}
	ok, violations := art.CrossValidate("weight_lbs", "10", map[string]string{"weight_lbs": "10"})
	if ok {
		t.Fatal("expected group_completeness violation with only 1 of 3 fields present")
	}
	if len(violations) != 1 {
		t.Fatalf("unexpected violations: %+v", violations)
	}
}
