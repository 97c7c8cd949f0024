package compiler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildTestWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", "Fields")
	headers := []string{"field_key", "required_level", "contract_type", "enum_policy", "label", "group"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Fields", cell, h)
	}
	rows := [][]string{
		{"blade_span_in", "required", "number", "open", "Blade Span (in)", "dimensions"},
		{"mount_type", "critical", "string", "closed", "Mount Type", "mounting"},
	}
	for r, row := range rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue("Fields", cell, val)
		}
	}

	f.NewSheet("Enums")
	enumHeaders := []string{"field_key", "canonical", "aliases"}
	for i, h := range enumHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Enums", cell, h)
	}
	f.SetCellValue("Enums", "A2", "mount_type")
	f.SetCellValue("Enums", "B2", "wall_mount")
	f.SetCellValue("Enums", "C2", "wall, on-wall")

	f.NewSheet("Sensors")
	sensorHeaders := []string{"name", "maker", "aliases", "range_ft"}
	for i, h := range sensorHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Sensors", cell, h)
	}
	f.SetCellValue("Sensors", "A2", "PhotoEye-200")
	f.SetCellValue("Sensors", "B2", "AcmeCo")
	f.SetCellValue("Sensors", "C2", "PE200")
	f.SetCellValue("Sensors", "D2", "20")

	path := filepath.Join(t.TempDir(), "workbook.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
	return path
}

func testWorkbookMap() *WorkbookMap {
	return &WorkbookMap{
		Category:     "barn_door_hardware",
		KeySheet:     "Fields",
		ProductSheet: "Fields",
		EnumSheets:   []string{"Enums"},
		ComponentSources: []ComponentSource{
			{
				Type:  "sensor",
				Sheet: "Sensors",
				Roles: []ComponentRole{
					{Name: "primary", Properties: []ComponentProperty{
						{FieldKey: "range_ft", VariancePolicy: "authoritative"},
					}},
				},
			},
		},
	}
}

func TestCompileProducesDeterministicFieldRules(t *testing.T) {
	path := buildTestWorkbook(t)
	wm := testWorkbookMap()

	result1, err := Compile(wm, path)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result2, err := Compile(wm, path)
	if err != nil {
		t.Fatalf("compile (second run): %v", err)
	}

	a := result1.Artifacts["field_rules.json"]
	b := result2.Artifacts["field_rules.json"]
	if string(a) != string(b) {
		t.Fatal("expected byte-identical field_rules.json across repeated compiles")
	}

	var rules []compiledFieldRule
	if err := json.Unmarshal(a, &rules); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 field rules, got %d", len(rules))
	}
	if rules[0].FieldKey != "blade_span_in" {
		t.Fatalf("expected sorted field order, got %s first", rules[0].FieldKey)
	}
}

func TestCompileComponentDBDerivesEntries(t *testing.T) {
	path := buildTestWorkbook(t)
	wm := testWorkbookMap()

	result, err := Compile(wm, path)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	data, ok := result.Artifacts["component_db/sensor.json"]
	if !ok {
		t.Fatal("expected component_db/sensor.json artifact")
	}
	var entries []componentDBEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "PhotoEye-200" {
		t.Fatalf("unexpected component entries: %+v", entries)
	}
	if entries[0].VariancePolicies["range_ft"] != "authoritative" {
		t.Fatalf("expected declared variance_policy preserved, got %+v", entries[0].VariancePolicies)
	}
}

func TestCompileKnownValuesMergesManualAndSheetValues(t *testing.T) {
	path := buildTestWorkbook(t)
	wm := testWorkbookMap()
	wm.ManualEnumValues = map[string][]string{
		"mount_type": {"wall_mount", "ceiling_mount"},
	}

	result, err := Compile(wm, path)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var parsed struct {
		Values []knownValuesEntry `json:"values"`
	}
	if err := json.Unmarshal(result.Artifacts["known_values.json"], &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed.Values) != 2 {
		t.Fatalf("expected 2 known values (wall_mount from sheet+manual dedup, ceiling_mount from manual), got %d: %+v", len(parsed.Values), parsed.Values)
	}
}

func TestCompileVarianceDefaultsWhenMissing(t *testing.T) {
	path := buildTestWorkbook(t)
	wm := testWorkbookMap()
	wm.ComponentSources[0].Roles[0].Properties[0].VariancePolicy = ""

	result, err := Compile(wm, path)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	found := false
	for _, w := range result.Report.Warnings {
		if w != "" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a warning about defaulted variance_policy")
	}

	var entries []componentDBEntry
	if err := json.Unmarshal(result.Artifacts["component_db/sensor.json"], &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entries[0].VariancePolicies["range_ft"] != defaultVariancePolicy {
		t.Fatalf("expected default variance policy %q, got %q", defaultVariancePolicy, entries[0].VariancePolicies["range_ft"])
	}
}

func TestCompileSelectedKeysRestrictsFieldSet(t *testing.T) {
	path := buildTestWorkbook(t)
	wm := testWorkbookMap()
	wm.SelectedKeys = []string{"blade_span_in"}

	result, err := Compile(wm, path)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if result.Report.FieldCount != 1 {
		t.Fatalf("expected selected_keys to restrict to 1 field, got %d", result.Report.FieldCount)
	}
}

func TestLoadWorkbookMapRejectsMissingRequiredKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "map.yaml")
	if err := os.WriteFile(path, []byte("category: test\n"), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}

	if _, err := LoadWorkbookMap(path); err == nil {
		t.Fatal("expected error for missing key_sheet/product_sheet")
	}
}
