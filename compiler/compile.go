package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// defaultVariancePolicy is applied, with a warning, to every component
// property that omits variance_policy. Properties carry no type here, so
// string and numeric properties are treated alike, and an explicit
// variance_policy is kept as written.
const defaultVariancePolicy = "authoritative"

// LoadWorkbookMap reads and validates a workbook-map YAML file.
func LoadWorkbookMap(path string) (*WorkbookMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compiler: reading workbook map: %w", err)
	}
	var wm WorkbookMap
	if err := yaml.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("compiler: parsing workbook map: %w", err)
	}
	if err := validateWorkbookMap(&wm); err != nil {
		return nil, err
	}
	return &wm, nil
}

func validateWorkbookMap(wm *WorkbookMap) error {
	if wm.Category == "" {
		return fmt.Errorf("compiler: workbook map missing required key: category")
	}
	if wm.KeySheet == "" {
		return fmt.Errorf("compiler: workbook map missing required key: key_sheet")
	}
	if wm.ProductSheet == "" {
		return fmt.Errorf("compiler: workbook map missing required key: product_sheet")
	}
	for i, cs := range wm.ComponentSources {
		if cs.Type == "" {
			return fmt.Errorf("compiler: component_sources[%d] missing required key: type", i)
		}
		if cs.Sheet == "" {
			return fmt.Errorf("compiler: component_sources[%d] missing required key: sheet", i)
		}
	}
	return nil
}

// workbookRow is one parsed row from the key sheet: field_key plus its
// free-form column values, keyed by header.
type workbookRow map[string]string

// readSheetRows opens the workbook with excelize and returns each row as
// a header-keyed map, mirroring the teacher parser's
// f.GetSheetList()/f.GetRows(sheet) traversal (parser/xlsx.go),
// generalized from document sections to schema rows.
func readSheetRows(f *excelize.File, sheet string) ([]workbookRow, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("compiler: reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	out := make([]workbookRow, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := workbookRow{}
		for i, h := range header {
			if i < len(row) {
				rec[strings.TrimSpace(h)] = strings.TrimSpace(row[i])
			}
		}
		if allEmpty(rec) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func allEmpty(rec workbookRow) bool {
	for _, v := range rec {
		if v != "" {
			return false
		}
	}
	return true
}

// Compile runs the full pipeline: read the workbook per the map, derive
// field rules and component databases, apply overrides, and serialize
// every artifact as canonical (sorted-key, LF-terminated) JSON, per
// spec.md §4.12.
func Compile(wm *WorkbookMap, workbookPath string) (*Result, error) {
	f, err := excelize.OpenFile(workbookPath)
	if err != nil {
		return nil, fmt.Errorf("compiler: opening workbook: %w", err)
	}
	defer f.Close()

	keyRows, err := readSheetRows(f, wm.KeySheet)
	if err != nil {
		return nil, err
	}

	fields, warnings := deriveFieldRules(keyRows, wm)
	fields = applyFieldOverrides(fields, wm.FieldOverrides)
	fields = applySelectedKeys(fields, wm.SelectedKeys)

	componentDBs, componentWarnings, err := compileComponentSources(f, wm)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, componentWarnings...)

	known, err := compileKnownValues(f, wm)
	if err != nil {
		return nil, err
	}

	artifacts := map[string][]byte{}

	fieldRulesJSON, err := canonicalJSON(toFieldRuleList(fields))
	if err != nil {
		return nil, err
	}
	artifacts["field_rules.json"] = fieldRulesJSON
	artifacts["field_rules.runtime.json"] = fieldRulesJSON

	knownJSON, err := canonicalJSON(struct {
		Values []knownValuesEntry `json:"values"`
	}{known})
	if err != nil {
		return nil, err
	}
	artifacts["known_values.json"] = knownJSON

	uiCatalog, err := canonicalJSON(toUICatalog(fields))
	if err != nil {
		return nil, err
	}
	artifacts["ui_field_catalog.json"] = uiCatalog

	componentTypes := make([]string, 0, len(componentDBs))
	for typ, entries := range componentDBs {
		componentTypes = append(componentTypes, typ)
		data, err := canonicalJSON(entries)
		if err != nil {
			return nil, err
		}
		artifacts["component_db/"+typ+".json"] = data
	}
	sort.Strings(componentTypes)

	fullJSON, err := canonicalJSON(toFieldRuleList(fields))
	if err != nil {
		return nil, err
	}
	artifacts["_control_plane/field_rules.full.json"] = fullJSON

	report := CompileReport{
		Category:       wm.Category,
		FieldCount:     len(fields),
		ComponentTypes: componentTypes,
		Warnings:       warnings,
	}
	reportJSON, err := canonicalJSON(report)
	if err != nil {
		return nil, err
	}
	artifacts["_compile_report.json"] = reportJSON

	suggestions, err := compileSuggestions(fields, componentDBs)
	if err != nil {
		return nil, err
	}
	for name, data := range suggestions {
		artifacts["_suggestions/"+name] = data
	}

	return &Result{Artifacts: artifacts, Report: report}, nil
}

// canonicalJSON marshals v with sorted map keys (Go's encoding/json
// already sorts map[string]X keys) and a trailing LF, guaranteeing the
// same input compiles to byte-identical output every time, per spec.md
// §4.12's determinism guarantee.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("compiler: marshaling artifact: %w", err)
	}
	return append(data, '\n'), nil
}
