package compiler

import "sort"

// fieldDef is the compiler's in-memory working model for one field,
// before it is serialized into the JSON artifact shapes.
type fieldDef struct {
	FieldKey        string
	RequiredLevel   string
	ContractType    string
	EnumPolicy      string
	ParseTemplate   string
	ComponentDBRef  string
	SelectionPolicy any
	UILabel         string
	UIGroup         string
}

// deriveFieldRules walks the key sheet rows and produces one fieldDef per
// row, defaulting required_level/contract/enum_policy from column
// values, with workbook text as the sole source of truth for anything
// not later overridden, per spec.md §4.12.
func deriveFieldRules(rows []workbookRow, wm *WorkbookMap) (map[string]*fieldDef, []string) {
	fields := map[string]*fieldDef{}
	var warnings []string

	for _, row := range rows {
		key := row["field_key"]
		if key == "" {
			key = row["key"]
		}
		if key == "" {
			continue
		}
		fd := &fieldDef{
			FieldKey:      key,
			RequiredLevel: firstNonEmpty(row["required_level"], "optional"),
			ContractType:  firstNonEmpty(row["contract_type"], "string"),
			EnumPolicy:    firstNonEmpty(row["enum_policy"], "open"),
			ParseTemplate: row["parse_template"],
			UILabel:       firstNonEmpty(row["label"], key),
			UIGroup:       row["group"],
		}
		fields[key] = fd
	}

	for field := range wm.ManualEnumValues {
		if _, ok := fields[field]; !ok {
			warnings = append(warnings, "manual_enum_values references unknown field: "+field)
		}
	}

	return fields, warnings
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// applyFieldOverrides applies workbook_map.field_overrides on top of the
// workbook-derived defaults; each override it applies (required_level,
// contract_type, parse_template, selection_policy) wins. evidence_policy
// is not applied.
func applyFieldOverrides(fields map[string]*fieldDef, overrides map[string]FieldOverride) map[string]*fieldDef {
	for key, ov := range overrides {
		fd, ok := fields[key]
		if !ok {
			fd = &fieldDef{FieldKey: key, RequiredLevel: "optional", ContractType: "string", EnumPolicy: "open"}
			fields[key] = fd
		}
		if ov.RequiredLevel != "" {
			fd.RequiredLevel = ov.RequiredLevel
		}
		if ov.ContractType != "" {
			fd.ContractType = ov.ContractType
		}
		if ov.ParseTemplate != "" {
			fd.ParseTemplate = ov.ParseTemplate
		}
		if ov.SelectionPolicy != nil {
			fd.SelectionPolicy = ov.SelectionPolicy
		}
	}
	return fields
}

// applySelectedKeys restricts the compiled set to selected_keys when
// given: an empty selected_keys list means "include all". The
// restriction is not recorded in any artifact (no schema.include_fields
// is written).
func applySelectedKeys(fields map[string]*fieldDef, selected []string) map[string]*fieldDef {
	if len(selected) == 0 {
		return fields
	}
	allow := map[string]bool{}
	for _, k := range selected {
		allow[k] = true
	}
	out := map[string]*fieldDef{}
	for k, fd := range fields {
		if allow[k] {
			out[k] = fd
		}
	}
	return out
}

// toFieldRuleList flattens the field map into the sorted slice shape
// written to field_rules.json, sorted by field_key for determinism.
func toFieldRuleList(fields map[string]*fieldDef) []compiledFieldRule {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]compiledFieldRule, 0, len(keys))
	for _, k := range keys {
		fd := fields[k]
		out = append(out, compiledFieldRule{
			FieldKey:      fd.FieldKey,
			RequiredLevel: fd.RequiredLevel,
			Contract: map[string]any{
				"type": fd.ContractType,
			},
			EnumPolicy: fd.EnumPolicy,
			Parse: map[string]any{
				"template": fd.ParseTemplate,
			},
			SelectionPolicy: fd.SelectionPolicy,
			ComponentDBRef:  fd.ComponentDBRef,
		})
	}
	return out
}

// uiFieldEntry is one ui_field_catalog.json entry.
type uiFieldEntry struct {
	FieldKey string `json:"field_key"`
	Label    string `json:"label"`
	Group    string `json:"group,omitempty"`
}

func toUICatalog(fields map[string]*fieldDef) []uiFieldEntry {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]uiFieldEntry, 0, len(keys))
	for _, k := range keys {
		fd := fields[k]
		out = append(out, uiFieldEntry{FieldKey: fd.FieldKey, Label: fd.UILabel, Group: fd.UIGroup})
	}
	return out
}
