package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
)

// compileComponentSources reads every component_sources sheet and
// produces the {type: []componentDBEntry} map written to
// component_db/{type}.json. Role properties contribute only their
// variance policies to each entry; no component.match.property_keys is
// derived from them.
func compileComponentSources(f *excelize.File, wm *WorkbookMap) (map[string][]componentDBEntry, []string, error) {
	out := map[string][]componentDBEntry{}
	var warnings []string

	for _, cs := range wm.ComponentSources {
		rows, err := readSheetRows(f, cs.Sheet)
		if err != nil {
			return nil, nil, err
		}

		variancePolicies := map[string]string{}
		for _, role := range cs.Roles {
			for _, prop := range role.Properties {
				policy := prop.VariancePolicy
				if policy == "" {
					policy = defaultVariancePolicy
					warnings = append(warnings, fmt.Sprintf(
						"component_sources[%s].roles[%s].properties[%s] missing variance_policy, defaulted to %s",
						cs.Type, role.Name, prop.FieldKey, defaultVariancePolicy))
				}
				variancePolicies[prop.FieldKey] = policy
			}
		}

		entries := make([]componentDBEntry, 0, len(rows))
		for _, row := range rows {
			name := row["name"]
			if name == "" {
				continue
			}
			props := map[string]any{}
			for col, val := range row {
				if col == "name" || col == "maker" || col == "aliases" || val == "" {
					continue
				}
				props[col] = val
			}
			var aliases []string
			if raw := row["aliases"]; raw != "" {
				for _, a := range strings.Split(raw, ",") {
					a = strings.TrimSpace(a)
					if a != "" {
						aliases = append(aliases, a)
					}
				}
			}
			entries = append(entries, componentDBEntry{
				Name:             name,
				Maker:            row["maker"],
				Aliases:          aliases,
				Properties:       props,
				VariancePolicies: variancePolicies,
			})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		out[cs.Type] = entries
	}

	return out, warnings, nil
}

// knownValuesEntry is one known_values.json entry: a canonical value
// plus the aliases that resolve to it, spec.md §4.12.
type knownValuesEntry struct {
	FieldKey  string   `json:"field_key"`
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases,omitempty"`
}

// compileKnownValues reads every enum_sheets sheet plus
// workbook_map.manual_enum_values and merges them into a single
// known_values.json list. A manual value whose (field, canonical) pair
// already came from a sheet is not added again; entries are sorted by
// field_key then canonical, and each entry's aliases are sorted.
func compileKnownValues(f *excelize.File, wm *WorkbookMap) ([]knownValuesEntry, error) {
	type key struct{ field, canonical string }
	merged := map[key]*knownValuesEntry{}

	for _, sheet := range wm.EnumSheets {
		rows, err := readSheetRows(f, sheet)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			field := row["field_key"]
			canonical := row["canonical"]
			if field == "" || canonical == "" {
				continue
			}
			k := key{field, canonical}
			entry, ok := merged[k]
			if !ok {
				entry = &knownValuesEntry{FieldKey: field, Canonical: canonical}
				merged[k] = entry
			}
			if raw := row["aliases"]; raw != "" {
				for _, a := range strings.Split(raw, ",") {
					a = strings.TrimSpace(a)
					if a != "" {
						entry.Aliases = append(entry.Aliases, a)
					}
				}
			}
		}
	}

	for field, values := range wm.ManualEnumValues {
		for _, canonical := range values {
			k := key{field, canonical}
			if _, ok := merged[k]; !ok {
				merged[k] = &knownValuesEntry{FieldKey: field, Canonical: canonical}
			}
		}
	}

	out := make([]knownValuesEntry, 0, len(merged))
	for _, v := range merged {
		sort.Strings(v.Aliases)
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FieldKey != out[j].FieldKey {
			return out[i].FieldKey < out[j].FieldKey
		}
		return out[i].Canonical < out[j].Canonical
	})
	return out, nil
}

// compileSuggestions builds the _suggestions/*.json artifacts for human
// curation: components.json lists component types with zero entries, and
// enums.json lists every field whose enum_policy is "closed". No lexicon
// or constraints suggestion file is produced.
func compileSuggestions(fields map[string]*fieldDef, componentDBs map[string][]componentDBEntry) (map[string][]byte, error) {
	out := map[string][]byte{}

	var emptyComponents []string
	for typ, entries := range componentDBs {
		if len(entries) == 0 {
			emptyComponents = append(emptyComponents, typ)
		}
	}
	sort.Strings(emptyComponents)
	data, err := canonicalJSON(struct {
		EmptyComponentTypes []string `json:"empty_component_types"`
	}{emptyComponents})
	if err != nil {
		return nil, err
	}
	out["components.json"] = data

	var thinEnums []string
	for key, fd := range fields {
		if fd.EnumPolicy == "closed" {
			thinEnums = append(thinEnums, key)
		}
	}
	sort.Strings(thinEnums)
	enumData, err := canonicalJSON(struct {
		ClosedEnumFields []string `json:"closed_enum_fields"`
	}{thinEnums})
	if err != nil {
		return nil, err
	}
	out["enums.json"] = enumData

	return out, nil
}
