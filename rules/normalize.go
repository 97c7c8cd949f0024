package rules

import (
	"net/url"
	"strconv"
	"strings"
)

// NormalizeContext carries whatever component/alias context
// normalize_candidate needs beyond the raw value, per spec.md §4.7.
type NormalizeContext struct {
	ComponentType string // used for component_db_ref alias resolution
}

// NormalizeResult is normalize_candidate's return value.
type NormalizeResult struct {
	OK              bool
	Normalized      string
	ReasonCode      string
	AppliedRules    []string
	CurationSignal  string
}

// NormalizeCandidate applies unit parsing/conversion, range validation,
// URL shape checks, and component alias resolution to a raw field value,
// per spec.md §4.7.
func (a *Artifacts) NormalizeCandidate(fieldKey, raw string, ctx NormalizeContext) NormalizeResult {
	rule, ok := a.FieldRules[fieldKey]
	if !ok {
		return NormalizeResult{OK: true, Normalized: raw}
	}

	applied := []string{}
	value := strings.TrimSpace(raw)

	switch rule.Contract.Type {
	case "url":
		applied = append(applied, "url_shape_check")
		if _, err := url.ParseRequestURI(value); err != nil || value == "" {
			return NormalizeResult{OK: false, ReasonCode: "url_required", AppliedRules: applied}
		}
	case "number", "unit_value":
		applied = append(applied, "unit_parse")
		num, unit, ok := parseNumberWithUnit(value, rule.Parse.UnitAccepts)
		if !ok {
			return NormalizeResult{OK: false, ReasonCode: "unparseable_value", AppliedRules: applied}
		}
		if rule.Parse.StrictUnitRequired && unit == "" {
			return NormalizeResult{OK: false, ReasonCode: "unit_required", AppliedRules: applied}
		}
		if rule.Contract.RangeMin != nil && num < *rule.Contract.RangeMin {
			return NormalizeResult{OK: false, ReasonCode: "out_of_range", AppliedRules: applied}
		}
		if rule.Contract.RangeMax != nil && num > *rule.Contract.RangeMax {
			return NormalizeResult{OK: false, ReasonCode: "out_of_range", AppliedRules: applied}
		}
		value = formatNumber(num)
	}

	if rule.ComponentDBRef != "" {
		applied = append(applied, "component_alias_resolution")
		if table, ok := a.ComponentDB[rule.ComponentDBRef]; ok {
			if _, exists := table[value]; !exists {
				canonical, resolved := resolveComponentAlias(table, value)
				if !resolved {
					return NormalizeResult{OK: false, ReasonCode: "component_alias_not_resolved", AppliedRules: applied}
				}
				value = canonical
			}
		}
	}

	enumResult := a.EnforceEnumPolicy(fieldKey, value)
	if !enumResult.OK {
		return NormalizeResult{OK: false, ReasonCode: enumResult.ReasonCode, AppliedRules: applied}
	}
	curation := ""
	if enumResult.WasAliased {
		applied = append(applied, "enum_alias_resolution")
		value = enumResult.CanonicalValue
	} else if rule.EnumPolicy == EnumOpen && enumResult.CanonicalValue == value && !a.knownValueExists(fieldKey, value) {
		curation = "unknown_enum_value_suggested"
	}

	return NormalizeResult{OK: true, Normalized: value, AppliedRules: applied, CurationSignal: curation}
}

func (a *Artifacts) knownValueExists(fieldKey, value string) bool {
	table, ok := a.KnownValues[fieldKey]
	if !ok {
		return true // no known-values table means this field isn't enum-governed
	}
	_, exists := table[normalizeAlias(value)]
	return exists
}

func resolveComponentAlias(table map[string]map[string]any, value string) (string, bool) {
	lower := strings.ToLower(value)
	for id, props := range table {
		if aliases, ok := props["aliases"].([]any); ok {
			for _, a := range aliases {
				if s, ok := a.(string); ok && strings.ToLower(s) == lower {
					return id, true
				}
			}
		}
	}
	return value, false
}

// EnumEnforceResult is enforce_enum_policy's return value.
type EnumEnforceResult struct {
	OK             bool
	CanonicalValue string
	WasAliased     bool
	ReasonCode     string
}

// EnforceEnumPolicy applies the field's enum_policy to a normalized
// value, per spec.md §4.7: closed policies reject unknown values.
func (a *Artifacts) EnforceEnumPolicy(fieldKey, value string) EnumEnforceResult {
	rule, ok := a.FieldRules[fieldKey]
	if !ok || rule.EnumPolicy == EnumNone || rule.EnumPolicy == "" {
		return EnumEnforceResult{OK: true, CanonicalValue: value}
	}

	table, hasTable := a.KnownValues[fieldKey]
	if !hasTable {
		return EnumEnforceResult{OK: true, CanonicalValue: value}
	}
	entry, found := table[normalizeAlias(value)]
	if found {
		wasAliased := !strings.EqualFold(entry.Canonical, value)
		return EnumEnforceResult{OK: true, CanonicalValue: entry.Canonical, WasAliased: wasAliased}
	}

	if rule.EnumPolicy == EnumClosed {
		return EnumEnforceResult{OK: false, ReasonCode: "enum_value_not_allowed"}
	}
	return EnumEnforceResult{OK: true, CanonicalValue: value}
}

// parseNumberWithUnit extracts a leading numeric value and an optional
// trailing unit token from a raw string like "52 in" or "3.5kg".
func parseNumberWithUnit(raw string, accepted []string) (float64, string, bool) {
	raw = strings.TrimSpace(raw)
	i := 0
	n := len(raw)
	start := i
	seenDigit := false
	for i < n && (raw[i] == '-' || raw[i] == '.' || (raw[i] >= '0' && raw[i] <= '9')) {
		if raw[i] >= '0' && raw[i] <= '9' {
			seenDigit = true
		}
		i++
	}
	if !seenDigit {
		return 0, "", false
	}
	numPart := raw[start:i]
	num, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, "", false
	}
	unit := strings.TrimSpace(raw[i:])
	if unit != "" && len(accepted) > 0 {
		ok := false
		for _, u := range accepted {
			if strings.EqualFold(u, unit) {
				ok = true
				break
			}
		}
		if !ok {
			return 0, "", false
		}
	}
	return num, unit, true
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
