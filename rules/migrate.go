package rules

import "sort"

// ApplyKeyMigrations rewrites deprecated field names to their current
// names, per spec.md §4.7. Returns a new map; the input is untouched.
func (a *Artifacts) ApplyKeyMigrations(record map[string]string) map[string]string {
	out := make(map[string]string, len(record))
	for k, v := range record {
		if newKey, migrated := a.KeyMigrations[k]; migrated {
			out[newKey] = v
			continue
		}
		out[k] = v
	}
	return out
}

// NormalizeContextFor carries the optional per-field context NormalizeFullRecord
// passes through to NormalizeCandidate (e.g. which component_db table a
// field's alias resolution should use).
type NormalizeContextFor func(fieldKey string) NormalizeContext

// FullRecordResult is normalize_full_record's return value.
type FullRecordResult struct {
	Normalized map[string]string
	Unknowns   []string
}

// NormalizeFullRecord runs the composed pipeline — key migration, then
// per-field normalize_candidate — over every field in record. It is
// deterministic: identical input yields identical output every call,
// per spec.md §4.7.
func (a *Artifacts) NormalizeFullRecord(record map[string]string, ctxFor NormalizeContextFor) FullRecordResult {
	migrated := a.ApplyKeyMigrations(record)

	keys := make([]string, 0, len(migrated))
	for k := range migrated {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]string, len(migrated))
	var unknowns []string
	for _, k := range keys {
		if _, known := a.FieldRules[k]; !known {
			unknowns = append(unknowns, k)
			normalized[k] = migrated[k]
			continue
		}
		ctx := NormalizeContext{}
		if ctxFor != nil {
			ctx = ctxFor(k)
		}
		res := a.NormalizeCandidate(k, migrated[k], ctx)
		if res.OK {
			normalized[k] = res.Normalized
		} else {
			normalized[k] = "unk"
		}
	}
	return FullRecordResult{Normalized: normalized, Unknowns: unknowns}
}
