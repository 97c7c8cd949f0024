package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// CrossValidate applies every compiled cross-validation rule whose
// trigger_field matches triggerField against the full record, per
// spec.md §4.7. Mutual-exclusion rules mutate record in place (they are
// the one rule type with a side effect: "set battery_hours = unk when
// connection = wired").
func (a *Artifacts) CrossValidate(triggerField, value string, record map[string]string) (bool, []Violation) {
	var violations []Violation
	for _, rule := range a.CrossValidationRules {
		if rule.TriggerField != triggerField {
			continue
		}
		switch rule.Type {
		case RuleBooleanCondition:
			if conditionMatches(rule.Condition, value) {
				if strings.TrimSpace(record[rule.RequiresField]) == "" {
					violations = append(violations, Violation{
						RuleType: rule.Type, Field: rule.RequiresField,
						Reason: fmt.Sprintf("%s requires %s when %s", rule.TriggerField, rule.RequiresField, rule.Condition),
					})
				}
			}
		case RuleComponentDBLookup:
			if v, ok := a.lookupComponentProperty(record, rule); ok {
				if !withinTolerance(value, v, rule.ToleranceFrac) {
					violations = append(violations, Violation{
						RuleType: rule.Type, Field: triggerField,
						Reason: fmt.Sprintf("%s exceeds component_db %s tolerance", triggerField, rule.ComponentProp),
					})
				}
			}
		case RuleGroupCompleteness:
			present := 0
			for _, f := range rule.GroupFields {
				if strings.TrimSpace(record[f]) != "" {
					present++
				}
			}
			if present < rule.GroupN {
				violations = append(violations, Violation{
					RuleType: rule.Type, Field: triggerField,
					Reason: fmt.Sprintf("group_completeness requires %d of %v, found %d", rule.GroupN, rule.GroupFields, present),
				})
			}
		case RuleMutualExclusion:
			if conditionMatches(rule.Condition, value) {
				record[rule.SetField] = rule.SetValue
			}
		}
	}
	return len(violations) == 0, violations
}

func (a *Artifacts) lookupComponentProperty(record map[string]string, rule CrossValidationRule) (float64, bool) {
	componentType := rule.ComponentProp
	idx := strings.Index(componentType, ".")
	if idx < 0 {
		return 0, false
	}
	componentType, prop := componentType[:idx], componentType[idx+1:]
	table, ok := a.ComponentDB[componentType]
	if !ok {
		return 0, false
	}
	compID, ok := record[rule.RequiresField]
	if !ok || compID == "" {
		return 0, false
	}
	props, ok := table[compID]
	if !ok {
		return 0, false
	}
	raw, ok := props[prop]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func withinTolerance(rawValue string, reference float64, toleranceFrac float64) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
	if err != nil {
		return false
	}
	if toleranceFrac <= 0 {
		return v <= reference
	}
	return v <= reference*(1+toleranceFrac)
}

// conditionMatches evaluates a simple "field IN ['a','b']"-shaped
// condition against a single value, per spec.md §4.7's example
// "connection IN ['wireless'] requires battery_hours". The compiler
// emits the already-isolated set of accepted values as the Condition
// string; this only matches value membership in it.
func conditionMatches(condition, value string) bool {
	condition = strings.TrimSpace(condition)
	condition = strings.TrimPrefix(condition, "[")
	condition = strings.TrimSuffix(condition, "]")
	for _, opt := range strings.Split(condition, ",") {
		opt = strings.Trim(strings.TrimSpace(opt), "'\"")
		if strings.EqualFold(opt, value) {
			return true
		}
	}
	return false
}
