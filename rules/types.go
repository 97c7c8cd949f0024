// Package rules implements the field-rules engine (C7): it loads the
// compiled category artifacts produced by the compiler (C12) and exposes
// the normalize/validate/audit/cross-validate operations the convergence
// loop calls every round, per spec.md §4.7.
package rules

// RequiredLevel is the closed enum on FieldRule.RequiredLevel.
type RequiredLevel string

const (
	LevelIdentity RequiredLevel = "identity"
	LevelCritical RequiredLevel = "critical"
	LevelRequired RequiredLevel = "required"
	LevelExpected RequiredLevel = "expected"
	LevelOptional RequiredLevel = "optional"
)

// ContractShape is the closed enum on Contract.Shape.
type ContractShape string

const (
	ShapeScalar ContractShape = "scalar"
	ShapeList   ContractShape = "list"
)

// EnumPolicy is the closed enum on FieldRule.EnumPolicy.
type EnumPolicy string

const (
	EnumOpen   EnumPolicy = "open"
	EnumClosed EnumPolicy = "closed"
	EnumNone   EnumPolicy = "none"
)

// contractTypes is the closed set field_rules.contract.type must draw
// from. The compiler (C12) does not check contract types; Load rejects a
// compiled field whose non-empty contract.type is outside this set.
var contractTypes = map[string]bool{
	"string": true, "number": true, "boolean": true, "enum": true,
	"unit_value": true, "url": true, "date": true, "object": true,
}

// Contract is field_rules[*].contract.
type Contract struct {
	Type             string   `json:"type"`
	Shape            ContractShape `json:"shape"`
	Unit             string   `json:"unit,omitempty"`
	RangeMin         *float64 `json:"range_min,omitempty"`
	RangeMax         *float64 `json:"range_max,omitempty"`
	ObjectSchema     []string `json:"object_schema,omitempty"`
	ListItemUnion    string   `json:"list_item_union,omitempty"`
	ValueForm        string   `json:"value_form,omitempty"`
}

// EvidenceRule is field_rules[*].evidence.
type EvidenceRule struct {
	Required              bool     `json:"required"`
	MinEvidenceRefs        int      `json:"min_evidence_refs"`
	DistinctSourcesRequired int     `json:"distinct_sources_required"`
	TierPreference         []int    `json:"tier_preference,omitempty"`
	ConflictPolicy         string   `json:"conflict_policy,omitempty"`
}

// ParseRule is field_rules[*].parse.
type ParseRule struct {
	Template            string   `json:"template"`
	UnitAccepts         []string `json:"unit_accepts,omitempty"`
	StrictUnitRequired  bool     `json:"strict_unit_required,omitempty"`
	NormalizationFn     string   `json:"normalization_fn,omitempty"`
}

// SelectionPolicy is either a bare string enum (best_confidence,
// best_evidence, prefer_deterministic, prefer_llm, prefer_latest) or a
// reducer object {source_field, tolerance_ms, rule:"reduce"}, per
// spec.md §4.9. Only one of String/Reducer is populated.
type SelectionPolicy struct {
	String  string
	Reducer *ReducerPolicy
}

// ReducerPolicy is the object form of SelectionPolicy.
type ReducerPolicy struct {
	SourceField string `json:"source_field"`
	ToleranceMs int64  `json:"tolerance_ms"`
	Rule        string `json:"rule"`
}

// FieldRule is the per-field compiled contract, spec.md §3 "Field rule".
type FieldRule struct {
	FieldKey             string          `json:"field_key"`
	RequiredLevel        RequiredLevel   `json:"required_level"`
	Difficulty           string          `json:"difficulty,omitempty"`
	Availability         string          `json:"availability,omitempty"`
	Contract             Contract        `json:"contract"`
	EnumPolicy           EnumPolicy      `json:"enum_policy"`
	Parse                ParseRule       `json:"parse"`
	Evidence             EvidenceRule    `json:"evidence"`
	SelectionPolicy      SelectionPolicy `json:"-"`
	RequiresInstrumented bool            `json:"requires_instrumented,omitempty"`
	ComponentDBRef       string          `json:"component_db_ref,omitempty"`
	SearchHints          []string        `json:"search_hints,omitempty"`
	Constraints          []string        `json:"constraints,omitempty"`
	UI                   map[string]any  `json:"ui,omitempty"`
}

// KnownValue is one canonical enum entry with its aliases, spec.md §3
// "Known-values table".
type KnownValue struct {
	Canonical string   `json:"canonical"`
	Aliases   []string `json:"aliases,omitempty"`
}

// CrossValidationRuleType is the closed set of cross_validate rule kinds.
type CrossValidationRuleType string

const (
	RuleBooleanCondition  CrossValidationRuleType = "boolean_condition"
	RuleComponentDBLookup CrossValidationRuleType = "component_db_lookup"
	RuleGroupCompleteness CrossValidationRuleType = "group_completeness"
	RuleMutualExclusion   CrossValidationRuleType = "mutual_exclusion"
)

// CrossValidationRule is one compiled cross-field rule.
type CrossValidationRule struct {
	Type          CrossValidationRuleType `json:"type"`
	TriggerField  string                  `json:"trigger_field"`
	Condition     string                  `json:"condition,omitempty"`
	RequiresField string                  `json:"requires_field,omitempty"`
	ComponentProp string                  `json:"component_property,omitempty"`
	ToleranceFrac float64                 `json:"tolerance_fraction,omitempty"`
	GroupFields   []string                `json:"group_fields,omitempty"`
	GroupN        int                     `json:"group_n,omitempty"`
	SetField      string                  `json:"set_field,omitempty"`
	SetValue      string                  `json:"set_value,omitempty"`
}

// Violation is one cross_validate failure.
type Violation struct {
	RuleType CrossValidationRuleType `json:"rule_type"`
	Field    string                  `json:"field"`
	Reason   string                  `json:"reason"`
}

// Artifacts is the set of compiled-category inputs Load reads:
// field_rules.runtime.json, known_values.json,
// cross_validation_rules.json, key_migrations.json and
// component_db/*.json. parse_templates.json and ui_field_catalog.json
// are not loaded.
type Artifacts struct {
	FieldRules           map[string]FieldRule
	KnownValues          map[string]map[string]KnownValue // field_key -> alias(lower) -> entry
	CrossValidationRules []CrossValidationRule
	KeyMigrations        map[string]string // old_key -> new_key
	ComponentDB          map[string]map[string]map[string]any // component_type -> component_id -> props
}
