// Package consensus implements the candidate clustering and acceptance
// engine (C8): it combines per-source field candidates under tier and
// evidence policies into a final value with provenance, per spec.md §4.8.
// Clustering is grounded on the teacher engine's graph/community.go
// connected-component + group-by-label idiom, generalized from entity
// graphs to per-field candidate clusters.
package consensus

// EvidenceRef is one provenance entry's citation, spec.md §3 "Provenance
// entry".
type EvidenceRef struct {
	URL              string
	Host             string
	Tier             int
	Method           string
	SnippetID        string
	SnippetHash      string
	SourceID         string
	ExtractionMethod string
	Quote            string
}

// Candidate is a per-source, per-field proposal, spec.md §3 "Candidate".
type Candidate struct {
	Field          string
	Value          string
	Method         string
	ApprovedDomain bool
	Tier           int
	RootDomain     string
	EvidenceRefs   []EvidenceRef
	SnippetHash    string
	Quote          string
	TimestampUnix  int64
	Instrumented   bool
}

// SourceResult is one fetched source's contribution, spec.md §4.8 input.
type SourceResult struct {
	SourceID        string
	Tier            int
	ApprovedDomain  bool
	IdentityMatched bool
	AnchorConflict  bool
	FieldCandidates []Candidate
}

// IdentityLock mirrors identity.Lock's public fields the consensus engine
// needs to resolve identity-locked fields directly (id, brand, model,
// base_model, category, sku), per spec.md §4.8.
type IdentityLock struct {
	ID        string
	Brand     string
	Model     string
	BaseModel string
	Category  string
	SKU       string
}

var identityLockedFields = map[string]func(IdentityLock) string{
	"id":         func(l IdentityLock) string { return l.ID },
	"brand":      func(l IdentityLock) string { return l.Brand },
	"model":      func(l IdentityLock) string { return l.Model },
	"base_model": func(l IdentityLock) string { return l.BaseModel },
	"category":   func(l IdentityLock) string { return l.Category },
	"sku":        func(l IdentityLock) string { return l.SKU },
}

// SelectionPolicy mirrors rules.SelectionPolicy without importing the
// rules package, so consensus stays usable against any field-rules
// source that can describe a field this way.
type SelectionPolicy struct {
	String string
}

// FieldRule is the subset of a compiled field rule consensus needs.
type FieldRule struct {
	RequiresInstrumented bool
	SelectionPolicy      SelectionPolicy
}

// Config is the run-level consensus configuration.
type Config struct {
	BelowPassTargetEnabled bool
}

// Input is the full argument set to Run, spec.md §4.8.
type Input struct {
	SourceResults []SourceResult
	FieldOrder    []string
	FieldRules    map[string]FieldRule // field_key -> rule; optional
	IdentityLock  IdentityLock
	Config        Config
	// ExtractionGateClosed mirrors identity.GateResult.Open == false: when
	// true, only identity-locked fields are produced and all other
	// candidates are quarantined, per spec.md §4.6/§4.11.
	ExtractionGateClosed bool
}

// ProvenanceEntry is the final per-field result, spec.md §3 "Provenance
// entry".
type ProvenanceEntry struct {
	Value             string
	Confidence        float64
	MeetsPassTarget   bool
	AcceptedBelowPass bool
	Evidence          []EvidenceRef
}

// Output is Run's return value, spec.md §4.8.
type Output struct {
	Fields                  map[string]string
	Provenance              map[string]ProvenanceEntry
	InstrumentedConfirmations map[string]bool
}
