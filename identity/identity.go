// Package identity implements the per-page identity scorer and the
// page-set acceptance gate, per spec.md §4.6. It decides, per fetched
// page, whether its candidates are trustworthy enough to enter consensus,
// and across a whole source set whether extraction is permitted at all.
package identity

import "strings"

// Lock is the immutable identity_lock for the run (spec.md §3 "Product
// identity"). Brand and Model are required; the rest are optional
// hard-ID fields.
type Lock struct {
	Brand   string
	Model   string
	Variant string
	SKU     string
	MPN     string
	GTIN    string
}

// Candidate is one identity token observed on a page, carrying which
// hard-ID field (if any) it claims to match.
type Candidate struct {
	Field string // "brand", "model", "variant", "sku", "mpn", "gtin"
	Value string
}

// PageSignal is the per-page input to Score: the fetched URL/title plus
// whatever identity candidates the parser extracted from it.
type PageSignal struct {
	URL        string
	Title      string
	Candidates []Candidate
	// ManufacturerTier marks the source as the manufacturer's own domain,
	// feeding the page-set gate's path 1/path 2 checks.
	ManufacturerTier bool
	// Tier is the source tier (1 = manufacturer, higher = less trusted).
	Tier int
	// ApprovedDomain marks the host as on the category's approved-domain list.
	ApprovedDomain bool
	// TrustedHelperFile marks the source as a curated helper-file reference
	// rather than a live fetch, per spec.md §4.6 path 2.
	TrustedHelperFile bool
}

// Decision is the closed outcome of per-page scoring.
type Decision string

const (
	Confirmed Decision = "CONFIRMED"
	Matched   Decision = "MATCHED"
	NoMatch   Decision = "NO_MATCH"
	Rejected  Decision = "REJECTED"
)

// weights for the weighted token match score, spec.md §4.6 "weighted
// token matches (brand, model, variant, SKU/MPN/GTIN)". Hard-ID fields
// carry more weight since a match on them is much stronger identity
// evidence than a brand/model string match.
var fieldWeight = map[string]float64{
	"brand":   0.2,
	"model":   0.3,
	"variant": 0.15,
	"sku":     0.35,
	"mpn":     0.35,
	"gtin":    0.35,
}

var hardIDFields = map[string]bool{"sku": true, "mpn": true, "gtin": true}

// matchThreshold is the score at/above which match=true when no variant
// is specified in the lock, per spec.md §4.6.
const matchThreshold = 0.7

// ScoreResult is the per-page identity scoring outcome.
type ScoreResult struct {
	Score            float64
	Decision         Decision
	Match            bool
	CriticalConflict string
}

func normToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lockValue(lock Lock, field string) (string, bool) {
	switch field {
	case "brand":
		return lock.Brand, lock.Brand != ""
	case "model":
		return lock.Model, lock.Model != ""
	case "variant":
		return lock.Variant, lock.Variant != ""
	case "sku":
		return lock.SKU, lock.SKU != ""
	case "mpn":
		return lock.MPN, lock.MPN != ""
	case "gtin":
		return lock.GTIN, lock.GTIN != ""
	}
	return "", false
}

// Score computes the per-page identity decision for a page against the
// run's identity lock, per spec.md §4.6.
func Score(page PageSignal, lock Lock) ScoreResult {
	var weighted float64
	var maxPossible float64

	for field, w := range fieldWeight {
		if _, present := lockValue(lock, field); present {
			maxPossible += w
		}
	}
	if maxPossible == 0 {
		maxPossible = 1
	}

	var hardMismatch, hardMatch string
	for _, cand := range page.Candidates {
		lockVal, present := lockValue(lock, cand.Field)
		if !present {
			continue
		}
		w := fieldWeight[cand.Field]
		if normToken(cand.Value) == normToken(lockVal) {
			weighted += w
			if hardIDFields[cand.Field] {
				hardMatch = cand.Field
			}
		} else if hardIDFields[cand.Field] {
			hardMismatch = cand.Field
		}
	}

	score := weighted / maxPossible
	if score > 1 {
		score = 1
	}

	if hardMismatch != "" {
		return ScoreResult{
			Score:            score,
			Decision:         Rejected,
			Match:            false,
			CriticalConflict: hardMismatch + "_mismatch",
		}
	}
	if hardMatch != "" {
		return ScoreResult{Score: 1.0, Decision: Confirmed, Match: true}
	}

	match := score >= matchThreshold
	decision := NoMatch
	if match {
		decision = Matched
	}
	return ScoreResult{Score: score, Decision: decision, Match: match}
}

// GateResult is the page-set gate's verdict: whether extraction is
// permitted for non-identity fields this round.
type GateResult struct {
	Open             bool
	HardConflict     bool
	ConflictReason   string
	ManufacturerSeen bool
	CredibleMatches  int
}

// GatePageSet applies spec.md §4.6's page-set acceptance predicate across
// every page's (signal, decision) pair fetched this round.
func GatePageSet(pages []PageSignal, decisions []ScoreResult) GateResult {
	var result GateResult

	for i, d := range decisions {
		if d.Decision == Rejected && d.Score >= matchThreshold {
			result.HardConflict = true
			result.ConflictReason = d.CriticalConflict
		}
		page := pages[i]
		if d.Decision == Confirmed || d.Decision == Matched {
			if page.ManufacturerTier {
				result.ManufacturerSeen = true
			} else if page.Tier <= 2 && page.ApprovedDomain {
				result.CredibleMatches++
			}
		}
	}

	if result.HardConflict {
		result.Open = false
		return result
	}

	path1 := result.ManufacturerSeen && result.CredibleMatches >= 2
	path2 := result.ManufacturerSeen && hasTrustedHelperMatch(pages, decisions)
	result.Open = path1 || path2
	return result
}

func hasTrustedHelperMatch(pages []PageSignal, decisions []ScoreResult) bool {
	for i, d := range decisions {
		if pages[i].TrustedHelperFile && (d.Decision == Confirmed || d.Decision == Matched) {
			return true
		}
	}
	return false
}
