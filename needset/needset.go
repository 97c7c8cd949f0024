// Package needset implements the need-set builder (C10): given normalized
// fields, provenance, and compiled field rules, it computes a per-field
// deficit score driving the convergence loop's next round, per spec.md
// §4.10.
package needset

import "sort"

// RequiredLevel mirrors rules.RequiredLevel without importing the rules
// package, so needset stays usable against any compiled-rule source.
type RequiredLevel string

const (
	LevelIdentity RequiredLevel = "identity"
	LevelCritical RequiredLevel = "critical"
	LevelRequired RequiredLevel = "required"
	LevelExpected RequiredLevel = "expected"
	LevelOptional RequiredLevel = "optional"
)

// requiredWeight implements spec.md §4.10's required_weight(required_level)
// term: higher levels carry proportionally larger deficit weight so they
// dominate the need-set ordering when unmet.
var requiredWeight = map[RequiredLevel]float64{
	LevelIdentity: 10.0,
	LevelCritical: 8.0,
	LevelRequired: 5.0,
	LevelExpected: 2.0,
	LevelOptional: 0.5,
}

// ReasonCode is the closed set of reasons a field can appear in the
// need-set for, spec.md §4.10.
type ReasonCode string

const (
	ReasonMissing                  ReasonCode = "missing"
	ReasonLowConfidence            ReasonCode = "low_confidence"
	ReasonTierPrefUnmet            ReasonCode = "tier_pref_unmet"
	ReasonMinRefsFail              ReasonCode = "min_refs_fail"
	ReasonConflict                 ReasonCode = "conflict"
	ReasonCriticalBelowPassTarget  ReasonCode = "critical_field_below_pass_target"
)

// FieldState is the per-field input need-set scoring reads from
// provenance + field rules.
type FieldState struct {
	FieldKey          string
	RequiredLevel     RequiredLevel
	MeetsPassTarget   bool
	AcceptedBelowPass bool
	Confidence        float64
	EvidenceRefCount  int
	MinEvidenceRefs   int
	TierPreference    []int
	BestTierSeen      int // 0 means no tier observed
	HasConflict       bool
	StalenessRounds   int // rounds since last refresh
}

// Entry is one need-set row, spec.md §3 "Need-set entry".
type Entry struct {
	FieldKey       string
	RequiredLevel  RequiredLevel
	NeedScore      float64
	Reasons        []ReasonCode
	MinRefs        int
	TierPreference []int
}

// IdentityLockStatus is the closed enum on IdentityLockState.Status.
type IdentityLockStatus string

const (
	StatusLocked      IdentityLockStatus = "locked"
	StatusProvisional IdentityLockStatus = "provisional"
	StatusConflict    IdentityLockStatus = "conflict"
	StatusUnlocked    IdentityLockStatus = "unlocked"
)

// IdentityLockState is attached to the need-set output, spec.md §4.10.
type IdentityLockState struct {
	Status     IdentityLockStatus
	Confidence float64
	PageCount  int
}

// Result is Build's return value.
type Result struct {
	Needs       []Entry
	NeedsetSize int
	TotalFields int
	IdentityLock IdentityLockState
}

// tierPreferenceGap scores how far the best tier actually seen on a field
// is from its rule's preferred tier list (0 when already at or better
// than the most-preferred tier, or when the field has no preference).
func tierPreferenceGap(state FieldState) float64 {
	if len(state.TierPreference) == 0 || state.BestTierSeen == 0 {
		return 0
	}
	best := state.TierPreference[0]
	for _, t := range state.TierPreference {
		if t < best {
			best = t
		}
	}
	if state.BestTierSeen <= best {
		return 0
	}
	return float64(state.BestTierSeen-best) * 0.5
}

func minRefsGap(state FieldState) float64 {
	if state.MinEvidenceRefs <= 0 {
		return 0
	}
	gap := state.MinEvidenceRefs - state.EvidenceRefCount
	if gap <= 0 {
		return 0
	}
	return float64(gap) * 1.0
}

func ambiguityPenalty(state FieldState) float64 {
	if state.HasConflict {
		return 1.5
	}
	return 0
}

func stalenessDecay(state FieldState) float64 {
	return float64(state.StalenessRounds) * 0.1
}

func reasonsFor(state FieldState) []ReasonCode {
	var reasons []ReasonCode
	if state.Confidence == 0 && state.EvidenceRefCount == 0 {
		reasons = append(reasons, ReasonMissing)
	}
	if state.Confidence > 0 && state.Confidence < 0.5 {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if tierPreferenceGap(state) > 0 {
		reasons = append(reasons, ReasonTierPrefUnmet)
	}
	if minRefsGap(state) > 0 {
		reasons = append(reasons, ReasonMinRefsFail)
	}
	if state.HasConflict {
		reasons = append(reasons, ReasonConflict)
	}
	if !state.MeetsPassTarget && !state.AcceptedBelowPass &&
		(state.RequiredLevel == LevelCritical || state.RequiredLevel == LevelIdentity) {
		reasons = append(reasons, ReasonCriticalBelowPassTarget)
	}
	return reasons
}

// Build computes need_score for every field and returns those with a
// positive deficit, sorted by need_score descending, per spec.md §4.10.
func Build(states []FieldState, lock IdentityLockState) Result {
	var entries []Entry
	for _, state := range states {
		meets := 1.0
		if state.MeetsPassTarget || state.AcceptedBelowPass {
			meets = 0
		}
		score := requiredWeight[state.RequiredLevel]*meets +
			tierPreferenceGap(state) +
			minRefsGap(state) +
			ambiguityPenalty(state) -
			stalenessDecay(state)

		if score <= 0 {
			continue
		}

		entries = append(entries, Entry{
			FieldKey:       state.FieldKey,
			RequiredLevel:  state.RequiredLevel,
			NeedScore:      score,
			Reasons:        reasonsFor(state),
			MinRefs:        state.MinEvidenceRefs,
			TierPreference: state.TierPreference,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].NeedScore > entries[j].NeedScore })

	return Result{
		Needs:        entries,
		NeedsetSize:  len(entries),
		TotalFields:  len(states),
		IdentityLock: lock,
	}
}
