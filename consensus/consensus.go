package consensus

// Run applies spec.md §4.8's full acceptance pipeline: identity-locked
// short-circuit, anchor-conflict quarantine, clustering, the 3-approved-
// domain acceptance rule (with an optional below-pass-target path), and
// provenance composition.
func Run(in Input) Output {
	out := Output{
		Fields:                    map[string]string{},
		Provenance:                map[string]ProvenanceEntry{},
		InstrumentedConfirmations: map[string]bool{},
	}

	for field, getter := range identityLockedFields {
		out.Fields[field] = getter(in.IdentityLock)
		out.Provenance[field] = ProvenanceEntry{Value: getter(in.IdentityLock), Confidence: 1.0, MeetsPassTarget: true}
	}

	if in.ExtractionGateClosed {
		return out
	}

	surviving := make([]SourceResult, 0, len(in.SourceResults))
	for _, src := range in.SourceResults {
		if src.AnchorConflict {
			continue
		}
		surviving = append(surviving, src)
	}

	candidatesByField := map[string][]Candidate{}
	for _, src := range surviving {
		for _, cand := range src.FieldCandidates {
			if _, locked := identityLockedFields[cand.Field]; locked {
				continue
			}
			candidatesByField[cand.Field] = append(candidatesByField[cand.Field], cand)
		}
	}

	fields := in.FieldOrder
	if len(fields) == 0 {
		for f := range candidatesByField {
			fields = append(fields, f)
		}
	}

	for _, field := range fields {
		cands := candidatesByField[field]
		if len(cands) == 0 {
			out.Fields[field] = "unk"
			out.Provenance[field] = ProvenanceEntry{Value: "unk"}
			continue
		}

		rule := in.FieldRules[field]
		clusters := buildClusters(cands)
		win, ok := winner(clusters)
		if !ok && rule.SelectionPolicy.String != "" {
			applySelectionBonus(clusters, rule.SelectionPolicy.String)
			win, ok = winner(clusters)
		}
		if !ok {
			out.Fields[field] = "unk"
			out.Provenance[field] = ProvenanceEntry{Value: "unk"}
			continue
		}

		meetsPassTarget := win.approvedDomainCount() >= 3
		acceptedBelowPass := false

		if !meetsPassTarget && in.Config.BelowPassTargetEnabled && !rule.RequiresInstrumented {
			if belowPassTargetQualifies(win.candidates) {
				acceptedBelowPass = true
			}
		}
		if !meetsPassTarget && !acceptedBelowPass && rule.RequiresInstrumented {
			if instrumentedConfirmed(win.candidates) {
				acceptedBelowPass = true
				out.InstrumentedConfirmations[field] = true
			}
		}

		if !meetsPassTarget && !acceptedBelowPass {
			out.Fields[field] = "unk"
			out.Provenance[field] = ProvenanceEntry{Value: "unk"}
			continue
		}

		entry := ProvenanceEntry{
			Value:             win.value,
			Confidence:        clusterConfidence(win),
			MeetsPassTarget:   meetsPassTarget,
			AcceptedBelowPass: acceptedBelowPass,
			Evidence:          composeEvidence(win.candidates),
		}
		out.Fields[field] = win.value
		out.Provenance[field] = entry
	}

	return out
}

// belowPassTargetQualifies implements spec.md §4.8's below-pass-target
// path: exactly one manufacturer-tier source and one other approved
// tier-2 source agree.
func belowPassTargetQualifies(candidates []Candidate) bool {
	manufacturer := 0
	tier2Approved := 0
	for _, c := range candidates {
		if c.Tier <= 1 {
			manufacturer++
		} else if c.Tier == 2 && c.ApprovedDomain {
			tier2Approved++
		}
	}
	return manufacturer >= 1 && tier2Approved >= 1
}

// instrumentedConfirmed requires confirmations to come from domains
// explicitly tagged as instrumented; generic review domains never count,
// per spec.md §4.8.
func instrumentedConfirmed(candidates []Candidate) bool {
	instrumented := 0
	for _, c := range candidates {
		if c.Instrumented {
			instrumented++
		}
	}
	return instrumented >= 1
}

func clusterConfidence(cl *cluster) float64 {
	total := cl.score
	if total <= 0 {
		return 0
	}
	confidence := total / (total + 1)
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// composeEvidence orders the winning cluster's candidates by tier
// ascending then method preference, forwarding snippet metadata verbatim
// per spec.md §4.8's provenance composition rule.
func composeEvidence(candidates []Candidate) []EvidenceRef {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sortCandidatesByTierThenMethod(ordered)

	var refs []EvidenceRef
	for _, c := range ordered {
		refs = append(refs, c.EvidenceRefs...)
	}
	return refs
}

func sortCandidatesByTierThenMethod(cands []Candidate) {
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0; j-- {
			a, b := cands[j-1], cands[j]
			if a.Tier < b.Tier || (a.Tier == b.Tier && a.Method <= b.Method) {
				break
			}
			cands[j-1], cands[j] = cands[j], cands[j-1]
		}
	}
}
