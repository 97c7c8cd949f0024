package consensus

import (
	"sort"
	"strings"
)

// cluster groups candidates proposing the same normalized value, mirroring
// the teacher's modularitySplit group-by-label step (graph/community.go)
// generalized from entity communities to field-value clusters.
type cluster struct {
	value              string
	candidates         []Candidate
	score              float64
	approvedDomainSet  map[string]bool
}

func (c *cluster) approvedDomainCount() int {
	return len(c.approvedDomainSet)
}

// weight implements spec.md §4.8's tier/method/approved-domain weighting
// function feeding cluster score. Manufacturer-tier (tier 1) sources carry
// the most weight; approved domains and non-LLM methods are rewarded.
func weight(c Candidate) float64 {
	w := 1.0
	switch {
	case c.Tier <= 1:
		w += 2.0
	case c.Tier == 2:
		w += 1.0
	}
	if c.ApprovedDomain {
		w += 0.5
	}
	if c.Method != "" && !strings.HasPrefix(strings.ToLower(c.Method), "llm") {
		w += 0.25
	}
	return w
}

func buildClusters(candidates []Candidate) []*cluster {
	byValue := map[string]*cluster{}
	var order []string
	for _, cand := range candidates {
		key := normalizeValue(cand.Value)
		cl, ok := byValue[key]
		if !ok {
			cl = &cluster{value: cand.Value, approvedDomainSet: map[string]bool{}}
			byValue[key] = cl
			order = append(order, key)
		}
		cl.candidates = append(cl.candidates, cand)
		cl.score += weight(cand)
		if cand.ApprovedDomain && cand.RootDomain != "" {
			cl.approvedDomainSet[cand.RootDomain] = true
		}
	}
	clusters := make([]*cluster, 0, len(order))
	for _, k := range order {
		clusters = append(clusters, byValue[k])
	}
	return clusters
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// applySelectionBonus nudges tied clusters per spec.md §4.8's
// selection-policy bonuses. Bonuses only matter when weighted majority
// alone would otherwise tie.
func applySelectionBonus(clusters []*cluster, policy string) {
	switch policy {
	case "best_evidence":
		for _, cl := range clusters {
			for _, cand := range cl.candidates {
				if len(cand.EvidenceRefs) > 0 {
					cl.score += 0.1
				}
			}
		}
	case "prefer_deterministic":
		for _, cl := range clusters {
			for _, cand := range cl.candidates {
				if !strings.HasPrefix(strings.ToLower(cand.Method), "llm") {
					cl.score += 0.1
				}
			}
		}
	case "prefer_llm":
		for _, cl := range clusters {
			for _, cand := range cl.candidates {
				if strings.HasPrefix(strings.ToLower(cand.Method), "llm") {
					cl.score += 0.1
				}
			}
		}
	case "prefer_latest":
		for _, cl := range clusters {
			var maxTs int64
			for _, cand := range cl.candidates {
				if cand.TimestampUnix > maxTs {
					maxTs = cand.TimestampUnix
				}
			}
			if maxTs > 0 {
				cl.score += float64(maxTs) / 1e12 // negligible weight, just a tiebreak nudge
			}
		}
	case "best_confidence":
		// no-op per spec.md §4.8.
	}
}

// winner applies spec.md §4.8's cluster-winner rule: cluster A wins over B
// when score_A >= 1.1*score_B AND approvedDomainCount_A >=
// approvedDomainCount_B+1. Ties (no cluster dominates every other) yield
// "unk".
func winner(clusters []*cluster) (*cluster, bool) {
	if len(clusters) == 0 {
		return nil, false
	}
	if len(clusters) == 1 {
		return clusters[0], true
	}

	sorted := make([]*cluster, len(clusters))
	copy(sorted, clusters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })

	best := sorted[0]
	for _, other := range sorted[1:] {
		if other == best {
			continue
		}
		if !(best.score >= 1.1*other.score && best.approvedDomainCount() >= other.approvedDomainCount()+1) {
			return nil, false
		}
	}
	return best, true
}
