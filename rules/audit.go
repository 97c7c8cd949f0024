package rules

import "strings"

// Evidence is the per-candidate citation audit_evidence verifies against
// its snippet, spec.md §4.7.
type Evidence struct {
	URL              string
	SnippetID        string
	SnippetHash      string
	SourceID         string
	Quote            string
	QuoteSpanStart   int
	QuoteSpanEnd     int
	RetrievedAt      string
	ExtractionMethod string
}

// EvidencePack resolves a snippet_id to the normalized text it was
// extracted from, and its stored hash, for audit cross-checking.
type EvidencePack interface {
	SnippetText(snippetID string) (normalizedText string, snippetHash string, ok bool)
}

// AuditOptions configures audit_evidence.
type AuditOptions struct {
	Strict       bool
	EvidencePack EvidencePack
}

// AuditResult is audit_evidence's return value.
type AuditResult struct {
	OK         bool
	ReasonCode string
}

// AuditEvidence verifies a field candidate's citation against its
// evidence pack, per spec.md §4.7. Non-strict mode requires url,
// snippet_id, and quote, and checks the quote exists in the snippet's
// normalized text (with a numeric auto-repair path for unit-suffixed
// raw values). Strict mode additionally requires source_id, a matching
// snippet_hash, a valid quote_span, retrieved_at, and extraction_method.
// Every rejection uses one of spec.md §7 item 6's closed evidence-
// violation reason codes: missing_evidence_refs, snippet_hash_mismatch,
// numeric_value_not_in_snippet, quote_span_mismatch, quote_span_invalid.
func AuditEvidence(fieldKey, value string, ev Evidence, opts AuditOptions) AuditResult {
	if ev.URL == "" {
		return AuditResult{OK: false, ReasonCode: "missing_evidence_refs"}
	}
	if ev.SnippetID == "" {
		return AuditResult{OK: false, ReasonCode: "missing_evidence_refs"}
	}
	if ev.Quote == "" {
		return AuditResult{OK: false, ReasonCode: "missing_evidence_refs"}
	}

	var text, storedHash string
	var found bool
	if opts.EvidencePack != nil {
		text, storedHash, found = opts.EvidencePack.SnippetText(ev.SnippetID)
	}
	if !found {
		return AuditResult{OK: false, ReasonCode: "missing_evidence_refs"}
	}

	if !strings.Contains(text, ev.Quote) {
		if repaired, ok := numericAutoRepair(ev.Quote); !ok || !strings.Contains(text, repaired) {
			return AuditResult{OK: false, ReasonCode: "numeric_value_not_in_snippet"}
		}
	}

	if opts.Strict {
		if ev.SourceID == "" {
			return AuditResult{OK: false, ReasonCode: "missing_evidence_refs"}
		}
		if ev.SnippetHash == "" || ev.SnippetHash != storedHash {
			return AuditResult{OK: false, ReasonCode: "snippet_hash_mismatch"}
		}
		if !(0 <= ev.QuoteSpanStart && ev.QuoteSpanStart < ev.QuoteSpanEnd && ev.QuoteSpanEnd <= len(text)) {
			return AuditResult{OK: false, ReasonCode: "quote_span_invalid"}
		}
		if text[ev.QuoteSpanStart:ev.QuoteSpanEnd] != ev.Quote {
			return AuditResult{OK: false, ReasonCode: "quote_span_mismatch"}
		}
		if ev.RetrievedAt == "" {
			return AuditResult{OK: false, ReasonCode: "missing_evidence_refs"}
		}
		if ev.ExtractionMethod == "" {
			return AuditResult{OK: false, ReasonCode: "missing_evidence_refs"}
		}
	}

	return AuditResult{OK: true}
}

// numericAutoRepair extracts the leading numeric substring from a raw
// value like "52 in", so a quote of "52 in" still matches a snippet that
// only contains the bare digits "52".
func numericAutoRepair(quote string) (string, bool) {
	i := 0
	n := len(quote)
	for i < n && (quote[i] == '-' || quote[i] == '.' || (quote[i] >= '0' && quote[i] <= '9')) {
		i++
	}
	if i == 0 {
		return "", false
	}
	return quote[:i], true
}
