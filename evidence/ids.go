package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// hex12 returns the first 12 hex characters of sha256(input), matching the
// teacher's doc_id/snippet_id derivation style (store/store.go content
// hashing) generalized to spec.md §4.5's ID derivation contract.
func hex12(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:12]
}

// DocID derives doc_id = "doc_" + HEX12(sha256(content_hash || "|" || parser_version)).
// created_ts is deliberately excluded so re-ingest of identical content is a
// no-op, per spec.md §9 "Evidence re-ingest stability".
func DocID(contentHash, parserVersion string) string {
	return "doc_" + hex12(contentHash+"|"+parserVersion)
}

// SnippetID derives snippet_id = "sn_" + HEX12(sha256(content_hash || "|" ||
// parser_version || "|" || chunk_index)).
func SnippetID(contentHash, parserVersion string, chunkIndex int) string {
	return "sn_" + hex12(contentHash+"|"+parserVersion+"|"+strconv.Itoa(chunkIndex))
}
