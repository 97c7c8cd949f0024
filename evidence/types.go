// Package evidence implements the content-addressed document/chunk/fact
// index with full-text search, per spec.md §4.5. Storage is SQLite with
// FTS5, adapted from the teacher engine's document store.
package evidence

// Document mirrors spec.md §3 "Document".
type Document struct {
	DocID         string `json:"doc_id"`
	ContentHash   string `json:"content_hash"`
	ParserVersion string `json:"parser_version"`
	URL           string `json:"url"`
	Host          string `json:"host"`
	Tier          int    `json:"tier"`
	Role          string `json:"role"`
	Category      string `json:"category"`
	ProductID     string `json:"product_id"`
	Bytes         int    `json:"bytes"`
}

// Chunk mirrors spec.md §3 "Chunk".
type Chunk struct {
	SnippetID      string   `json:"snippet_id"`
	DocID          string   `json:"doc_id"`
	ChunkIndex     int      `json:"chunk_index"`
	ChunkType      string   `json:"chunk_type"`
	Text           string   `json:"text"`
	NormalizedText string   `json:"normalized_text"`
	SnippetHash    string   `json:"snippet_hash"`
	FieldHints     []string `json:"field_hints,omitempty"`
	// Embedding is optional; when present it feeds the near-duplicate
	// clustering described in SPEC_FULL.md §3.5. Nil skips vector indexing.
	Embedding []float32 `json:"-"`
}

// Fact mirrors spec.md §3 "Fact".
type Fact struct {
	FactID           string  `json:"fact_id"`
	SnippetID        string  `json:"snippet_id"`
	DocID            string  `json:"doc_id"`
	FieldKey         string  `json:"field_key"`
	ValueRaw         string  `json:"value_raw"`
	ValueNormalized  string  `json:"value_normalized"`
	Unit             string  `json:"unit,omitempty"`
	ExtractionMethod string  `json:"extraction_method"`
	Confidence       float64 `json:"confidence"`
}

// DedupeOutcome is the closed outcome of index_document, spec.md §4.5.
type DedupeOutcome string

const (
	DedupeNew     DedupeOutcome = "new"
	DedupeReused  DedupeOutcome = "reused"
	DedupeUpdated DedupeOutcome = "updated"
)

// IndexResult is the return value of IndexDocument.
type IndexResult struct {
	DocID         string        `json:"doc_id"`
	SnippetIDs    []string      `json:"snippet_ids"`
	ChunksIndexed int           `json:"chunks_indexed"`
	FactsIndexed  int           `json:"facts_indexed"`
	DedupeOutcome DedupeOutcome `json:"dedupe_outcome"`
}

// ChunkRow is a search_by_field result row joined with its originating
// document's URL/host/tier for the consensus candidate pool.
type ChunkRow struct {
	Chunk
	URL  string
	Host string
	Tier int
}
