package evidence

import "fmt"

// schemaSQL returns the DDL for the evidence index, adapted from the
// teacher engine's store/schema.go: same document/chunk/FTS/vec0 shape,
// generalized to spec.md §4.5's content-addressed model (doc_id/snippet_id
// as TEXT primary keys rather than autoincrementing surrogate keys, since
// determinism requires the same content to always derive the same id).
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
    doc_id         TEXT PRIMARY KEY,
    content_hash   TEXT NOT NULL,
    parser_version TEXT NOT NULL,
    url            TEXT NOT NULL,
    host           TEXT NOT NULL,
    tier           INTEGER NOT NULL,
    role           TEXT NOT NULL,
    category       TEXT NOT NULL,
    product_id     TEXT NOT NULL,
    bytes          INTEGER NOT NULL,
    created_at     DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS evidence_chunks (
    snippet_id      TEXT PRIMARY KEY,
    doc_id          TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
    chunk_index     INTEGER NOT NULL,
    chunk_type      TEXT NOT NULL,
    content         TEXT NOT NULL,
    normalized_text TEXT NOT NULL,
    snippet_hash    TEXT NOT NULL,
    field_hints     JSON
);

CREATE TABLE IF NOT EXISTS evidence_facts (
    fact_id           TEXT PRIMARY KEY,
    snippet_id        TEXT NOT NULL REFERENCES evidence_chunks(snippet_id) ON DELETE CASCADE,
    doc_id            TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
    field_key         TEXT NOT NULL,
    value_raw         TEXT NOT NULL,
    value_normalized  TEXT NOT NULL,
    unit              TEXT,
    extraction_method TEXT NOT NULL,
    confidence        REAL NOT NULL
);

-- vec0 table repurposed for near-duplicate snippet clustering (a secondary
-- signal; content-hash equality remains the authoritative dedupe check).
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    snippet_id TEXT PRIMARY KEY,
    embedding float[%d]
);

CREATE VIRTUAL TABLE IF NOT EXISTS evidence_fts USING fts5(
    normalized_text,
    field_hints,
    content='evidence_chunks',
    content_rowid='rowid',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS evidence_chunks_ai AFTER INSERT ON evidence_chunks BEGIN
    INSERT INTO evidence_fts(rowid, normalized_text, field_hints)
    VALUES (new.rowid, new.normalized_text, new.field_hints);
END;
CREATE TRIGGER IF NOT EXISTS evidence_chunks_ad AFTER DELETE ON evidence_chunks BEGIN
    INSERT INTO evidence_fts(evidence_fts, rowid, normalized_text, field_hints)
    VALUES ('delete', old.rowid, old.normalized_text, old.field_hints);
END;
CREATE TRIGGER IF NOT EXISTS evidence_chunks_au AFTER UPDATE ON evidence_chunks BEGIN
    INSERT INTO evidence_fts(evidence_fts, rowid, normalized_text, field_hints)
    VALUES ('delete', old.rowid, old.normalized_text, old.field_hints);
    INSERT INTO evidence_fts(rowid, normalized_text, field_hints)
    VALUES (new.rowid, new.normalized_text, new.field_hints);
END;

CREATE INDEX IF NOT EXISTS idx_documents_content_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_documents_product ON documents(product_id, category);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON evidence_chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_facts_field ON evidence_facts(field_key);
CREATE INDEX IF NOT EXISTS idx_facts_doc ON evidence_facts(doc_id);
`, embeddingDim)
}
