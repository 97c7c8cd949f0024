package evidence

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DefaultEmbeddingDim matches the teacher engine's default chunk embedding
// width; spec.md does not mandate a dimension, so the teacher's default is
// kept unless a caller overrides it via NewWithDim.
const DefaultEmbeddingDim = 1536

// Store is the SQLite-backed evidence index, adapted from the teacher
// engine's store.Store: document/chunk registry, FTS5 search, and a vec0
// table for near-duplicate clustering.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) the evidence database at dbPath with the default
// embedding dimension.
func New(dbPath string) (*Store, error) {
	return NewWithDim(dbPath, DefaultEmbeddingDim)
}

// NewWithDim opens the evidence database with an explicit embedding width.
func NewWithDim(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("evidence: creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("evidence: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("evidence: pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("evidence: creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// IndexDocument applies the index_document operation from spec.md §4.5: it
// derives doc_id/snippet_id deterministically from content, then classifies
// the write as new, reused (identical content already indexed), or updated
// (a prior document existed at the same URL with different content).
func (s *Store) IndexDocument(ctx context.Context, doc Document, chunks []Chunk, facts []Fact) (IndexResult, error) {
	doc.DocID = DocID(doc.ContentHash, doc.ParserVersion)

	var existing int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE doc_id = ?", doc.DocID,
	).Scan(&existing); err != nil {
		return IndexResult{}, fmt.Errorf("evidence: checking existing doc: %w", err)
	}
	if existing > 0 {
		ids, err := s.snippetIDsForDoc(ctx, doc.DocID)
		if err != nil {
			return IndexResult{}, err
		}
		return IndexResult{
			DocID:         doc.DocID,
			SnippetIDs:    ids,
			ChunksIndexed: 0,
			FactsIndexed:  0,
			DedupeOutcome: DedupeReused,
		}, nil
	}

	var priorAtURL int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE url = ? AND content_hash != ?", doc.URL, doc.ContentHash,
	).Scan(&priorAtURL); err != nil {
		return IndexResult{}, fmt.Errorf("evidence: checking prior url revisions: %w", err)
	}
	outcome := DedupeNew
	if priorAtURL > 0 {
		outcome = DedupeUpdated
	}

	snippetIDs := make([]string, 0, len(chunks))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (doc_id, content_hash, parser_version, url, host, tier, role, category, product_id, bytes)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, doc.DocID, doc.ContentHash, doc.ParserVersion, doc.URL, doc.Host, doc.Tier, doc.Role, doc.Category, doc.ProductID, doc.Bytes); err != nil {
			return fmt.Errorf("inserting document: %w", err)
		}

		for i := range chunks {
			c := &chunks[i]
			c.DocID = doc.DocID
			if c.SnippetID == "" {
				c.SnippetID = SnippetID(doc.ContentHash, doc.ParserVersion, c.ChunkIndex)
			}
			c.SnippetHash = hex12(c.NormalizedText)
			hints, err := json.Marshal(c.FieldHints)
			if err != nil {
				return fmt.Errorf("marshaling field hints: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO evidence_chunks (snippet_id, doc_id, chunk_index, chunk_type, content, normalized_text, snippet_hash, field_hints)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, c.SnippetID, c.DocID, c.ChunkIndex, c.ChunkType, c.Text, c.NormalizedText, c.SnippetHash, string(hints)); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.SnippetID, err)
			}
			if len(c.Embedding) > 0 {
				if _, err := tx.ExecContext(ctx,
					"INSERT OR REPLACE INTO vec_chunks (snippet_id, embedding) VALUES (?, ?)",
					c.SnippetID, serializeFloat32(c.Embedding)); err != nil {
					return fmt.Errorf("inserting embedding for %s: %w", c.SnippetID, err)
				}
			}
			snippetIDs = append(snippetIDs, c.SnippetID)
		}

		for i := range facts {
			f := &facts[i]
			f.DocID = doc.DocID
			if f.FactID == "" {
				f.FactID = "fa_" + hex12(f.SnippetID+"|"+f.FieldKey+"|"+f.ValueNormalized)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO evidence_facts (fact_id, snippet_id, doc_id, field_key, value_raw, value_normalized, unit, extraction_method, confidence)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, f.FactID, f.SnippetID, f.DocID, f.FieldKey, f.ValueRaw, f.ValueNormalized, f.Unit, f.ExtractionMethod, f.Confidence); err != nil {
				return fmt.Errorf("inserting fact %s: %w", f.FactID, err)
			}
		}
		return nil
	})
	if err != nil {
		return IndexResult{}, err
	}

	return IndexResult{
		DocID:         doc.DocID,
		SnippetIDs:    snippetIDs,
		ChunksIndexed: len(chunks),
		FactsIndexed:  len(facts),
		DedupeOutcome: outcome,
	}, nil
}

func (s *Store) snippetIDsForDoc(ctx context.Context, docID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT snippet_id FROM evidence_chunks WHERE doc_id = ? ORDER BY chunk_index", docID)
	if err != nil {
		return nil, fmt.Errorf("evidence: listing snippet ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchByField runs the search_by_field operation from spec.md §4.5: an
// FTS5 query over normalized_text/field_hints scoped to a category and
// product, feeding the candidate pool the rules/consensus stages draw
// from (spec.md's fts_to_evidence_pool mapping). Query terms shorter than
// two characters are dropped; if none remain the result is empty rather
// than falling back to an unscoped match.
func (s *Store) SearchByField(ctx context.Context, category, productID, fieldKey string, queryTerms []string, maxResults int) ([]ChunkRow, error) {
	terms := make([]string, 0, len(queryTerms))
	for _, t := range queryTerms {
		t = strings.TrimSpace(t)
		if len(t) < 2 {
			continue
		}
		terms = append(terms, escapeFTSTerm(t))
	}
	if len(terms) == 0 {
		return nil, nil
	}
	matchQuery := strings.Join(terms, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.snippet_id, c.doc_id, c.chunk_index, c.chunk_type, c.content, c.normalized_text, c.snippet_hash, c.field_hints,
			d.url, d.host, d.tier
		FROM evidence_fts f
		JOIN evidence_chunks c ON c.rowid = f.rowid
		JOIN documents d ON d.doc_id = c.doc_id
		WHERE evidence_fts MATCH ? AND d.category = ? AND d.product_id = ?
		ORDER BY f.rank
		LIMIT ?
	`, matchQuery, category, productID, maxResults)
	if err != nil {
		return nil, fmt.Errorf("evidence: fts search: %w", err)
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		var hints string
		if err := rows.Scan(&r.SnippetID, &r.DocID, &r.ChunkIndex, &r.ChunkType, &r.Text, &r.NormalizedText, &r.SnippetHash, &hints,
			&r.URL, &r.Host, &r.Tier); err != nil {
			return nil, err
		}
		if hints != "" {
			_ = json.Unmarshal([]byte(hints), &r.FieldHints)
		}
		out = append(out, r)
	}
	if fieldKey != "" {
		filtered := out[:0]
		for _, r := range out {
			if hasHint(r.FieldHints, fieldKey) || len(r.FieldHints) == 0 {
				filtered = append(filtered, r)
			}
		}
		out = filtered
	}
	return out, rows.Err()
}

func hasHint(hints []string, key string) bool {
	for _, h := range hints {
		if h == key {
			return true
		}
	}
	return false
}

// NearDuplicates runs a vec0 KNN search and returns the snippet ids of up
// to k chunks nearest to embedding, ordered by distance. No distance
// threshold is applied, and nothing in this module feeds the result into
// consensus or content-hash dedupe.
func (s *Store) NearDuplicates(ctx context.Context, embedding []float32, k int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT snippet_id FROM vec_chunks WHERE embedding MATCH ? AND k = ? ORDER BY distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("evidence: near-duplicate search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func escapeFTSTerm(t string) string {
	t = strings.ReplaceAll(t, `"`, `""`)
	return `"` + t + `"`
}
