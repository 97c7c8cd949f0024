package frontier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS frontier_urls (
	product_id TEXT NOT NULL,
	canonical_url TEXT NOT NULL,
	path_signature TEXT NOT NULL,
	first_seen_ts DATETIME NOT NULL,
	last_seen_ts DATETIME NOT NULL,
	last_status INTEGER,
	notfound_count INTEGER DEFAULT 0,
	blocked_count INTEGER DEFAULT 0,
	parsed_ok_count INTEGER DEFAULT 0,
	consecutive_403 INTEGER DEFAULT 0,
	consecutive_429 INTEGER DEFAULT 0,
	fields_found JSON,
	content_hash TEXT,
	cooldown_reason TEXT,
	cooldown_seconds INTEGER,
	cooldown_until DATETIME,
	PRIMARY KEY (product_id, canonical_url)
);
CREATE INDEX IF NOT EXISTS idx_frontier_urls_sig ON frontier_urls(product_id, path_signature);

CREATE TABLE IF NOT EXISTS frontier_queries (
	product_id TEXT NOT NULL,
	normalized_query TEXT NOT NULL,
	provider TEXT,
	fields JSON,
	last_run_ts DATETIME NOT NULL,
	result_url_count INTEGER DEFAULT 0,
	PRIMARY KEY (product_id, normalized_query)
);
`

// SQLiteStore is the SQLite-backed frontier.Store implementation. It calls
// the identical decideCooldown decision table as JSONStore so both
// backends satisfy the "frontier backend parity" invariant in spec.md §9.
type SQLiteStore struct {
	db  *sql.DB
	cfg CooldownConfig
	now func() time.Time
}

// NewSQLiteStore opens (creating if absent) a SQLite-backed frontier store.
func NewSQLiteStore(dbPath string, cfg CooldownConfig) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating frontier db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening frontier db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating frontier schema: %w", err)
	}
	return &SQLiteStore{db: db, cfg: cfg, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
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

func (s *SQLiteStore) ShouldSkipQuery(productID, query string, force bool) (bool, error) {
	if force {
		return false, nil
	}
	norm := normalizeQuery(query)
	var lastRun time.Time
	err := s.db.QueryRow(
		`SELECT last_run_ts FROM frontier_queries WHERE product_id = ? AND normalized_query = ?`,
		productID, norm,
	).Scan(&lastRun)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.now().Sub(lastRun) < s.cfg.queryCooldown(), nil
}

func (s *SQLiteStore) RecordQuery(productID, query, provider string, fields []string, results []SearchResultRef) error {
	norm := normalizeQuery(query)
	fieldsJSON, _ := json.Marshal(fields)
	_, err := s.db.Exec(`
		INSERT INTO frontier_queries (product_id, normalized_query, provider, fields, last_run_ts, result_url_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id, normalized_query) DO UPDATE SET
			provider = excluded.provider,
			fields = excluded.fields,
			last_run_ts = excluded.last_run_ts,
			result_url_count = excluded.result_url_count
	`, productID, norm, provider, string(fieldsJSON), s.now(), len(results))
	return err
}

type urlRowRaw struct {
	pathSignature  string
	notFoundCount  int
	parsedOKCount  int
	cooldownReason string
	cooldownUntil  sql.NullTime
}

func (s *SQLiteStore) getURLRow(productID, canonicalURL string) (*urlRowRaw, error) {
	row := &urlRowRaw{}
	err := s.db.QueryRow(`
		SELECT path_signature, notfound_count, parsed_ok_count,
			COALESCE(cooldown_reason, ''), cooldown_until
		FROM frontier_urls WHERE product_id = ? AND canonical_url = ?
	`, productID, canonicalURL).Scan(&row.pathSignature, &row.notFoundCount, &row.parsedOKCount,
		&row.cooldownReason, &row.cooldownUntil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (s *SQLiteStore) ShouldSkipURL(productID, rawURL string) (SkipResult, error) {
	canonical := canonicalizeURL(rawURL)
	if canonical.CanonicalURL == "" {
		return SkipResult{}, nil
	}

	row, err := s.getURLRow(productID, canonical.CanonicalURL)
	if err != nil {
		return SkipResult{}, err
	}
	if row != nil && row.cooldownReason != "" && row.cooldownUntil.Valid && s.now().Before(row.cooldownUntil.Time) {
		return SkipResult{Skip: true, Reason: CooldownReason(row.cooldownReason)}, nil
	}

	var agg pathSignatureState
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(notfound_count),0), COALESCE(SUM(parsed_ok_count),0)
		FROM frontier_urls WHERE product_id = ? AND path_signature = ?
	`, productID, canonical.PathSignature).Scan(&agg.NotFoundCount, &agg.ParsedOKCount)
	if err != nil {
		return SkipResult{}, err
	}
	if isDeadPattern(agg, s.cfg) {
		return SkipResult{Skip: true, Reason: ReasonPathDeadPattern}, nil
	}
	return SkipResult{}, nil
}

func (s *SQLiteStore) RecordFetch(productID, rawURL string, status int, contentType string, fieldsFound []string, confidence *float64) error {
	canonical := canonicalizeURL(rawURL)
	if canonical.CanonicalURL == "" {
		return nil
	}

	return s.inTx(context.Background(), func(tx *sql.Tx) error {
		var notFound, parsedOK, c403, c429 int
		var existingFields string
		err := tx.QueryRow(`
			SELECT notfound_count, parsed_ok_count, consecutive_403, consecutive_429, COALESCE(fields_found,'[]')
			FROM frontier_urls WHERE product_id = ? AND canonical_url = ?
		`, productID, canonical.CanonicalURL).Scan(&notFound, &parsedOK, &c403, &c429, &existingFields)
		firstSeen := s.now()
		if err == nil {
			// row exists; keep counters as read above.
		} else if err == sql.ErrNoRows {
			// new row: counters remain zero.
		} else {
			return err
		}

		switch status {
		case 403:
			c403++
			c429 = 0
		case 429:
			c429++
			c403 = 0
		default:
			c403, c429 = 0, 0
		}
		if status == 404 {
			notFound++
		}

		var existing []string
		json.Unmarshal([]byte(existingFields), &existing)
		if status >= 200 && status < 400 {
			parsedOK++
			existing = mergeFields(existing, fieldsFound)
		}

		hist := urlHistory{
			NotFoundCount:  notFound,
			ParsedOKCount:  parsedOK,
			Consecutive403: c403,
			Consecutive429: c429,
		}
		cd := decideCooldown(status, hist, s.cfg, s.now())
		fieldsJSON, _ := json.Marshal(existing)

		var cooldownUntil interface{}
		if cd.Reason != ReasonNone {
			cooldownUntil = cd.UntilTs
		} else {
			cooldownUntil = nil
		}

		_, err = tx.Exec(`
			INSERT INTO frontier_urls (
				product_id, canonical_url, path_signature, first_seen_ts, last_seen_ts,
				last_status, notfound_count, blocked_count, parsed_ok_count,
				consecutive_403, consecutive_429, fields_found, cooldown_reason,
				cooldown_seconds, cooldown_until
			) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(product_id, canonical_url) DO UPDATE SET
				last_seen_ts = excluded.last_seen_ts,
				last_status = excluded.last_status,
				notfound_count = excluded.notfound_count,
				parsed_ok_count = excluded.parsed_ok_count,
				consecutive_403 = excluded.consecutive_403,
				consecutive_429 = excluded.consecutive_429,
				fields_found = excluded.fields_found,
				cooldown_reason = excluded.cooldown_reason,
				cooldown_seconds = excluded.cooldown_seconds,
				cooldown_until = excluded.cooldown_until
		`, productID, canonical.CanonicalURL, canonical.PathSignature, firstSeen, s.now(),
			status, notFound, parsedOK, c403, c429, string(fieldsJSON), string(cd.Reason),
			cd.Seconds, cooldownUntil)
		return err
	})
}

func (s *SQLiteStore) RankPenaltyForURL(productID, rawURL string) (float64, error) {
	canonical := canonicalizeURL(rawURL)
	row, err := s.getURLRow(productID, canonical.CanonicalURL)
	if err != nil || row == nil {
		return 0, err
	}
	penalty := 0.0
	if row.notFoundCount > 0 {
		penalty -= 0.5
	}
	if row.cooldownReason != "" {
		penalty -= 0.5
	}
	if penalty < -2 {
		penalty = -2
	}
	return penalty, nil
}

func (s *SQLiteStore) SnapshotForProduct(productID string) (Snapshot, error) {
	var queryCount, urlCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM frontier_queries WHERE product_id = ?`, productID).Scan(&queryCount); err != nil {
		return Snapshot{}, err
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM frontier_urls WHERE product_id = ?`, productID).Scan(&urlCount); err != nil {
		return Snapshot{}, err
	}

	rows, err := s.db.Query(`SELECT COALESCE(fields_found,'[]') FROM frontier_urls WHERE product_id = ?`, productID)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()

	yield := FieldYield{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return Snapshot{}, err
		}
		var fields []string
		json.Unmarshal([]byte(raw), &fields)
		for _, f := range fields {
			yield[f]++
		}
	}
	return Snapshot{QueryCount: queryCount, URLCount: urlCount, FieldYield: yield}, rows.Err()
}
