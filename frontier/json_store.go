package frontier

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// jsonDocument is the single canonical JSON blob persisted to disk, per
// spec.md §4.2 "the store writes a single canonical JSON blob".
type jsonDocument struct {
	Products map[string]*productState `json:"products"`
}

type productState struct {
	URLs    map[string]*URLRow   `json:"urls"`
	Queries map[string]*QueryRow `json:"queries"`
}

// JSONStore is the JSON-file-backed frontier.Store implementation.
type JSONStore struct {
	mu   sync.Mutex
	path string
	doc  jsonDocument
	cfg  CooldownConfig
	now  func() time.Time

	// Recovered reports whether the last load initialized empty state
	// because the on-disk file was truncated/corrupt — spec.md §7 item 10.
	Recovered bool
}

// NewJSONStore opens (creating if absent) a JSON frontier store at path.
func NewJSONStore(path string, cfg CooldownConfig) (*JSONStore, error) {
	s := &JSONStore{
		path: path,
		doc:  jsonDocument{Products: map[string]*productState{}},
		cfg:  cfg,
		now:  time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// Corrupt state recovery: spec.md §7 item 10 — initialize empty
		// state rather than propagating the parse error.
		s.Recovered = true
		return nil
	}
	if doc.Products == nil {
		doc.Products = map[string]*productState{}
	}
	s.doc = doc
	return nil
}

// flush persists the current in-memory state atomically (write-to-temp +
// rename), per spec.md §4.2 and §6.
func (s *JSONStore) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, ".frontier-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func (s *JSONStore) product(id string) *productState {
	p, ok := s.doc.Products[id]
	if !ok {
		p = &productState{
			URLs:    map[string]*URLRow{},
			Queries: map[string]*QueryRow{},
		}
		s.doc.Products[id] = p
	}
	return p
}

// ShouldSkipQuery implements spec.md §4.2.
func (s *JSONStore) ShouldSkipQuery(productID, query string, force bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if force {
		return false, nil
	}
	norm := normalizeQuery(query)
	p := s.product(productID)
	row, ok := p.Queries[norm]
	if !ok {
		return false, nil
	}
	return s.now().Sub(row.LastRunTs) < s.cfg.queryCooldown(), nil
}

// RecordQuery implements spec.md §4.2.
func (s *JSONStore) RecordQuery(productID, query, provider string, fields []string, results []SearchResultRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := normalizeQuery(query)
	p := s.product(productID)
	row, ok := p.Queries[norm]
	if !ok {
		row = &QueryRow{ProductID: productID, NormalizedQuery: norm}
		p.Queries[norm] = row
	}
	row.Provider = provider
	row.Fields = fields
	row.LastRunTs = s.now()
	row.ResultURLCount = len(results)
	return s.flush()
}

// ShouldSkipURL implements spec.md §4.2.
func (s *JSONStore) ShouldSkipURL(productID, rawURL string) (SkipResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := canonicalizeURL(rawURL)
	if canonical.CanonicalURL == "" {
		return SkipResult{}, nil
	}
	p := s.product(productID)

	if row, ok := p.URLs[canonical.CanonicalURL]; ok {
		if row.Cooldown.Reason != ReasonNone && s.now().Before(row.Cooldown.UntilTs) {
			return SkipResult{Skip: true, Reason: row.Cooldown.Reason}, nil
		}
	}

	sigState := s.pathSignatureState(p, canonical.PathSignature)
	if isDeadPattern(sigState, s.cfg) {
		return SkipResult{Skip: true, Reason: ReasonPathDeadPattern}, nil
	}

	return SkipResult{}, nil
}

func (s *JSONStore) pathSignatureState(p *productState, sig string) pathSignatureState {
	var agg pathSignatureState
	for _, row := range p.URLs {
		if row.PathSignature != sig {
			continue
		}
		agg.NotFoundCount += row.NotFoundCount
		agg.ParsedOKCount += row.ParsedOKCount
	}
	return agg
}

// RecordFetch implements spec.md §4.2 and the cooldown arithmetic in §4.2.1.
func (s *JSONStore) RecordFetch(productID, rawURL string, status int, contentType string, fieldsFound []string, confidence *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := canonicalizeURL(rawURL)
	if canonical.CanonicalURL == "" {
		return nil
	}
	p := s.product(productID)
	row, ok := p.URLs[canonical.CanonicalURL]
	if !ok {
		row = &URLRow{
			ProductID:     productID,
			CanonicalURL:  canonical.CanonicalURL,
			FirstSeenTs:   s.now(),
			PathSignature: canonical.PathSignature,
		}
		p.URLs[canonical.CanonicalURL] = row
	}

	row.LastSeenTs = s.now()
	row.LastStatus = status

	switch status {
	case 403:
		row.Consecutive403++
		row.Consecutive429 = 0
	case 429:
		row.Consecutive429++
		row.Consecutive403 = 0
	default:
		row.Consecutive403 = 0
		row.Consecutive429 = 0
	}

	if status == 404 {
		row.NotFoundCount++
	}
	if status >= 200 && status < 400 {
		row.ParsedOKCount++
		row.FieldsFound = mergeFields(row.FieldsFound, fieldsFound)
	}

	hist := urlHistory{
		NotFoundCount:  row.NotFoundCount,
		ParsedOKCount:  row.ParsedOKCount,
		Consecutive403: row.Consecutive403,
		Consecutive429: row.Consecutive429,
	}
	row.Cooldown = decideCooldown(status, hist, s.cfg, s.now())

	return s.flush()
}

func mergeFields(existing, incoming []string) []string {
	seen := map[string]bool{}
	for _, f := range existing {
		seen[f] = true
	}
	out := append([]string{}, existing...)
	for _, f := range incoming {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// RankPenaltyForURL implements spec.md §4.2: a small negative weight in
// [-2, 0] applied when the URL has recent failures.
func (s *JSONStore) RankPenaltyForURL(productID, rawURL string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := canonicalizeURL(rawURL)
	p := s.product(productID)
	row, ok := p.URLs[canonical.CanonicalURL]
	if !ok {
		return 0, nil
	}

	penalty := 0.0
	if row.NotFoundCount > 0 {
		penalty -= 0.5
	}
	if row.BlockedCount > 0 {
		penalty -= 1.0
	}
	if row.Cooldown.Reason != ReasonNone {
		penalty -= 0.5
	}
	if penalty < -2 {
		penalty = -2
	}
	return penalty, nil
}

// SnapshotForProduct implements spec.md §4.2.
func (s *JSONStore) SnapshotForProduct(productID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.product(productID)
	yield := FieldYield{}
	for _, row := range p.URLs {
		for _, f := range row.FieldsFound {
			yield[f]++
		}
	}
	return Snapshot{
		QueryCount: len(p.Queries),
		URLCount:   len(p.URLs),
		FieldYield: yield,
	}, nil
}

// Close is a no-op for the JSON backend; every mutation already flushed.
func (s *JSONStore) Close() error { return nil }
