package harvester

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// QueueStatus is the closed status enum for a queue row, spec.md §6.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueRunning QueueStatus = "running"
	QueueComplete QueueStatus = "complete"
	QueueStale   QueueStatus = "stale"
	QueueFailed  QueueStatus = "failed"
	QueuePaused  QueueStatus = "paused"
)

// QueueEntry is one product row in queue state, spec.md §6.
type QueueEntry struct {
	ProductID   string      `json:"product_id"`
	S3Key       string      `json:"s3key,omitempty"`
	Status      QueueStatus `json:"status"`
	Priority    int         `json:"priority"`
	UpdatedAt   string      `json:"updated_at"`
	RetryCount  int         `json:"retry_count"`
	MaxAttempts int         `json:"max_attempts"`
	NextRetryAt string      `json:"next_retry_at,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	DirtyFlags  []string    `json:"dirty_flags,omitempty"`
}

// queueDocument is the single canonical JSON blob persisted to disk,
// specs/outputs/_queue/{category}/state.json, spec.md §6.
type queueDocument struct {
	Category  string                 `json:"category"`
	UpdatedAt string                 `json:"updated_at"`
	Products  map[string]*QueueEntry `json:"products"`
}

// QueueStore is the JSON-file-backed queue state store, mirroring the
// frontier package's JSONStore durability pattern (write-to-temp +
// rename, recover from truncated JSON rather than propagate).
type QueueStore struct {
	mu   sync.Mutex
	path string
	doc  queueDocument
	now  func() time.Time

	// Recovered reports whether the last load initialized empty state
	// because the on-disk file was truncated or corrupt, spec.md §7 item 10.
	Recovered bool
}

// NewQueueStore opens (creating if absent) a queue state store at path.
func NewQueueStore(path, category string) (*QueueStore, error) {
	s := &QueueStore{
		path: path,
		doc:  queueDocument{Category: category, Products: map[string]*QueueEntry{}},
		now:  time.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QueueStore) load() error {
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
	var doc queueDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.Recovered = true
		return nil
	}
	if doc.Products == nil {
		doc.Products = map[string]*QueueEntry{}
	}
	s.doc = doc
	return nil
}

// flush persists the current in-memory state atomically (write-temp,
// then rename), per spec.md §6's "Writes must be atomic" contract.
func (s *QueueStore) flush() error {
	s.doc.UpdatedAt = s.now().UTC().Format(time.RFC3339)

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
	tmp, err := os.CreateTemp(dir, ".queue-*.tmp")
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

// Upsert inserts or replaces a queue entry and flushes immediately.
func (s *QueueStore) Upsert(entry QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	s.doc.Products[entry.ProductID] = &entry
	return s.flush()
}

// Get returns one product's queue entry, if present.
func (s *QueueStore) Get(productID string) (QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.doc.Products[productID]
	if !ok {
		return QueueEntry{}, false
	}
	return *p, true
}

// SetStatus transitions a product's status and optional failure fields,
// flushing immediately.
func (s *QueueStore) SetStatus(productID string, status QueueStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.doc.Products[productID]
	if !ok {
		p = &QueueEntry{ProductID: productID, MaxAttempts: 3}
		s.doc.Products[productID] = p
	}
	p.Status = status
	if lastError != "" {
		p.LastError = lastError
		p.RetryCount++
	}
	p.UpdatedAt = s.now().UTC().Format(time.RFC3339)
	return s.flush()
}

// Pending returns every product currently in pending status, ordered by
// descending priority then product_id for determinism.
func (s *QueueStore) Pending() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []QueueEntry
	for _, p := range s.doc.Products {
		if p.Status == QueuePending {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
