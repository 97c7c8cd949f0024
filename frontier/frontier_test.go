package frontier

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCooldownEscalation404(t *testing.T) {
	cfg := DefaultCooldownConfig()
	dir := t.TempDir()
	s, err := NewJSONStore(filepath.Join(dir, "frontier.json"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	url := "https://dead.com/p"
	for i := 0; i < 2; i++ {
		if err := s.RecordFetch("prod1", url, 404, "", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordFetch("prod1", url, 404, "", nil, nil); err != nil {
		t.Fatal(err)
	}

	p := s.product("prod1")
	canonical := canonicalizeURL(url)
	row := p.URLs[canonical.CanonicalURL]
	if row.Cooldown.Reason != ReasonStatus404Rep {
		t.Fatalf("expected status_404_repeated, got %q", row.Cooldown.Reason)
	}
	if row.Cooldown.Seconds != cfg.Repeat404Seconds {
		t.Fatalf("expected %d seconds, got %d", cfg.Repeat404Seconds, row.Cooldown.Seconds)
	}
}

func TestBackoffCap403(t *testing.T) {
	cfg := DefaultCooldownConfig()
	cfg.Base403Seconds = 60
	dir := t.TempDir()
	s, err := NewJSONStore(filepath.Join(dir, "frontier.json"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	url := "https://blocked.com/x"
	for i := 0; i < 10; i++ {
		if err := s.RecordFetch("prod1", url, 403, "", nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	p := s.product("prod1")
	canonical := canonicalizeURL(url)
	row := p.URLs[canonical.CanonicalURL]
	if row.Cooldown.Seconds > 60*16 {
		t.Fatalf("cooldown exceeded cap: %d", row.Cooldown.Seconds)
	}
	if row.Cooldown.Seconds != 960 {
		t.Fatalf("expected exactly capped 960 seconds after 5+ consecutive 403s, got %d", row.Cooldown.Seconds)
	}
}

func TestQueryDedupe(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(filepath.Join(dir, "frontier.json"), DefaultCooldownConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordQuery("prod1", "  Best Gaming   Mouse ", "google", nil, nil); err != nil {
		t.Fatal(err)
	}
	skip, err := s.ShouldSkipQuery("prod1", "best gaming mouse", false)
	if err != nil {
		t.Fatal(err)
	}
	if !skip {
		t.Fatal("expected query to be skipped after normalization match")
	}
	skip, err = s.ShouldSkipQuery("prod1", "best gaming mouse", true)
	if err != nil {
		t.Fatal(err)
	}
	if skip {
		t.Fatal("force=true must never skip")
	}
}

func TestJSONAndSQLiteBackendParity(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultCooldownConfig()

	js, err := NewJSONStore(filepath.Join(dir, "frontier.json"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	ss, err := NewSQLiteStore(filepath.Join(dir, "frontier.db"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	js.now = func() time.Time { return fixedNow }
	ss.now = func() time.Time { return fixedNow }

	sequence := []int{404, 404, 404, 403, 403, 429, 410}
	url := "https://parity.example.com/item/42"

	for _, status := range sequence {
		if err := js.RecordFetch("prodA", url, status, "", nil, nil); err != nil {
			t.Fatal(err)
		}
		if err := ss.RecordFetch("prodA", url, status, "", nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	jsonResult, err := js.ShouldSkipURL("prodA", url)
	if err != nil {
		t.Fatal(err)
	}
	sqliteResult, err := ss.ShouldSkipURL("prodA", url)
	if err != nil {
		t.Fatal(err)
	}
	if jsonResult != sqliteResult {
		t.Fatalf("backend parity violated: json=%+v sqlite=%+v", jsonResult, sqliteResult)
	}

	jsonRow := js.product("prodA").URLs[canonicalizeURL(url).CanonicalURL]
	sqliteRaw, err := ss.getURLRow("prodA", canonicalizeURL(url).CanonicalURL)
	if err != nil {
		t.Fatal(err)
	}
	if string(jsonRow.Cooldown.Reason) != sqliteRaw.cooldownReason {
		t.Fatalf("reason mismatch: json=%q sqlite=%q", jsonRow.Cooldown.Reason, sqliteRaw.cooldownReason)
	}
}

func TestCorruptJSONStateRecovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frontier.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewJSONStore(path, DefaultCooldownConfig())
	if err != nil {
		t.Fatal(err)
	}
	if !s.Recovered {
		t.Fatal("expected Recovered=true for truncated/corrupt state")
	}
	snap, err := s.SnapshotForProduct("anything")
	if err != nil {
		t.Fatal(err)
	}
	if snap.URLCount != 0 || snap.QueryCount != 0 {
		t.Fatalf("expected empty state after recovery, got %+v", snap)
	}
}
