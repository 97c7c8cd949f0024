package harvester

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.FrontierQueryCooldownSeconds != 3600 {
		t.Errorf("FrontierQueryCooldownSeconds = %d, want 3600", cfg.FrontierQueryCooldownSeconds)
	}
	if cfg.FrontierCooldown404Seconds != 86400 {
		t.Errorf("FrontierCooldown404Seconds = %d, want 86400", cfg.FrontierCooldown404Seconds)
	}
	if cfg.DiscoveryMaxQueries != 8 {
		t.Errorf("DiscoveryMaxQueries = %d, want 8", cfg.DiscoveryMaxQueries)
	}
	if cfg.LaneConcurrency["search"] != 2 || cfg.LaneConcurrency["fetch"] != 4 ||
		cfg.LaneConcurrency["parse"] != 4 || cfg.LaneConcurrency["llm"] != 2 {
		t.Errorf("LaneConcurrency = %v, want search:2 fetch:4 parse:4 llm:2", cfg.LaneConcurrency)
	}
	if cfg.MaxRounds != 8 {
		t.Errorf("MaxRounds = %d, want 8", cfg.MaxRounds)
	}
}

func TestLoadConfigAppliesFileOverridesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"maxRounds": 3, "discoveryMaxQueries": 2}`), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxRounds != 3 {
		t.Errorf("MaxRounds = %d, want 3", cfg.MaxRounds)
	}
	if cfg.DiscoveryMaxQueries != 2 {
		t.Errorf("DiscoveryMaxQueries = %d, want 2", cfg.DiscoveryMaxQueries)
	}
	// Untouched defaults should survive the file-layer merge.
	if cfg.FrontierCooldown404Seconds != 86400 {
		t.Errorf("FrontierCooldown404Seconds = %d, want 86400", cfg.FrontierCooldown404Seconds)
	}
}

func TestLoadConfigAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("HARVESTER_MAX_ROUNDS", "2")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxRounds != 2 {
		t.Errorf("MaxRounds = %d, want 2 from env override", cfg.MaxRounds)
	}
}

func TestResolveDBPathFallsBackUnderOutputRoot(t *testing.T) {
	cfg := Config{LocalOutputRoot: "specs/outputs"}
	if got, want := cfg.resolveDBPath(), filepath.Join("specs/outputs", "_intel", "evidence.db"); got != want {
		t.Errorf("resolveDBPath() = %q, want %q", got, want)
	}

	cfg.DBPath = "/custom/path.db"
	if got := cfg.resolveDBPath(); got != "/custom/path.db" {
		t.Errorf("resolveDBPath() = %q, want explicit DBPath", got)
	}
}
