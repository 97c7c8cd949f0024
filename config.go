// Package harvester is the root package: top-level orchestration and
// public API for the product specification convergence engine. It wires
// together frontier, hostbudget, lanes, evidence, identity, rules,
// consensus, reduce, needset, convergence, and events, mirroring how the teacher's goreason.go wires store/chunker/graph/
// retrieval/reasoning/llm into one Engine.
package harvester

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the harvester engine, JSON/YAML/TOML
// tagged like the teacher's config.go, with environment-variable
// overrides via caarlos0/env struct tags.
type Config struct {
	HelperFilesRoot string `json:"helperFilesRoot" yaml:"helperFilesRoot" toml:"helperFilesRoot" env:"HARVESTER_HELPER_FILES_ROOT"`
	LocalInputRoot  string `json:"localInputRoot" yaml:"localInputRoot" toml:"localInputRoot" env:"HARVESTER_LOCAL_INPUT_ROOT"`
	LocalOutputRoot string `json:"localOutputRoot" yaml:"localOutputRoot" toml:"localOutputRoot" env:"HARVESTER_LOCAL_OUTPUT_ROOT"`
	ImportsRoot     string `json:"importsRoot" yaml:"importsRoot" toml:"importsRoot" env:"HARVESTER_IMPORTS_ROOT"`

	// Frontier cooldown arithmetic, spec.md §4.2.1.
	FrontierQueryCooldownSeconds         int `json:"frontierQueryCooldownSeconds" yaml:"frontierQueryCooldownSeconds" env:"HARVESTER_FRONTIER_QUERY_COOLDOWN_SECONDS"`
	FrontierCooldown404Seconds           int `json:"frontierCooldown404Seconds" yaml:"frontierCooldown404Seconds" env:"HARVESTER_FRONTIER_COOLDOWN_404_SECONDS"`
	FrontierCooldown404RepeatSeconds     int `json:"frontierCooldown404RepeatSeconds" yaml:"frontierCooldown404RepeatSeconds" env:"HARVESTER_FRONTIER_COOLDOWN_404_REPEAT_SECONDS"`
	FrontierCooldown403BaseSeconds       int `json:"frontierCooldown403BaseSeconds" yaml:"frontierCooldown403BaseSeconds" env:"HARVESTER_FRONTIER_COOLDOWN_403_BASE_SECONDS"`
	FrontierCooldown429BaseSeconds       int `json:"frontierCooldown429BaseSeconds" yaml:"frontierCooldown429BaseSeconds" env:"HARVESTER_FRONTIER_COOLDOWN_429_BASE_SECONDS"`
	FrontierCooldown410Seconds           int `json:"frontierCooldown410Seconds" yaml:"frontierCooldown410Seconds" env:"HARVESTER_FRONTIER_COOLDOWN_410_SECONDS"`
	FrontierPathPenaltyNotfoundThreshold int `json:"frontierPathPenaltyNotfoundThreshold" yaml:"frontierPathPenaltyNotfoundThreshold" env:"HARVESTER_FRONTIER_PATH_PENALTY_NOTFOUND_THRESHOLD"`

	// Discovery knobs. Discovery itself (the search provider) is an
	// external collaborator per spec.md §1; these knobs bound how the
	// engine drives it.
	SearchProvider            string `json:"searchProvider" yaml:"searchProvider" env:"HARVESTER_SEARCH_PROVIDER"`
	DiscoveryEnabled          bool   `json:"discoveryEnabled" yaml:"discoveryEnabled" env:"HARVESTER_DISCOVERY_ENABLED"`
	DiscoveryMaxQueries       int    `json:"discoveryMaxQueries" yaml:"discoveryMaxQueries" env:"HARVESTER_DISCOVERY_MAX_QUERIES"`
	DiscoveryResultsPerQuery  int    `json:"discoveryResultsPerQuery" yaml:"discoveryResultsPerQuery" env:"HARVESTER_DISCOVERY_RESULTS_PER_QUERY"`
	DiscoveryMaxDiscovered    int    `json:"discoveryMaxDiscovered" yaml:"discoveryMaxDiscovered" env:"HARVESTER_DISCOVERY_MAX_DISCOVERED"`
	DiscoveryQueryConcurrency int    `json:"discoveryQueryConcurrency" yaml:"discoveryQueryConcurrency" env:"HARVESTER_DISCOVERY_QUERY_CONCURRENCY"`

	// Lane concurrencies, spec.md §6 defaults search:2 fetch:4 parse:4 llm:2.
	LaneConcurrency map[string]int `json:"laneConcurrency" yaml:"laneConcurrency" env:"-"`

	AllowBelowPassTargetFill bool `json:"allowBelowPassTargetFill" yaml:"allowBelowPassTargetFill" env:"HARVESTER_ALLOW_BELOW_PASS_TARGET_FILL"`

	MaxRounds int   `json:"maxRounds" yaml:"maxRounds" env:"HARVESTER_MAX_ROUNDS"`
	MaxMs     int64 `json:"maxMs" yaml:"maxMs" env:"HARVESTER_MAX_MS"`

	EmbeddingDim int `json:"embeddingDim" yaml:"embeddingDim" env:"HARVESTER_EMBEDDING_DIM"`

	// DBPath is the evidence index's SQLite path. If empty, resolved
	// under LocalOutputRoot, mirroring the teacher's resolveDBPath.
	DBPath string `json:"dbPath" yaml:"dbPath" env:"HARVESTER_DB_PATH"`
}

// DefaultConfig returns a Config with every default named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		HelperFilesRoot: "helper_files",
		LocalInputRoot:  "specs/inputs",
		LocalOutputRoot: "specs/outputs",
		ImportsRoot:     "imports",

		FrontierQueryCooldownSeconds:         3600,
		FrontierCooldown404Seconds:           86400,
		FrontierCooldown404RepeatSeconds:     604800,
		FrontierCooldown403BaseSeconds:       21600,
		FrontierCooldown429BaseSeconds:       900,
		FrontierCooldown410Seconds:           2592000,
		FrontierPathPenaltyNotfoundThreshold: 3,

		DiscoveryEnabled:          true,
		DiscoveryMaxQueries:       8,
		DiscoveryResultsPerQuery:  10,
		DiscoveryMaxDiscovered:    40,
		DiscoveryQueryConcurrency: 2,

		LaneConcurrency: map[string]int{
			"search": 2,
			"fetch":  4,
			"parse":  4,
			"llm":    2,
		},

		MaxRounds: 8,
		MaxMs:     10 * 60 * 1000,

		EmbeddingDim: 1536,
	}
}

// LoadConfig builds a Config following the teacher's override chain:
// defaults -> config file (JSON, YAML, or TOML, by extension) ->
// environment variables. configPath may be empty to skip the file layer.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, err
		}
		switch ext := strings.ToLower(filepath.Ext(configPath)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		case ".toml":
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveDBPath computes the evidence index's SQLite path: DBPath when
// set, otherwise {LocalOutputRoot}/_intel/evidence.db.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.LocalOutputRoot, "_intel", "evidence.db")
}
