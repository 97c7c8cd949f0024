package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// fieldRuleFile mirrors FieldRule but leaves selection_policy as raw JSON
// so it can be either a bare string or a reducer object, per spec.md §3
// "selection_policy (string enum or reducer object)".
type fieldRuleFile struct {
	FieldKey             string          `json:"field_key"`
	RequiredLevel        RequiredLevel   `json:"required_level"`
	Difficulty           string          `json:"difficulty,omitempty"`
	Availability         string          `json:"availability,omitempty"`
	Contract             Contract        `json:"contract"`
	EnumPolicy           EnumPolicy      `json:"enum_policy"`
	Parse                ParseRule       `json:"parse"`
	Evidence             EvidenceRule    `json:"evidence"`
	SelectionPolicy      json.RawMessage `json:"selection_policy"`
	RequiresInstrumented bool            `json:"requires_instrumented,omitempty"`
	ComponentDBRef       string          `json:"component_db_ref,omitempty"`
	SearchHints          []string        `json:"search_hints,omitempty"`
	Constraints          []string        `json:"constraints,omitempty"`
	UI                   map[string]any  `json:"ui,omitempty"`
}

func parseSelectionPolicy(raw json.RawMessage) (SelectionPolicy, error) {
	if len(raw) == 0 {
		return SelectionPolicy{}, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return SelectionPolicy{String: asString}, nil
	}
	var asReducer ReducerPolicy
	if err := json.Unmarshal(raw, &asReducer); err != nil {
		return SelectionPolicy{}, fmt.Errorf("selection_policy must be a string or reducer object: %w", err)
	}
	return SelectionPolicy{Reducer: &asReducer}, nil
}

type knownValuesFile struct {
	Values []KnownValue `json:"values"`
}

// Load reads the compiled category artifact directory produced by the
// compiler (C12): field_rules.runtime.json, known_values.json,
// cross_validation_rules.json, key_migrations.json, and component_db/*.json.
func Load(dir string) (*Artifacts, error) {
	art := &Artifacts{
		FieldRules:   map[string]FieldRule{},
		KnownValues:  map[string]map[string]KnownValue{},
		KeyMigrations: map[string]string{},
		ComponentDB:  map[string]map[string]map[string]any{},
	}

	var rawRules map[string]fieldRuleFile
	if err := readJSON(filepath.Join(dir, "field_rules.runtime.json"), &rawRules); err != nil {
		return nil, fmt.Errorf("rules: loading field_rules.runtime.json: %w", err)
	}
	for key, fr := range rawRules {
		policy, err := parseSelectionPolicy(fr.SelectionPolicy)
		if err != nil {
			return nil, fmt.Errorf("rules: field %q: %w", key, err)
		}
		art.FieldRules[key] = FieldRule{
			FieldKey:             key,
			RequiredLevel:        fr.RequiredLevel,
			Difficulty:           fr.Difficulty,
			Availability:         fr.Availability,
			Contract:             fr.Contract,
			EnumPolicy:           fr.EnumPolicy,
			Parse:                fr.Parse,
			Evidence:             fr.Evidence,
			SelectionPolicy:      policy,
			RequiresInstrumented: fr.RequiresInstrumented,
			ComponentDBRef:       fr.ComponentDBRef,
			SearchHints:          fr.SearchHints,
			Constraints:          fr.Constraints,
			UI:                   fr.UI,
		}
		if fr.Contract.Type != "" && !contractTypes[fr.Contract.Type] {
			return nil, fmt.Errorf("rules: field %q: unknown contract.type %q", key, fr.Contract.Type)
		}
	}

	var rawKnown map[string]knownValuesFile
	if err := readJSONOptional(filepath.Join(dir, "known_values.json"), &rawKnown); err != nil {
		return nil, fmt.Errorf("rules: loading known_values.json: %w", err)
	}
	for field, kv := range rawKnown {
		aliasMap := map[string]KnownValue{}
		for _, v := range kv.Values {
			aliasMap[normalizeAlias(v.Canonical)] = v
			for _, a := range v.Aliases {
				aliasMap[normalizeAlias(a)] = v
			}
		}
		art.KnownValues[field] = aliasMap
	}

	if err := readJSONOptional(filepath.Join(dir, "cross_validation_rules.json"), &art.CrossValidationRules); err != nil {
		return nil, fmt.Errorf("rules: loading cross_validation_rules.json: %w", err)
	}

	if err := readJSONOptional(filepath.Join(dir, "key_migrations.json"), &art.KeyMigrations); err != nil {
		return nil, fmt.Errorf("rules: loading key_migrations.json: %w", err)
	}

	componentDir := filepath.Join(dir, "component_db")
	if entries, err := os.ReadDir(componentDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			componentType := e.Name()[:len(e.Name())-len(".json")]
			var table map[string]map[string]any
			if err := readJSON(filepath.Join(componentDir, e.Name()), &table); err != nil {
				return nil, fmt.Errorf("rules: loading component_db/%s: %w", e.Name(), err)
			}
			art.ComponentDB[componentType] = table
		}
	}

	return art, nil
}

func normalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func readJSON(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// readJSONOptional treats a missing file as "no artifact", leaving out
// untouched, since not every category exercises every artifact kind.
func readJSONOptional(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, out)
}

// Engine wraps a hot-reloadable Artifacts snapshot. Reload swaps are
// atomic: in-flight calls keep using the snapshot they started with.
type Engine struct {
	current atomic.Pointer[Artifacts]
	watcher *fsnotify.Watcher
	dir     string
}

// NewEngine loads dir's artifacts and starts an fsnotify watch that
// reloads the snapshot whenever the directory's compiled artifacts
// change, per SPEC_FULL.md §3.7 (hot-reload is a supplemented feature;
// spec.md itself is silent on reload cadence).
func NewEngine(dir string) (*Engine, error) {
	art, err := Load(dir)
	if err != nil {
		return nil, err
	}
	e := &Engine{dir: dir}
	e.current.Store(art)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rules: starting artifact watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("rules: watching %s: %w", dir, err)
	}
	e.watcher = watcher

	go e.watchLoop()
	return e, nil
}

func (e *Engine) watchLoop() {
	for {
		select {
		case event, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if art, err := Load(e.dir); err == nil {
				e.current.Store(art)
			}
		case _, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the artifact watcher.
func (e *Engine) Close() error {
	if e.watcher == nil {
		return nil
	}
	return e.watcher.Close()
}

// Snapshot returns the currently active artifact set.
func (e *Engine) Snapshot() *Artifacts {
	return e.current.Load()
}
