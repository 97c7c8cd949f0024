package harvester

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/specconverge/consensus"
	"github.com/brunobiangulo/specconverge/convergence"
	"github.com/brunobiangulo/specconverge/evidence"
	"github.com/brunobiangulo/specconverge/events"
	"github.com/brunobiangulo/specconverge/frontier"
	"github.com/brunobiangulo/specconverge/hostbudget"
	"github.com/brunobiangulo/specconverge/identity"
	"github.com/brunobiangulo/specconverge/lanes"
	"github.com/brunobiangulo/specconverge/needset"
	"github.com/brunobiangulo/specconverge/reduce"
	"github.com/brunobiangulo/specconverge/rules"
)

// SourceHarvest is what one round's discovery/fetch/extraction work
// produces for one product: every source's field candidates plus the
// page-level identity signals the identity gate needs to decide which
// sources may contribute. Building this is the job of a Harvester
// (discovery, fetching, HTML/PDF parsing, LLM extraction) — all of
// which are external collaborators per spec.md §1, represented here by
// the collab interfaces the caller wires up.
type SourceHarvest struct {
	Sources []consensus.SourceResult
	Pages   []identity.PageSignal
}

// Harvester gathers one round's evidence for a product. Implementations
// typically drive collab.Fetcher/HTMLParser/PDFExtractor/LLMRouter
// through the lane manager and frontier/host-budget gates; this module
// specifies the contract, not the discovery/extraction logic itself,
// per spec.md §1's scope boundary.
type Harvester interface {
	Harvest(ctx context.Context, product Product, round int, mode convergence.Mode) (SourceHarvest, error)
}

// Engine is the top-level entry point: it wires frontier,
// hostbudget, lanes, evidence, identity, rules, consensus, reduce,
// needset, convergence, and events together for one product run at a
// time, mirroring how the teacher's engine struct wires
// store/chunker/graph/retrieval/reasoning/llm (goreason.go).
type Engine struct {
	cfg       Config
	evidence  *evidence.Store
	frontier  *frontier.JSONStore
	hostbudg  *hostbudget.Tracker
	laneMgr   *lanes.Manager
	artifacts *rules.Engine
	harvester Harvester
	closed    bool
}

// New constructs an Engine. artifactsDir is the category's compiled
// helper_files/_generated directory (loaded via rules.NewEngine, which
// hot-reloads on fsnotify changes).
func New(cfg Config, artifactsDir string, harvester Harvester) (*Engine, error) {
	if cfg.EmbeddingDim == 0 {
		cfg.EmbeddingDim = 1536
	}

	ev, err := evidence.NewWithDim(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("harvester: opening evidence store: %w", err)
	}

	frontierPath := filepath.Join(cfg.LocalOutputRoot, "_intel", "frontier", "frontier.json")
	fr, err := frontier.NewJSONStore(frontierPath, frontier.CooldownConfig{
		Base403Seconds:               cfg.FrontierCooldown403BaseSeconds,
		Base429Seconds:               cfg.FrontierCooldown429BaseSeconds,
		Base404Seconds:               cfg.FrontierCooldown404Seconds,
		Repeat404Seconds:             cfg.FrontierCooldown404RepeatSeconds,
		Long410Seconds:               cfg.FrontierCooldown410Seconds,
		PathPenaltyNotfoundThreshold: cfg.FrontierPathPenaltyNotfoundThreshold,
		QueryCooldownSeconds:         cfg.FrontierQueryCooldownSeconds,
	})
	if err != nil {
		ev.Close()
		return nil, fmt.Errorf("harvester: opening frontier store: %w", err)
	}

	var artifacts *rules.Engine
	if artifactsDir != "" {
		artifacts, err = rules.NewEngine(artifactsDir)
		if err != nil {
			ev.Close()
			return nil, fmt.Errorf("harvester: loading category artifacts: %w", err)
		}
	}

	laneMgr := lanes.New()
	for name, n := range cfg.LaneConcurrency {
		_ = laneMgr.SetConcurrency(lanes.Name(name), n)
	}

	return &Engine{
		cfg:       cfg,
		evidence:  ev,
		frontier:  fr,
		hostbudg:  hostbudget.New(),
		laneMgr:   laneMgr,
		artifacts: artifacts,
		harvester: harvester,
	}, nil
}

// Close shuts down the engine's owned resources.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if e.artifacts != nil {
		e.artifacts.Close()
	}
	return e.evidence.Close()
}

// RunResult is RunProduct's return value.
type RunResult struct {
	Summary    Summary
	Normalized NormalizedRecord
}

// fieldOrder returns every compiled field key sorted for deterministic
// clustering order, per spec.md §5's "consensus engine sorts
// deterministically" ordering guarantee.
func fieldOrder(artifacts *rules.Artifacts) []string {
	keys := make([]string, 0, len(artifacts.FieldRules))
	for k := range artifacts.FieldRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RunProduct drives the convergence loop for one product end to end:
// each round calls the injected Harvester, runs the identity gate,
// consensus, reducers, and need-set, then lets the convergence engine
// decide whether to continue, per spec.md §2's data-flow summary.
func (e *Engine) RunProduct(ctx context.Context, product Product) (RunResult, error) {
	if e.closed {
		return RunResult{}, ErrStoreClosed
	}
	if err := product.IdentityLock.Validate(); err != nil {
		return RunResult{}, err
	}
	if e.artifacts == nil {
		return RunResult{}, ErrArtifactsNotLoaded
	}

	runID := uuid.NewString()
	runDirFinal := filepath.Join(e.cfg.LocalOutputRoot, product.Category, product.ProductID, "runs", runID)
	bus, err := events.NewWithRunID(runDirFinal, runID)
	if err != nil {
		return RunResult{}, fmt.Errorf("harvester: opening event bus: %w", err)
	}
	defer bus.Close()

	lock := consensus.IdentityLock{
		ID:    product.ProductID,
		Brand: product.IdentityLock.Brand,
		Model: product.IdentityLock.Model,
		SKU:   product.IdentityLock.SKU,
	}

	fields := map[string]string{}
	var lastProvenance map[string]consensus.ProvenanceEntry
	gateClosed := false

	startupStart := time.Now()
	bus.SetStartupMs(time.Since(startupStart).Milliseconds())

	conv := convergence.New(convergence.Config{MaxRounds: e.cfg.MaxRounds, MaxMs: e.cfg.MaxMs}, bus)

	result, err := conv.Run(ctx, func(ctx context.Context, round int, mode convergence.Mode) (convergence.RoundState, error) {
		harvest, herr := e.harvester.Harvest(ctx, product, round, mode)
		if herr != nil {
			return convergence.RoundState{}, fmt.Errorf("harvester: round %d harvest failed: %w", round, herr)
		}

		decisions := make([]identity.ScoreResult, len(harvest.Pages))
		for i, page := range harvest.Pages {
			decisions[i] = identity.Score(page, identity.Lock{
				Brand: product.IdentityLock.Brand,
				Model: product.IdentityLock.Model,
				SKU:   product.IdentityLock.SKU,
				MPN:   product.IdentityLock.MPN,
				GTIN:  product.IdentityLock.GTIN,
			})
		}
		gate := identity.GatePageSet(harvest.Pages, decisions)
		gateClosed = !gate.Open && gate.HardConflict

		snapshot := e.artifacts.Snapshot()
		fieldRules := map[string]consensus.FieldRule{}
		for key, fr := range snapshot.FieldRules {
			fieldRules[key] = consensus.FieldRule{
				RequiresInstrumented: fr.RequiresInstrumented,
				SelectionPolicy:      consensus.SelectionPolicy{String: fr.SelectionPolicy.String},
			}
		}

		out := consensus.Run(consensus.Input{
			SourceResults:        harvest.Sources,
			FieldOrder:           fieldOrder(snapshot),
			FieldRules:           fieldRules,
			IdentityLock:         lock,
			Config:               consensus.Config{BelowPassTargetEnabled: e.cfg.AllowBelowPassTargetFill},
			ExtractionGateClosed: gateClosed,
		})
		lastProvenance = out.Provenance
		for k, v := range out.Fields {
			fields[k] = v
		}
		applyReducers(snapshot, harvest.Sources, fields)

		states := needsetStatesFromProvenance(out, snapshot)
		lockState := needset.IdentityLockState{Status: needset.StatusUnlocked}
		if gate.Open {
			lockState.Status = needset.StatusLocked
		} else if gateClosed {
			lockState.Status = needset.StatusConflict
		}
		ns := needset.Build(states, lockState)

		bus.AddFieldsFilled(len(out.Fields))

		missingRequired := 0
		criticalCount := 0
		for _, n := range ns.Needs {
			if n.RequiredLevel == needset.LevelIdentity || n.RequiredLevel == needset.LevelRequired {
				missingRequired++
			}
			if n.RequiredLevel == needset.LevelCritical {
				criticalCount++
			}
		}

		return convergence.RoundState{
			NeedsetSize:          ns.NeedsetSize,
			MissingRequiredCount: missingRequired,
			CriticalCount:        criticalCount,
			Improved:             len(out.Fields) > 0,
		}, nil
	})
	if err != nil {
		return RunResult{}, err
	}

	validated := !gateClosed && result.StopReason == convergence.ReasonSatisfied
	summary := Summary{
		Category:    product.Category,
		ProductID:   product.ProductID,
		RunID:       bus.RunID(),
		Validated:   validated,
		Publishable: validated,
		StopReason:  string(result.StopReason),
		Rounds:      result.Rounds,
	}

	normalized := NormalizedRecord{Category: product.Category, ProductID: product.ProductID, Fields: fields}

	if err := writeRunOutputs(runDirFinal, summary, normalized, lastProvenance); err != nil {
		return RunResult{}, err
	}

	slog.Info("harvester: run complete", "product_id", product.ProductID, "rounds", result.Rounds, "stop_reason", result.StopReason)
	return RunResult{Summary: summary, Normalized: normalized}, nil
}

// applyReducers runs the two post-consensus reducers (spec.md §4.9) over
// consensus's winning fields in place: list-shaped fields get merged with
// other approved-domain sources' items, and fields whose selection_policy
// is a reducer object get re-derived from their source_field's numeric
// candidates across sources.
func applyReducers(snapshot *rules.Artifacts, sources []consensus.SourceResult, fields map[string]string) {
	for key, fr := range snapshot.FieldRules {
		switch {
		case fr.Contract.Shape == rules.ShapeList:
			winning := splitListValue(fields[key])
			var others []reduce.ListCandidate
			for _, src := range sources {
				var items []string
				for _, c := range src.FieldCandidates {
					if c.Field == key {
						items = append(items, c.Value)
					}
				}
				if len(items) == 0 {
					continue
				}
				others = append(others, reduce.ListCandidate{
					Tier:           src.Tier,
					ApprovedDomain: src.ApprovedDomain,
					Items:          items,
				})
			}
			merged, _ := reduce.ListUnion(key, reduce.ListUnionPolicy(fr.Contract.ListItemUnion), winning, others)
			if len(merged) > 0 {
				fields[key] = strings.Join(merged, "; ")
			}

		case fr.SelectionPolicy.Reducer != nil:
			var values []int64
			for _, src := range sources {
				for _, c := range src.FieldCandidates {
					if c.Field != fr.SelectionPolicy.Reducer.SourceField {
						continue
					}
					if v, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
						values = append(values, v)
					}
				}
			}
			if len(values) == 0 {
				continue
			}
			result := reduce.SelectionReduce(values, fr.SelectionPolicy.Reducer.ToleranceMs)
			if result.Outcome != reduce.ExceedsTolerance {
				fields[key] = result.Value
			}
		}
	}
}

func splitListValue(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, "; ")
}

func needsetStatesFromProvenance(out consensus.Output, snapshot *rules.Artifacts) []needset.FieldState {
	states := make([]needset.FieldState, 0, len(snapshot.FieldRules))
	for key, fr := range snapshot.FieldRules {
		prov, ok := out.Provenance[key]
		state := needset.FieldState{
			FieldKey:        key,
			RequiredLevel:   needset.RequiredLevel(fr.RequiredLevel),
			MinEvidenceRefs: fr.Evidence.MinEvidenceRefs,
		}
		if ok {
			state.MeetsPassTarget = prov.MeetsPassTarget
			state.AcceptedBelowPass = prov.AcceptedBelowPass
			state.Confidence = prov.Confidence
			state.EvidenceRefCount = len(prov.Evidence)
		}
		states = append(states, state)
	}
	return states
}

func writeRunOutputs(runDir string, summary Summary, normalized NormalizedRecord, provenance map[string]consensus.ProvenanceEntry) error {
	if err := writeJSONAtomic(filepath.Join(runDir, "run.json"), summary); err != nil {
		return err
	}
	latestDir := filepath.Join(filepath.Dir(filepath.Dir(runDir)), "latest")
	if err := os.MkdirAll(latestDir, 0o755); err != nil {
		return fmt.Errorf("harvester: creating latest dir: %w", err)
	}
	if err := writeJSONAtomic(filepath.Join(latestDir, "summary.json"), summary); err != nil {
		return err
	}
	if err := writeJSONAtomic(filepath.Join(latestDir, "normalized.json"), normalized); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(latestDir, "provenance.json"), provenance)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("harvester: marshaling %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("harvester: creating directory for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("harvester: writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}
