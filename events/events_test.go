package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestEmitWritesFiveKeyEnvelope(t *testing.T) {
	dir := t.TempDir()
	bus, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer bus.Close()

	if err := bus.Emit("frontier", "query_run", map[string]any{"query": "acme x100 specs"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "events.ndjson"))
	if err != nil {
		t.Fatalf("open ndjson: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected one line in events.ndjson")
	}
	var env Envelope
	if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.RunID == "" || env.Ts == "" || env.Stage != "frontier" || env.Event != "query_run" {
		t.Fatalf("missing required envelope keys: %+v", env)
	}
	if env.Payload == nil {
		t.Fatal("expected non-nil payload")
	}
}

func TestEmitNilPayloadBecomesEmptyObject(t *testing.T) {
	dir := t.TempDir()
	bus, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer bus.Close()

	if err := bus.Emit("convergence", "convergence_round_started", nil); err != nil {
		t.Fatalf("emit: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "events.ndjson"))
	if err != nil {
		t.Fatal(err)
	}
	var env Envelope
	if err := json.Unmarshal(data[:len(data)-1], &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Payload == nil || len(env.Payload) != 0 {
		t.Fatalf("expected empty object payload, got %+v", env.Payload)
	}
}

func TestDedupeOutcomeEventNamesAreFixed(t *testing.T) {
	dir := t.TempDir()
	bus, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer bus.Close()

	if err := bus.EmitDedupeOutcome("evidence", "new", nil); err != nil {
		t.Fatal(err)
	}
	if err := bus.EmitDedupeOutcome("evidence", "reused", nil); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "events.ndjson"))
	if err != nil {
		t.Fatal(err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var events []string
	for scanner.Scan() {
		var env Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			t.Fatal(err)
		}
		events = append(events, env.Event)
	}
	if len(events) != 2 || events[0] != "indexed_new" || events[1] != "dedupe_hit" {
		t.Fatalf("expected [indexed_new dedupe_hit], got %v", events)
	}
}

func TestFlushRollupWritesRunJSON(t *testing.T) {
	dir := t.TempDir()
	bus, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	bus.IncPagesChecked()
	bus.IncFetchedOK()
	bus.AddFieldsFilled(5)
	if err := bus.FlushRollup(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "run.json"))
	if err != nil {
		t.Fatalf("reading run.json: %v", err)
	}
	var rollup Rollup
	if err := json.Unmarshal(data, &rollup); err != nil {
		t.Fatal(err)
	}
	if rollup.PagesChecked != 1 || rollup.FetchedOK != 1 || rollup.FieldsFilled != 5 {
		t.Fatalf("unexpected rollup: %+v", rollup)
	}
	bus.Close()
}
