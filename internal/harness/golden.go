package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/hypergraph/internal/event"
)

// GoldenDir is where golden traces live, relative to the test package.
const GoldenDir = "testdata/golden"

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []TraceSession `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	sessions := make([]any, len(s.Trace))
	for i, ts := range s.Trace {
		events := make([]any, len(ts.Events))
		for j, ev := range ts.Events {
			events[j] = ev
		}
		m := map[string]any{
			"correlation_id": ts.CorrelationID,
			"origin":         ts.Origin,
			"aborted":        ts.Aborted,
			"max_version":    ts.MaxVersion,
			"events":         events,
		}
		if len(ts.Messages) > 0 {
			m["messages"] = ts.Messages
		}
		sessions[i] = m
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         sessions,
	}
}

// Marshal returns the canonical JSON form of the snapshot.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return event.MarshalCanonical(s.toCanonicalMap())
}

// Snapshot builds the canonical trace of a result.
func Snapshot(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return snap.Marshal()
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}

// GoldenMismatchError reports a trace that differs from its golden file.
type GoldenMismatchError struct {
	Path string
}

func (e *GoldenMismatchError) Error() string {
	return fmt.Sprintf("trace differs from golden file %s", e.Path)
}

// CompareGolden checks a result against dir/{name}.golden outside of go
// test. With update set, the golden file is rewritten instead. A missing
// golden file is written on first run.
func CompareGolden(dir, name string, result *Result, update bool) error {
	traceJSON, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name+".golden")
	want, err := os.ReadFile(path)
	if update || os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create golden dir: %w", err)
		}
		return os.WriteFile(path, traceJSON, 0o644)
	}
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if !bytes.Equal(want, traceJSON) {
		return &GoldenMismatchError{Path: path}
	}
	return nil
}
