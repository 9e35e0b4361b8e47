package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/graphcache/internal/ir"
)

// Snapshot renders a scenario's trace and final graph as indented
// canonical JSON. Key order and number formatting are fixed, so the bytes
// are stable across runs and platforms.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, e := range result.Trace {
		m := map[string]any{"seq": e.Seq, "op": e.Op}
		if e.Record != "" {
			m["record"] = e.Record
		}
		if e.Field != "" {
			m["field"] = e.Field
		}
		if e.Request != "" {
			m["request"] = e.Request
		}
		if e.Error != "" {
			m["error"] = e.Error
		}
		trace[i] = m
	}

	records := make(map[string]any, len(result.Graph.Records))
	for typeKey, snaps := range result.Graph.Records {
		list := make([]any, len(snaps))
		for i, s := range snaps {
			list[i] = map[string]any{
				"record": map[string]any(s.Record),
				"dirty":  s.Dirty,
				"new":    s.New,
			}
		}
		records[typeKey] = list
	}

	data, err := ir.MarshalCanonical(map[string]any{
		"scenario": name,
		"trace":    trace,
		"graph": map[string]any{
			"records":       records,
			"queued":        result.Graph.Queued,
			"relationships": result.Graph.Relationships,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// RunWithGolden executes a scenario, fails the test on any step or
// assertion error, and compares the snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		t.Error(e)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

// GoldenPath returns where the CLI keeps the golden file for a scenario:
// golden/<file name>.golden next to the scenario.
func GoldenPath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// WriteGolden writes the snapshot to path, creating its directory.
func WriteGolden(path, name string, result *Result) error {
	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// MatchGolden reports whether the snapshot equals the golden file at path.
func MatchGolden(path, name string, result *Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	got, err := Snapshot(name, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}
