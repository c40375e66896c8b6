package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	schemaDir    = filepath.Join("testdata", "schemas")
	scenariosDir = filepath.Join("testdata", "scenarios")
)

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 2 arg")
}

func TestTestCommandMissingDirs(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/schemas", scenariosDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "schema directory not found")

	_, err = execute(t, "test", schemaDir, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandPasses(t *testing.T) {
	out, err := execute(t, "test", schemaDir, scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ shelve")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandGoldenLifecycle(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")

	out, err := execute(t, "test", schemaDir, scenariosDir, "--golden-dir", golden, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ shelve (golden updated)")
	goldenFile := filepath.Join(golden, "shelve.golden")
	require.FileExists(t, goldenFile)

	out, err = execute(t, "test", schemaDir, scenariosDir, "--golden-dir", golden, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)
	assert.Equal(t, 7, resp.Data.Scenarios[0].Sessions)

	require.NoError(t, os.WriteFile(goldenFile, []byte(`{"scenario_name":"shelve","trace":[]}`), 0o644))
	out, err = execute(t, "test", schemaDir, scenariosDir, "--golden-dir", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ shelve")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: wrong-count
description: Asserts more sessions than run
schema: library.yaml
domains: [lib]
steps:
  - {op: create, domain: lib, schema: Book, id: b1}
assertions:
  - {type: sessions, count: 2}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("name: [\n"), 0o644))

	out, err := execute(t, "test", schemaDir, dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "broken.yml", resp.Data.Scenarios[0].Name)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "wrong-count", resp.Data.Scenarios[1].Name)
	assert.Contains(t, resp.Data.Scenarios[1].Errors[0], "Actual: 1 sessions")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := execute(t, "test", schemaDir, scenariosDir, "--filter", "nomatch-*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	_, err = execute(t, "test", schemaDir, scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)

	files, err = findScenarioFiles(dir, "b*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml")}, files)
}
