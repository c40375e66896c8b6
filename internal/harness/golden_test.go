package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_LibraryCascade(t *testing.T) {
	result, err := RunWithGolden(t, loadTestScenario(t, "library_cascade.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestSnapshot_Canonical(t *testing.T) {
	r := NewResult()
	r.Trace = []TraceSession{{
		CorrelationID: "s-1",
		MaxVersion:    1,
		Events: []map[string]any{
			{"kind": "AddEntity", "id": "lib:1", "version": uint64(1)},
		},
	}}
	data, err := Snapshot("tiny", r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"tiny","trace":[{"aborted":false,"correlation_id":"s-1","events":[{"id":"lib:1","kind":"AddEntity","version":1}],"max_version":1,"origin":""}]}`,
		string(data))
}

func TestCompareGolden(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "golden")
	result, err := Run(loadTestScenario(t, "library_cascade.yaml"))
	require.NoError(t, err)

	// First run writes the file.
	require.NoError(t, CompareGolden(dir, "cascade", result, false))
	_, err = os.Stat(filepath.Join(dir, "cascade.golden"))
	require.NoError(t, err)

	require.NoError(t, CompareGolden(dir, "cascade", result, false))

	result.Trace = result.Trace[:1]
	err = CompareGolden(dir, "cascade", result, false)
	var mismatch *GoldenMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, filepath.Join(dir, "cascade.golden"), mismatch.Path)

	require.NoError(t, CompareGolden(dir, "cascade", result, true))
	require.NoError(t, CompareGolden(dir, "cascade", result, false))
}
