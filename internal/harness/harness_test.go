package harness

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hypergraph/internal/domain"
	"github.com/roach88/hypergraph/internal/session"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name))
	require.NoError(t, err)
	return s
}

func TestRun_LibraryCascade(t *testing.T) {
	result, err := Run(loadTestScenario(t, "library_cascade.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 7)
	assert.Equal(t, "scenario", result.Trace[0].Origin)
	assert.True(t, result.Trace[4].Aborted)
	assert.Equal(t, []string{"error: property name is required on Library (element=lib:l2, property=name)"},
		result.Trace[4].Messages)
	assert.Len(t, result.Trace[5].Events, 5)
}

func TestRun_PropertyRollback(t *testing.T) {
	result, err := Run(loadTestScenario(t, "property_rollback.yaml"))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// The unaccepted session still reports its forward events.
	aborted := result.Trace[1]
	assert.True(t, aborted.Aborted)
	assert.Equal(t, "s-2", aborted.CorrelationID)
	require.Len(t, aborted.Events, 2)
	assert.Equal(t, "Messiah", aborted.Events[0]["value"])
	assert.Equal(t, int64(1969), aborted.Events[1]["value"])
}

func TestRun_DeterministicTrace(t *testing.T) {
	s := loadTestScenario(t, "library_cascade.yaml")
	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	s := &Scenario{
		Name:        "dup",
		Description: "creating the same id twice",
		Domains:     []string{"lib"},
		Steps: []Step{
			{Op: OpCreate, Domain: "lib", Schema: "Book", ID: "b1"},
			{Op: OpCreate, Domain: "lib", Schema: "Book", ID: "b1"},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[1] (create): unexpected error")
	assert.Contains(t, result.Errors[0], "duplicate element")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	s := &Scenario{
		Name:        "no-error",
		Description: "a create that succeeds",
		Domains:     []string{"lib"},
		Steps: []Step{
			{Op: OpCreate, Domain: "lib", Schema: "Book", ExpectError: "duplicate_element"},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected duplicate_element error, got none")
}

func TestRun_WrongErrorKind(t *testing.T) {
	s := &Scenario{
		Name:        "wrong",
		Description: "set on a missing element",
		Domains:     []string{"lib"},
		Steps: []Step{
			{Op: OpSet, ID: "lib:x", Property: "p", Value: 1, ExpectError: "duplicate_element"},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected duplicate_element error, got: invalid element: lib:x")
}

func TestRun_UnknownDomainStep(t *testing.T) {
	s := &Scenario{
		Name:        "unknown-domain",
		Description: "acting on a domain that does not exist",
		Domains:     []string{"lib"},
		Steps: []Step{
			{Op: OpCreate, Domain: "other", Schema: "Book", ExpectError: "unknown_domain"},
			{Op: OpScope, Domain: "lib", Name: "lib", ExpectError: "duplicate_domain"},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}

func TestRun_FailedAssertionsReported(t *testing.T) {
	s := loadTestScenario(t, "library_cascade.yaml")
	s.Assertions = []Assertion{
		{Type: AssertExists, ID: "lib:l1"},
		{Type: AssertSessions, Count: 1},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Expected: lib:l1 exists")
	assert.Contains(t, result.Errors[1], "Actual: 7 sessions")
}

func TestRun_SchemaErrors(t *testing.T) {
	s := &Scenario{
		Name:        "bad-schema",
		Description: "schema file that does not load",
		Schema:      filepath.Join(t.TempDir(), "missing.yaml"),
		Domains:     []string{"lib"},
		Steps:       []Step{{Op: OpRemove, ID: "lib:1"}},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load schema")
}

func TestRun_DuplicateDomains(t *testing.T) {
	s := &Scenario{
		Name:        "dup-domains",
		Description: "the same domain twice",
		Domains:     []string{"lib", "lib"},
		Steps:       []Step{{Op: OpRemove, ID: "lib:1"}},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create domain lib")
}

func TestNormalizeValue(t *testing.T) {
	in := map[string]any{"a": 1, "b": []any{2, "x", 1.5}}
	assert.Equal(t, map[string]any{"a": int64(1), "b": []any{int64(2), "x", 1.5}}, normalizeValue(in))
}

func TestRunWithLogger_StoreHooks(t *testing.T) {
	var committed int
	hook := func(s *domain.Store) {
		_, err := s.Domain("lib")
		require.NoError(t, err)
		s.OnSessionCompleted(func(r session.Result) {
			if !r.Aborted {
				committed++
			}
		})
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	result, err := RunWithLogger(loadTestScenario(t, "library_cascade.yaml"), logger, hook)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, 5, committed)
}
