package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hypergraph/internal/domain"
)

func traceResult() *Result {
	r := NewResult()
	r.Trace = []TraceSession{
		{CorrelationID: "s-1", Events: []map[string]any{
			{"kind": "AddEntity", "id": "lib:1"},
			{"kind": "ChangePropertyValue", "id": "lib:1"},
			{"kind": "AddEntity", "id": "lib:2"},
		}},
		{CorrelationID: "s-2", Aborted: true, Events: []map[string]any{
			{"kind": "RemoveEntity", "id": "lib:1"},
		}},
		{CorrelationID: "s-3", Events: []map[string]any{
			{"kind": "AddRelationship", "id": "lib:3"},
		}},
	}
	return r
}

func TestAssertEventCount(t *testing.T) {
	r := traceResult()
	assert.NoError(t, assertEventCount(r, Assertion{Type: AssertEventCount, Kind: "AddEntity", Count: 2}))
	// Aborted sessions do not count.
	assert.NoError(t, assertEventCount(r, Assertion{Type: AssertEventCount, Kind: "RemoveEntity", Count: 0}))

	err := assertEventCount(r, Assertion{Type: AssertEventCount, Kind: "AddEntity", Count: 3})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "2 events", ae.Actual)
	assert.Contains(t, err.Error(), "s-2 (aborted)")
}

func TestAssertEventOrder(t *testing.T) {
	r := traceResult()
	assert.NoError(t, assertEventOrder(r, Assertion{Kinds: []string{"AddEntity", "AddEntity", "AddRelationship"}}))
	assert.NoError(t, assertEventOrder(r, Assertion{Kinds: []string{"ChangePropertyValue", "AddRelationship"}}))

	err := assertEventOrder(r, Assertion{Kinds: []string{"AddRelationship", "AddEntity"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing AddEntity")

	err = assertEventOrder(r, Assertion{Kinds: []string{"RemoveEntity"}})
	assert.Error(t, err)
}

func TestAssertSessions(t *testing.T) {
	r := traceResult()
	assert.NoError(t, assertSessions(r, Assertion{Type: AssertSessions, Count: 3}))
	assert.NoError(t, assertSessions(r, Assertion{Type: AssertAborted, Count: 1}))
	assert.Error(t, assertSessions(r, Assertion{Type: AssertAborted, Count: 0}))
}

func TestStateAssertions(t *testing.T) {
	s := domain.NewStore()
	d, err := s.CreateDomain("lib")
	require.NoError(t, err)
	_, err = d.Create("Book", "b1")
	require.NoError(t, err)
	require.NoError(t, d.SetPropertyValue("lib:b1", "year", int64(1965)))
	actx := &AssertionContext{Store: s}

	assert.NoError(t, assertExists(actx, Assertion{Type: AssertExists, ID: "lib:b1"}, true))
	assert.NoError(t, assertExists(actx, Assertion{Type: AssertAbsent, ID: "lib:b2"}, false))
	assert.Error(t, assertExists(actx, Assertion{Type: AssertAbsent, ID: "lib:b1"}, false))
	assert.Error(t, assertExists(actx, Assertion{Type: AssertExists, ID: "zz:b1"}, true))

	assert.NoError(t, assertProperty(actx, Assertion{ID: "lib:b1", Property: "year", Value: 1965}))
	assert.NoError(t, assertProperty(actx, Assertion{ID: "lib:b1", Property: "title"}))
	err = assertProperty(actx, Assertion{ID: "lib:b1", Property: "year", Value: "1965"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1965 (int64)")
	err = assertProperty(actx, Assertion{ID: "lib:b2", Property: "year"})
	assert.Contains(t, err.Error(), "invalid element")
}

func TestEvaluateAssertions(t *testing.T) {
	r := traceResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertSessions, Count: 3},
		{Type: AssertExists, ID: "lib:1"},
		{Type: "bogus"},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "state assertions require a store")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(nil, nil))
	assert.False(t, valuesEqual(nil, "x"))
	assert.True(t, valuesEqual([]any{int64(1)}, []any{int64(1)}))
	assert.False(t, valuesEqual(int64(1), 1))
}
