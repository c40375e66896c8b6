package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/testutil"
)

type fakeElement struct{ id string }

func (f fakeElement) ID() string                        { return f.id }
func (f fakeElement) SchemaID() string                  { return "Book" }
func (f fakeElement) PropertyValue(string) (any, bool) { return nil, false }

type fakeHost struct {
	checker    constraint.Checker
	dispatched []event.Event
	completed  []Result
	live       map[string]bool
	active     *Session
}

func newFakeHost() *fakeHost {
	return &fakeHost{live: make(map[string]bool)}
}

func (h *fakeHost) DefaultDispatcher() event.Dispatcher {
	return event.DispatcherFunc(func(e event.Event) error {
		h.dispatched = append(h.dispatched, e)
		switch e.(type) {
		case event.AddEntityEvent:
			h.live[e.Meta().ID] = true
		case event.RemoveEntityEvent:
			delete(h.live, e.Meta().ID)
		}
		if h.active != nil {
			return h.active.AddEvent(e)
		}
		return nil
	})
}

func (h *fakeHost) Checker() constraint.Checker { return h.checker }

func (h *fakeHost) ResolveElement(id string) constraint.Element {
	if !h.live[id] {
		return nil
	}
	return fakeElement{id: id}
}

func (h *fakeHost) SessionCompleted(_ *Session, r Result) {
	h.active = nil
	h.completed = append(h.completed, r)
}

func (h *fakeHost) begin(cfg Config) *Session {
	if h.active != nil {
		_ = h.active.Join()
		return h.active
	}
	h.active = New(h, cfg)
	return h.active
}

func addEntity(id string, version uint64) event.AddEntityEvent {
	return event.AddEntityEvent{Header: event.Header{ID: id, SchemaID: "Book", Version: version, TopLevel: true}}
}

// create applies and records an entity creation the way a domain would.
func (h *fakeHost) create(t *testing.T, s *Session, id string, version uint64) {
	t.Helper()
	h.live[id] = true
	require.NoError(t, s.AddEvent(addEntity(id, version)))
}

func TestSession_CommitReportsEvents(t *testing.T) {
	h := newFakeHost()
	s := h.begin(Config{CorrelationID: "c-1", Origin: "test"})
	h.create(t, s, "lib:1", 3)
	h.create(t, s, "lib:2", 5)
	require.NoError(t, s.AcceptChanges())

	r, err := s.Close()
	require.NoError(t, err)
	assert.False(t, r.Aborted)
	assert.Equal(t, uint64(5), r.MaxVersion)
	assert.Equal(t, []string{"lib:1", "lib:2"}, r.InvolvedElements)
	assert.Len(t, r.Events, 2)
	assert.Equal(t, "c-1", r.CorrelationID)
	assert.Equal(t, "test", r.Origin)
	require.Len(t, h.completed, 1)
	assert.Empty(t, h.dispatched)
	assert.True(t, s.Closed())
}

func TestSession_UnacceptedCloseRollsBackNewestFirst(t *testing.T) {
	h := newFakeHost()
	s := h.begin(Config{})
	h.create(t, s, "lib:1", 1)
	require.NoError(t, s.AddEvent(event.RemovePropertyEvent{
		Header: event.Header{ID: "lib:1", Version: 2}, PropertyName: "title",
	}))
	h.create(t, s, "lib:2", 3)

	r, err := s.Close()
	require.NoError(t, err)
	assert.True(t, r.Aborted)

	require.Len(t, h.dispatched, 2, "remove-property has no reverse")
	assert.Equal(t, event.RemoveEntityEvent{Header: addEntity("lib:2", 3).Header}, h.dispatched[0])
	assert.Equal(t, "lib:1", h.dispatched[1].Meta().ID)
	assert.Empty(t, h.live)
	assert.Len(t, r.Events, 3, "rollback dispatches are not recorded")
	assert.True(t, s.Mode().Has(ModeRollback))
}

func TestSession_NestedUnacceptedLevelAbortsOuter(t *testing.T) {
	h := newFakeHost()
	outer := h.begin(Config{})

	inner := h.begin(Config{})
	require.Same(t, outer, inner)
	h.create(t, inner, "lib:1", 1)
	require.NoError(t, inner.AcceptChanges())
	_, err := inner.Close()
	require.NoError(t, err)

	nested := h.begin(Config{})
	assert.Equal(t, 2, nested.Depth())
	r, err := nested.Close()
	require.NoError(t, err)
	assert.Equal(t, Result{}, r, "nested close reports nothing")
	assert.Empty(t, h.completed)

	require.NoError(t, outer.AcceptChanges())
	r, err = outer.Close()
	require.NoError(t, err)
	assert.True(t, r.Aborted)
	assert.False(t, h.live["lib:1"])
	assert.Len(t, h.completed, 1)
}

func TestSession_NestedAcceptedLevelsCommit(t *testing.T) {
	h := newFakeHost()
	outer := h.begin(Config{})
	for _, id := range []string{"lib:1", "lib:2"} {
		s := h.begin(Config{})
		h.create(t, s, id, 1)
		require.NoError(t, s.AcceptChanges())
		_, err := s.Close()
		require.NoError(t, err)
	}
	require.NoError(t, outer.AcceptChanges())
	r, err := outer.Close()
	require.NoError(t, err)
	assert.False(t, r.Aborted)
	assert.True(t, h.live["lib:1"])
	assert.True(t, h.live["lib:2"])
}

func TestSession_ConstraintErrorAbortsAndSurfaces(t *testing.T) {
	h := newFakeHost()
	h.checker = constraint.CheckerFunc(func(els []constraint.Element, kind constraint.Kind) []constraint.Diagnostic {
		require.Equal(t, constraint.KindCheck, kind)
		var out []constraint.Diagnostic
		for _, el := range els {
			out = append(out,
				constraint.Diagnostic{Severity: constraint.SeverityError, Message: "no title", ElementID: el.ID()},
				constraint.Diagnostic{Severity: constraint.SeverityWarning, Message: "short", ElementID: el.ID()})
		}
		return out
	})
	s := h.begin(Config{CorrelationID: "c-9"})
	h.create(t, s, "lib:1", 1)
	require.NoError(t, s.AcceptChanges())

	r, err := s.Close()
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.Equal(t, "session c-9 aborted: no title", err.Error())

	carried, ok := ResultOf(err)
	require.True(t, ok)
	assert.Equal(t, r.Messages, carried.Messages)
	assert.True(t, r.Aborted)
	assert.True(t, r.HasErrors())
	assert.Len(t, r.Warnings(), 1)
	assert.False(t, h.live["lib:1"])
}

func TestSession_SilentAbortReturnsNoError(t *testing.T) {
	h := newFakeHost()
	h.checker = constraint.CheckerFunc(func([]constraint.Element, constraint.Kind) []constraint.Diagnostic {
		return []constraint.Diagnostic{{Severity: constraint.SeverityError, Message: "bad"}}
	})
	s := h.begin(Config{Silent: true})
	h.create(t, s, "lib:1", 1)
	require.NoError(t, s.AcceptChanges())

	r, err := s.Close()
	require.NoError(t, err)
	assert.True(t, r.Aborted)
	assert.True(t, r.HasErrors())
}

func TestSession_WarningsCommit(t *testing.T) {
	h := newFakeHost()
	h.checker = constraint.CheckerFunc(func([]constraint.Element, constraint.Kind) []constraint.Diagnostic {
		return []constraint.Diagnostic{{Severity: constraint.SeverityWarning, Message: "hmm"}}
	})
	s := h.begin(Config{})
	h.create(t, s, "lib:1", 1)
	require.NoError(t, s.AcceptChanges())

	r, err := s.Close()
	require.NoError(t, err)
	assert.False(t, r.Aborted)
	assert.Len(t, r.Messages, 1)
	assert.True(t, h.live["lib:1"])
}

func TestSession_LoadingSkipsConstraints(t *testing.T) {
	h := newFakeHost()
	called := false
	h.checker = constraint.CheckerFunc(func([]constraint.Element, constraint.Kind) []constraint.Diagnostic {
		called = true
		return []constraint.Diagnostic{{Severity: constraint.SeverityError, Message: "bad"}}
	})
	for _, mode := range []Mode{ModeLoading, ModeUndo, ModeRedo} {
		s := h.begin(Config{Mode: mode})
		h.create(t, s, "lib:1", 1)
		require.NoError(t, s.AcceptChanges())
		r, err := s.Close()
		require.NoError(t, err)
		assert.False(t, r.Aborted, mode.String())
		assert.Equal(t, mode, r.Mode)
	}
	assert.False(t, called)
}

func TestSession_ClosedSessionRejectsUse(t *testing.T) {
	h := newFakeHost()
	s := h.begin(Config{})
	require.NoError(t, s.AcceptChanges())
	_, err := s.Close()
	require.NoError(t, err)

	assert.ErrorIs(t, s.AcceptChanges(), ErrSessionClosed)
	assert.ErrorIs(t, s.AddEvent(addEntity("lib:1", 1)), ErrSessionClosed)
	assert.ErrorIs(t, s.Join(), ErrSessionClosed)
	_, err = s.Close()
	assert.True(t, errors.Is(err, ErrSessionClosed))
}

func TestSession_RollbackOriginatingDispatcher(t *testing.T) {
	h := newFakeHost()
	channel := testutil.NewRecordingDispatcher(nil)

	s := h.begin(Config{RollbackDispatch: RollbackOriginating})
	h.create(t, s, "lib:1", 1)
	require.NoError(t, s.AddEventVia(addEntity("lib:2", 2), channel))
	_, err := s.Close()
	require.NoError(t, err)

	assert.Equal(t, []string{"lib:2"}, channel.IDs())
	require.Len(t, h.dispatched, 1)
	assert.Equal(t, "lib:1", h.dispatched[0].Meta().ID)
}

func TestSession_RollbackDefaultIgnoresOriginatingDispatcher(t *testing.T) {
	h := newFakeHost()
	channel := event.DispatcherFunc(func(event.Event) error {
		t.Fatal("channel dispatcher must not be used")
		return nil
	})

	s := h.begin(Config{})
	require.NoError(t, s.AddEventVia(addEntity("lib:2", 2), channel))
	_, err := s.Close()
	require.NoError(t, err)
	assert.Len(t, h.dispatched, 1)
}

func TestSession_RollbackContinuesPastDispatchFailure(t *testing.T) {
	h := newFakeHost()
	s := New(h, Config{})
	failing := testutil.NewRecordingDispatcher(nil)
	failing.FailWith(errors.New("boom"))
	require.NoError(t, s.AddEventVia(addEntity("lib:1", 1), nil))
	require.NoError(t, s.AddEventVia(addEntity("lib:2", 2), failing))
	s.cfg.RollbackDispatch = RollbackOriginating

	r, err := s.Close()
	require.NoError(t, err)
	assert.True(t, r.Aborted)
	require.Len(t, h.dispatched, 1)
	assert.Equal(t, "lib:1", h.dispatched[0].Meta().ID)
	assert.Equal(t, 1, failing.Len())
}

func TestSession_CheckerMutationJoinsFinalizingSession(t *testing.T) {
	h := newFakeHost()
	checks := 0
	h.checker = constraint.CheckerFunc(func([]constraint.Element, constraint.Kind) []constraint.Diagnostic {
		checks++
		inner := h.begin(Config{CorrelationID: "ignored"})
		assert.Equal(t, 2, inner.Depth())
		h.create(t, inner, "lib:audit", 2)
		require.NoError(t, inner.AcceptChanges())
		_, err := inner.Close()
		require.NoError(t, err)
		assert.False(t, inner.Closed())
		return nil
	})

	s := h.begin(Config{CorrelationID: "c-1"})
	h.create(t, s, "lib:1", 1)
	require.NoError(t, s.AcceptChanges())
	r, err := s.Close()
	require.NoError(t, err)

	assert.False(t, r.Aborted)
	assert.Equal(t, 1, checks)
	require.Len(t, h.completed, 1)
	assert.Equal(t, "c-1", h.completed[0].CorrelationID)
	assert.Equal(t, []string{"lib:1", "lib:audit"}, r.InvolvedElements)
	assert.Equal(t, uint64(2), r.MaxVersion)
	assert.True(t, s.Closed())
	assert.Equal(t, 0, s.Depth())
}

func TestSession_UnacceptedCheckerMutationAbortsSession(t *testing.T) {
	h := newFakeHost()
	h.checker = constraint.CheckerFunc(func([]constraint.Element, constraint.Kind) []constraint.Diagnostic {
		inner := h.begin(Config{})
		h.create(t, inner, "lib:audit", 2)
		_, err := inner.Close()
		require.NoError(t, err)
		return nil
	})

	s := h.begin(Config{})
	h.create(t, s, "lib:1", 1)
	require.NoError(t, s.AcceptChanges())
	r, err := s.Close()
	require.NoError(t, err)

	assert.True(t, r.Aborted)
	require.Len(t, h.completed, 1)
	require.Len(t, h.dispatched, 2)
	assert.Equal(t, "lib:audit", h.dispatched[0].Meta().ID)
	assert.Equal(t, "lib:1", h.dispatched[1].Meta().ID)
	assert.Empty(t, h.live)
}

func TestSession_RollbackDispatcherMutationJoins(t *testing.T) {
	h := newFakeHost()
	var depths []int
	channel := event.DispatcherFunc(func(e event.Event) error {
		inner := h.begin(Config{})
		depths = append(depths, inner.Depth())
		assert.True(t, inner.Mode().Has(ModeRollback))
		require.NoError(t, inner.AddEvent(addEntity("lib:log", 9)))
		require.NoError(t, inner.AcceptChanges())
		_, err := inner.Close()
		return err
	})

	s := h.begin(Config{RollbackDispatch: RollbackOriginating})
	require.NoError(t, s.AddEventVia(addEntity("lib:1", 1), channel))
	require.NoError(t, s.AddEventVia(addEntity("lib:2", 2), channel))
	r, err := s.Close()
	require.NoError(t, err)

	assert.True(t, r.Aborted)
	assert.Equal(t, []int{2, 2}, depths)
	require.Len(t, h.completed, 1)
	assert.Len(t, r.Events, 2, "events added while rolling back are ignored")
	assert.True(t, s.Closed())
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "normal", ModeNormal.String())
	assert.Equal(t, "loading|rollback", (ModeLoading | ModeRollback).String())
	assert.True(t, (ModeUndo | ModeRedo).Has(ModeRedo))
	assert.False(t, ModeLoading.Has(ModeUndo))
}

func TestParseRollbackDispatch(t *testing.T) {
	for _, r := range []RollbackDispatch{RollbackDefault, RollbackOriginating} {
		got, err := ParseRollbackDispatch(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
	_, err := ParseRollbackDispatch("sideways")
	assert.Error(t, err)
}
