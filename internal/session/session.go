// Package session implements the nestable unit of work that groups graph
// mutations into one atomic, constraint-checked, event-producing change.
//
// A session is owned by its Host (the domain store). Nested begins join the
// active session by incrementing its depth; only the outermost Close
// finalizes. Graph mutation is eager, so an aborted session undoes its
// effects by dispatching the reverse of every reversible event, newest
// first.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/metrics"
)

// ErrSessionClosed is returned when a closed session is used.
var ErrSessionClosed = errors.New("session closed")

// Mode flags describe why a session runs.
type Mode uint8

const (
	ModeNormal  Mode = 0
	ModeLoading Mode = 1 << (iota - 1)
	ModeRollback
	ModeUndo
	ModeRedo
)

// Has reports whether any flag of f is set.
func (m Mode) Has(f Mode) bool {
	return m&f != 0
}

func (m Mode) String() string {
	if m == ModeNormal {
		return "normal"
	}
	var parts []string
	for _, f := range []struct {
		flag Mode
		name string
	}{
		{ModeLoading, "loading"},
		{ModeRollback, "rollback"},
		{ModeUndo, "undo"},
		{ModeRedo, "redo"},
	} {
		if m.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// skipsConstraints lists the modes that replay already-validated history.
const skipsConstraints = ModeLoading | ModeUndo | ModeRedo

// RollbackDispatch selects the dispatcher used for reverse events.
type RollbackDispatch uint8

const (
	// RollbackDefault sends every reverse event through the host's default
	// dispatcher.
	RollbackDefault RollbackDispatch = iota
	// RollbackOriginating sends each reverse event through the dispatcher
	// that applied the original event, falling back to the default.
	RollbackOriginating
)

func (r RollbackDispatch) String() string {
	if r == RollbackOriginating {
		return "originating"
	}
	return "default"
}

// ParseRollbackDispatch parses the names produced by String.
func ParseRollbackDispatch(s string) (RollbackDispatch, error) {
	switch s {
	case "", "default":
		return RollbackDefault, nil
	case "originating":
		return RollbackOriginating, nil
	default:
		return RollbackDefault, fmt.Errorf("unknown rollback dispatch %q", s)
	}
}

// Config is fixed when a top-level session starts. Joining sessions ignore
// their own Config.
type Config struct {
	Mode          Mode
	Origin        string
	CorrelationID string
	// Silent suppresses the returned *Error; the Result still reports the
	// abort and its diagnostics.
	Silent           bool
	RollbackDispatch RollbackDispatch
}

// Host is what a session needs from the store that owns it.
type Host interface {
	DefaultDispatcher() event.Dispatcher
	// Checker may return nil when no constraints are configured.
	Checker() constraint.Checker
	// ResolveElement returns nil when id no longer exists.
	ResolveElement(id string) constraint.Element
	// SessionCompleted runs once per top-level close, after the outcome is
	// final. The host clears its active session and notifies subscribers.
	SessionCompleted(s *Session, r Result)
}

type record struct {
	ev  event.Event
	via event.Dispatcher
}

// Session is a nestable unit of work.
//
// Session is not safe for concurrent use.
type Session struct {
	host Host
	cfg  Config
	mode Mode

	depth     int
	committed bool
	aborted   bool
	closed    bool

	events     []record
	tracking   *TrackingData
	maxVersion uint64
}

// New starts a top-level session at depth 1. Hosts call it only when no
// session is active; otherwise they call Join.
func New(host Host, cfg Config) *Session {
	s := &Session{
		host:     host,
		cfg:      cfg,
		mode:     cfg.Mode,
		depth:    1,
		tracking: newTrackingData(),
	}
	slog.Debug("session opened",
		"correlation_id", cfg.CorrelationID,
		"mode", cfg.Mode,
		"origin", cfg.Origin)
	return s
}

// Join enters a nested level of the session.
func (s *Session) Join() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.depth++
	s.committed = false
	return nil
}

// Depth returns the current nesting depth.
func (s *Session) Depth() int { return s.depth }

// Mode returns the session mode, including ModeRollback once rolling back.
func (s *Session) Mode() Mode { return s.mode }

// CorrelationID returns the id stamped on every event of the session.
func (s *Session) CorrelationID() string { return s.cfg.CorrelationID }

// Origin returns the caller-supplied origin tag.
func (s *Session) Origin() string { return s.cfg.Origin }

// Closed reports whether the session has finalized.
func (s *Session) Closed() bool { return s.closed }

// Tracking returns the touched-element record.
func (s *Session) Tracking() *TrackingData { return s.tracking }

// Events returns the events recorded so far.
func (s *Session) Events() []event.Event {
	out := make([]event.Event, len(s.events))
	for i, r := range s.events {
		out[i] = r.ev
	}
	return out
}

// AcceptChanges marks the current level as intending to commit.
func (s *Session) AcceptChanges() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.committed = true
	return nil
}

// AddEvent records an event applied through the default dispatcher.
func (s *Session) AddEvent(e event.Event) error {
	return s.AddEventVia(e, nil)
}

// AddEventVia records an event applied through d. Events are ignored while
// rolling back.
func (s *Session) AddEventVia(e event.Event, d event.Dispatcher) error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.mode.Has(ModeRollback) {
		return nil
	}
	s.events = append(s.events, record{ev: e, via: d})
	s.tracking.Track(e)
	if v := e.Meta().Version; v > s.maxVersion {
		s.maxVersion = v
	}
	metrics.EventRecorded(e.Kind().String())
	return nil
}

// Close leaves the current level. Nested closes only record whether the
// level was accepted. The outermost close runs constraints, rolls back on
// abort, notifies the host and returns the final Result. A non-silent
// session that ends with Error diagnostics also returns an *Error.
//
// The session stays open at depth 1 until constraints and rollback are
// done, so checkers and dispatchers that mutate join it and their closes
// return early. Mutations made while checking are not checked again.
func (s *Session) Close() (Result, error) {
	if s.closed {
		return Result{}, ErrSessionClosed
	}
	if !s.committed {
		s.aborted = true
	}
	s.depth--
	if s.depth > 0 {
		s.committed = false
		return Result{}, nil
	}
	s.depth = 1

	var diags []constraint.Diagnostic
	if !s.aborted && !s.mode.Has(skipsConstraints) {
		if checker := s.host.Checker(); checker != nil {
			elements := s.tracking.Prepare(s.host.ResolveElement)
			diags = checker.Check(elements, constraint.KindCheck)
			if constraint.HasErrors(diags) {
				s.aborted = true
			}
		}
	}

	if s.aborted {
		s.rollback()
	}
	s.depth = 0
	s.closed = true

	result := s.result(diags)
	metrics.SessionClosed(result.Aborted, len(result.Events))
	slog.Info("session closed",
		"correlation_id", s.cfg.CorrelationID,
		"mode", s.cfg.Mode,
		"aborted", result.Aborted,
		"events", len(result.Events),
		"max_version", result.MaxVersion,
		"diagnostics", len(diags))

	s.host.SessionCompleted(s, result)

	if constraint.HasErrors(diags) && !s.cfg.Silent {
		return result, &Error{Result: result}
	}
	return result, nil
}

// rollback dispatches reverse events newest first. Dispatch failures are
// logged and skipped so the remaining events still unwind.
func (s *Session) rollback() {
	s.mode |= ModeRollback
	def := s.host.DefaultDispatcher()
	for i := len(s.events) - 1; i >= 0; i-- {
		r := s.events[i]
		rev, ok := event.Reverse(r.ev)
		if !ok {
			continue
		}
		d := def
		if s.cfg.RollbackDispatch == RollbackOriginating && r.via != nil {
			d = r.via
		}
		if err := d.Handle(rev); err != nil {
			slog.Error("rollback dispatch failed",
				"correlation_id", s.cfg.CorrelationID,
				"kind", rev.Kind(),
				"id", rev.Meta().ID,
				"error", err)
			continue
		}
		metrics.EventReversed()
	}
}

func (s *Session) result(diags []constraint.Diagnostic) Result {
	return Result{
		Aborted:          s.aborted,
		Messages:         diags,
		MaxVersion:       s.maxVersion,
		InvolvedElements: s.tracking.IDs(),
		Events:           s.Events(),
		CorrelationID:    s.cfg.CorrelationID,
		Origin:           s.cfg.Origin,
		Mode:             s.cfg.Mode,
	}
}
