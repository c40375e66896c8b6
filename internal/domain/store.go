// Package domain exposes the hypergraph as named domains of entities,
// relationships and property values.
//
// A Store owns its domains and at most one active session. Every mutator
// opens or joins that session, applies its graph change eagerly, records
// the matching event and closes its level; an outer BeginSession turns a
// sequence of calls into one atomic unit. Scopes are domains backed by a
// copy-on-write overlay over their parent's graph.
//
// A Store is single-threaded. Reentrant calls from constraint checks,
// dispatchers or subscribers join the active session.
package domain

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/schema"
	"github.com/roach88/hypergraph/internal/session"
)

// Store is a container of domains sharing one session and one clock.
type Store struct {
	schema   schema.Provider
	checker  constraint.Checker
	corr     CorrelationGenerator
	clock    *Clock
	rollback session.RollbackDispatch
	silent   bool
	logger   *slog.Logger

	domains map[string]*Domain
	order   []string

	active *session.Session
	// touched maps ids recorded by the active session to the domain that
	// recorded them, so constraint checks read the right view.
	touched map[string]*Domain

	subscribers []func(session.Result)
}

// Option configures a Store.
type Option func(*Store)

// WithSchema sets the schema provider used for embedded cascades, property
// ordering and kind checks.
func WithSchema(p schema.Provider) Option {
	return func(s *Store) {
		s.schema = p
	}
}

// WithChecker sets the constraint checker run at every commit.
func WithChecker(c constraint.Checker) Option {
	return func(s *Store) {
		s.checker = c
	}
}

// WithCorrelationGenerator sets the source of session correlation ids.
func WithCorrelationGenerator(g CorrelationGenerator) Option {
	return func(s *Store) {
		s.corr = g
	}
}

// WithClock sets the version clock.
func WithClock(c *Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithRollbackDispatch selects which dispatcher applies reverse events.
func WithRollbackDispatch(r session.RollbackDispatch) Option {
	return func(s *Store) {
		s.rollback = r
	}
}

// WithSilent makes sessions report constraint failures only through their
// Result.
func WithSilent(silent bool) Option {
	return func(s *Store) {
		s.silent = silent
	}
}

// WithLogger sets the store logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		corr:    UUIDv7Generator{},
		clock:   NewClock(),
		logger:  slog.Default(),
		domains: make(map[string]*Domain),
		touched: make(map[string]*Domain),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the version clock.
func (s *Store) Clock() *Clock { return s.clock }

// Schema returns the schema provider, or nil.
func (s *Store) Schema() schema.Provider { return s.schema }

// CreateDomain creates a top-level domain. Names may not contain ':'.
func (s *Store) CreateDomain(name string) (*Domain, error) {
	if name == "" || strings.Contains(name, ":") {
		return nil, fmt.Errorf("invalid domain name %q", name)
	}
	if _, ok := s.domains[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDomain, name)
	}
	d := newDomain(s, name, nil)
	s.register(d)
	return d, nil
}

func (s *Store) register(d *Domain) {
	s.domains[d.name] = d
	s.order = append(s.order, d.name)
	s.logger.Debug("domain created", "domain", d.name, "scope", d.parent != nil)
}

// Domain returns the named domain or scope.
func (s *Store) Domain(name string) (*Domain, error) {
	d, ok := s.domains[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, name)
	}
	return d, nil
}

// Domains returns every domain and scope in creation order.
func (s *Store) Domains() []*Domain {
	out := make([]*Domain, len(s.order))
	for i, name := range s.order {
		out[i] = s.domains[name]
	}
	return out
}

// BeginSession opens a session, or joins the active one. Joining ignores
// cfg. The caller must AcceptChanges and Close the returned session.
func (s *Store) BeginSession(cfg session.Config) *session.Session {
	if s.active != nil && !s.active.Closed() {
		if err := s.active.Join(); err == nil {
			return s.active
		}
	}
	if cfg.CorrelationID == "" {
		cfg.CorrelationID = s.corr.Generate()
	}
	if s.silent {
		cfg.Silent = true
	}
	if cfg.RollbackDispatch == session.RollbackDefault {
		cfg.RollbackDispatch = s.rollback
	}
	s.active = session.New(s, cfg)
	return s.active
}

// ActiveSession returns the open session, or nil.
func (s *Store) ActiveSession() *session.Session { return s.active }

// InSession runs fn inside a session level and closes it, accepting the
// level when fn succeeds. The Result is only meaningful when this call
// opened the top-level session.
func (s *Store) InSession(cfg session.Config, fn func(*session.Session) error) (session.Result, error) {
	sess := s.BeginSession(cfg)
	err := fn(sess)
	if err == nil {
		err = sess.AcceptChanges()
	}
	r, cerr := sess.Close()
	if err != nil {
		return r, err
	}
	return r, cerr
}

// Load replays events in one loading session. Constraints are not checked
// and missing top-level domains are created.
func (s *Store) Load(events []event.Event) (session.Result, error) {
	return s.InSession(session.Config{Mode: session.ModeLoading, Origin: "load"}, func(*session.Session) error {
		for _, e := range events {
			name := e.Meta().Domain
			if _, ok := s.domains[name]; !ok {
				if _, err := s.CreateDomain(name); err != nil {
					return err
				}
			}
			if err := s.dispatch(e); err != nil {
				return fmt.Errorf("load %s %s: %w", e.Kind(), e.Meta().ID, err)
			}
		}
		return nil
	})
}

// OnSessionCompleted subscribes fn to every top-level session close.
func (s *Store) OnSessionCompleted(fn func(session.Result)) {
	s.subscribers = append(s.subscribers, fn)
}

// DefaultDispatcher routes events to their domain by Header.Domain.
func (s *Store) DefaultDispatcher() event.Dispatcher {
	return event.DispatcherFunc(s.dispatch)
}

func (s *Store) dispatch(e event.Event) error {
	d, ok := s.domains[e.Meta().Domain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDomain, e.Meta().Domain)
	}
	return d.apply(e)
}

// Checker returns the configured checker, or nil.
func (s *Store) Checker() constraint.Checker {
	return s.checker
}

// ResolveElement returns the live handle of id for constraint checks.
func (s *Store) ResolveElement(id string) constraint.Element {
	d, ok := s.touched[id]
	if !ok {
		d, ok = s.domains[domainOf(id)]
	}
	if !ok {
		return nil
	}
	el := d.Get(id)
	if el == nil {
		return nil
	}
	return el
}

// SessionCompleted clears the active session and notifies subscribers.
// Domains are notified when the session recorded events for them.
func (s *Store) SessionCompleted(_ *session.Session, r session.Result) {
	s.active = nil
	s.touched = make(map[string]*Domain)

	seen := make(map[string]bool)
	for _, e := range r.Events {
		name := e.Meta().Domain
		if seen[name] {
			continue
		}
		seen[name] = true
		if d, ok := s.domains[name]; ok {
			for _, fn := range d.subscribers {
				fn(r)
			}
		}
	}
	for _, fn := range s.subscribers {
		fn(r)
	}
}

// record adds e to the active session and remembers which domain touched
// its elements.
func (s *Store) record(d *Domain, e event.Event) error {
	if s.active == nil {
		return nil
	}
	if err := s.active.AddEvent(e); err != nil {
		return err
	}
	for _, id := range event.Touched(e) {
		s.touched[id] = d
	}
	return nil
}

func domainOf(id string) string {
	name, _, ok := strings.Cut(id, ":")
	if !ok {
		return ""
	}
	return name
}
