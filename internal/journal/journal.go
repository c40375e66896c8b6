// Package journal persists committed sessions to SQLite and replays them
// into a domain store.
//
// The journal is an adapter on the session-completed notification: it
// never participates in a session, it only records the events of sessions
// that committed. Replay loads the recorded events under loading mode, so
// constraints are not re-run and id sequences and the version clock
// advance past everything replayed.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/hypergraph/internal/domain"
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/metrics"
	"github.com/roach88/hypergraph/internal/session"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - sessions and events tables
const currentSchemaVersion = 1

// Journal is an append-only log of committed sessions.
type Journal struct {
	db         *sql.DB
	serializer Serializer
}

// Option configures a Journal.
type Option func(*Journal)

// WithSerializer selects the payload encoding for new rows. Rows written
// with another serializer remain readable.
func WithSerializer(s Serializer) Option {
	return func(j *Journal) {
		j.serializer = s
	}
}

// Open creates or opens a journal database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j := &Journal{db: db, serializer: SerializerJSON}
	for _, opt := range opts {
		opt(j)
	}
	if _, err := ParseSerializer(string(j.serializer)); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// SessionRecord is one journaled session.
type SessionRecord struct {
	Seq           int64
	CorrelationID string
	Origin        string
	Mode          string
	MaxVersion    uint64
	EventCount    int
	Digest        string
	Diagnostics   json.RawMessage
}

// Append records a committed session and returns its sequence number.
// Aborted sessions are not recorded and return 0. Appending a correlation
// id that is already journaled is a no-op returning the existing sequence.
func (j *Journal) Append(ctx context.Context, r session.Result) (int64, error) {
	if r.Aborted {
		return 0, nil
	}
	digest, err := Digest(r.Events)
	if err != nil {
		return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
	}
	diags, err := json.Marshal(r.Messages)
	if err != nil {
		return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
	}
	if r.Messages == nil {
		diags = []byte("[]")
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO sessions
		(correlation_id, origin, mode, max_version, event_count, digest, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(correlation_id) DO NOTHING
	`,
		r.CorrelationID,
		r.Origin,
		r.Mode.String(),
		int64(r.MaxVersion),
		len(r.Events),
		digest,
		string(diags),
	)
	if err != nil {
		return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var seq int64
		err := tx.QueryRowContext(ctx,
			`SELECT seq FROM sessions WHERE correlation_id = ?`, r.CorrelationID).Scan(&seq)
		if err != nil {
			return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
		}
		return seq, nil
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
	}

	for i, e := range r.Events {
		payload, err := encodeEvent(j.serializer, e)
		if err != nil {
			return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
		}
		h := e.Meta()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events
			(session_seq, idx, kind, domain, element_id, version, format, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			seq, i, e.Kind().String(), h.Domain, h.ID, int64(h.Version), string(j.serializer), payload,
		)
		if err != nil {
			return 0, fmt.Errorf("append session %s event %d: %w", r.CorrelationID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append session %s: %w", r.CorrelationID, err)
	}
	return seq, nil
}

// Sessions returns every journaled session in commit order.
func (j *Journal) Sessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, correlation_id, origin, mode, max_version, event_count, digest, diagnostics
		FROM sessions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var maxVersion int64
		var diags string
		if err := rows.Scan(&rec.Seq, &rec.CorrelationID, &rec.Origin, &rec.Mode,
			&maxVersion, &rec.EventCount, &rec.Digest, &diags); err != nil {
			return nil, fmt.Errorf("read sessions: %w", err)
		}
		rec.MaxVersion = uint64(maxVersion)
		rec.Diagnostics = json.RawMessage(diags)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return out, nil
}

// Events returns every journaled event in commit order.
func (j *Journal) Events(ctx context.Context) ([]event.Event, error) {
	return j.Query(ctx, Filter{})
}

// SessionEvents returns the events of one journaled session.
func (j *Journal) SessionEvents(ctx context.Context, seq int64) ([]event.Event, error) {
	return j.Query(ctx, Filter{Session: seq})
}

// ElementHistory returns the journaled events of one element id.
func (j *Journal) ElementHistory(ctx context.Context, id string) ([]event.Event, error) {
	return j.Query(ctx, Filter{ElementID: id})
}

func (j *Journal) queryEvents(ctx context.Context, query string, args ...any) ([]event.Event, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var format string
		var payload []byte
		if err := rows.Scan(&format, &payload); err != nil {
			return nil, fmt.Errorf("read events: %w", err)
		}
		e, err := decodeEvent(Serializer(format), payload)
		if err != nil {
			return nil, fmt.Errorf("read events: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return out, nil
}

// ErrDigestMismatch is returned by Verify when stored events no longer hash
// to their session digest.
var ErrDigestMismatch = errors.New("digest mismatch")

// Verify recomputes every session digest from the stored events.
func (j *Journal) Verify(ctx context.Context) error {
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, rec := range sessions {
		events, err := j.SessionEvents(ctx, rec.Seq)
		if err != nil {
			return err
		}
		got, err := Digest(events)
		if err != nil {
			return err
		}
		if got != rec.Digest || len(events) != rec.EventCount {
			errs = append(errs, fmt.Errorf("%w: session %d (%s)", ErrDigestMismatch, rec.Seq, rec.CorrelationID))
		}
	}
	return errors.Join(errs...)
}

// Replay loads every journaled event into s in one loading session.
func (j *Journal) Replay(ctx context.Context, s *domain.Store) (session.Result, error) {
	events, err := j.Events(ctx)
	if err != nil {
		return session.Result{}, err
	}
	slog.Info("replaying journal", "events", len(events))
	return s.Load(events)
}

// Attach appends every committed session of s. Loading sessions are
// skipped, so replaying a journal into an attached store does not duplicate
// it. Append failures are logged and counted; they never affect the
// session, which has already completed.
func (j *Journal) Attach(ctx context.Context, s *domain.Store) {
	s.OnSessionCompleted(func(r session.Result) {
		if r.Aborted || r.Mode.Has(session.ModeLoading) {
			return
		}
		seq, err := j.Append(ctx, r)
		metrics.JournalAppended(err)
		if err != nil {
			slog.Error("journal append failed",
				"correlation_id", r.CorrelationID,
				"events", len(r.Events),
				"error", err)
			return
		}
		slog.Debug("session journaled",
			"seq", seq,
			"correlation_id", r.CorrelationID,
			"events", len(r.Events))
	})
}
