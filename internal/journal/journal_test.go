package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hypergraph/internal/domain"
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/schema"
	"github.com/roach88/hypergraph/internal/session"
)

func openTestJournal(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func testSchema(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.NewRegistry()
	require.NoError(t, r.Register(schema.Element{ID: "Book", Properties: []schema.Property{
		{Name: "title", Type: "string"},
		{Name: "year", Type: "int"},
		{Name: "rating", Type: "float"},
		{Name: "tags", Type: "array"},
	}}))
	require.NoError(t, r.Register(schema.Element{
		ID: "Cites", Kind: schema.KindRelationship, Start: "Book", End: "Book",
	}))
	return r
}

func newTestStore(t *testing.T) (*domain.Store, *domain.Domain) {
	t.Helper()
	s := domain.NewStore(
		domain.WithSchema(testSchema(t)),
		domain.WithCorrelationGenerator(domain.NewSequenceGenerator("c")),
	)
	d, err := s.CreateDomain("lib")
	require.NoError(t, err)
	return s, d
}

// populate runs three sessions: two books with properties, a citation, and
// a removal of the second book.
func populate(t *testing.T, s *domain.Store, d *domain.Domain) {
	t.Helper()
	_, err := s.InSession(session.Config{}, func(*session.Session) error {
		b1, err := d.Create("Book", "b1")
		if err != nil {
			return err
		}
		if err := b1.Set("title", "Dune"); err != nil {
			return err
		}
		if err := b1.Set("year", int64(1965)); err != nil {
			return err
		}
		if err := b1.Set("rating", 4.5); err != nil {
			return err
		}
		if err := b1.Set("tags", []any{"sf", "classic"}); err != nil {
			return err
		}
		b2, err := d.Create("Book", "b2")
		if err != nil {
			return err
		}
		return b2.Set("title", "Messiah")
	})
	require.NoError(t, err)

	_, err = d.CreateRelationship("Cites", "lib:b2", "lib:b1", "c1")
	require.NoError(t, err)

	_, err = d.Remove("lib:b2")
	require.NoError(t, err)
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	j := openTestJournal(t)

	var version int
	require.NoError(t, j.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, j.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_RejectsUnknownSerializer(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "journal.db"), WithSerializer("gob"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported journal serializer")
}

func TestParseSerializer(t *testing.T) {
	tests := []struct {
		in      string
		want    Serializer
		wantErr bool
	}{
		{"", SerializerJSON, false},
		{"json", SerializerJSON, false},
		{" MsgPack ", SerializerMsgpack, false},
		{"gob", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSerializer(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJournal_AttachRecordsCommittedSessions(t *testing.T) {
	for _, ser := range []Serializer{SerializerJSON, SerializerMsgpack} {
		t.Run(string(ser), func(t *testing.T) {
			ctx := context.Background()
			j := openTestJournal(t, WithSerializer(ser))
			s, d := newTestStore(t)

			var results []session.Result
			s.OnSessionCompleted(func(r session.Result) { results = append(results, r) })
			j.Attach(ctx, s)
			populate(t, s, d)

			sessions, err := j.Sessions(ctx)
			require.NoError(t, err)
			require.Len(t, sessions, 3)
			for i, rec := range sessions {
				assert.Equal(t, results[i].CorrelationID, rec.CorrelationID)
				assert.Equal(t, len(results[i].Events), rec.EventCount)
				assert.Equal(t, results[i].MaxVersion, rec.MaxVersion)
				assert.Equal(t, "normal", rec.Mode)
				assert.JSONEq(t, "[]", string(rec.Diagnostics))
			}

			var want []event.Event
			for _, r := range results {
				want = append(want, r.Events...)
			}
			got, err := j.Events(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			require.NoError(t, j.Verify(ctx))
		})
	}
}

func TestJournal_AppendSkipsAborted(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	seq, err := j.Append(ctx, session.Result{Aborted: true, CorrelationID: "x"})
	require.NoError(t, err)
	assert.Zero(t, seq)

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestJournal_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	r := session.Result{
		CorrelationID: "c-1",
		MaxVersion:    1,
		Events: []event.Event{
			event.AddEntityEvent{Header: event.Header{Domain: "lib", ID: "lib:1", SchemaID: "Book", Version: 1}},
		},
	}

	first, err := j.Append(ctx, r)
	require.NoError(t, err)
	second, err := j.Append(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	events, err := j.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestJournal_ReplayRebuildsStore(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t, WithSerializer(SerializerMsgpack))
	s, d := newTestStore(t)
	j.Attach(ctx, s)
	populate(t, s, d)

	fresh, _ := newTestStore(t)
	j.Attach(ctx, fresh)
	r, err := j.Replay(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, r.Mode.Has(session.ModeLoading))
	assert.Equal(t, s.Clock().Current(), fresh.Clock().Current())

	lib, err := fresh.Domain("lib")
	require.NoError(t, err)
	assert.True(t, lib.ElementExists("lib:b1"))
	assert.False(t, lib.ElementExists("lib:b2"))
	assert.False(t, lib.ElementExists("lib:c1"))

	title, err := lib.GetPropertyValue("lib:b1", "title")
	require.NoError(t, err)
	assert.Equal(t, "Dune", title)
	year, err := lib.GetPropertyValue("lib:b1", "year")
	require.NoError(t, err)
	assert.Equal(t, int64(1965), year)
	rating, err := lib.GetPropertyValue("lib:b1", "rating")
	require.NoError(t, err)
	assert.Equal(t, 4.5, rating)
	tags, err := lib.GetPropertyValue("lib:b1", "tags")
	require.NoError(t, err)
	assert.Equal(t, []any{"sf", "classic"}, tags)

	// Loading sessions are not journaled again.
	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 3)
}

func TestJournal_ElementHistory(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	s, d := newTestStore(t)
	j.Attach(ctx, s)
	populate(t, s, d)

	history, err := j.ElementHistory(ctx, "lib:b2")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, event.KindAddEntity, history[0].Kind())
	for _, e := range history {
		assert.Equal(t, "lib:b2", e.Meta().ID)
	}
}

func TestJournal_VerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	s, d := newTestStore(t)
	j.Attach(ctx, s)
	populate(t, s, d)

	_, err := j.db.Exec(`UPDATE sessions SET digest = 'bogus' WHERE seq = 2`)
	require.NoError(t, err)

	err = j.Verify(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDigestMismatch)
	assert.Contains(t, err.Error(), "session 2")
}

func TestDigest_Deterministic(t *testing.T) {
	events := []event.Event{
		event.AddEntityEvent{Header: event.Header{Domain: "lib", ID: "lib:1", SchemaID: "Book", Version: 1}},
		event.ChangePropertyValueEvent{
			Header: event.Header{Domain: "lib", ID: "lib:1", SchemaID: "Book", Version: 2},
			PropertyName: "title",
			Value:        "Dune",
		},
	}
	a, err := Digest(events)
	require.NoError(t, err)
	b, err := Digest(events)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Digest(events[:1])
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
