package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/hypergraph/internal/event"
)

// Filter selects journaled events. Zero fields match everything.
type Filter struct {
	Session   int64 // one session sequence number
	AfterSeq  int64 // sessions with seq > AfterSeq
	Domain    string
	ElementID string
	Kinds     []event.Kind
}

// compile builds a parameterized query over the events table. Values are
// never interpolated. Every query orders by (session_seq, idx), so results
// follow commit order.
func (f Filter) compile() (string, []any) {
	var where []string
	var params []any
	eq := func(column string, value any) {
		where = append(where, column+" = ?")
		params = append(params, value)
	}

	if f.Session != 0 {
		eq("session_seq", f.Session)
	}
	if f.AfterSeq != 0 {
		where = append(where, "session_seq > ?")
		params = append(params, f.AfterSeq)
	}
	if f.Domain != "" {
		eq("domain", f.Domain)
	}
	if f.ElementID != "" {
		eq("element_id", f.ElementID)
	}
	if len(f.Kinds) > 0 {
		marks := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			marks[i] = "?"
			params = append(params, k.String())
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}

	var b strings.Builder
	b.WriteString("SELECT format, payload FROM events")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY session_seq ASC, idx ASC")
	return b.String(), params
}

// Query returns the journaled events matching f in commit order.
func (j *Journal) Query(ctx context.Context, f Filter) ([]event.Event, error) {
	if f.Session < 0 || f.AfterSeq < 0 {
		return nil, fmt.Errorf("query events: negative session sequence")
	}
	query, params := f.compile()
	return j.queryEvents(ctx, query, params...)
}
