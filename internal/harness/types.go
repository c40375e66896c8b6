package harness

import (
	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/session"
)

// TraceSession is one completed top-level session of a scenario run.
type TraceSession struct {
	CorrelationID string           `json:"correlation_id"`
	Origin        string           `json:"origin"`
	Aborted       bool             `json:"aborted"`
	MaxVersion    uint64           `json:"max_version"`
	Events        []map[string]any `json:"events"`
	Messages      []string         `json:"messages,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists completed sessions in completion order.
	Trace []TraceSession `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceSession{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddSessionTrace appends a completed session to the trace.
func (r *Result) AddSessionTrace(res session.Result) {
	ts := TraceSession{
		CorrelationID: res.CorrelationID,
		Origin:        res.Origin,
		Aborted:       res.Aborted,
		MaxVersion:    res.MaxVersion,
		Events:        make([]map[string]any, len(res.Events)),
	}
	for i, e := range res.Events {
		ts.Events[i] = event.ToRecord(e)
	}
	for _, d := range res.Messages {
		ts.Messages = append(ts.Messages, d.String())
	}
	r.Trace = append(r.Trace, ts)
}

// committedEvents returns the events of every committed session in order.
func (r *Result) committedEvents() []map[string]any {
	var out []map[string]any
	for _, ts := range r.Trace {
		if !ts.Aborted {
			out = append(out, ts.Events...)
		}
	}
	return out
}
