package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/hypergraph/internal/constraint"
	"github.com/roach88/hypergraph/internal/event"
)

// Result is what a top-level session reports when it closes.
type Result struct {
	Aborted          bool
	Messages         []constraint.Diagnostic
	MaxVersion       uint64
	InvolvedElements []string
	// Events is the forward event log, in emission order. It is reported
	// for aborted sessions too, although their effects were rolled back.
	Events        []event.Event
	CorrelationID string
	Origin        string
	Mode          Mode
}

// HasErrors reports whether any message has Error severity.
func (r Result) HasErrors() bool {
	return constraint.HasErrors(r.Messages)
}

// Warnings returns the Warning-severity messages.
func (r Result) Warnings() []constraint.Diagnostic {
	var out []constraint.Diagnostic
	for _, d := range r.Messages {
		if d.Severity == constraint.SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// Error is returned by Close when constraints abort a non-silent session.
type Error struct {
	Result Result
}

func (e *Error) Error() string {
	errs := constraint.Errors(e.Result.Messages)
	msgs := make([]string, len(errs))
	for i, d := range errs {
		msgs[i] = d.Message
	}
	return fmt.Sprintf("session %s aborted: %s", e.Result.CorrelationID, strings.Join(msgs, "; "))
}

// IsAborted reports whether err is a constraint abort.
// Uses errors.As to handle wrapped errors.
func IsAborted(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// ResultOf extracts the Result carried by a constraint abort.
func ResultOf(err error) (Result, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Result, true
	}
	return Result{}, false
}
