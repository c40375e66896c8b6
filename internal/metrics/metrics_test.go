package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSessionClosed_CountsByOutcome(t *testing.T) {
	committed := testutil.ToFloat64(Sessions(OutcomeCommitted))
	aborted := testutil.ToFloat64(Sessions(OutcomeAborted))

	SessionClosed(false, 3)
	SessionClosed(true, 1)
	SessionClosed(false, 0)

	assert.Equal(t, committed+2, testutil.ToFloat64(Sessions(OutcomeCommitted)))
	assert.Equal(t, aborted+1, testutil.ToFloat64(Sessions(OutcomeAborted)))
}

func TestCompacted_LabelsByGraph(t *testing.T) {
	before := testutil.ToFloat64(Compactions("metrics-test"))
	Compacted("metrics-test")
	assert.Equal(t, before+1, testutil.ToFloat64(Compactions("metrics-test")))
}

func TestJournalAppended_Status(t *testing.T) {
	ok := testutil.ToFloat64(journalAppends.WithLabelValues("ok"))
	failed := testutil.ToFloat64(journalAppends.WithLabelValues("error"))

	JournalAppended(nil)
	JournalAppended(errors.New("disk full"))

	assert.Equal(t, ok+1, testutil.ToFloat64(journalAppends.WithLabelValues("ok")))
	assert.Equal(t, failed+1, testutil.ToFloat64(journalAppends.WithLabelValues("error")))
}
