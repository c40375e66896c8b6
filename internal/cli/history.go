package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/hypergraph/internal/event"
	"github.com/roach88/hypergraph/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal string
	Session int64    // optional - list one session's events
	Domain  string   // optional - restrict the timeline to one domain
	Kinds   []string // optional - restrict the timeline to event kinds
}

// SessionSummary is one journaled session in the history listing.
type SessionSummary struct {
	Seq           int64  `json:"seq"`
	CorrelationID string `json:"correlation_id"`
	Origin        string `json:"origin,omitempty"`
	Mode          string `json:"mode"`
	MaxVersion    uint64 `json:"max_version"`
	Events        int    `json:"events"`
}

// HistoryResult holds either the session listing or an event timeline.
type HistoryResult struct {
	ElementID string           `json:"element_id,omitempty"`
	Session   int64            `json:"session,omitempty"`
	Filtered  bool             `json:"filtered,omitempty"`
	Sessions  []SessionSummary `json:"sessions,omitempty"`
	Timeline  []map[string]any `json:"timeline,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [element-id]",
		Short: "Query the journal",
		Long: `Query a SQLite journal.

Without arguments, lists the journaled sessions in commit order. With an
element id, shows every journaled event recorded for that element. With
--session, shows the events of one session. --domain and --kind narrow any
event timeline, and on their own select events across the whole journal.

Examples:
  hypergraph history --journal ./library.db
  hypergraph history lib:b1 --journal ./library.db
  hypergraph history --journal ./library.db --session 3 --format json
  hypergraph history --journal ./library.db --kind RemoveEntity --kind RemoveRelationship`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal")
	cmd.Flags().Int64Var(&opts.Session, "session", 0, "show the events of one session sequence number")
	cmd.Flags().StringVar(&opts.Domain, "domain", "", "only events of this domain")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "only events of these kinds (repeatable)")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	ctx := context.Background()
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.Journal != "" {
		cfg.Journal.Path = opts.Journal
	}
	if cfg.Journal.Path == "" {
		return NewExitError(ExitCommandError, "no journal given: use --journal or journal.path")
	}
	filter := journal.Filter{Session: opts.Session, Domain: opts.Domain}
	for _, name := range opts.Kinds {
		kind, err := event.ParseKind(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --kind", err)
		}
		filter.Kinds = append(filter.Kinds, kind)
	}
	if len(args) == 1 {
		filter.ElementID = args[0]
	}

	j, err := cfg.OpenJournal()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	result := HistoryResult{
		ElementID: filter.ElementID,
		Session:   filter.Session,
		Filtered:  filter.Domain != "" || len(filter.Kinds) > 0,
	}
	switch {
	case result.ElementID != "" || result.Session != 0 || result.Filtered:
		events, err := j.Query(ctx, filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to query journal", err)
		}
		result.Timeline = timeline(events)
	default:
		result.Sessions, err = sessionSummaries(ctx, j)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
	}

	return opts.formatter(cmd).Report(result, nil, func(w io.Writer) {
		writeHistoryText(w, result)
	})
}

func sessionSummaries(ctx context.Context, j *journal.Journal) ([]SessionSummary, error) {
	records, err := j.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, len(records))
	for i, rec := range records {
		out[i] = SessionSummary{
			Seq:           rec.Seq,
			CorrelationID: rec.CorrelationID,
			Origin:        rec.Origin,
			Mode:          rec.Mode,
			MaxVersion:    rec.MaxVersion,
			Events:        rec.EventCount,
		}
	}
	return out, nil
}

func timeline(events []event.Event) []map[string]any {
	out := make([]map[string]any, len(events))
	for i, e := range events {
		out[i] = event.ToRecord(e)
	}
	return out
}

func writeHistoryText(w io.Writer, result HistoryResult) {
	switch {
	case result.ElementID != "":
		fmt.Fprintf(w, "History of %s: %d event(s)\n\n", result.ElementID, len(result.Timeline))
	case result.Session != 0:
		fmt.Fprintf(w, "Session %d: %d event(s)\n\n", result.Session, len(result.Timeline))
	case result.Filtered:
		fmt.Fprintf(w, "%d matching event(s)\n\n", len(result.Timeline))
	default:
		if len(result.Sessions) == 0 {
			fmt.Fprintln(w, "No sessions journaled.")
			return
		}
		for _, s := range result.Sessions {
			fmt.Fprintf(w, "%4d  %-24s %3d event(s)  version %d  %s\n",
				s.Seq, s.CorrelationID, s.Events, s.MaxVersion, s.Mode)
		}
		return
	}
	for _, rec := range result.Timeline {
		line := fmt.Sprintf("  v%v  %-20v %v", rec["version"], rec["kind"], rec["id"])
		if name, ok := rec["property"]; ok {
			line += fmt.Sprintf(".%v", name)
		}
		if v, ok := rec["value"]; ok {
			line += fmt.Sprintf(" = %v", v)
		}
		fmt.Fprintln(w, line)
	}
}
