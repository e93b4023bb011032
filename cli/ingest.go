// ABOUTME: ingest-now command
// ABOUTME: Polls every configured mailbox once and prints the summary and band changes
package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/harperreed/tradedesk/intake"
	"github.com/harperreed/tradedesk/scoring"
)

type ingestResult struct {
	Events  []scoring.Event `json:"events"`
	Summary *intake.Summary `json:"summary"`
}

func newIngestNowCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-now",
		Short: "Poll every configured mailbox once",
		Long: `Poll every configured mailbox once, record what buyers sent and print
a summary. Ctrl-C stops after the page being processed; everything recorded
so far is kept and the next poll resumes from there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := env.Open(cmd)
			if err != nil {
				return err
			}
			ingestor, err := app.Ingestor(cmd.Context())
			if err != nil {
				return err
			}

			stop := context.AfterFunc(cmd.Context(), ingestor.Cancel)
			defer stop()

			// The in-flight page finishes even after Ctrl-C; Cancel stops the next one.
			summary, pollErr := ingestor.Poll(context.WithoutCancel(cmd.Context()))
			if summary == nil {
				return pollErr
			}

			result := ingestResult{Events: app.Queue.Drain(), Summary: summary}
			if result.Events == nil {
				result.Events = []scoring.Event{}
			}
			if env.JSON() {
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				printSummary(cmd.OutOrStdout(), summary)
				printEvents(cmd.OutOrStdout(), result.Events)
			}
			return pollErr
		},
	}
}

func printSummary(out io.Writer, s *intake.Summary) {
	status := "✓ Poll finished"
	if s.Cancelled {
		status = "⚠ Poll cancelled"
	}
	fmt.Fprintf(out, "%s in %s\n", status, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	w := newTable(out)
	fmt.Fprintf(w, "  Sources:\t%d\n", s.Sources)
	fmt.Fprintf(w, "  Read:\t%d\n", s.Read)
	fmt.Fprintf(w, "  Kept:\t%d\n", s.Kept)
	fmt.Fprintf(w, "  Recorded:\t%d\n", s.Recorded)
	fmt.Fprintf(w, "  Skipped (irrelevant):\t%d\n", s.SkippedIrrelevant)
	fmt.Fprintf(w, "  Skipped (duplicate):\t%d\n", s.SkippedDuplicate)
	fmt.Fprintf(w, "  Skipped (unresolved):\t%d\n", s.SkippedUnresolved)
	fmt.Fprintf(w, "  Band changes:\t%d\n", s.ClassificationChanges)
	if len(s.IntentsByTag) > 0 {
		fmt.Fprintf(w, "  Intents:\t%s\n", formatCounts(s.IntentsByTag))
	}
	if len(s.ErrorsByKind) > 0 {
		fmt.Fprintf(w, "  Errors:\t%s\n", formatCounts(s.ErrorsByKind))
	}
	_ = w.Flush()
}

func printEvents(out io.Writer, events []scoring.Event) {
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, ev := range events {
		switch {
		case ev.Change != nil:
			c := ev.Change
			fmt.Fprintf(out, "  client %d: %s → %s (%d → %d)\n", ev.ClientID, c.OldBand, c.NewBand, c.OldScore, c.NewScore)
		case ev.Request != nil:
			fmt.Fprintf(out, "  client %d: %s replied\n", ev.ClientID, ev.Request.RequestType)
		}
	}
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := ""
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%d", k, counts[k])
	}
	return s
}
