package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scoutlabs/scout/internal/app"
	"github.com/scoutlabs/scout/internal/discovery"
)

// newDiscoverCmd creates the 'discover' subcommand, which executes one full
// discovery run and exits.
func newDiscoverCmd() *cobra.Command {
	var (
		since   string
		sources []string
		output  string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one discovery pass over the configured sources",
		Long: `Fetches new listings from every enabled source, classifies out the
noise, deduplicates entities across sources, and emits canonical records.
Exit code 0 means all sources drained cleanly, 1 means some sources failed,
2 means the pipeline itself failed.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			opts := app.DiscoverOptions{
				Sources: sources,
				Output:  output,
				DryRun:  dryRun,
			}
			if since != "" {
				t, err := parseSince(since)
				if err != nil {
					return err
				}
				opts.Since = t
			}

			summary, runErr := a.Discover(cmd.Context(), opts)
			if runErr != nil {
				a.Logger.Error("discovery run failed", zap.Error(runErr))
			}

			switch summary.Status {
			case discovery.RunSuccess:
				return nil
			case discovery.RunPartial:
				return &exitError{
					code: summary.Status.ExitCode(),
					err:  fmt.Errorf("run %s completed partially", summary.RunID),
				}
			default:
				err := runErr
				if err == nil {
					err = fmt.Errorf("run %s failed", summary.RunID)
				}
				return &exitError{code: discovery.RunFailed.ExitCode(), err: err}
			}
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "override watermarks with an RFC3339 or YYYY-MM-DD floor")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "restrict the run to these sources")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output destination: file path, "-" for stdout, or pubsub://project/topic`)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the pipeline without emitting or advancing checkpoints")

	return cmd
}

// parseSince accepts a full RFC3339 timestamp or a bare date, which means
// midnight UTC of that day.
func parseSince(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --since %q: want RFC3339 or YYYY-MM-DD", value)
	}
	return t.UTC(), nil
}
