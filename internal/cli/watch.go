package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimledger/internal/ledger"
	"github.com/ppiankov/claimledger/internal/watch"
)

var (
	watchDebounce time.Duration
	watchInclude  []string
	watchExclude  []string
)

// watchCmd keeps the ledger in sync with edits on disk
var watchCmd = &cobra.Command{
	Use:   "watch <brain>",
	Short: "Re-track knowledge files whenever they change",
	Long: `Watch observes a knowledge base and reconciles edited markdown files
against the ledger, batching the changes of each debounce window into one
run. Deleting a file does not supersede its claims.

Example:
  claimledger watch rl-book
  claimledger watch rl-book --debounce 2s --exclude "drafts/**"`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "collect changes for this long before tracking")
	watchCmd.Flags().StringSliceVar(&watchInclude, "include", watch.DefaultInclude, "glob patterns of files to track")
	watchCmd.Flags().StringSliceVar(&watchExclude, "exclude", nil, "glob patterns of files to ignore")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if !a.cfg.Claims.Versioning {
		return fmt.Errorf("claim versioning is disabled (claims.versioning=false)")
	}
	store, err := a.store(args[0])
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	w, err := watch.New(store.Brain(), store, watch.Config{
		Debounce: watchDebounce,
		Include:  watchInclude,
		Exclude:  watchExclude,
		OnTrack: func(runID string, results []ledger.FileResult) {
			for _, r := range results {
				if r.Err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", r.FilePath, r.Err)
					continue
				}
				fmt.Fprintf(out, "✓ %s (created %d, superseded %d) [%s]\n", r.FilePath, r.Summary.Created, r.Summary.Superseded, runID)
			}
			a.flushMetrics()
		},
	}, a.logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Watching %s (Ctrl-C to stop)\n", store.Brain().Path())
	return w.Run(cmd.Context())
}
