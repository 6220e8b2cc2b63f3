package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimledger/internal/ledger"
	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/worker"
)

var (
	trackFromFile  string
	trackAll       bool
	trackObjective string
)

// trackCmd reconciles files against the ledger
var trackCmd = &cobra.Command{
	Use:   "track <brain> [file...]",
	Short: "Reconcile knowledge files against the claim ledger",
	Long: `Track extracts the claims of each file and reconciles them against the
ledger of the knowledge base: new claims are created, unchanged claims are
kept, and claims that disappeared are superseded. All files are tracked
under a single run.

Paths are relative to the knowledge base root.

Example:
  claimledger track rl-book facts/policy.md themes/exploration.md
  claimledger track rl-book --all
  claimledger track rl-book --from-file changed.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)
	trackCmd.Flags().StringVar(&trackFromFile, "from-file", "", "read paths from a file (one per line, # comments)")
	trackCmd.Flags().BoolVar(&trackAll, "all", false, "track every knowledge file")
	trackCmd.Flags().StringVar(&trackObjective, "objective", "", "objective recorded on the run")
}

func runTrack(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	if !a.cfg.Claims.Versioning {
		return fmt.Errorf("claim versioning is disabled (claims.versioning=false)")
	}
	store, err := a.store(args[0])
	if err != nil {
		return err
	}

	paths, err := trackPaths(store, args[1:])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files to track: pass paths, --from-file or --all")
	}

	start := time.Now()
	runID, results, err := store.TrackFiles(paths, trackObjective)
	if err != nil {
		return fmt.Errorf("track failed: %w", err)
	}

	out := cmd.ErrOrStderr()
	var total model.TrackSummary
	failures := 0
	for _, r := range results {
		if r.Err != nil {
			failures++
			fmt.Fprintf(out, "✗ %s: %v\n", r.FilePath, r.Err)
		} else {
			fmt.Fprintf(out, "✓ %s (created %d, unchanged %d, superseded %d, warnings %d)\n",
				r.FilePath, r.Summary.Created, r.Summary.Unchanged, r.Summary.Superseded, r.Summary.Warnings)
		}
		total.Created += r.Summary.Created
		total.Unchanged += r.Summary.Unchanged
		total.Superseded += r.Summary.Superseded
		total.Warnings += r.Summary.Warnings
	}

	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "  Run:         %s\n", runID)
	fmt.Fprintf(out, "  Files:       %d (%d failed)\n", len(results), failures)
	fmt.Fprintf(out, "  Created:     %d\n", total.Created)
	fmt.Fprintf(out, "  Unchanged:   %d\n", total.Unchanged)
	fmt.Fprintf(out, "  Superseded:  %d\n", total.Superseded)
	fmt.Fprintf(out, "  Warnings:    %d\n", total.Warnings)
	fmt.Fprintf(out, "  Duration:    %v\n", time.Since(start).Round(time.Millisecond))

	if pf := ledger.ProvenanceFailures(results); len(pf) > 0 {
		return fmt.Errorf("provenance check failed for %d file(s); claims were recorded with warnings", len(pf))
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(results))
	}
	return nil
}

// trackPaths merges positional paths, --from-file and --all into one
// ordered, de-duplicated list of knowledge-base-relative paths.
func trackPaths(store *ledger.Store, args []string) ([]string, error) {
	var paths []string
	paths = append(paths, args...)

	if trackFromFile != "" {
		lines, err := worker.ReadLines(trackFromFile)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", trackFromFile, err)
		}
		paths = append(paths, lines...)
	}

	if trackAll {
		files, err := store.Brain().ListFiles()
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if strings.HasSuffix(f, ".md") && !strings.HasPrefix(filepath.Base(f), "_") {
				paths = append(paths, f)
			}
		}
	}

	root, err := filepath.Abs(store.Brain().Path())
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = filepath.ToSlash(strings.TrimPrefix(p, "./"))
		// accept paths given relative to the working directory
		if abs, err := filepath.Abs(p); err == nil {
			if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
				if _, statErr := os.Stat(abs); statErr == nil {
					p = filepath.ToSlash(rel)
				}
			}
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
