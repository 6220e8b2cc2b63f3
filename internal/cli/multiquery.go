package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimledger/internal/model"
	"github.com/ppiankov/claimledger/internal/orchestrator"
)

var (
	mqBrains      []string
	mqQuestion    string
	mqProvider    string
	mqModel       string
	mqNoTrace     bool
	mqNoConflicts bool
	mqMaxSources  int
	mqMaxFiles    int
	mqTimeout     time.Duration
	mqJSON        bool
)

// multiQueryCmd answers one question across several knowledge bases
var multiQueryCmd = &cobra.Command{
	Use:   "multi-query",
	Short: "Answer a question across several knowledge bases",
	Long: `Multi-query asks every listed knowledge base the same question, synthesizes
one answer from their findings, reports per-source claim traceability, and
classifies overlapping claims from different sources as support, refute or
ambiguous.

Sources without ledger claims (or with claims.versioning=false) still answer
but are reported as degraded.

Example:
  claimledger multi-query --brains rl-book,rl-notes -q "Does policy iteration converge?"
  claimledger multi-query --brains a,b,c -q "..." --no-conflicts --max-files 6 --json`,
	Args: cobra.NoArgs,
	RunE: runMultiQuery,
}

func init() {
	rootCmd.AddCommand(multiQueryCmd)

	f := multiQueryCmd.Flags()
	f.StringSliceVar(&mqBrains, "brains", nil, "comma-separated knowledge bases to ask (required)")
	f.StringVarP(&mqQuestion, "question", "q", "", "question to answer (required)")
	f.StringVar(&mqProvider, "llm-provider", "", "override llm.provider")
	f.StringVar(&mqModel, "llm-model", "", "override llm.model")
	f.BoolVar(&mqNoTrace, "no-trace", false, "omit per-source claim traces (ratios are still reported)")
	f.BoolVar(&mqNoConflicts, "no-conflicts", false, "skip cross-source conflict classification")
	f.IntVar(&mqMaxSources, "max-sources", 0, "override multi_query.max_sources")
	f.IntVar(&mqMaxFiles, "max-files", 0, "override multi_query.max_files_per_source")
	f.DurationVar(&mqTimeout, "timeout", 10*time.Minute, "overall timeout")
	f.BoolVar(&mqJSON, "json", false, "print the full result as JSON")
	f.BoolVar(&markdownOutput, "markdown", false, "render tables as Markdown")
}

func runMultiQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	req := orchestrator.Request{
		Question:          mqQuestion,
		SourceNames:       mqBrains,
		Provider:          mqProvider,
		Model:             mqModel,
		IncludeClaimTrace: !mqNoTrace,
		IncludeConflicts:  !mqNoConflicts,
		MaxSources:        a.cfg.MultiQuery.MaxSources,
		MaxFilesPerSource: a.cfg.MultiQuery.MaxFilesPerSource,
	}
	if mqMaxSources != 0 {
		req.MaxSources = mqMaxSources
	}
	if mqMaxFiles != 0 {
		req.MaxFilesPerSource = mqMaxFiles
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), mqTimeout)
	defer cancel()

	result, err := a.orchestrator().Query(ctx, req)
	if err != nil {
		return err
	}
	if mqJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printMultiResult(cmd.OutOrStdout(), result, req.IncludeClaimTrace)
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  %s\n", w)
	}
	return nil
}

func printMultiResult(out io.Writer, result *model.MultiBrainQueryResult, withTrace bool) {
	heading(out, "Answer")
	fmt.Fprintf(out, "%s\n\n", result.Answer)
	fmt.Fprintf(out, "  Confidence:    %s\n", result.Confidence)
	fmt.Fprintf(out, "  Traceability:  %.0f%% (%d with claims, %d without)\n",
		result.Traceability.OverallCompletenessRatio*100,
		result.Traceability.BrainsWithClaims, result.Traceability.BrainsWithoutClaims)
	if len(result.Traceability.DegradedBrains) > 0 {
		fmt.Fprintf(out, "  Degraded:      %s\n", strings.Join(result.Traceability.DegradedBrains, ", "))
	}
	fmt.Fprintf(out, "  Run:           %s\n\n", result.QueryRunID)

	t := newTable("Brain", "Confidence", "Traced", "Sources", "Answer")
	for _, pb := range result.PerBrain {
		traced := fmt.Sprintf("%.0f%%", pb.TraceCompletenessRatio*100)
		if pb.TraceDegraded {
			traced = "degraded"
		}
		t.AppendRow([]any{pb.BrainName, pb.Confidence, traced, len(pb.Sources), pb.AnswerExcerpt})
	}
	renderTable(out, t)

	if withTrace {
		trace := newTable("Brain", "Claim", "File", "Claim text")
		rows := 0
		for _, pb := range result.PerBrain {
			for _, item := range pb.ClaimTrace {
				trace.AppendRow([]any{pb.BrainName, item.ClaimID, item.FilePath, item.ClaimText})
				rows++
			}
		}
		if rows > 0 {
			fmt.Fprintln(out)
			renderTable(out, trace)
		}
	}

	if len(result.Conflicts) > 0 {
		fmt.Fprintln(out)
		conflicts := newTable("Classification", "Topic", "Evidence", "Rationale")
		for _, c := range result.Conflicts {
			conflicts.AppendRow([]any{c.Classification, c.Topic, strings.Join(c.Evidence, "\n"), orDash(c.Rationale)})
		}
		renderTable(out, conflicts)
	}
}
