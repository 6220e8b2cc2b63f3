package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimledger/internal/query"
)

var (
	auditQuestion string
	auditProvider string
	auditModel    string
	auditTimeout  time.Duration
	auditJSON     bool
)

// auditCmd answers a question from one knowledge base and traces the answer
var auditCmd = &cobra.Command{
	Use:   "audit <brain>",
	Short: "Answer a question from one knowledge base with a claim trace",
	Long: `Audit selects the relevant files of a knowledge base, answers the
question from them, and links every answer statement to the ledger claims
that support it. The query is recorded as a run.

Example:
  claimledger audit rl-book -q "Does policy iteration converge?"
  claimledger audit rl-book -q "..." --llm-provider openai --llm-model gpt-4o-mini --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVarP(&auditQuestion, "question", "q", "", "question to answer (required)")
	auditCmd.Flags().StringVar(&auditProvider, "llm-provider", "", "override llm.provider")
	auditCmd.Flags().StringVar(&auditModel, "llm-model", "", "override llm.model")
	auditCmd.Flags().DurationVar(&auditTimeout, "timeout", 5*time.Minute, "overall timeout")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print JSON")
	auditCmd.Flags().BoolVar(&markdownOutput, "markdown", false, "render tables as Markdown")
	_ = auditCmd.MarkFlagRequired("question")
}

func runAudit(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(auditQuestion) == "" {
		return fmt.Errorf("question is required")
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.flushMetrics()

	store, err := a.store(args[0])
	if err != nil {
		return err
	}
	provider, err := a.providers()(auditProvider, auditModel)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), auditTimeout)
	defer cancel()

	q := query.New(provider, query.WithModel(auditModel), query.WithLogger(a.logger))
	selection, err := q.SelectRelevantFiles(ctx, store.Brain(), auditQuestion)
	if err != nil {
		return fmt.Errorf("select files: %w", err)
	}
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "⚙️  Selected %d files: %s\n", len(selection.Files), selection.Reasoning)
	}

	result, err := q.AnswerWithAudit(ctx, store, auditQuestion, selection.Files)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}
	if auditJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	heading(out, "Answer")
	fmt.Fprintf(out, "%s\n\n", result.Answer)
	fmt.Fprintf(out, "  Confidence:    %s\n", result.Confidence)
	fmt.Fprintf(out, "  Sources:       %s\n", orDash(strings.Join(result.Sources, ", ")))
	fmt.Fprintf(out, "  Traced:        %d of %d statements (%.0f%%)\n",
		result.TraceCompleteness.LinkedStatements, result.TraceCompleteness.TotalStatements,
		result.TraceCompleteness.CompletenessRatio*100)
	fmt.Fprintf(out, "  Run:           %s\n\n", result.QueryRunID)

	if len(result.ClaimTrace) == 0 {
		fmt.Fprintln(out, "No ledger claims support this answer. Run 'claimledger track' first.")
		return nil
	}
	t := newTable("Claim", "File", "Source", "Claim text", "Evidence")
	for _, item := range result.ClaimTrace {
		claimID := item.ClaimID
		if item.UserOverride {
			claimID += " (user)"
		}
		t.AppendRow([]any{claimID, item.FilePath, item.SourceLocator, item.ClaimText, orDash(item.EvidenceQuote)})
	}
	renderTable(out, t)
	return nil
}
