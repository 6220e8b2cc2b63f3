package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ppiankov/claimledger/internal/ledger"
	"github.com/ppiankov/claimledger/internal/model"
)

var (
	claimsFilter ledger.ClaimFilter
	claimsStatus string
	claimsJSON   bool
)

// claimsCmd groups the ledger read commands
var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Inspect the claims of a knowledge base",
}

var claimsListCmd = &cobra.Command{
	Use:   "list <brain>",
	Short: "List current claims, most recently updated first",
	Long: `List the materialized claims of a knowledge base.

Example:
  claimledger claims list rl-book --status active --tag theme
  claimledger claims list rl-book --query "policy iteration" --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: runClaimsList,
}

var claimsShowCmd = &cobra.Command{
	Use:   "show <brain> <claim-id>",
	Short: "Show one claim with its evidence and lineage",
	Args:  cobra.ExactArgs(2),
	RunE:  runClaimsShow,
}

var claimsHistoryCmd = &cobra.Command{
	Use:   "history <brain> <claim-id>",
	Short: "Show every ledger event recorded for a claim",
	Args:  cobra.ExactArgs(2),
	RunE:  runClaimsHistory,
}

func init() {
	rootCmd.AddCommand(claimsCmd)
	claimsCmd.AddCommand(claimsListCmd, claimsShowCmd, claimsHistoryCmd)

	claimsCmd.PersistentFlags().BoolVar(&claimsJSON, "json", false, "print JSON instead of a table")
	claimsCmd.PersistentFlags().BoolVar(&markdownOutput, "markdown", false, "render tables as Markdown")

	f := claimsListCmd.Flags()
	f.StringVar(&claimsFilter.FilePath, "file", "", "only claims from this file")
	f.StringVar(&claimsStatus, "status", "", "only claims with this status (active, superseded, deleted)")
	f.StringVar(&claimsFilter.Tag, "tag", "", "only claims carrying this tag")
	f.StringVar(&claimsFilter.Query, "query", "", "case-insensitive text search")
	f.IntVar(&claimsFilter.Limit, "limit", ledger.DefaultListLimit, "maximum number of claims")
	f.IntVar(&claimsFilter.Offset, "offset", 0, "skip this many claims")
}

func runClaimsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	store, err := a.store(args[0])
	if err != nil {
		return err
	}

	filter := claimsFilter
	if claimsStatus != "" {
		status, ok := model.ParseClaimStatus(claimsStatus)
		if !ok {
			return fmt.Errorf("unknown status %q (want active, superseded or deleted)", claimsStatus)
		}
		filter.Status = status
	}

	claims, err := store.ListClaims(filter)
	if err != nil {
		return err
	}
	if claimsJSON {
		return writeJSON(cmd.OutOrStdout(), claims)
	}

	t := newTable("Claim", "Status", "File", "Confidence", "Claim text")
	for _, c := range claims {
		t.AppendRow([]any{c.ClaimID, c.Status, c.FilePath, c.Confidence, c.ClaimText})
	}
	t.AppendFooter([]any{"", "", "", "Total", len(claims)})
	renderTable(cmd.OutOrStdout(), t)
	return nil
}

func runClaimsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	store, err := a.store(args[0])
	if err != nil {
		return err
	}
	c, err := store.GetClaim(args[1])
	if err != nil {
		return err
	}
	if claimsJSON {
		return writeJSON(cmd.OutOrStdout(), c)
	}

	supersedes := ""
	if c.SupersedesRevisionID != nil {
		supersedes = *c.SupersedesRevisionID
	}
	t := newTable("Field", "Value")
	t.AppendRows([]table.Row{
		{"Claim", c.ClaimID},
		{"Revision", c.RevisionID},
		{"Status", c.Status},
		{"Brain", c.BrainName},
		{"File", c.FilePath},
		{"Claim text", c.ClaimText},
		{"Evidence", orDash(c.EvidenceQuote)},
		{"Source", c.SourceLocator},
		{"Confidence", c.Confidence},
		{"Tags", orDash(strings.Join(c.Tags, ", "))},
		{"Related", orDash(strings.Join(c.RelatedClaimIDs, ", "))},
		{"User override", c.UserOverride},
		{"Created", fmt.Sprintf("%s (%s)", c.CreatedAt.Format("2006-01-02 15:04:05"), c.CreatedByRun)},
		{"Updated", fmt.Sprintf("%s (%s)", c.UpdatedAt.Format("2006-01-02 15:04:05"), c.UpdatedByRun)},
		{"Supersedes", orDash(supersedes)},
	})
	renderTable(cmd.OutOrStdout(), t)
	return nil
}

func runClaimsHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	store, err := a.store(args[0])
	if err != nil {
		return err
	}
	events, err := store.GetClaimHistory(args[1])
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("%s: %w", args[1], ledger.ErrClaimNotFound)
	}
	if claimsJSON {
		return writeJSON(cmd.OutOrStdout(), events)
	}

	t := newTable("Time", "Event", "Revision", "Run", "Details")
	for _, ev := range events {
		t.AppendRow([]any{ev.Timestamp.Format("2006-01-02 15:04:05"), ev.EventType, orDash(ev.RevisionID), ev.RunID, payloadSummary(ev.Payload)})
	}
	renderTable(cmd.OutOrStdout(), t)
	return nil
}

// payloadSummary renders event payload fields as sorted key=value pairs
func payloadSummary(payload map[string]any) string {
	if len(payload) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, " ")
}
