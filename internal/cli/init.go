package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/claimledger/internal/brain"
)

var initObjective string

// initCmd creates a knowledge base
var initCmd = &cobra.Command{
	Use:   "init <brain>",
	Short: "Create a knowledge base with the standard layout",
	Long: `Create a knowledge base folder under brains_dir with the standard
directories (characters, timeline, themes, facts, notes, meta) and the
objective and response files.

Example:
  claimledger init rl-book --objective "Summarize the reinforcement learning book"`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initObjective, "objective", "", "what the knowledge base is for")
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	b, err := brain.New(a.cfg.BrainsDir, args[0])
	if err != nil {
		return err
	}
	if b.Exists() {
		return fmt.Errorf("brain %q already exists at %s", b.Name(), b.Path())
	}
	if err := b.Initialize(initObjective); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Created brain %s at %s\n", b.Name(), b.Path())
	return nil
}
