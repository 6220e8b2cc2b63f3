package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/claimledger/internal/model"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	cfgFile   string
	verbose   bool
	brainsDir string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "claimledger",
	Short: "claimledger - claim provenance ledger for markdown knowledge bases",
	Long: `claimledger tracks the claims stated in markdown knowledge bases.

Every claim gets a stable identity, a revision history, and the evidence
quote and source locator it was derived from. Answers to questions are
audited against the ledger, and questions can be asked across several
knowledge bases at once with per-source traceability and cross-source
conflict detection.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command until it returns or the process is interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "claimledger %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.claimledger/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&brainsDir, "brains-dir", "", "directory holding the knowledge bases")

	rootCmd.AddCommand(versionCmd)
}

// setDefaults registers every configuration key so environment
// variables can override keys that no config file mentions.
func setDefaults(v *viper.Viper) {
	d := model.DefaultConfig()
	v.SetDefault("brains_dir", d.BrainsDir)
	v.SetDefault("claims.versioning", d.Claims.Versioning)
	v.SetDefault("claims.provenance", string(d.Claims.Provenance))
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("multi_query.max_sources", d.MultiQuery.MaxSources)
	v.SetDefault("multi_query.max_files_per_source", d.MultiQuery.MaxFilesPerSource)
	v.SetDefault("multi_query.workers", d.MultiQuery.Workers)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	v.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)
	v.SetDefault("rate_limiting.requests_per_second", d.RateLimiting.RequestsPerSecond)
	v.SetDefault("rate_limiting.burst_size", d.RateLimiting.BurstSize)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	v := viper.GetViper()
	setDefaults(v)
	configureEnv(v)

	// Bind flags to viper
	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag("brains_dir", rootCmd.PersistentFlags().Lookup("brains-dir"))

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".claimledger"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// configureEnv maps CLAIMLEDGER_MULTI_QUERY_WORKERS to multi_query.workers
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("CLAIMLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig decodes the merged configuration
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Claims.Provenance = model.ParseProvenanceMode(string(cfg.Claims.Provenance))
	if cfg.MultiQuery.Workers < 1 {
		cfg.MultiQuery.Workers = 1
	}
	return cfg, nil
}

// newLogger logs to stderr; warnings only unless --verbose
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
