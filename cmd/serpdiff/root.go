package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/FranksOps/serpdiff/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NewRootCmd creates the root command for serpdiff.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serpdiff",
		Short: "Collect search result rankings and compare them across providers",
		Long: `serpdiff fetches result pages for a batch of queries, extracts the ranked
organic result URLs and compares them against a reference ranking using set
overlap and Spearman rank correlation.

Collection and comparison are separate stages: 'serpdiff collect' writes the
rankings to a storage backend, 'serpdiff compare' reads them back and writes
the report.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML config file")

	cmd.AddCommand(NewCollectCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration for cmd, binding each flag in bindings
// (config key -> flag name) so that explicitly set flags win over the file
// and the environment.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	v := viper.New()
	if err := bindFlags(v, cmd.Flags(), bindings); err != nil {
		return nil, err
	}

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// newLogger writes text logs to w at the configured level, or debug when
// --verbose is set.
func newLogger(cmd *cobra.Command, cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
