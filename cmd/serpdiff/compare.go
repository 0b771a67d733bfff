package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/FranksOps/serpdiff/internal/pipeline"
	"github.com/FranksOps/serpdiff/internal/rank"
	"github.com/FranksOps/serpdiff/internal/report"
	"github.com/FranksOps/serpdiff/internal/storage"
	"github.com/spf13/cobra"
)

var compareBindings = map[string]string{
	"provider.engine": "engine",
	"storage.backend": "backend",
	"storage.dsn":     "dsn",
}

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare collected rankings against a reference ranking",
		Long: `Compare reads the collected (candidate) rankings and a reference ranking and
writes one row per candidate query: the number and percentage of overlapping
result URLs and the Spearman rank correlation of the common results, followed
by an Averages row.

The candidate is read from the configured storage backend unless --candidate
names a file. The report format follows the extension of --out: .csv, .json,
.txt, .md or .html.

Every candidate query must be present in the reference. A SQLite, CSV or
PostgreSQL store holding several sources needs --reference-source (or
--candidate-source) to select one.

Examples:
  # Compare result.json against a Google ranking
  serpdiff compare --reference google.json

  # Read the candidate from SQLite and write a Markdown report
  serpdiff compare --backend sqlite --dsn rankings.db -r google.json -o report.md`,
		Args: cobra.NoArgs,
		RunE: runCompareCmd,
	}

	cmd.Flags().StringP("reference", "r", "", "Reference ranking file (.json, .csv or SQLite .db)")
	cmd.Flags().String("reference-source", "", "Only read reference rankings with this source")
	cmd.Flags().String("candidate", "", "Candidate ranking file; overrides --backend and --dsn")
	cmd.Flags().String("candidate-source", "", "Source of the candidate rankings (default: the configured engine)")
	cmd.Flags().String("engine", "", "Engine whose collected rankings form the candidate")
	cmd.Flags().String("backend", "", "Candidate storage backend (json, csv, sqlite, postgres)")
	cmd.Flags().String("dsn", "", "Candidate backend DSN or file (default result.json)")
	cmd.Flags().StringP("out", "o", "result.csv", "Report file; the extension selects the format")
	_ = cmd.MarkFlagRequired("reference")

	return cmd
}

func runCompareCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, compareBindings)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg, cmd.ErrOrStderr())

	refPath, _ := cmd.Flags().GetString("reference")
	refSource, _ := cmd.Flags().GetString("reference-source")
	candPath, _ := cmd.Flags().GetString("candidate")
	candSource, _ := cmd.Flags().GetString("candidate-source")
	out, _ := cmd.Flags().GetString("out")

	if candSource == "" {
		candSource = cfg.Provider.Engine
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kind, dsn := cfg.Storage.Backend, cfg.Storage.DSN
	if candPath != "" {
		kind, dsn = backendForPath(candPath), candPath
	}
	candidate, err := openBackend(ctx, kind, dsn, candSource)
	if err != nil {
		return fmt.Errorf("open candidate: %w", err)
	}
	defer candidate.Close()

	reference, err := openReference(ctx, refPath, refSource)
	if err != nil {
		return err
	}
	defer reference.Close()

	r, err := pipeline.Compare(ctx,
		pipeline.Input{Backend: candidate, Source: candSource},
		pipeline.Input{Backend: reference, Source: refSource},
	)
	if errors.Is(err, rank.ErrDuplicateQuery) {
		return fmt.Errorf("compare: %w (the store holds several sources; pick one with --reference-source or --candidate-source)", err)
	}
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}
	if r.Reference == "" {
		r.Reference = filepath.Base(refPath)
	}

	if err := report.WriteFile(out, r); err != nil {
		return err
	}
	logger.Debug("report written", "path", out, "format", report.FormatFromPath(out))

	fmt.Fprintf(cmd.OutOrStdout(), "compared %d queries: avg overlap %.1f%%, avg spearman %.2f -> %s\n",
		len(r.Rows), r.Averages.OverlapPercent, r.Averages.Correlation, out)
	return nil
}

// openReference opens a reference ranking file. JSON rankings carry no
// source of their own and are labelled with source, or "reference".
func openReference(ctx context.Context, path, source string) (storage.Backend, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	label := source
	if label == "" {
		label = "reference"
	}
	b, err := openBackend(ctx, backendForPath(path), path, label)
	if err != nil {
		return nil, fmt.Errorf("open reference: %w", err)
	}
	return b, nil
}
