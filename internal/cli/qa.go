package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sdejongh/scival/pkg/config"
	"github.com/sdejongh/scival/pkg/engine"
	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/output"
)

// CompareFlags holds qa compare flags
type CompareFlags struct {
	Master        string
	Test          string
	Output        string
	Schema        string
	IncludeNoData bool
	NoRender      bool
	Exclude       []string
	Format        string
	Report        string
	DiffReport    string
	DiffFormat    string
	ShowMatches   bool
	Timing        bool
}

var compareFlags CompareFlags

// NewQACommand creates the qa command group
func NewQACommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qa",
		Short: "Quality assurance of science products",
		Long:  `Validate a test set of products against a master set.`,
	}

	cmd.AddCommand(newCompareCommand())

	return cmd
}

func newCompareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a test directory against a master directory",
		Long: `Pair the files of the master and test directories by kind and file
name, then compare rasters pixel by pixel, text files line by line, XML
metadata against an optional schema and preview images by size and pixels.

Exit status: 0 when everything matches, 1 when differences were found,
2 when the run could not start and 3 when it was interrupted.`,
		RunE: runCompare,
	}

	// Required flags
	cmd.Flags().StringVarP(&compareFlags.Master, "master", "m", "", "master directory path (required)")
	cmd.Flags().StringVarP(&compareFlags.Test, "test", "t", "", "test directory path (required)")
	cmd.Flags().StringVarP(&compareFlags.Output, "output", "o", "", "directory for difference images (required)")
	cmd.MarkFlagRequired("master")
	cmd.MarkFlagRequired("test")
	cmd.MarkFlagRequired("output")

	// Optional flags
	cmd.Flags().StringVarP(&compareFlags.Schema, "xml-schema", "x", "", "XSD used to validate test XML documents")
	cmd.Flags().BoolVar(&compareFlags.IncludeNoData, "include-nodata", false, "compare NoData pixels like any other value")
	cmd.Flags().BoolVar(&compareFlags.NoRender, "no-render", false, "do not write difference images")
	cmd.Flags().StringSliceVar(&compareFlags.Exclude, "exclude", []string{}, "glob patterns to exclude")
	cmd.Flags().StringVar(&compareFlags.Format, "format", "", "report format: human, json (default from config)")
	cmd.Flags().StringVar(&compareFlags.Report, "report", "", "also write the full report to file")
	cmd.Flags().StringVar(&compareFlags.DiffReport, "diff-report", "", "write differences report to file")
	cmd.Flags().StringVar(&compareFlags.DiffFormat, "diff-format", "human", "differences report format: human, json")
	cmd.Flags().BoolVar(&compareFlags.ShowMatches, "show-matches", false, "list matching pairs in the human report")
	cmd.Flags().BoolVar(&compareFlags.Timing, "timing", false, "include run id and timing in reports")

	return cmd
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	master, test, err := validateTreeDirs(compareFlags.Master, compareFlags.Test)
	if err != nil {
		return &models.ConfigError{Err: err}
	}
	outDir, err := outputDir(compareFlags.Output)
	if err != nil {
		return &models.ConfigError{Err: err}
	}

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return &models.ConfigError{Err: fmt.Errorf("failed to load config: %w", err)}
	}

	// Override config with command-line flags
	applyGlobalFlags(cfg)
	applyCompareFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return &models.ConfigError{Err: err}
	}

	formatter, err := newReportFormatter(cfg.Output.Format)
	if err != nil {
		return &models.ConfigError{Err: err}
	}

	logger, err := createLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	run := createRun(cfg, master, test, outDir)
	progress := output.NewProgress(os.Stderr, cfg.Output.Progress)
	eng := engine.NewEngine(run, logger, engine.WithProgress(progress))

	report, err := eng.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if !cfg.Output.Quiet || compareFlags.Report == "" {
		if err := formatter.Format(cmd.OutOrStdout(), report); err != nil {
			return fmt.Errorf("failed to print report: %w", err)
		}
	}

	if compareFlags.Report != "" {
		if err := output.WriteReport(report, compareFlags.Report, cfg.Output.Format); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	// Show differences report if:
	// - --diff-report is specified (write to file)
	// - --diff-format is explicitly set (write to stdout)
	if compareFlags.DiffReport != "" || cmd.Flags().Changed("diff-format") {
		if err := output.WriteDifferencesReport(report, compareFlags.DiffReport, compareFlags.DiffFormat); err != nil {
			return fmt.Errorf("failed to write differences report: %w", err)
		}
	}

	if code := report.Status.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// applyCompareFlags overrides config values with qa compare flags
func applyCompareFlags(cmd *cobra.Command, cfg *config.Config) {
	if compareFlags.IncludeNoData {
		cfg.Compare.MaskNoData = false
	}
	if compareFlags.NoRender {
		cfg.Compare.RenderDiffs = false
	}
	if len(compareFlags.Exclude) > 0 {
		cfg.Compare.Exclude = append(cfg.Compare.Exclude, compareFlags.Exclude...)
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = compareFlags.Format
	}
}

// createRun builds the validation run from the effective configuration
func createRun(cfg *config.Config, master, test, outDir string) *models.Run {
	return &models.Run{
		ID:              uuid.New().String(),
		MasterRoot:      master,
		TestRoot:        test,
		OutputDir:       outDir,
		SchemaPath:      compareFlags.Schema,
		MaskNoData:      cfg.Compare.MaskNoData,
		RenderDiffs:     cfg.Compare.RenderDiffs,
		Extensions:      cfg.Extensions(),
		ExcludePatterns: cfg.Compare.Exclude,
		CreatedAt:       time.Now(),
	}
}

// newReportFormatter creates the stdout formatter with the display flags
func newReportFormatter(format string) (output.Formatter, error) {
	formatter, err := output.NewFormatter(format)
	if err != nil {
		return nil, err
	}
	switch f := formatter.(type) {
	case *output.HumanFormatter:
		f.ShowMatches = compareFlags.ShowMatches
		f.ShowTiming = compareFlags.Timing
	case *output.JSONFormatter:
		f.ShowTiming = compareFlags.Timing
	}
	return formatter, nil
}
