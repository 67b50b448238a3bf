package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/output"
	"github.com/sdejongh/scival/pkg/ratelimit"
	"github.com/sdejongh/scival/pkg/storage"
)

// FetchFlags holds fetch command flags
type FetchFlags struct {
	Bucket    string
	Prefix    string
	OutDir    string
	Overwrite bool
	Bandwidth string
}

var fetchFlags FetchFlags

// NewFetchCommand creates the fetch command
func NewFetchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Mirror master products from object storage",
		Long: `Copy every object below a prefix of an S3-compatible bucket into a local
directory, keeping relative paths. Files already present with the same size
are left in place unless --overwrite is given. Endpoint and keys come from
the storage section of the configuration.`,
		RunE: runFetch,
	}

	cmd.Flags().StringVar(&fetchFlags.Bucket, "bucket", "", "bucket name (default from config)")
	cmd.Flags().StringVar(&fetchFlags.Prefix, "prefix", "", "key prefix to mirror")
	cmd.Flags().StringVarP(&fetchFlags.OutDir, "output", "o", "", "output directory (required)")
	cmd.MarkFlagRequired("output")
	cmd.Flags().BoolVar(&fetchFlags.Overwrite, "overwrite", false, "copy files that already exist locally")
	cmd.Flags().StringVarP(&fetchFlags.Bandwidth, "bandwidth", "b", "", "bandwidth limit (e.g., \"10M\", \"1G\")")

	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyGlobalFlags(cfg)

	if fetchFlags.Bucket != "" {
		cfg.Storage.Bucket = fetchFlags.Bucket
	}
	if fetchFlags.Overwrite {
		cfg.Download.SkipExisting = false
	}
	if fetchFlags.Bandwidth != "" {
		bps, err := parseBandwidth(fetchFlags.Bandwidth)
		if err != nil {
			return err
		}
		cfg.Download.BandwidthLimit = bps
	}

	outDir, err := outputDir(fetchFlags.OutDir)
	if err != nil {
		return err
	}

	logger, err := createLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	src, err := storage.NewS3(cfg.Storage, "")
	if err != nil {
		return fmt.Errorf("failed to create object store backend: %w", err)
	}
	defer src.Close()

	dst, err := storage.NewLocal(outDir)
	if err != nil {
		return fmt.Errorf("failed to create output backend: %w", err)
	}
	defer dst.Close()

	limiter := ratelimit.NewLimiter(cfg.Download.BandwidthLimit)
	transfer := output.NewTransfer(os.Stderr, "fetch", cfg.Output.Progress)
	stats, err := storage.Mirror(ctx, src, dst, fetchFlags.Prefix, storage.MirrorOptions{
		SkipExisting: cfg.Download.SkipExisting,
		Wrap: func(rc io.ReadCloser) io.ReadCloser {
			return ratelimit.NewReadCloser(ctx, transfer.Wrap(rc), limiter)
		},
		OnFile: func(rel string, size int64, skipped bool) {
			fields := logging.Fields{"path": rel, "size": size}
			if skipped {
				logger.Debug(ctx, "File already present, skipping", fields)
				return
			}
			logger.Info(ctx, "File copied", fields)
		},
	})
	transfer.Finish()
	if stats != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Mirrored %s into %s: copied %d files (%s), skipped %d\n",
			src.Root(), outDir, stats.Copied, humanize.Bytes(uint64(stats.Bytes)), stats.Skipped)
	}
	if err != nil {
		return fmt.Errorf("mirror failed: %w", err)
	}
	return nil
}
