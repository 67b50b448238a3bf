package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sdejongh/scival/pkg/config"
	"github.com/sdejongh/scival/pkg/download"
	"github.com/sdejongh/scival/pkg/espa"
	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/output"
	"github.com/sdejongh/scival/pkg/storage"
)

// ESPAFlags holds espa order and download flags
type ESPAFlags struct {
	Username  string
	Env       string
	OutDir    string
	OrderKey  string
	Specs     string
	OrderLog  string
	Parallel  int
	Bandwidth string
}

var espaFlags ESPAFlags

// NewESPACommand creates the espa command group
func NewESPACommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "espa",
		Short: "Order and download products from ESPA",
		Long: `Place on-demand processing orders with ESPA and download the finished
products. Credentials are read from flags, from the environment
(` + envUsername + `, ` + envESPAEnv + `, ` + envPassword + `) or
from a .env file; a missing password is prompted for.`,
	}

	cmd.PersistentFlags().StringVarP(&espaFlags.Username, "username", "u", "", "ESPA username")
	cmd.PersistentFlags().StringVarP(&espaFlags.Env, "espa-env", "e", "", "ESPA environment (e.g. ops, tst, dev)")
	cmd.PersistentFlags().StringVarP(&espaFlags.OutDir, "output", "o", ".", "output directory")

	cmd.AddCommand(newOrderCommand())
	cmd.AddCommand(newDownloadCommand())

	return cmd
}

func newOrderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Order new products for on-demand processing",
		Long: `Submit every order of an order set and append the replies to
order_<timestamp>.txt in the output directory. The file is the input of
"espa download".`,
		RunE: runOrder,
	}

	cmd.Flags().StringVar(&espaFlags.OrderKey, "order", espa.DefaultOrderKey, "order set to submit")
	cmd.Flags().StringVar(&espaFlags.Specs, "specs", "", "order specs YAML file (default from config, else built-in sets)")

	return cmd
}

func newDownloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download already processed products",
		Long: `Resolve the orders listed in an order log into product URLs and download
every completed product into the output directory. Products that are not
complete yet are reported and skipped.`,
		RunE: runDownload,
	}

	cmd.Flags().StringVarP(&espaFlags.OrderLog, "input", "i", "", "order log written by \"espa order\" (required)")
	cmd.MarkFlagRequired("input")
	cmd.Flags().IntVarP(&espaFlags.Parallel, "parallel", "p", 0, "number of parallel downloads (default from config)")
	cmd.Flags().StringVarP(&espaFlags.Bandwidth, "bandwidth", "b", "", "bandwidth limit (e.g., \"10M\", \"1G\")")

	return cmd
}

// espaSession is the state shared by the espa subcommands
type espaSession struct {
	cfg    *config.Config
	logger logging.Logger
	client *espa.Client
	outDir string
}

func newESPASession() (*espaSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyGlobalFlags(cfg)

	outDir, err := outputDir(espaFlags.OutDir)
	if err != nil {
		return nil, err
	}

	creds, err := resolveCredentials(espaFlags.Username, espaFlags.Env, terminalPrompt(os.Stdin, os.Stderr))
	if err != nil {
		return nil, err
	}
	host, ok := cfg.Host(creds.Env)
	if !ok {
		envs := make([]string, 0, len(cfg.ESPA.Environments))
		for name := range cfg.ESPA.Environments {
			envs = append(envs, name)
		}
		sort.Strings(envs)
		return nil, fmt.Errorf("unknown ESPA environment %q (valid: %s)", creds.Env, strings.Join(envs, ", "))
	}

	logger, err := createLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &espaSession{
		cfg:    cfg,
		logger: logger,
		client: espa.NewClient(host, creds.Username, creds.Password, logger),
		outDir: outDir,
	}, nil
}

func runOrder(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	s, err := newESPASession()
	if err != nil {
		return err
	}
	defer s.logger.Close()

	specs, err := loadOrderSpecs(s.cfg)
	if err != nil {
		return err
	}
	orders, err := specs.Select(espaFlags.OrderKey)
	if err != nil {
		return err
	}

	responses, placeErr := s.client.PlaceOrders(ctx, orders)
	if len(responses) > 0 {
		path, err := espa.WriteOrderLog(s.outDir, time.Now(), responses)
		if err != nil {
			return err
		}
		for _, resp := range responses {
			fmt.Fprintf(cmd.OutOrStdout(), "Order %s: %s\n", resp.OrderID, resp.Status)
			for _, msg := range resp.Messages.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  error: %s\n", msg)
			}
			for _, msg := range resp.Messages.Warnings {
				fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s\n", msg)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Order log written to: %s\n", path)
	}

	if placeErr != nil {
		return fmt.Errorf("%d of %d orders failed: %w", len(orders)-len(responses), len(orders), placeErr)
	}
	return nil
}

// loadOrderSpecs reads --specs, then the configured file, then the
// built-in sets
func loadOrderSpecs(cfg *config.Config) (espa.OrderSpecs, error) {
	path := firstNonEmpty(espaFlags.Specs, cfg.ESPA.OrderSpecs)
	if path == "" {
		return espa.DefaultOrderSpecs()
	}
	return espa.LoadOrderSpecs(path)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	s, err := newESPASession()
	if err != nil {
		return err
	}
	defer s.logger.Close()

	if espaFlags.Parallel > 0 {
		s.cfg.Download.MaxWorkers = espaFlags.Parallel
	}
	if espaFlags.Bandwidth != "" {
		bps, err := parseBandwidth(espaFlags.Bandwidth)
		if err != nil {
			return err
		}
		s.cfg.Download.BandwidthLimit = bps
	}

	ids, err := espa.ReadOrderIDs(espaFlags.OrderLog)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no order IDs found in %s", espaFlags.OrderLog)
	}

	items, err := s.client.DownloadURLs(ctx, ids)
	if err != nil {
		return err
	}
	reqs := make([]download.Request, 0, len(items))
	for _, item := range items {
		reqs = append(reqs, download.Request{URL: item.ProductURL, ChecksumURL: item.ChecksumURL})
	}

	transfer := output.NewTransfer(os.Stderr, "download", s.cfg.Output.Progress)
	fetcher := newFetcher(s.cfg, s.logger)
	fetcher.Wrap = transfer.Wrap
	results, err := fetcher.Fetch(ctx, reqs, s.outDir)
	transfer.Finish()
	printDownloadSummary(cmd, results)
	return err
}

// newFetcher creates a downloader from the download and storage sections.
// s3:// URLs are opened with the configured object store credentials.
func newFetcher(cfg *config.Config, logger logging.Logger) *download.Fetcher {
	f := download.NewFetcher(cfg.Download.MaxWorkers, cfg.Download.BandwidthLimit, cfg.Download.SkipExisting, logger)
	f.Objects = func(ctx context.Context, bucket string) (storage.Backend, error) {
		s3cfg := cfg.Storage
		s3cfg.Bucket = bucket
		return storage.NewS3(s3cfg, "")
	}
	return f
}

func printDownloadSummary(cmd *cobra.Command, results []download.Result) {
	var downloaded, skipped, failed int
	var total int64
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "failed: %s: %v\n", r.URL, r.Err)
		case r.Skipped:
			skipped++
		default:
			downloaded++
			total += r.Bytes
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d files (%s), skipped %d, failed %d\n",
		downloaded, humanize.Bytes(uint64(total)), skipped, failed)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
