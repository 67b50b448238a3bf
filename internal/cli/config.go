package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdejongh/scival/pkg/config"
	"github.com/sdejongh/scival/pkg/models"
)

// NewConfigCommand creates the config command
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View or create the scival configuration file.`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigInitCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			showConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func showConfig(w io.Writer, cfg *config.Config) {
	exts := cfg.Extensions()
	for _, kind := range models.Kinds {
		fmt.Fprintf(w, "%-16s %s\n", "Files "+string(kind)+":", strings.Join(exts[kind], " "))
	}
	fmt.Fprintf(w, "Exclude:         %s\n", strings.Join(cfg.Compare.Exclude, " "))
	fmt.Fprintf(w, "Mask NoData:     %t\n", cfg.Compare.MaskNoData)
	fmt.Fprintf(w, "Render Diffs:    %t\n", cfg.Compare.RenderDiffs)
	fmt.Fprintf(w, "Output Format:   %s\n", cfg.Output.Format)
	fmt.Fprintf(w, "Log Format:      %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "Log Level:       %s\n", cfg.Logging.Level)

	envs := make([]string, 0, len(cfg.ESPA.Environments))
	for name := range cfg.ESPA.Environments {
		envs = append(envs, name)
	}
	sort.Strings(envs)
	for _, name := range envs {
		fmt.Fprintf(w, "ESPA %-10s %s\n", name+":", cfg.ESPA.Environments[name])
	}
	fmt.Fprintf(w, "Max Workers:     %d\n", cfg.Download.MaxWorkers)
	if cfg.Storage.Endpoint != "" {
		fmt.Fprintf(w, "Object Store:    %s/%s\n", cfg.Storage.Endpoint, cfg.Storage.Bucket)
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigFile
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
			}

			cfg := config.Default()
			if err := config.SaveToFile(cfg, path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	return cmd
}
