package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	Verbose    int
	Quiet      bool
	LogFile    string
	LogFormat  string
}

var globalFlags GlobalFlags

// AddGlobalFlags adds global flags to the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&globalFlags.ConfigFile,
		"config",
		"",
		"config file (default is $SCIVAL_CONFIG or $HOME/.config/scival/config.yaml)",
	)
	cmd.PersistentFlags().CountVarP(
		&globalFlags.Verbose,
		"verbose",
		"v",
		"increase console log verbosity (-v info, -vv debug)",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Quiet,
		"quiet",
		"q",
		false,
		"suppress non-error output",
	)
	cmd.PersistentFlags().StringVar(
		&globalFlags.LogFile,
		"log-file",
		"",
		"also write logs to file",
	)
	cmd.PersistentFlags().StringVar(
		&globalFlags.LogFormat,
		"log-format",
		"",
		"log file format: text, json (default from config)",
	)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() *GlobalFlags {
	return &globalFlags
}
