package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/sdejongh/scival/internal/platform"
	"github.com/sdejongh/scival/pkg/config"
	"github.com/sdejongh/scival/pkg/logging"
)

// validateTreeDirs checks the master and test roots of a comparison
func validateTreeDirs(master, test string) (string, string, error) {
	masterAbs, err := existingDir("master", master)
	if err != nil {
		return "", "", err
	}
	testAbs, err := existingDir("test", test)
	if err != nil {
		return "", "", err
	}

	if masterAbs == testAbs {
		return "", "", fmt.Errorf("master and test cannot be the same directory: %s", masterAbs)
	}
	if strings.HasPrefix(testAbs, masterAbs+string(filepath.Separator)) {
		return "", "", fmt.Errorf("test directory cannot be inside master directory")
	}
	if strings.HasPrefix(masterAbs, testAbs+string(filepath.Separator)) {
		return "", "", fmt.Errorf("master directory cannot be inside test directory")
	}

	return masterAbs, testAbs, nil
}

// existingDir validates and resolves a directory argument
func existingDir(label, path string) (string, error) {
	if err := platform.ValidatePath(path); err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}

	abs, err := filepath.Abs(platform.NormalizePath(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s path: %w", label, err)
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%s path does not exist: %s", label, path)
	} else if err != nil {
		return "", fmt.Errorf("failed to access %s path: %w", label, err)
	} else if !info.IsDir() {
		return "", fmt.Errorf("%s path is not a directory: %s", label, path)
	}

	return abs, nil
}

// outputDir validates and creates a directory the command writes into
func outputDir(path string) (string, error) {
	if err := platform.ValidatePath(path); err != nil {
		return "", fmt.Errorf("output: %w", err)
	}
	dir := platform.NormalizePath(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	if globalFlags.ConfigFile != "" {
		return config.LoadFromFile(globalFlags.ConfigFile)
	}
	return config.LoadDefault()
}

// applyGlobalFlags overrides config values with the persistent flags
func applyGlobalFlags(cfg *config.Config) {
	if globalFlags.LogFile != "" {
		cfg.Logging.File = globalFlags.LogFile
	}
	if globalFlags.LogFormat != "" {
		cfg.Logging.Format = globalFlags.LogFormat
	}

	// Disable progress in quiet mode
	if globalFlags.Quiet {
		cfg.Output.Progress = false
		cfg.Output.Quiet = true
	}
}

// createLogger builds the console sink and, when a log file is configured,
// a rotating file sink next to it
func createLogger(cfg *config.Config) (logging.Logger, error) {
	level := logging.LevelFromVerbosity(globalFlags.Verbose)
	if cfg.Output.Quiet {
		level = logging.ErrorLevel
	}
	console := logging.NewConsoleLogger(level, term.IsTerminal(int(os.Stderr.Fd())))

	if cfg.Logging.File == "" {
		return console, nil
	}

	var format logging.Format
	switch cfg.Logging.Format {
	case "json":
		format = logging.FormatJSON
	default:
		format = logging.FormatText
	}

	file, err := logging.NewFileLogger(logging.FileLoggerConfig{
		Path:       cfg.Logging.File,
		Format:     format,
		Level:      logging.ParseLevel(cfg.Logging.Level),
		MaxSize:    10 * 1024 * 1024, // 10 MB
		MaxBackups: 5,
	})
	if err != nil {
		return nil, err
	}

	return logging.NewTee(console, file), nil
}

// parseBandwidth parses limits such as "10M", "512KiB" or "0" into bytes
// per second
func parseBandwidth(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid bandwidth %q: %w", s, err)
	}
	return int64(n), nil
}
