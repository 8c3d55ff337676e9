package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configDirFlag string
	logDirFlag    string
	verbose       bool
	quiet         bool
	jsonOutput    bool
)

var rootCmd = &cobra.Command{
	Use:   "restic-backup",
	Short: "A configuration-driven wrapper around restic",
	Long: `restic-backup runs one restic backup per invocation, driven by a
KEY=VALUE environment file:
  1. Resolve the named configuration file
  2. Verify restic, its settings and the repository
  3. Run the backup (skipped by restic itself when nothing changed)
  4. Append the outcome to a monthly log file
  5. Push an ntfy notification on failure

Use as a one-shot command with an external scheduler (cron, systemd timer, etc.)`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "configuration directory (default <install-root>/env)")
	rootCmd.PersistentFlags().StringVar(&logDirFlag, "log-dir", "", "log directory (default <install-root>/logs)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func setupLogging() {
	// Set output format
	if jsonOutput {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// installRoot is the directory of the resolved executable; symlinked
// installs resolve to the real location.
func installRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func configDir() string {
	if configDirFlag != "" {
		return configDirFlag
	}
	return filepath.Join(installRoot(), "env")
}

func logDir() string {
	if logDirFlag != "" {
		return logDirFlag
	}
	return filepath.Join(installRoot(), "logs")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
