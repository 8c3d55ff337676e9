package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mholzer/restic-backup/internal/config"
	"github.com/mholzer/restic-backup/internal/logfile"
	"github.com/mholzer/restic-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <config-name>",
	Short: "Execute one backup run",
	Long: `Execute one backup run for the named configuration:
1. Wake the repository host (if configured)
2. Verify restic, its settings and the repository
3. Run restic backup with --skip-if-unchanged
4. Shut the repository host down (if configured)

The configuration name is the bare file name inside the configuration
directory, without any path.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	// Argument validation passed; from here on failures are operational
	// and usage output would only be noise.
	cmd.SilenceUsage = true

	name := args[0]

	sink, err := logfile.New(logDir())
	if err != nil {
		log.Error().Err(err).Str("dir", logDir()).Msg("failed to open log file")
		return err
	}
	defer func() { _ = sink.Close() }()

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	resolver := config.NewResolver(configDir())
	runnerSvc := runner.New(log.Logger, resolver, sink)
	if err := runnerSvc.Run(ctx, name); err != nil {
		log.Error().Err(err).Msg("backup run failed")
		return err
	}

	return nil
}
