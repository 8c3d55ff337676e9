// Package runner orchestrates one backup run from configuration loading to
// the terminal outcome.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mholzer/restic-backup/internal/config"
	"github.com/mholzer/restic-backup/internal/logfile"
	"github.com/mholzer/restic-backup/internal/models"
	"github.com/mholzer/restic-backup/internal/services/ntfy"
	"github.com/mholzer/restic-backup/internal/services/restic"
	"github.com/mholzer/restic-backup/internal/services/ssh"
	"github.com/mholzer/restic-backup/internal/services/wol"
	"github.com/rs/zerolog"
)

// Service defines the interface for the backup runner.
type Service interface {
	Run(ctx context.Context, name string) error
}

// Impl implements the runner Service interface. The run is strictly
// linear: resolve config, wake the repository host (optional), run the
// preconditions, back up, shut the host down (optional). The first failure
// logs one error line, fires one notification attempt and ends the run.
type Impl struct {
	resolver    *config.Resolver
	resticSvc   restic.Service
	wolSvc      wol.Service
	sshSvc      ssh.Service
	ntfySvc     ntfy.Service
	sink        *logfile.Sink
	logger      zerolog.Logger
	stdout      io.Writer
	interactive bool
}

// New creates a new runner service.
func New(logger zerolog.Logger, resolver *config.Resolver, sink *logfile.Sink) *Impl {
	return &Impl{
		resolver:    resolver,
		resticSvc:   restic.New(logger),
		wolSvc:      wol.New(logger),
		sshSvc:      ssh.New(logger),
		ntfySvc:     ntfy.New(logger),
		sink:        sink,
		logger:      logger,
		stdout:      os.Stdout,
		interactive: isatty.IsTerminal(os.Stdout.Fd()),
	}
}

// NewWithServices creates a new runner service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	resolver *config.Resolver,
	resticSvc restic.Service,
	wolSvc wol.Service,
	sshSvc ssh.Service,
	ntfySvc ntfy.Service,
	sink *logfile.Sink,
	stdout io.Writer,
	interactive bool,
) *Impl {
	return &Impl{
		resolver:    resolver,
		resticSvc:   resticSvc,
		wolSvc:      wolSvc,
		sshSvc:      sshSvc,
		ntfySvc:     ntfySvc,
		sink:        sink,
		logger:      logger,
		stdout:      stdout,
		interactive: interactive,
	}
}

// Run executes one backup run for the named configuration.
func (s *Impl) Run(ctx context.Context, name string) error {
	start := time.Now()

	cfg, err := s.resolver.Resolve(name)
	if err != nil {
		// No resolved ntfy settings yet, so the notification attempt is a
		// no-op unless the resolver got far enough to produce them.
		title := strings.TrimSuffix(name, filepath.Ext(name))
		return s.fail(ctx, models.NtfyConfig{}, title, "", err)
	}

	s.sink.Info(fmt.Sprintf("starting backup run %s (host %s, repository %s)", cfg.Name, cfg.Backup.Host, cfg.Restic.Repository))
	s.logger.Info().
		Str("config", cfg.Name).
		Str("host", cfg.Backup.Host).
		Str("repository", cfg.Restic.Repository).
		Msg("starting backup run")

	if cfg.WOL != nil {
		if err := s.runWake(ctx, cfg.WOL); err != nil {
			return s.fail(ctx, cfg.Ntfy, cfg.Name, cfg.Backup.TagString(), err)
		}
	}

	if err := s.resticSvc.Probe(ctx, cfg.Restic); err != nil {
		return s.fail(ctx, cfg.Ntfy, cfg.Name, cfg.Backup.TagString(), err)
	}

	if err := s.runBackup(ctx, cfg); err != nil {
		return s.fail(ctx, cfg.Ntfy, cfg.Name, cfg.Backup.TagString(), err)
	}

	if cfg.SSHShutdown != nil {
		if err := s.runShutdown(ctx, cfg.SSHShutdown); err != nil {
			return s.fail(ctx, cfg.Ntfy, cfg.Name, cfg.Backup.TagString(), err)
		}
	}

	s.sink.Info(fmt.Sprintf("backup run %s completed successfully", cfg.Name))
	s.logger.Info().
		Dur("duration", time.Since(start)).
		Msg("backup run completed successfully")

	return nil
}

func (s *Impl) runWake(ctx context.Context, cfg *models.WOLConfig) error {
	result, err := s.wolSvc.Wake(ctx, *cfg)
	if err == nil && result.Error != nil {
		err = result.Error
	}
	if err != nil {
		return &models.RunError{
			Kind:    models.FailureWake,
			Message: fmt.Sprintf("waking repository host failed: %v", err),
		}
	}
	if !result.TargetReady {
		return &models.RunError{
			Kind:    models.FailureWake,
			Message: "repository host did not come up after wake",
		}
	}
	return nil
}

func (s *Impl) runBackup(ctx context.Context, cfg *models.RunConfig) error {
	// One synchronous drain of restic's combined output: every line goes
	// to the log sink and, on interactive runs, to the terminal, in the
	// order restic produced it.
	onLine := func(line string) {
		s.sink.Line(line)
		if s.interactive {
			fmt.Fprintln(s.stdout, line)
		}
	}

	result, err := s.resticSvc.Backup(ctx, cfg.Restic, cfg.Backup, onLine)
	if err != nil {
		return &models.RunError{
			Kind:    models.FailureBackupFailed,
			Message: fmt.Sprintf("backup could not run: %v", err),
		}
	}
	if result.ExitCode != 0 {
		return &models.RunError{
			Kind:    models.FailureBackupFailed,
			Code:    result.ExitCode,
			Message: fmt.Sprintf("restic backup failed with exit code %d", result.ExitCode),
		}
	}
	return nil
}

func (s *Impl) runShutdown(ctx context.Context, cfg *models.SSHShutdownConfig) error {
	result, err := s.sshSvc.Shutdown(ctx, *cfg)
	if err == nil && result.Error != nil && !result.CommandRun {
		err = result.Error
	}
	if err != nil {
		return &models.RunError{
			Kind:    models.FailureShutdown,
			Message: fmt.Sprintf("shutting down repository host failed: %v", err),
		}
	}
	return nil
}

// fail logs the failure, fires the best-effort notification and returns
// the error for the exit-code mapping at the edge.
func (s *Impl) fail(ctx context.Context, ntfyCfg models.NtfyConfig, title, tags string, err error) error {
	runErr := asRunError(err)

	s.sink.Error(runErr.Message)
	s.logger.Error().
		Str("kind", string(runErr.Kind)).
		Msg(runErr.Message)

	result := s.ntfySvc.Send(ctx, ntfyCfg, models.Notification{
		Title:   title,
		Tags:    tags,
		Message: runErr.Message,
	})
	if result.Error != nil {
		// Notification failures never escalate.
		s.logger.Warn().Err(result.Error).Msg("failed to send ntfy notification")
	}

	return runErr
}

// asRunError normalizes any stage error into a RunError. Errors that are
// not already classified count as incomplete settings.
func asRunError(err error) *models.RunError {
	if runErr, ok := err.(*models.RunError); ok { //nolint:errorlint // stages return *RunError directly
		return runErr
	}
	return &models.RunError{
		Kind:    models.FailureSettingsIncomplete,
		Message: err.Error(),
	}
}
