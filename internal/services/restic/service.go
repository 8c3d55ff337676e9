// Package restic wraps the external restic binary.
package restic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/mholzer/restic-backup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the operations issued against the restic binary.
type Service interface {
	// Probe verifies that the tool is installed, the settings are complete
	// and the repository is reachable and initialized. Failures are
	// returned as *models.RunError.
	Probe(ctx context.Context, cfg models.ResticConfig) error
	// Backup runs one backup invocation, streaming each line of combined
	// output to onLine as it is produced. The returned result carries
	// restic's own exit code, which is authoritative.
	Backup(ctx context.Context, cfg models.ResticConfig, settings models.BackupSettings, onLine models.LineCallback) (*models.BackupResult, error)
}

// CommandExecutor allows mocking exec.Command in tests. A non-zero exit
// status is reported through the code return value with a nil error; the
// error is reserved for failures to run the command or to read its
// output completely.
type CommandExecutor interface {
	LookPath(name string) (string, error)
	ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, int, error)
	ExecuteWithEnvStreaming(ctx context.Context, env []string, onLine models.LineCallback, name string, args ...string) (int, error)
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// LookPath resolves name on the execution path.
func (e *DefaultExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// ExecuteWithEnv runs a command with additional environment variables and
// returns its combined output and exit code.
func (e *DefaultExecutor) ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, exitErr.ExitCode(), nil
		}
		return output, 0, err
	}
	return output, 0, nil
}

// ExecuteWithEnvStreaming runs a command, forwarding each line of combined
// output to onLine as the tool produces it. Stdout and stderr share one
// pipe so the ordering matches the tool's own output order; a single
// synchronous loop drains it.
func (e *DefaultExecutor) ExecuteWithEnvStreaming(ctx context.Context, env []string, onLine models.LineCallback, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("creating output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return 0, err
	}
	// The child holds its own copy of the write end; closing ours makes
	// the read loop terminate when the child exits.
	_ = w.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		scanErr = fmt.Errorf("reading command output: %w", scanErr)
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
	_ = r.Close()

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), scanErr
		}
		return 0, err
	}
	return 0, scanErr
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new restic service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &DefaultExecutor{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new restic service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

func (s *Impl) buildEnv(cfg models.ResticConfig) []string {
	return []string{
		fmt.Sprintf("RESTIC_REPOSITORY=%s", cfg.Repository),
		fmt.Sprintf("RESTIC_PASSWORD_FILE=%s", cfg.PasswordFile),
	}
}

// Probe runs the three precondition checks in order, short-circuiting on
// the first failure.
func (s *Impl) Probe(ctx context.Context, cfg models.ResticConfig) error {
	if _, err := s.executor.LookPath(cfg.Binary); err != nil {
		return &models.RunError{
			Kind:    models.FailureToolMissing,
			Message: fmt.Sprintf("%s is not installed or not on PATH", cfg.Binary),
		}
	}

	if cfg.Repository == "" || cfg.PasswordFile == "" {
		return &models.RunError{
			Kind:    models.FailureSettingsIncomplete,
			Message: "RESTIC_REPOSITORY and RESTIC_PASSWORD_FILE must both be set",
		}
	}

	s.logger.Debug().Str("repository", cfg.Repository).Msg("probing repository")

	// Lightweight read-only probe: reading the repository config proves
	// the repository is reachable and initialized.
	output, code, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), cfg.Binary, "cat", "config")
	if err != nil {
		return &models.RunError{
			Kind:    models.FailureRepositoryUnreachable,
			Message: fmt.Sprintf("repository probe could not run: %v", err),
		}
	}

	switch {
	case code == 0:
		s.logger.Debug().Msg("repository reachable and initialized")
		return nil
	case code == cfg.UninitExitCode:
		if cfg.AutoInit {
			s.logger.Info().Str("repository", cfg.Repository).Msg("repository not initialized, running init")
			return s.initRepository(ctx, cfg)
		}
		return &models.RunError{
			Kind:    models.FailureRepositoryUninitialized,
			Code:    code,
			Message: fmt.Sprintf("repository %s is not initialized", cfg.Repository),
		}
	default:
		return &models.RunError{
			Kind:    models.FailureRepositoryUnreachable,
			Code:    code,
			Message: fmt.Sprintf("repository %s is not reachable: %s", cfg.Repository, describeFailure(code, output)),
		}
	}
}

func (s *Impl) initRepository(ctx context.Context, cfg models.ResticConfig) error {
	output, code, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), cfg.Binary, "init")
	if err != nil || code != 0 {
		return &models.RunError{
			Kind:    models.FailureRepositoryUninitialized,
			Code:    code,
			Message: fmt.Sprintf("repository %s could not be initialized: %s", cfg.Repository, describeFailure(code, output)),
		}
	}
	s.logger.Info().Str("repository", cfg.Repository).Msg("repository initialized")
	return nil
}

// Backup performs one backup invocation.
func (s *Impl) Backup(ctx context.Context, cfg models.ResticConfig, settings models.BackupSettings, onLine models.LineCallback) (*models.BackupResult, error) {
	args := []string{"backup"}
	args = append(args, settings.Sources...)
	if settings.ExcludeFile != "" {
		args = append(args, "--exclude-file="+settings.ExcludeFile)
	}
	if len(settings.Tags) > 0 {
		args = append(args, "--tag", settings.TagString())
	}
	args = append(args, "--skip-if-unchanged")

	s.logger.Info().
		Strs("sources", settings.Sources).
		Str("tags", settings.TagString()).
		Msg("starting backup")

	start := time.Now()
	code, err := s.executor.ExecuteWithEnvStreaming(ctx, s.buildEnv(cfg), onLine, cfg.Binary, args...)
	if err != nil {
		return nil, fmt.Errorf("running %s backup: %w", cfg.Binary, err)
	}

	result := &models.BackupResult{
		ExitCode: code,
		Duration: time.Since(start),
	}

	s.logger.Info().
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("backup finished")

	return result, nil
}

// Known restic exit codes, per the restic scripting documentation. The
// uninitialized-repository code is handled separately because it is
// configurable.
var exitCodeDetail = map[int]string{
	1:   "command failed",
	2:   "go runtime error",
	3:   "source data could not be read completely",
	11:  "failed to lock repository",
	12:  "wrong password",
	130: "interrupted",
}

// describeFailure turns a non-zero restic exit into a human-readable
// detail string, folding in the message from restic's JSON stderr line
// when one is present.
func describeFailure(code int, output []byte) string {
	detail, ok := exitCodeDetail[code]
	if !ok {
		detail = "unexpected error"
	}
	msg := fmt.Sprintf("%s (exit code %d)", detail, code)

	if m := extractJSONMessage(output); m != "" {
		msg += ": " + m
	}
	return msg
}

// extractJSONMessage scans the output for restic's JSON error lines and
// returns the last message found.
func extractJSONMessage(output []byte) string {
	var last string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		var line struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.Message != "" {
			last = line.Message
		}
	}
	return last
}
