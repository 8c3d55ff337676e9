package models

import "errors"

// FailureKind classifies why a backup run failed.
type FailureKind string

const (
	FailureConfigNotFound          FailureKind = "config_not_found"
	FailureToolMissing             FailureKind = "tool_missing"
	FailureSettingsIncomplete      FailureKind = "settings_incomplete"
	FailureRepositoryUninitialized FailureKind = "repository_uninitialized"
	FailureRepositoryUnreachable   FailureKind = "repository_unreachable"
	FailureBackupFailed            FailureKind = "backup_failed"
	FailureWake                    FailureKind = "wake_failed"
	FailureShutdown                FailureKind = "shutdown_failed"
)

// RunError is the terminal failure of a backup run. Every stage reports
// failures through this type so that the log line, the notification body
// and the process exit code all agree.
type RunError struct {
	Kind FailureKind
	// Code is the exit code of the failing tool invocation, 0 when the
	// failure did not come from a subprocess.
	Code    int
	Message string
}

func (e *RunError) Error() string {
	return e.Message
}

// ExitCode maps the failure to the wrapper's process exit code:
// the backup tool's own code for backup failures, 1 for everything else.
// A killed subprocess reports a negative code, which is no usable exit
// status; that counts as a generic failure.
func (e *RunError) ExitCode() int {
	if e.Kind == FailureBackupFailed && e.Code > 0 {
		return e.Code
	}
	return 1
}

// ExitCodeFor returns the process exit code for the outcome of a run:
// 0 for nil, the mapped code for a RunError, 1 for any other error.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.ExitCode()
	}
	return 1
}
