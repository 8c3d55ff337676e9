// Package models contains the data structures used throughout restic-backup.
package models

import "strings"

// RunConfig holds the complete, resolved configuration for one backup run.
// It is built once by the config resolver and never mutated afterwards.
type RunConfig struct {
	// Name is the base name of the configuration file (extension stripped).
	// It doubles as the notification title.
	Name string

	Restic      ResticConfig
	Backup      BackupSettings
	Ntfy        NtfyConfig
	WOL         *WOLConfig         // nil if not configured
	SSHShutdown *SSHShutdownConfig // nil if not configured
}

// ResticConfig holds everything needed to reach the restic repository.
type ResticConfig struct {
	Binary       string // restic executable name or path, default "restic"
	Repository   string
	PasswordFile string
	AutoInit     bool // initialize the repository when the probe reports it missing
	// UninitExitCode is the restic exit code that means "repository does
	// not exist". Restic >= 0.17.0 uses 10; older releases differ, so the
	// mapping is configurable.
	UninitExitCode int
}

// BackupSettings holds backup-specific settings.
type BackupSettings struct {
	Host        string // host label used in log and notification text
	Sources     []string
	ExcludeFile string // absolute path, empty when no exclude file is configured
	Tags        []string
}

// TagString returns the tags joined with commas, the form restic's --tag
// flag and the ntfy Tags header both expect.
func (s BackupSettings) TagString() string {
	return strings.Join(s.Tags, ",")
}

// NtfyConfig holds the ntfy notification endpoint settings.
type NtfyConfig struct {
	URL   string
	Topic string
	Token string
}

// Complete reports whether all settings needed to send a notification are
// present. An incomplete config turns the notifier into a no-op.
func (c NtfyConfig) Complete() bool {
	return c.URL != "" && c.Topic != "" && c.Token != ""
}
