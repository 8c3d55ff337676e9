// Package config resolves and parses backup configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mholzer/restic-backup/internal/models"
	"github.com/spf13/viper"
)

// Resolver locates configuration files inside a fixed directory and parses
// them as flat KEY=VALUE environment files. The file is only ever parsed,
// never executed.
type Resolver struct {
	dir string
}

// NewResolver creates a resolver bound to the given configuration directory.
func NewResolver(dir string) *Resolver {
	return &Resolver{dir: dir}
}

// Dir returns the configuration directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// Resolve loads the configuration file with the given base name. The name
// must not contain a path separator; the file must exist inside the
// resolver's directory.
func (r *Resolver) Resolve(name string) (*models.RunConfig, error) {
	if strings.ContainsAny(name, `/\`) {
		return nil, &models.RunError{
			Kind:    models.FailureConfigNotFound,
			Message: fmt.Sprintf("configuration name must not contain a path separator: %s", name),
		}
	}

	path := filepath.Join(r.dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &models.RunError{
			Kind:    models.FailureConfigNotFound,
			Message: fmt.Sprintf("configuration file not found: %s", path),
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, &models.RunError{
			Kind:    models.FailureConfigNotFound,
			Message: fmt.Sprintf("reading configuration file %s: %v", path, err),
		}
	}

	return r.parse(name, v)
}

func (r *Resolver) parse(name string, v *viper.Viper) (*models.RunConfig, error) {
	v.SetDefault("RESTIC_BINARY", "restic")
	v.SetDefault("RESTIC_UNINIT_EXIT_CODE", 10)

	expand := expander(v)

	cfg := &models.RunConfig{
		Name: strings.TrimSuffix(name, filepath.Ext(name)),
	}

	cfg.Restic = models.ResticConfig{
		Binary:         expand(v.GetString("RESTIC_BINARY")),
		Repository:     expand(v.GetString("RESTIC_REPOSITORY")),
		PasswordFile:   expand(v.GetString("RESTIC_PASSWORD_FILE")),
		AutoInit:       v.GetBool("RESTIC_AUTO_INIT"),
		UninitExitCode: v.GetInt("RESTIC_UNINIT_EXIT_CODE"),
	}

	cfg.Backup = models.BackupSettings{
		Host:    expand(v.GetString("RESTIC_HOST")),
		Sources: splitList(expand(v.GetString("RESTIC_BACKUP_SOURCE"))),
		Tags:    splitList(v.GetString("RESTIC_BACKUP_TAG")),
	}

	// Default the host label to the system hostname.
	if cfg.Backup.Host == "" {
		hostname, err := os.Hostname()
		if err != nil {
			cfg.Backup.Host = "unknown"
		} else {
			cfg.Backup.Host = hostname
		}
	}

	// The exclude file lives next to the configuration files and is
	// referenced by bare name.
	if excludeName := v.GetString("RESTIC_BACKUP_EXCLUDE_NAME"); excludeName != "" {
		cfg.Backup.ExcludeFile = filepath.Join(r.dir, excludeName)
	}

	cfg.Ntfy = models.NtfyConfig{
		URL:   expand(v.GetString("NTFY_URL")),
		Topic: expand(v.GetString("NTFY_TOPIC")),
		Token: expand(v.GetString("NTFY_TOKEN")),
	}

	// Optional Wake-on-LAN stage, keyed off the MAC address.
	if mac := v.GetString("WOL_MAC_ADDRESS"); mac != "" {
		cfg.WOL = &models.WOLConfig{
			MACAddress:    mac,
			BroadcastIP:   v.GetString("WOL_BROADCAST_IP"),
			PollURL:       expand(v.GetString("WOL_POLL_URL")),
			Timeout:       v.GetDuration("WOL_TIMEOUT"),
			PollInterval:  v.GetDuration("WOL_POLL_INTERVAL"),
			StabilizeWait: v.GetDuration("WOL_STABILIZE_WAIT"),
		}

		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = "255.255.255.255"
		}
		if cfg.WOL.Timeout == 0 {
			cfg.WOL.Timeout = 5 * time.Minute
		}
		if cfg.WOL.PollInterval == 0 {
			cfg.WOL.PollInterval = 10 * time.Second
		}
		if cfg.WOL.StabilizeWait == 0 {
			cfg.WOL.StabilizeWait = 10 * time.Second
		}
	}

	// Optional SSH shutdown stage, keyed off the host.
	if host := v.GetString("SSH_SHUTDOWN_HOST"); host != "" {
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Host:          host,
			Port:          v.GetInt("SSH_SHUTDOWN_PORT"),
			Username:      v.GetString("SSH_SHUTDOWN_USER"),
			KeyFile:       expand(v.GetString("SSH_SHUTDOWN_KEY_FILE")),
			ShutdownDelay: v.GetInt("SSH_SHUTDOWN_DELAY"),
			OS:            v.GetString("SSH_SHUTDOWN_OS"),
		}

		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.KeyFile == "" {
			return nil, fmt.Errorf("SSH_SHUTDOWN_KEY_FILE is required when SSH_SHUTDOWN_HOST is set")
		}
		if cfg.SSHShutdown.ShutdownDelay == 0 {
			cfg.SSHShutdown.ShutdownDelay = 1
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, fmt.Errorf("SSH_SHUTDOWN_OS must be one of: linux, windows")
		}
	}

	return cfg, nil
}

// expander returns a function expanding ${VAR} and $VAR references.
// Keys defined in the same file win over the process environment, so a
// value like NTFY_TOPIC=backup-${RESTIC_HOST} resolves against the file.
func expander(v *viper.Viper) func(string) string {
	lookup := func(key string) string {
		if v.IsSet(key) {
			return v.GetString(key)
		}
		return os.Getenv(key)
	}
	return func(s string) string {
		return os.Expand(s, lookup)
	}
}

// splitList splits a comma-separated value, trimming whitespace and
// dropping empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
