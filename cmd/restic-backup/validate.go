package main

import (
	"fmt"

	"github.com/mholzer/restic-backup/internal/config"
	"github.com/mholzer/restic-backup/internal/services/restic"
	"github.com/mholzer/restic-backup/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config-name>",
	Short: "Validate a configuration without backing up",
	Long: `Resolve and parse the named configuration, run the precondition
checks (tool present, settings complete, repository reachable and
initialized) and print a summary. No backup is performed and no
notification is sent.`,
	Args: cobra.ExactArgs(1),
	RunE: validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	name := args[0]

	resolver := config.NewResolver(configDir())
	cfg, err := resolver.Resolve(name)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("failed to load configuration")
		return err
	}

	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Repository: %s\n", cfg.Restic.Repository)
	fmt.Printf("  Password file: %s\n", cfg.Restic.PasswordFile)
	fmt.Printf("  Host: %s\n", cfg.Backup.Host)
	fmt.Printf("  Sources: %v\n", cfg.Backup.Sources)
	fmt.Printf("  Tags: %s\n", cfg.Backup.TagString())
	if cfg.Backup.ExcludeFile != "" {
		fmt.Printf("  Exclude file: %s\n", cfg.Backup.ExcludeFile)
	}
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Printf("  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)
	fmt.Printf("  Notifications: %v\n", cfg.Ntfy.Complete())
	fmt.Printf("  Auto-init: %v\n", cfg.Restic.AutoInit)

	if cfg.WOL != nil {
		fmt.Println()
		fmt.Println("WOL Configuration:")
		fmt.Printf("  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
		if cfg.WOL.PollURL != "" {
			fmt.Printf("  Poll URL: %s\n", cfg.WOL.PollURL)
		}
	}

	if cfg.SSHShutdown != nil {
		fmt.Println()
		fmt.Println("SSH Shutdown Configuration:")
		fmt.Printf("  Host: %s\n", cfg.SSHShutdown.Host)
		fmt.Printf("  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Printf("  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Printf("  OS: %s\n", cfg.SSHShutdown.OS)
	}

	if cfg.Ntfy.Complete() {
		fmt.Println()
		fmt.Println("Ntfy Configuration:")
		fmt.Printf("  URL: %s\n", cfg.Ntfy.URL)
		fmt.Printf("  Topic: %s\n", cfg.Ntfy.Topic)
		fmt.Printf("  Token: (configured)\n")
	}

	fmt.Println()
	fmt.Println("Checking repository...")
	resticSvc := restic.New(log.Logger)
	if err := resticSvc.Probe(cmd.Context(), cfg.Restic); err != nil {
		log.Error().Err(err).Msg("repository check failed")
		return err
	}
	fmt.Println("Repository is reachable and initialized.")

	if cfg.SSHShutdown != nil {
		fmt.Println()
		fmt.Println("Testing SSH connection...")
		sshSvc := ssh.New(log.Logger)
		result, err := sshSvc.TestConnection(cmd.Context(), *cfg.SSHShutdown)
		if err == nil && result.Error != nil {
			err = result.Error
		}
		if err != nil {
			log.Error().Err(err).Msg("SSH connection test failed")
			return err
		}
		fmt.Println("SSH connection OK.")
	}

	return nil
}
