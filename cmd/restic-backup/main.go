// Package main is the entry point for restic-backup.
package main

import (
	"os"

	"github.com/mholzer/restic-backup/internal/models"
)

func main() {
	if err := Execute(); err != nil {
		// 1 for configuration and precondition failures, restic's own
		// exit code for backup failures.
		os.Exit(models.ExitCodeFor(err))
	}
}
