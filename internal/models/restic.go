package models

import "time"

// BackupResult holds the outcome of one restic backup invocation. The exit
// code is restic's own and is authoritative; 0 includes the
// skip-if-unchanged "nothing to do" case.
type BackupResult struct {
	ExitCode int
	Duration time.Duration
}

// LineCallback receives one line of restic's combined output as it is
// produced, in restic's own output order.
type LineCallback func(line string)
