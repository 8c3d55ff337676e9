// Package logfile implements the append-only, month-rotated run log.
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// FileName returns the log file name for the month containing t. The name
// depends only on the calendar month, never on the configuration in use.
func FileName(t time.Time) string {
	return fmt.Sprintf("restic-backup-%s.log", t.Format("200601"))
}

// Sink is an append-only, line-oriented log destination. One Sink is opened
// per run; the file is never rotated mid-run even across a month boundary.
type Sink struct {
	path string
	f    *os.File
	now  func() time.Time
}

// New opens (creating directory and file as needed) the current month's
// log file inside dir.
func New(dir string) (*Sink, error) {
	return NewWithClock(dir, time.Now)
}

// NewWithClock is like New but with an injectable clock, for tests.
func NewWithClock(dir string, now func() time.Time) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	path := filepath.Join(dir, FileName(now()))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	return &Sink{path: path, f: f, now: now}, nil
}

// Path returns the log file path.
func (s *Sink) Path() string {
	return s.path
}

// Info appends one timestamped line.
func (s *Sink) Info(msg string) {
	s.write(msg)
}

// Error appends one timestamped line carrying the [ERROR] marker.
func (s *Sink) Error(msg string) {
	s.write("[ERROR] " + msg)
}

// Line appends one line of subprocess output. Same format as Info; kept
// separate so callers can see which writes are forwarded tool output.
func (s *Sink) Line(line string) {
	s.write(line)
}

func (s *Sink) write(msg string) {
	fmt.Fprintf(s.f, "[%s] %s\n", s.now().Format(timeLayout), msg)
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	return s.f.Close()
}
