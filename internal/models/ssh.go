package models

// SSHShutdownConfig holds the optional settings for powering the
// repository host back down after a successful run.
type SSHShutdownConfig struct {
	Host          string
	Port          int
	Username      string
	KeyFile       string
	ShutdownDelay int    // Linux: minutes, Windows: converted to seconds
	OS            string // "linux" (default) or "windows"
}

// SSHResult holds the result of an SSH operation.
type SSHResult struct {
	CommandRun bool
	Output     string
	Error      error
}
