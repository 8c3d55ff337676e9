package models

import "time"

// WOLConfig holds the optional Wake-on-LAN settings used to wake the
// machine hosting the backup repository before the run probes it.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	PollURL       string        // URL polled until the repository host answers
	Timeout       time.Duration // max time to wait for the host
	PollInterval  time.Duration // how often to poll the URL
	StabilizeWait time.Duration // extra wait after the host first responds
}

// WOLResult holds the result of a Wake-on-LAN attempt.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
