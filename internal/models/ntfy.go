package models

// Notification is one ntfy push message.
type Notification struct {
	Title   string // configuration base name
	Tags    string // comma-joined backup tags
	Message string // failure message, sent as the request body
}

// NtfyResult holds the result of a notification attempt. A failed attempt
// never fails the run; the error here is only logged.
type NtfyResult struct {
	Sent    bool
	Skipped bool // ntfy settings incomplete, nothing was sent
	Error   error
}
