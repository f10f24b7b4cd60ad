package client

import "log"

// Notifier surfaces user-visible errors and warnings. Background (silent)
// failures bypass it entirely.
type Notifier interface {
	Error(message string)
	Warning(message string)
}

// LogNotifier writes notifications to the standard logger. It is the default
// when no UI is attached.
type LogNotifier struct{}

func (LogNotifier) Error(message string) {
	log.Printf("error: %s", message)
}

func (LogNotifier) Warning(message string) {
	log.Printf("warning: %s", message)
}
