package models

import "time"

// ScriptResult holds the result of one pre-backup script.
type ScriptResult struct {
	ExitCode int
	Output   string
	Duration time.Duration
	Error    error
}
