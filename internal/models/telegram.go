package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a run notification.
type TelegramMessage struct {
	Success    bool
	Kind       RunKind
	RunID      string
	Host       string
	Repository string
	StartTime  time.Time
	Duration   time.Duration

	// Dump stats.
	Dumps []DumpResult

	// Backup stats (if the backup stage ran).
	SnapshotID      string
	FilesNew        int
	FilesChanged    int
	FilesUnmodified int
	DataAdded       int64
	TotalFiles      int
	TotalBytes      int64

	// Retention stats.
	SnapshotsRemoved int
	SnapshotsKept    int

	// Error info (if failed).
	ErrorMessage string
	FailedStage  Stage
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
