// Package models contains the data structures used throughout gorestic-backup.
package models

import "time"

// Environment holds the values read once from the process environment at startup.
type Environment struct {
	Repository        string
	Password          string // empty when RESTIC_PASSWORD_FILE or RESTIC_PASSWORD_COMMAND is used
	Hostname          string
	BackupRoot        string
	ConfigPath        string        // empty means "no config file", all defaults apply
	PruneTimeout      time.Duration // 0 means no timeout
	PruneTimeoutToken string        // original RESTIC_PRUNE_TIMEOUT value, for logging
}

// BackupConfig holds the configuration loaded from the YAML file at the start of each run.
type BackupConfig struct {
	PreBackupScripts []PreBackupScript
	Sources          []SourceJob // in SourceOrder
	Backup           BackupSettings
	Keep             KeepConfig
	PruneOptions     []string
	LowPriority      bool
	Telegram         *TelegramConfig // nil if not configured
}

// PreBackupScript is a shell command executed before any dump runs.
type PreBackupScript struct {
	Script      string
	FailOnError bool // default true
	Description string
}

// BackupSettings holds the options that shape the restic backup call.
type BackupSettings struct {
	Root          string
	Host          string
	Tags          []string
	Excludes      []string
	IncludeFrom   []string // when set, Root is not passed to restic
	ExcludeCaches bool
	IgnoreInode   bool
	CacheDir      string
	NoCache       bool
	LowPriority   bool
}

// KeepConfig holds the keep buckets found in the config file, keyed by bucket name.
type KeepConfig map[string]int

// RunOptions controls which optional stages a full pipeline run performs.
type RunOptions struct {
	Prune bool // run prune as the last stage
}
