package models

import "time"

// ResticConfig holds restic repository configuration.
type ResticConfig struct {
	Repository string
	Password   string // optional, restic may read RESTIC_PASSWORD_FILE instead
}

// PruneSettings holds the options of a prune call.
type PruneSettings struct {
	Options []string      // passed as -o <opt>
	Timeout time.Duration // 0 means unbounded
}

// BackupResult holds the result of a backup operation.
type BackupResult struct {
	SnapshotID          string
	FilesNew            int
	FilesChanged        int
	FilesUnmodified     int
	DataAdded           int64
	TotalFilesProcessed int
	TotalBytesProcessed int64
	Duration            time.Duration
	Error               error
}

// ForgetResult holds the result of a forget operation.
type ForgetResult struct {
	SnapshotsRemoved int
	SnapshotsKept    int
	Duration         time.Duration
	Error            error
}

// PruneResult holds the result of a prune operation.
type PruneResult struct {
	TimedOut bool
	Duration time.Duration
	Error    error
}

// Snapshot represents a restic snapshot.
type Snapshot struct {
	ID       string
	Time     time.Time
	Hostname string
	Tags     []string
	Paths    []string
}
