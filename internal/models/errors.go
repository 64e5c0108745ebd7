package models

import (
	"errors"
	"fmt"
)

// Error categories. Callers wrap them with fmt.Errorf("...: %w", ...) and test with errors.Is.
var (
	// ErrConfig marks an unreadable or unparseable config file or a missing required environment variable.
	ErrConfig = errors.New("configuration error")
	// ErrValidation marks a malformed cron expression, duration token, filter or retention value.
	ErrValidation = errors.New("validation error")
	// ErrStageFailed marks the failure of one pipeline stage.
	ErrStageFailed = errors.New("stage failed")
)

// Stage names a step of a pipeline run.
type Stage string

// Pipeline stages in execution order. Dump stages are named DumpStage(type).
const (
	StageInit       Stage = "init"
	StageUnlock     Stage = "unlock"
	StageConfig     Stage = "config"
	StageBackupRoot Stage = "backup-root"
	StageScripts    Stage = "pre-backup-scripts"
	StageBackup     Stage = "backup"
	StageForget     Stage = "forget"
	StagePrune      Stage = "prune"
)

// DumpStage returns the stage name of a source dump.
func DumpStage(t SourceType) Stage {
	return Stage("dump:" + string(t))
}

// StageError reports which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the cause.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStageFailed) true for every StageError.
func (e *StageError) Is(target error) bool {
	return target == ErrStageFailed
}
