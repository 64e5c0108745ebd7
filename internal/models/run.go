package models

import "time"

// RunKind distinguishes the entry points of the pipeline executor.
type RunKind string

// Run kinds.
const (
	RunBackup RunKind = "backup"
	RunRotate RunKind = "rotate"
	RunPrune  RunKind = "prune"
)

// StageOutcome records one completed stage.
type StageOutcome struct {
	Stage    Stage
	Duration time.Duration
	Err      error
}

// PipelineRun is the ephemeral state of one execution.
type PipelineRun struct {
	ID        string
	Kind      RunKind
	StartedAt time.Time
	Stages    []StageOutcome

	Backup *BackupResult // nil until the backup stage succeeds
	Forget *ForgetResult // nil when retention did not run
	Dumps  []DumpResult
}

// Record appends a stage outcome.
func (r *PipelineRun) Record(stage Stage, start time.Time, err error) {
	r.Stages = append(r.Stages, StageOutcome{Stage: stage, Duration: time.Since(start), Err: err})
}

// FailedStage returns the stage that terminated the run, or "" if none failed.
func (r *PipelineRun) FailedStage() Stage {
	if n := len(r.Stages); n > 0 && r.Stages[n-1].Err != nil {
		return r.Stages[n-1].Stage
	}
	return ""
}

// Err returns the error of the failed stage, or nil.
func (r *PipelineRun) Err() error {
	if n := len(r.Stages); n > 0 && r.Stages[n-1].Err != nil {
		return r.Stages[n-1].Err
	}
	return nil
}
