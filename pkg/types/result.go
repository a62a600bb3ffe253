package types

import "time"

// StageStatus is the terminal state of an attempted stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult records the outcome of one stage within a run. Exactly one
// StageResult exists per planned stage: attempted stages get succeeded or
// failed, never-attempted stages get skipped.
type StageResult struct {
	Stage     Stage         `json:"stage"`
	Status    StageStatus   `json:"status"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	ExitCode  int           `json:"exit_code"`
	Records   int64         `json:"records,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Success reports whether the stage completed successfully.
func (r StageResult) Success() bool {
	return r.Status == StageSucceeded
}

// ExecutionResult aggregates every StageResult of a run.
type ExecutionResult struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Results     []StageResult `json:"results"`
	Interrupted bool          `json:"interrupted,omitempty"`
}

// Success is the logical AND over all stage results.
func (r *ExecutionResult) Success() bool {
	for _, sr := range r.Results {
		if !sr.Success() {
			return false
		}
	}
	return len(r.Results) > 0
}

// Duration is the wall-clock duration of the run.
func (r *ExecutionResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// TotalRecords sums the best-effort records-processed counts.
func (r *ExecutionResult) TotalRecords() int64 {
	var n int64
	for _, sr := range r.Results {
		n += sr.Records
	}
	return n
}

// TotalArtifacts counts detected output artifacts across all stages.
func (r *ExecutionResult) TotalArtifacts() int {
	n := 0
	for _, sr := range r.Results {
		n += len(sr.Artifacts)
	}
	return n
}

// Failed returns the stages that did not succeed, in result order.
func (r *ExecutionResult) Failed() []Stage {
	var out []Stage
	for _, sr := range r.Results {
		if !sr.Success() {
			out = append(out, sr.Stage)
		}
	}
	return out
}
