// Package runner drives an execution plan's batches through the stage
// executor and owns the in-progress run accumulator. Every planned stage
// ends up with exactly one StageResult: attempted stages report succeeded
// or failed, never-attempted stages report skipped.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/finsight/etl-orchestrator/internal/artifacts"
	"github.com/finsight/etl-orchestrator/internal/audit"
	"github.com/finsight/etl-orchestrator/internal/config"
	"github.com/finsight/etl-orchestrator/internal/events"
	"github.com/finsight/etl-orchestrator/internal/metrics"
	"github.com/finsight/etl-orchestrator/pkg/types"
)

// StageExecutor abstracts the stage executor so the runner (and its tests)
// depend only on the total-function contract: one call, one result, no
// escaping errors.
type StageExecutor interface {
	Execute(ctx context.Context, runID string, stage types.Stage) types.StageResult
}

// Options are the per-run flags resolved from the CLI.
type Options struct {
	// Concurrent launches whole batches together, bounded by
	// max_parallel_stages.
	Concurrent bool

	// Force keeps attempting the remaining stages of a sequential batch
	// after a failure.
	Force bool
}

// Runner executes plans. Events, Archiver, and Audit are optional side
// channels; a nil value disables the feature.
type Runner struct {
	Exec     StageExecutor
	Cfg      *config.Config
	Log      *slog.Logger
	Events   *events.Publisher
	Archiver *artifacts.Archiver
	Audit    *audit.Logger
}

// New creates a runner with the required collaborators.
func New(exec StageExecutor, cfg *config.Config, log *slog.Logger) *Runner {
	return &Runner{Exec: exec, Cfg: cfg, Log: log}
}

// Run executes the plan and returns the aggregate result. Batch failure
// policy: a failure inside a sequential batch skips the remainder of that
// batch (unless Force); later batches still run so independent branches
// make progress, except under fail_fast which skips everything remaining.
// A concurrent batch never cancels in-flight siblings.
func (r *Runner) Run(ctx context.Context, plan *types.Plan, opts Options) *types.ExecutionResult {
	result := &types.ExecutionResult{
		RunID:     plan.RunID,
		StartedAt: time.Now().UTC(),
	}

	r.auditRun("run_started", plan, "ok")
	r.publishRun(ctx, plan.RunID, "running")

	total := plan.Size()
	completed := 0
	nextCheckpoint := r.Cfg.CheckpointInterval
	aborted := false
	abortReason := ""

	for _, batch := range plan.Batches {
		if ctx.Err() != nil && !aborted {
			aborted = true
			abortReason = "interrupted"
		}
		if aborted {
			for _, s := range batch {
				sr := skipped(s, abortReason)
				r.postStage(ctx, plan.RunID, sr)
				result.Results = append(result.Results, sr)
			}
			continue
		}

		var batchResults []types.StageResult
		if opts.Concurrent && len(batch) > 1 {
			batchResults = r.runConcurrent(ctx, plan.RunID, batch)
		} else {
			batchResults = r.runSequential(ctx, plan.RunID, batch, opts.Force)
		}

		batchFailed := false
		for _, sr := range batchResults {
			r.postStage(ctx, plan.RunID, sr)
			result.Results = append(result.Results, sr)
			if !sr.Success() {
				batchFailed = true
			}
		}

		if batchFailed && r.Cfg.FailFast {
			aborted = true
			abortReason = "fail_fast"
		}

		completed += len(batchResults)
		if completed >= nextCheckpoint && completed < total {
			r.Log.Info("run progress", "run_id", plan.RunID, "completed", completed, "total", total)
			nextCheckpoint += r.Cfg.CheckpointInterval
		}
	}

	result.FinishedAt = time.Now().UTC()
	result.Interrupted = result.Interrupted || ctx.Err() != nil

	status := "succeeded"
	switch {
	case result.Interrupted:
		status = "interrupted"
	case !result.Success():
		status = "failed"
	}
	metrics.RunsTotal.WithLabelValues(status).Inc()
	metrics.RunDuration.WithLabelValues(status).Observe(result.Duration().Seconds())

	r.auditRun("run_completed", map[string]any{
		"run_id":      plan.RunID,
		"status":      status,
		"duration_ms": result.Duration().Milliseconds(),
		"stages":      len(result.Results),
	}, status)
	r.publishRun(context.WithoutCancel(ctx), plan.RunID, status)

	return result
}

// runSequential attempts batch stages one at a time.
func (r *Runner) runSequential(ctx context.Context, runID string, batch types.Batch, force bool) []types.StageResult {
	out := make([]types.StageResult, 0, len(batch))
	skipRemaining := false
	for _, s := range batch {
		if ctx.Err() != nil {
			out = append(out, skipped(s, "interrupted"))
			continue
		}
		if skipRemaining {
			out = append(out, skipped(s, "earlier stage in batch failed"))
			continue
		}
		sr := r.Exec.Execute(ctx, runID, s)
		out = append(out, sr)
		if !sr.Success() && !force {
			skipRemaining = true
		}
	}
	return out
}

// runConcurrent launches every stage of the batch, bounded by the
// max_parallel_stages semaphore, and collects every sibling's result
// before returning. One sibling's failure never cancels another.
func (r *Runner) runConcurrent(ctx context.Context, runID string, batch types.Batch) []types.StageResult {
	out := make([]types.StageResult, len(batch))
	sem := make(chan struct{}, r.Cfg.MaxParallelStages)
	var wg sync.WaitGroup

	for i, s := range batch {
		wg.Add(1)
		go func(i int, s types.Stage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				out[i] = skipped(s, "interrupted")
				return
			}
			out[i] = r.Exec.Execute(ctx, runID, s)
		}(i, s)
	}
	wg.Wait()
	return out
}

// skipped produces the StageResult for a stage that was never attempted.
func skipped(s types.Stage, reason string) types.StageResult {
	return types.StageResult{
		Stage:  s,
		Status: types.StageSkipped,
		Error:  "skipped: " + reason,
	}
}

// postStage handles the side channels common to every result: status
// metric, event mirror, and artifact archival for successes.
func (r *Runner) postStage(ctx context.Context, runID string, sr types.StageResult) {
	metrics.StagesTotal.WithLabelValues(string(sr.Status)).Inc()

	if r.Events != nil {
		r.Events.StageStatus(context.WithoutCancel(ctx), runID, sr.Stage.String(), string(sr.Status), sr.Duration)
	}
	if r.Archiver != nil && sr.Success() && len(sr.Artifacts) > 0 {
		if err := r.Archiver.Archive(context.WithoutCancel(ctx), runID, sr.Stage.String(), sr.Artifacts); err != nil {
			r.Log.Warn("artifact archival incomplete", "run_id", runID, "stage", sr.Stage.String(), "error", err.Error())
		}
	}
}

func (r *Runner) auditRun(op string, payload any, outcome string) {
	if r.Audit == nil {
		return
	}
	if err := r.Audit.Record(op, "", payload, outcome); err != nil {
		r.Log.Error("audit record failed", "operation", op, "error", err.Error())
	}
}

func (r *Runner) publishRun(ctx context.Context, runID, status string) {
	if r.Events != nil {
		r.Events.RunStatus(ctx, runID, status)
	}
}
