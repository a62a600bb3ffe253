package runner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/finsight/etl-orchestrator/internal/config"
	"github.com/finsight/etl-orchestrator/internal/planner"
	"github.com/finsight/etl-orchestrator/pkg/types"
)

// fakeExecutor honors the total-function contract and fails the stages
// listed in fail.
type fakeExecutor struct {
	mu       sync.Mutex
	fail     map[types.Stage]bool
	executed []types.Stage
}

func (f *fakeExecutor) Execute(_ context.Context, _ string, stage types.Stage) types.StageResult {
	f.mu.Lock()
	f.executed = append(f.executed, stage)
	f.mu.Unlock()

	if f.fail[stage] {
		return types.StageResult{Stage: stage, Status: types.StageFailed, Attempts: 1, ExitCode: 1, Error: "boom"}
	}
	return types.StageResult{Stage: stage, Status: types.StageSucceeded, Attempts: 1, Records: 100}
}

func newTestRunner(fail map[types.Stage]bool) (*Runner, *fakeExecutor) {
	exec := &fakeExecutor{fail: fail}
	cfg := config.Default()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(exec, cfg, log), exec
}

func fullPlan(t *testing.T) *types.Plan {
	t.Helper()
	plan, err := planner.CreatePlan(types.AllStages())
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	return plan
}

func resultFor(t *testing.T, res *types.ExecutionResult, stage types.Stage) types.StageResult {
	t.Helper()
	for _, sr := range res.Results {
		if sr.Stage == stage {
			return sr
		}
	}
	t.Fatalf("no result for stage %s", stage)
	return types.StageResult{}
}

func TestRun_AllSucceed(t *testing.T) {
	r, _ := newTestRunner(nil)
	plan := fullPlan(t)

	res := r.Run(context.Background(), plan, Options{})

	if !res.Success() {
		t.Error("expected overall success")
	}
	if len(res.Results) != plan.Size() {
		t.Fatalf("expected exactly %d results, got %d", plan.Size(), len(res.Results))
	}
	if res.TotalRecords() != int64(plan.Size())*100 {
		t.Errorf("expected record totals to aggregate, got %d", res.TotalRecords())
	}
	if res.Interrupted {
		t.Error("run should not be marked interrupted")
	}
}

func TestRun_EveryPlannedStageGetsExactlyOneResult(t *testing.T) {
	// Even with a mid-pipeline failure, every planned stage must appear
	// exactly once in the results.
	r, _ := newTestRunner(map[types.Stage]bool{types.StageHoldings: true})
	plan := fullPlan(t)

	res := r.Run(context.Background(), plan, Options{})

	if len(res.Results) != plan.Size() {
		t.Fatalf("expected %d results, got %d", plan.Size(), len(res.Results))
	}
	seen := make(map[types.Stage]int)
	for _, sr := range res.Results {
		seen[sr.Stage]++
	}
	for _, s := range plan.Stages() {
		if seen[s] != 1 {
			t.Errorf("stage %s has %d results, want exactly 1", s, seen[s])
		}
	}
	if res.Success() {
		t.Error("a failed stage must fail the run")
	}
}

func TestRun_DownstreamOfFailureStillRuns(t *testing.T) {
	// holdings fails in batch 2; prices (same batch, independent) and later
	// batches still execute, so the stages report failed or succeeded, and
	// only the sequential remainder of the failed batch is skipped.
	r, exec := newTestRunner(map[types.Stage]bool{types.StageHoldings: true})
	plan := fullPlan(t)

	res := r.Run(context.Background(), plan, Options{})

	if sr := resultFor(t, res, types.StagePrices); sr.Status != types.StageSkipped {
		t.Errorf("prices follows holdings in its batch, expected skipped, got %s", sr.Status)
	}
	if sr := resultFor(t, res, types.StageScores); sr.Status != types.StageFailed && sr.Status != types.StageSucceeded {
		t.Errorf("later batches must still be attempted, scores got %s", sr.Status)
	}
	for _, s := range exec.executed {
		if s == types.StagePrices {
			t.Error("skipped stage must never reach the executor")
		}
	}
}

func TestRun_ForceKeepsBatchGoing(t *testing.T) {
	r, exec := newTestRunner(map[types.Stage]bool{types.StageHoldings: true})
	plan := fullPlan(t)

	res := r.Run(context.Background(), plan, Options{Force: true})

	if sr := resultFor(t, res, types.StagePrices); sr.Status != types.StageSucceeded {
		t.Errorf("force should attempt prices after holdings fails, got %s", sr.Status)
	}
	attempted := false
	for _, s := range exec.executed {
		if s == types.StagePrices {
			attempted = true
		}
	}
	if !attempted {
		t.Error("prices should have reached the executor under force")
	}
}

func TestRun_FailFastSkipsLaterBatches(t *testing.T) {
	r, exec := newTestRunner(map[types.Stage]bool{types.StageUniverse: true})
	r.Cfg.FailFast = true
	plan := fullPlan(t)

	res := r.Run(context.Background(), plan, Options{})

	if len(res.Results) != plan.Size() {
		t.Fatalf("expected %d results, got %d", plan.Size(), len(res.Results))
	}
	for _, stage := range []types.Stage{types.StageHoldings, types.StagePrices, types.StageScores, types.StageDatabase} {
		if sr := resultFor(t, res, stage); sr.Status != types.StageSkipped {
			t.Errorf("fail_fast should skip %s, got %s", stage, sr.Status)
		}
	}
	for _, s := range exec.executed {
		if s == types.StageScores || s == types.StageDatabase {
			t.Errorf("fail_fast leaked %s to the executor", s)
		}
	}
}

func TestRun_ConcurrentBatchCollectsAllSiblings(t *testing.T) {
	// One sibling failing must not suppress the other's result.
	r, exec := newTestRunner(map[types.Stage]bool{types.StageUniverse: true})
	plan := fullPlan(t)

	res := r.Run(context.Background(), plan, Options{Concurrent: true})

	if sr := resultFor(t, res, types.StageUniverse); sr.Status != types.StageFailed {
		t.Errorf("expected universe failed, got %s", sr.Status)
	}
	if sr := resultFor(t, res, types.StagePortfolio); sr.Status != types.StageSucceeded {
		t.Errorf("concurrent sibling must still complete, got %s", sr.Status)
	}
	attempted := false
	for _, s := range exec.executed {
		if s == types.StagePortfolio {
			attempted = true
		}
	}
	if !attempted {
		t.Error("portfolio should have been attempted alongside universe")
	}
}

func TestRun_CancelledContextSkipsEverything(t *testing.T) {
	r, exec := newTestRunner(nil)
	plan := fullPlan(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Run(ctx, plan, Options{})

	if !res.Interrupted {
		t.Error("run must be marked interrupted")
	}
	if len(res.Results) != plan.Size() {
		t.Fatalf("expected %d results, got %d", plan.Size(), len(res.Results))
	}
	for _, sr := range res.Results {
		if sr.Status != types.StageSkipped {
			t.Errorf("stage %s should be skipped, got %s", sr.Stage, sr.Status)
		}
	}
	if len(exec.executed) != 0 {
		t.Errorf("nothing should reach the executor, got %v", exec.executed)
	}
}

func TestRun_EmptyResultsIsNotSuccess(t *testing.T) {
	res := &types.ExecutionResult{}
	if res.Success() {
		t.Error("a run with no results must not report success")
	}
}
