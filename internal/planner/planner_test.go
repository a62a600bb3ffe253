package planner

import (
	"errors"
	"testing"

	"github.com/finsight/etl-orchestrator/internal/registry"
	"github.com/finsight/etl-orchestrator/pkg/types"
)

func stageNames(batches []types.Batch) [][]string {
	out := make([][]string, len(batches))
	for i, b := range batches {
		for _, s := range b {
			out[i] = append(out[i], s.String())
		}
	}
	return out
}

func batchesEqual(got []types.Batch, want [][]types.Stage) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if len(got[i]) != len(want[i]) {
			return false
		}
		for j := range got[i] {
			if got[i][j] != want[i][j] {
				return false
			}
		}
	}
	return true
}

func TestCreatePlan_FullPipeline(t *testing.T) {
	plan, err := CreatePlan(types.AllStages())
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	want := [][]types.Stage{
		{types.StageUniverse, types.StagePortfolio},
		{types.StageHoldings, types.StagePrices},
		{types.StageScores},
		{types.StageDatabase},
	}
	if !batchesEqual(plan.Batches, want) {
		t.Errorf("unexpected batches: %v", stageNames(plan.Batches))
	}
	if plan.RunID == "" {
		t.Error("expected a run ID")
	}
	if plan.Size() != types.StageCount {
		t.Errorf("expected %d planned stages, got %d", types.StageCount, plan.Size())
	}
	if len(plan.ExternalDeps) != 0 {
		t.Errorf("full pipeline should have no external deps, got %v", plan.ExternalDeps)
	}
}

func TestCreatePlan_RequestOrderIrrelevant(t *testing.T) {
	// The same stage set must produce the same batches regardless of the
	// order the operator listed them in.
	reference, err := CreatePlan(types.AllStages())
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	permutations := [][]types.Stage{
		{types.StageDatabase, types.StageScores, types.StagePrices, types.StageHoldings, types.StagePortfolio, types.StageUniverse},
		{types.StageScores, types.StageUniverse, types.StageDatabase, types.StagePortfolio, types.StagePrices, types.StageHoldings},
	}
	for _, perm := range permutations {
		plan, err := CreatePlan(perm)
		if err != nil {
			t.Fatalf("CreatePlan(%v) failed: %v", perm, err)
		}
		want := make([][]types.Stage, len(reference.Batches))
		for i, b := range reference.Batches {
			want[i] = b
		}
		if !batchesEqual(plan.Batches, want) {
			t.Errorf("permutation %v produced batches %v, want %v",
				perm, stageNames(plan.Batches), stageNames(reference.Batches))
		}
	}
}

func TestCreatePlan_SubsetTreatsUnrequestedDepsAsSatisfied(t *testing.T) {
	// scores depends on holdings and prices, neither requested: scores must
	// run in the first batch and both deps must be reported as external.
	plan, err := CreatePlan([]types.Stage{types.StageScores, types.StageDatabase})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	want := [][]types.Stage{
		{types.StageScores},
		{types.StageDatabase},
	}
	if !batchesEqual(plan.Batches, want) {
		t.Errorf("unexpected batches: %v", stageNames(plan.Batches))
	}

	wantExternal := []types.Stage{types.StageHoldings, types.StagePrices}
	if len(plan.ExternalDeps) != len(wantExternal) {
		t.Fatalf("expected external deps %v, got %v", wantExternal, plan.ExternalDeps)
	}
	for i, s := range wantExternal {
		if plan.ExternalDeps[i] != s {
			t.Errorf("external dep %d: expected %s, got %s", i, s, plan.ExternalDeps[i])
		}
	}
}

func TestCreatePlan_SingleStage(t *testing.T) {
	plan, err := CreatePlan([]types.Stage{types.StageHoldings})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if len(plan.Batches) != 1 || len(plan.Batches[0]) != 1 || plan.Batches[0][0] != types.StageHoldings {
		t.Errorf("unexpected batches: %v", stageNames(plan.Batches))
	}
}

func TestCreatePlan_EmptyRequestDefaultsToFull(t *testing.T) {
	plan, err := CreatePlan(nil)
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if plan.Size() != types.StageCount {
		t.Errorf("expected full pipeline, got %d stages", plan.Size())
	}
}

func TestCreatePlan_DuplicatesCollapsed(t *testing.T) {
	plan, err := CreatePlan([]types.Stage{types.StageUniverse, types.StageUniverse, types.StagePrices})
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if plan.Size() != 2 {
		t.Errorf("expected 2 planned stages, got %d", plan.Size())
	}
}

func TestCreatePlan_RejectsInvalidStage(t *testing.T) {
	_, err := CreatePlan([]types.Stage{types.Stage(99)})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestCreatePlan_EstimateSumsSlowestPerBatch(t *testing.T) {
	plan, err := CreatePlan(types.AllStages())
	if err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	var want int64
	for _, b := range plan.Batches {
		var slowest int64
		for _, s := range b {
			if d := registry.EstimatedDuration(s).Nanoseconds(); d > slowest {
				slowest = d
			}
		}
		want += slowest
	}
	if plan.EstimatedDuration.Nanoseconds() != want {
		t.Errorf("estimate %s does not sum the slowest stage of each batch", plan.EstimatedDuration)
	}
}

func TestBuildBatches_CycleIsConfigurationError(t *testing.T) {
	// The shipped registry is statically acyclic, so drive the sort with a
	// synthetic dependency function containing a cycle.
	cyclic := func(s types.Stage) []types.Stage {
		switch s {
		case types.StageUniverse:
			return []types.Stage{types.StagePortfolio}
		case types.StagePortfolio:
			return []types.Stage{types.StageUniverse}
		}
		return nil
	}

	_, _, err := buildBatches([]types.Stage{types.StageUniverse, types.StagePortfolio}, cyclic)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for cycle, got %v", err)
	}
}

func TestResolveRequest(t *testing.T) {
	holdings := types.StageHoldings

	tests := []struct {
		name       string
		full       bool
		stages     []types.Stage
		resumeFrom *types.Stage
		want       []types.Stage
	}{
		{
			name: "full flag selects everything",
			full: true,
			want: types.AllStages(),
		},
		{
			name:   "explicit stages pass through",
			stages: []types.Stage{types.StagePrices},
			want:   []types.Stage{types.StagePrices},
		},
		{
			name:       "resume-from selects the suffix",
			resumeFrom: &holdings,
			want: []types.Stage{
				types.StageHoldings, types.StagePrices,
				types.StageScores, types.StageDatabase,
			},
		},
		{
			name: "empty selection defaults to full",
			want: types.AllStages(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveRequest(tt.full, tt.stages, tt.resumeFrom)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("stage %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}
