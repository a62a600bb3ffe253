package registry

import (
	"strings"
	"testing"

	"github.com/finsight/etl-orchestrator/pkg/types"
)

func TestRegistry_EveryStageFullyDescribed(t *testing.T) {
	for _, s := range types.AllStages() {
		t.Run(s.String(), func(t *testing.T) {
			if WorkerRef(s) == "" {
				t.Error("missing worker reference")
			}
			if !strings.HasPrefix(WorkerRef(s), "scripts/") {
				t.Errorf("worker %q should live under scripts/", WorkerRef(s))
			}
			if EstimatedDuration(s) <= 0 {
				t.Error("missing duration estimate")
			}
			if len(ArtifactCandidates(s)) == 0 {
				t.Error("missing artifact candidates")
			}
			for _, d := range Dependencies(s) {
				if !d.Valid() {
					t.Errorf("dependency %d is not a registered stage", int(d))
				}
				if d == s {
					t.Error("stage depends on itself")
				}
			}
		})
	}
}

func TestRegistry_DeclaredDependencies(t *testing.T) {
	tests := []struct {
		stage types.Stage
		want  []types.Stage
	}{
		{types.StageUniverse, nil},
		{types.StagePortfolio, nil},
		{types.StageHoldings, []types.Stage{types.StageUniverse, types.StagePortfolio}},
		{types.StagePrices, []types.Stage{types.StageUniverse}},
		{types.StageScores, []types.Stage{types.StageHoldings, types.StagePrices}},
		{types.StageDatabase, []types.Stage{types.StageScores}},
	}

	for _, tt := range tests {
		t.Run(tt.stage.String(), func(t *testing.T) {
			got := Dependencies(tt.stage)
			if len(got) != len(tt.want) {
				t.Fatalf("expected deps %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("dep %d: expected %s, got %s", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestCheckAcyclic(t *testing.T) {
	if err := CheckAcyclic(); err != nil {
		t.Errorf("shipped registry must be acyclic: %v", err)
	}
}

func TestMustEntry_PanicsOnUnregisteredStage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unregistered stage")
		}
	}()
	Dependencies(types.Stage(42))
}
