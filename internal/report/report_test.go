package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/finsight/etl-orchestrator/pkg/types"
)

func sampleResult() *types.ExecutionResult {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &types.ExecutionResult{
		RunID:      "run-abc",
		StartedAt:  start,
		FinishedAt: start.Add(11 * time.Minute),
		Results: []types.StageResult{
			{Stage: types.StageUniverse, Status: types.StageSucceeded, Duration: 3 * time.Minute, Records: 5000, Artifacts: []string{"data/processed/universe.parquet"}},
			{Stage: types.StagePortfolio, Status: types.StageSucceeded, Duration: 2 * time.Minute, Records: 120},
			{Stage: types.StageHoldings, Status: types.StageFailed, Duration: time.Minute, ExitCode: 1, Error: "match rate below threshold"},
			{Stage: types.StagePrices, Status: types.StageSkipped, Error: "skipped: earlier stage in batch failed"},
		},
	}
}

func TestRenderPlan(t *testing.T) {
	plan := &types.Plan{
		RunID: "run-xyz",
		Batches: []types.Batch{
			{types.StageUniverse, types.StagePortfolio},
			{types.StageHoldings},
		},
		EstimatedDuration: 8 * time.Minute,
		ExternalDeps:      []types.Stage{types.StagePrices},
	}

	var out bytes.Buffer
	RenderPlan(&out, plan)
	got := out.String()

	for _, want := range []string{
		"run-xyz",
		"batch 1: universe, portfolio",
		"batch 2: holdings",
		"assuming satisfied outside this run: prices",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("plan banner missing %q:\n%s", want, got)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	var out bytes.Buffer
	RenderSummary(&out, sampleResult())
	got := out.String()

	for _, want := range []string{
		"run-abc",
		"5000 records",
		"match rate below threshold",
		"Overall: FAILED (2/4 stages",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestSummary_OneLiner(t *testing.T) {
	got := Summary(sampleResult())

	if !strings.Contains(got, "run-abc failed: 2/4 stages") {
		t.Errorf("unexpected summary %q", got)
	}
	if !strings.Contains(got, "failed: holdings") {
		t.Errorf("summary should name the failed stages: %q", got)
	}
}

func TestWriteJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	res := sampleResult()

	path, err := WriteJSON(dir, res)
	if err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if filepath.Base(path) != "report-run-abc.json" {
		t.Errorf("unexpected report name %q", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded types.ExecutionResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.RunID != res.RunID || len(decoded.Results) != len(res.Results) {
		t.Errorf("report does not round-trip the result")
	}
}
