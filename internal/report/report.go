// Package report renders plan banners and execution summaries and
// dispatches run notifications.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/finsight/etl-orchestrator/pkg/types"
)

// RenderPlan writes the human-readable plan banner.
func RenderPlan(w io.Writer, plan *types.Plan) {
	fmt.Fprintf(w, "Execution plan %s (%d stages, ~%s)\n",
		plan.RunID, plan.Size(), formatDuration(plan.EstimatedDuration))
	for i, batch := range plan.Batches {
		names := make([]string, len(batch))
		for j, s := range batch {
			names[j] = s.String()
		}
		fmt.Fprintf(w, "  batch %d: %s\n", i+1, strings.Join(names, ", "))
	}
	if len(plan.ExternalDeps) > 0 {
		names := make([]string, len(plan.ExternalDeps))
		for i, s := range plan.ExternalDeps {
			names[i] = s.String()
		}
		fmt.Fprintf(w, "  assuming satisfied outside this run: %s\n", strings.Join(names, ", "))
	}
}

// RenderSummary writes the human-readable run summary.
func RenderSummary(w io.Writer, res *types.ExecutionResult) {
	fmt.Fprintf(w, "\nRun %s finished in %s\n", res.RunID, formatDuration(res.Duration()))
	for _, sr := range res.Results {
		line := fmt.Sprintf("  %-10s %-9s %8s", sr.Stage, sr.Status, formatDuration(sr.Duration))
		if sr.Records > 0 {
			line += fmt.Sprintf("  %d records", sr.Records)
		}
		if sr.Error != "" {
			line += "  " + sr.Error
		}
		fmt.Fprintln(w, line)
	}
	status := "SUCCESS"
	switch {
	case res.Interrupted:
		status = "INTERRUPTED"
	case !res.Success():
		status = "FAILED"
	}
	fmt.Fprintf(w, "Overall: %s (%d/%d stages, %d records, %d artifacts)\n",
		status, succeededCount(res), len(res.Results), res.TotalRecords(), res.TotalArtifacts())
}

// WriteJSON persists the full result to <dir>/report-<runID>.json and
// returns the path.
func WriteJSON(dir string, res *types.ExecutionResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report dir: %w", err)
	}
	path := filepath.Join(dir, "report-"+res.RunID+".json")
	raw, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Summary builds the one-line notification text for a result.
func Summary(res *types.ExecutionResult) string {
	status := "succeeded"
	switch {
	case res.Interrupted:
		status = "interrupted"
	case !res.Success():
		status = "failed"
	}
	msg := fmt.Sprintf("pipeline run %s %s: %d/%d stages in %s",
		res.RunID, status, succeededCount(res), len(res.Results), formatDuration(res.Duration()))
	if failed := res.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, s := range failed {
			names[i] = s.String()
		}
		msg += " (failed: " + strings.Join(names, ", ") + ")"
	}
	return msg
}

func succeededCount(res *types.ExecutionResult) int {
	n := 0
	for _, sr := range res.Results {
		if sr.Success() {
			n++
		}
	}
	return n
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
