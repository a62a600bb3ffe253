// Package planner resolves an operator request into an ordered sequence of
// dependency-respecting batches.
package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/finsight/etl-orchestrator/internal/registry"
	"github.com/finsight/etl-orchestrator/pkg/types"
)

// ConfigurationError is a fatal planning-time failure: invalid request or a
// dependency cycle within the requested subgraph. It aborts the run before
// any stage executes.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// ResolveRequest turns the CLI selection into the requested stage set.
// Exactly one of full, stages, or resumeFrom is normally set; an empty
// resolution defaults to the full registry. resumeFrom selects the suffix
// of the fixed total stage ordering starting at the named stage.
func ResolveRequest(full bool, stages []types.Stage, resumeFrom *types.Stage) []types.Stage {
	switch {
	case full:
		return types.AllStages()
	case resumeFrom != nil:
		all := types.AllStages()
		for i, s := range all {
			if s == *resumeFrom {
				return all[i:]
			}
		}
		return nil
	case len(stages) > 0:
		return stages
	default:
		return types.AllStages()
	}
}

// CreatePlan computes the execution plan for the requested stages using a
// layered topological sort restricted to the requested subgraph. A
// dependency that was never requested is treated as already satisfied; it
// is reported in Plan.ExternalDeps but never auto-added.
func CreatePlan(requested []types.Stage) (*types.Plan, error) {
	if len(requested) == 0 {
		requested = types.AllStages()
	}
	for _, s := range requested {
		if !s.Valid() {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("unregistered stage %d requested", int(s))}
		}
	}

	batches, external, err := buildBatches(dedupe(requested), registry.Dependencies)
	if err != nil {
		return nil, err
	}

	var estimate time.Duration
	for _, b := range batches {
		var slowest time.Duration
		for _, s := range b {
			if d := registry.EstimatedDuration(s); d > slowest {
				slowest = d
			}
		}
		estimate += slowest
	}

	return &types.Plan{
		RunID:             uuid.NewString(),
		Batches:           batches,
		EstimatedDuration: estimate,
		ExternalDeps:      external,
	}, nil
}

// buildBatches runs the layered sort over the requested subgraph. deps is
// injectable so the cycle path is testable against arbitrary graphs.
func buildBatches(requested []types.Stage, deps func(types.Stage) []types.Stage) ([]types.Batch, []types.Stage, error) {
	inRequest := make(map[types.Stage]bool, len(requested))
	for _, s := range requested {
		inRequest[s] = true
	}

	externalSet := make(map[types.Stage]bool)
	scheduled := make(map[types.Stage]bool)
	remaining := append([]types.Stage(nil), requested...)

	var batches []types.Batch
	for len(remaining) > 0 {
		var ready, next []types.Stage
		for _, s := range remaining {
			ok := true
			for _, d := range deps(s) {
				if !inRequest[d] {
					externalSet[d] = true
					continue
				}
				if !scheduled[d] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, s)
			} else {
				next = append(next, s)
			}
		}

		if len(ready) == 0 {
			return nil, nil, &ConfigurationError{
				Reason: fmt.Sprintf("dependency cycle within requested stages %v", next),
			}
		}

		// Batch membership is set-determined; order within a batch is fixed
		// to the registry order so plans are deterministic.
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		batches = append(batches, types.Batch(ready))
		for _, s := range ready {
			scheduled[s] = true
		}
		remaining = next
	}

	external := make([]types.Stage, 0, len(externalSet))
	for s := range externalSet {
		external = append(external, s)
	}
	sort.Slice(external, func(i, j int) bool { return external[i] < external[j] })

	return batches, external, nil
}

func dedupe(stages []types.Stage) []types.Stage {
	seen := make(map[types.Stage]bool, len(stages))
	out := stages[:0:0]
	for _, s := range stages {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
