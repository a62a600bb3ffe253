// Package registry is the static table of pipeline stages: their
// dependencies, worker script references, duration estimates, and expected
// output artifacts. The table is immutable and validated for acyclicity at
// process startup, before any request is accepted.
package registry

import (
	"fmt"
	"time"

	"github.com/finsight/etl-orchestrator/pkg/types"
)

// entry describes one registered stage. Worker and artifact paths are
// relative to the configured project root.
type entry struct {
	deps      []types.Stage
	worker    string
	estimate  time.Duration
	artifacts []string
}

var table = [types.StageCount]entry{
	types.StageUniverse: {
		worker:    "scripts/parse_universe.py",
		estimate:  3 * time.Minute,
		artifacts: []string{"data/processed/universe.parquet"},
	},
	types.StagePortfolio: {
		worker:    "scripts/parse_portfolio.py",
		estimate:  2 * time.Minute,
		artifacts: []string{"data/processed/portfolio.parquet"},
	},
	types.StageHoldings: {
		deps:      []types.Stage{types.StageUniverse, types.StagePortfolio},
		worker:    "scripts/match_holdings.py",
		estimate:  5 * time.Minute,
		artifacts: []string{"data/processed/holdings_matched.parquet"},
	},
	types.StagePrices: {
		deps:      []types.Stage{types.StageUniverse},
		worker:    "scripts/load_prices.py",
		estimate:  4 * time.Minute,
		artifacts: []string{"data/processed/prices.parquet"},
	},
	types.StageScores: {
		deps:      []types.Stage{types.StageHoldings, types.StagePrices},
		worker:    "scripts/compute_scores.py",
		estimate:  6 * time.Minute,
		artifacts: []string{"data/processed/scores.parquet"},
	},
	types.StageDatabase: {
		deps:      []types.Stage{types.StageScores},
		worker:    "scripts/load_database.py",
		estimate:  2 * time.Minute,
		artifacts: []string{"data/research.db"},
	},
}

func mustEntry(s types.Stage) entry {
	if !s.Valid() {
		// Reaching here means a caller bypassed ParseStage; fail fast
		// before any process is spawned.
		panic(fmt.Sprintf("registry: unregistered stage %d", int(s)))
	}
	return table[s]
}

// Dependencies returns the declared dependency set of a stage. The returned
// slice must not be mutated.
func Dependencies(s types.Stage) []types.Stage {
	return mustEntry(s).deps
}

// WorkerRef returns the stage's worker script path, relative to the project
// root.
func WorkerRef(s types.Stage) string {
	return mustEntry(s).worker
}

// EstimatedDuration returns the rough duration estimate used for plan
// banners.
func EstimatedDuration(s types.Stage) time.Duration {
	return mustEntry(s).estimate
}

// ArtifactCandidates returns the statically known output paths checked for
// existence after the stage completes, relative to the project root.
func ArtifactCandidates(s types.Stage) []string {
	return mustEntry(s).artifacts
}

// CheckAcyclic verifies that the full registry graph contains no dependency
// cycle. It runs once at startup, independent of any requested subset.
func CheckAcyclic() error {
	const (
		white = iota // unvisited
		grey         // on the current path
		black        // fully explored
	)
	color := make([]int, types.StageCount)

	var visit func(s types.Stage, path []types.Stage) error
	visit = func(s types.Stage, path []types.Stage) error {
		switch color[s] {
		case black:
			return nil
		case grey:
			return fmt.Errorf("dependency cycle through %s (path %v)", s, append(path, s))
		}
		color[s] = grey
		for _, d := range Dependencies(s) {
			if !d.Valid() {
				return fmt.Errorf("stage %s depends on unregistered stage %d", s, int(d))
			}
			if err := visit(d, append(path, s)); err != nil {
				return err
			}
		}
		color[s] = black
		return nil
	}

	for _, s := range types.AllStages() {
		if err := visit(s, nil); err != nil {
			return err
		}
	}
	return nil
}
