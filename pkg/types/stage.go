// Package types provides shared types for the pipeline orchestrator.
package types

import (
	"encoding/json"
	"fmt"
)

// Stage identifies one unit of the ETL pipeline. The set is closed: stages
// are declared here and described in the registry, so adding one is a
// compile-time edit rather than a runtime dictionary entry.
type Stage int

const (
	StageUniverse Stage = iota
	StagePortfolio
	StageHoldings
	StagePrices
	StageScores
	StageDatabase

	stageCount
)

// StageCount is the number of registered stages.
const StageCount = int(stageCount)

var stageNames = [stageCount]string{
	StageUniverse:  "universe",
	StagePortfolio: "portfolio",
	StageHoldings:  "holdings",
	StagePrices:    "prices",
	StageScores:    "scores",
	StageDatabase:  "database",
}

// String returns the stage's wire name.
func (s Stage) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return stageNames[s]
}

// Valid reports whether s is a registered stage value.
func (s Stage) Valid() bool {
	return s >= 0 && s < stageCount
}

// AllStages returns every registered stage in its fixed total order.
func AllStages() []Stage {
	all := make([]Stage, stageCount)
	for i := range all {
		all[i] = Stage(i)
	}
	return all
}

// MarshalJSON writes the stage as its wire name.
func (s Stage) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unregistered stage %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON reads a stage from its wire name.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseStage(name)
	if !ok {
		return fmt.Errorf("unknown stage %q", name)
	}
	*s = parsed
	return nil
}

// ParseStage resolves a stage name to its value.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return -1, false
}
