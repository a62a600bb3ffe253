package types

import "time"

// Batch is a set of stages that share one position in the execution order.
// No dependency ordering exists inside a batch; a batch's stages may run
// concurrently.
type Batch []Stage

// Plan is the ordered sequence of batches computed for one run. It is
// immutable once produced by the planner.
type Plan struct {
	// RunID uniquely identifies the run this plan was created for.
	RunID string `json:"run_id"`

	// Batches in execution order. Every batch is non-empty and depends only
	// on stages placed in earlier batches (or outside the plan entirely).
	Batches []Batch `json:"batches"`

	// EstimatedDuration is the sum over batches of the slowest stage in
	// each batch.
	EstimatedDuration time.Duration `json:"estimated_duration"`

	// ExternalDeps lists dependencies of planned stages that are not part
	// of the plan and are therefore assumed satisfied by earlier runs.
	ExternalDeps []Stage `json:"external_deps,omitempty"`
}

// Stages returns every planned stage in batch order.
func (p *Plan) Stages() []Stage {
	var out []Stage
	for _, b := range p.Batches {
		out = append(out, b...)
	}
	return out
}

// Size returns the number of planned stages.
func (p *Plan) Size() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b)
	}
	return n
}
