// Package task defines the orchestration primitives shared by the vetting
// and discovery pipelines: task specifications, the capability interfaces the
// pipelines consume, and a bounded fan-out scheduler with per-task failure
// isolation.
package task

import (
	"context"
	"time"
)

// ModelTier hints which capability tier a task should run on. What a tier
// maps to is the capability's concern, not the orchestrator's.
type ModelTier string

const (
	// TierLite is for cheap, focused tasks: extraction, parsing, per-candidate checks.
	TierLite ModelTier = "lite"
	// TierStandard is for research tasks.
	TierStandard ModelTier = "standard"
	// TierDeep is for synthesis over large contexts.
	TierDeep ModelTier = "deep"
)

// DefaultTimeout bounds a single capability call when a spec does not set one.
const DefaultTimeout = 2 * time.Minute

// Spec describes one unit of fan-out work. The instruction is opaque to the
// scheduler; only the capability interprets it.
type Spec struct {
	Key         string
	Instruction string
	Tier        ModelTier
	Timeout     time.Duration
}

// Executor runs one instruction against the reasoning/generation capability
// and decodes the structured result into out. Implementations own transient
// retry and schema-mismatch handling; the scheduler never retries.
type Executor interface {
	Execute(ctx context.Context, instruction string, tier ModelTier, out any) error
}

// Searcher runs one query against the web-search capability and returns
// unstructured result text.
type Searcher interface {
	Search(ctx context.Context, query string, tier ModelTier) (string, error)
}
