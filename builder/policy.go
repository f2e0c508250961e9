package builder

// Scope selects how much context machinery a build engages. Chat builds skip
// the agent-only side effects (history archival).
type Scope string

const (
	ScopeAgent Scope = "agent"
	ScopeChat  Scope = "chat"
)

// Policy is the per-build layer configuration. It is a value type supplied by
// the caller and never mutated by the builder.
type Policy struct {
	Scope Scope

	IncludeAbilityInstructions bool
	IncludeTaskMainline        bool
	IncludeRunState            bool
	IncludeTodos               bool
	IncludeWorkingDir          bool
	IncludeContextStorage      bool
	IncludeDocumentAttachments bool

	// LayerMaxChars bounds each large layer individually, before
	// concatenation. Trimming after concatenation would cut whichever layer
	// happens to land at the boundary.
	LayerMaxChars int
	// TaskBriefMaxChars bounds the condensed task brief in the run state.
	TaskBriefMaxChars int
	// RunStateMaxChars bounds the rendered run-state block.
	RunStateMaxChars int
	// RunStateMaxDigests bounds how many recent tool digests are rendered,
	// most recent first.
	RunStateMaxDigests int
}

// DefaultPolicy enables every layer with the production caps.
func DefaultPolicy() Policy {
	return Policy{
		Scope:                      ScopeAgent,
		IncludeAbilityInstructions: true,
		IncludeTaskMainline:        true,
		IncludeRunState:            true,
		IncludeTodos:               true,
		IncludeWorkingDir:          true,
		IncludeContextStorage:      true,
		IncludeDocumentAttachments: true,
		LayerMaxChars:              20000,
		TaskBriefMaxChars:          200,
		RunStateMaxChars:           1500,
		RunStateMaxDigests:         5,
	}
}
