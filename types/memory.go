package types

// ConversationSegment is an LLM-generated condensation of a contiguous block
// of messages that has been evicted from the recent window. Segments are
// created once and never mutated; a segment is deleted only when it is folded
// into the global summary.
//
// Invariant: for consecutive segments,
// s[i].EndMessageIndex+1 == s[i+1].StartMessageIndex. The first segment
// starts at 0 or at GlobalSummary.CoversUpToIndex+1.
type ConversationSegment struct {
	ID                string `json:"id" gorm:"primaryKey"`
	ConversationID    string `json:"conversation_id" gorm:"index"`
	SegmentIndex      int    `json:"segment_index"`
	StartMessageIndex int    `json:"start_message_index"`
	EndMessageIndex   int    `json:"end_message_index"`
	Summary           string `json:"summary"`
	SummaryTokens     int    `json:"summary_tokens"`
	CreatedAt         int64  `json:"created_at"`
}

// GlobalSummary is the running narrative produced by folding retired segment
// summaries together. At most one exists per conversation.
//
// Invariant: CoversUpToIndex is monotonically non-decreasing across updates;
// a merge can only extend coverage, never retract it.
type GlobalSummary struct {
	ID              string `json:"id" gorm:"primaryKey"`
	ConversationID  string `json:"conversation_id" gorm:"uniqueIndex"`
	Summary         string `json:"summary"`
	SummaryTokens   int    `json:"summary_tokens"`
	CoversUpToIndex int    `json:"covers_up_to_index"`
	UpdatedAt       int64  `json:"updated_at"`
}

// ToolDigest is a one-line record of a recent tool invocation, kept in the
// run-state checkpoint so the agent can reconstruct working memory across
// restarts.
type ToolDigest struct {
	ToolName string `json:"tool_name"`
	Status   string `json:"status"`
	Summary  string `json:"summary"`
}

// RunState is the durable per-execution checkpoint of task progress. It is
// loaded-or-initialized at the start of every context build, refreshed from
// the current task and tool selection, and persisted back.
type RunState struct {
	Task            string       `json:"task"`
	TaskBrief       string       `json:"task_brief"`
	SelectedTools   []string     `json:"selected_tools"`
	LastToolDigests []ToolDigest `json:"last_tool_digests"`
	LastUpdatedAtMs int64        `json:"last_updated_at_ms"`
}
