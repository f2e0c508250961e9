package window

// Config tunes the sliding-window compaction engine.
type Config struct {
	// SegmentSize is the nominal number of messages per segment.
	SegmentSize int `yaml:"segment_size" json:"segment_size"`
	// RecentMessageCount is the number of recent messages kept fully intact
	// before compaction triggers.
	RecentMessageCount int `yaml:"recent_message_count" json:"recent_message_count"`
	// MaxSegmentSummaries is the maximum number of live segment summaries
	// before the oldest half is merged into the global summary.
	MaxSegmentSummaries int `yaml:"max_segment_summaries" json:"max_segment_summaries"`
	// MaxContextTokens is the active model's context window. Refreshed per
	// build from the provider configuration; everything else here is static.
	MaxContextTokens int `yaml:"max_context_tokens" json:"max_context_tokens"`
	// GlobalSummaryRatio is the share of the window reserved for the global
	// summary.
	GlobalSummaryRatio float64 `yaml:"global_summary_ratio" json:"global_summary_ratio"`
	// SegmentSummaryRatio is the share reserved for segment summaries.
	SegmentSummaryRatio float64 `yaml:"segment_summary_ratio" json:"segment_summary_ratio"`
}

// DefaultConfig returns the tuning used in production. Roughly 8% of the
// window goes to the global summary, 15% to segment summaries; the safe
// ratio caps total input at 85%, which leaves ~62% for raw history and the
// system prompt.
func DefaultConfig() Config {
	return Config{
		SegmentSize:         20,
		RecentMessageCount:  20,
		MaxSegmentSummaries: 10,
		MaxContextTokens:    128000,
		GlobalSummaryRatio:  0.08,
		SegmentSummaryRatio: 0.15,
	}
}
