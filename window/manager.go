// Package window implements sliding-window compaction for one conversation:
// a queue of raw recent messages, a bounded queue of segment summaries, and
// at most one global summary.
//
// A Manager lives for the duration of one context build. It reloads all
// state from the message store at construction and writes back synchronously
// on every mutation, so nothing caches stale state across builds. Concurrent
// builds for the same conversation id must be serialized by the caller;
// interleaved segment creation would break the coverage invariant.
package window

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisgate/contextmem/llm"
	"github.com/aegisgate/contextmem/store"
	"github.com/aegisgate/contextmem/telemetry"
	"github.com/aegisgate/contextmem/textutil"
	"github.com/aegisgate/contextmem/token"
	"github.com/aegisgate/contextmem/types"
)

const (
	// safeContextRatio caps total prompt input at 85% of the model window,
	// matching the builder's final overflow pass.
	safeContextRatio = 0.85
	// minHistoryRatio is the floor on the compaction trigger threshold so
	// pathological summary ratios cannot starve raw history entirely.
	minHistoryRatio = 0.3
	// summaryInputMaxChars bounds the assembled summarization prompt.
	summaryInputMaxChars = 12000

	// Per-message trims applied while assembling the summarization prompt.
	toolTrimLines  = 12
	toolTrimChars  = 800
	plainTrimLines = 12
	plainTrimChars = 1200
)

const (
	segmentSummarizerSystemPrompt = "You are a conversation summarizer. Create a concise, structured summary of the events."
	mergeSummarizerSystemPrompt   = "You are a memory consolidation assistant. Merge the conversation logs into a concise global summary."
)

// segmentSummaryInstructions precedes the condensed message body in every
// segment summarization prompt.
const segmentSummaryInstructions = "Summarize the following conversation segment. Use only facts explicitly present " +
	"in the messages; do not infer completion or success unless a tool result or assistant " +
	"message states it. If uncertain, label as Unknown. Focus on task key facts, decisions, " +
	"and tool results. For shell/interactive_shell, keep command, completion status, and only " +
	"short output snippets; omit long logs. Preserve exact user-provided literals (URLs, file " +
	"paths, host:port, identifiers, commands) and include them verbatim in a 'Key User Inputs' " +
	"section."

// SummaryStats reports the token weight of the compacted state.
type SummaryStats struct {
	GlobalSummaryTokens  int
	SegmentSummaryTokens int
	SegmentCount         int
}

// Manager owns the compaction state machine for one conversation.
type Manager struct {
	conversationID string
	config         Config

	store      store.MessageStore
	summarizer llm.CompletionClient
	sink       telemetry.Sink
	logger     *zap.Logger

	globalSummary  *types.GlobalSummary
	segments       []types.ConversationSegment
	recentMessages []types.Message

	totalProcessedMessages int
}

// NewManager loads the compaction state for conversationID from the store.
// sink may be nil (events are dropped); logger may be nil.
func NewManager(
	ctx context.Context,
	conversationID string,
	config Config,
	messageStore store.MessageStore,
	summarizer llm.CompletionClient,
	sink telemetry.Sink,
	logger *zap.Logger,
) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = telemetry.NopSink{}
	}

	segments, globalSummary, err := messageStore.GetSegmentsAndGlobal(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	lastSummarizedIndex := -1
	if globalSummary != nil {
		lastSummarizedIndex = globalSummary.CoversUpToIndex
	}
	if len(segments) > 0 {
		if end := segments[len(segments)-1].EndMessageIndex; end > lastSummarizedIndex {
			lastSummarizedIndex = end
		}
	}

	recent, err := loadRecentMessages(ctx, messageStore, conversationID, lastSummarizedIndex, logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		conversationID:         conversationID,
		config:                 config,
		store:                  messageStore,
		summarizer:             summarizer,
		sink:                   sink,
		logger:                 logger.With(zap.String("component", "sliding_window"), zap.String("conversation_id", conversationID)),
		globalSummary:          globalSummary,
		segments:               segments,
		recentMessages:         recent,
		totalProcessedMessages: lastSummarizedIndex + 1 + len(recent),
	}, nil
}

// loadRecentMessages fetches the conversation log and skips everything that
// is already covered by a segment or the global summary. If the checkpoint
// claims coverage beyond the available messages, it fails open and returns
// the full history rather than an empty one.
func loadRecentMessages(
	ctx context.Context,
	messageStore store.MessageStore,
	conversationID string,
	afterIndex int,
	logger *zap.Logger,
) ([]types.Message, error) {
	all, err := messageStore.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	skipCount := afterIndex + 1
	if skipCount >= len(all) {
		if len(all) > 0 && afterIndex >= 0 {
			logger.Warn("sliding window skip count exceeds message count, returning full history",
				zap.Int("skip_count", skipCount),
				zap.Int("message_count", len(all)),
				zap.String("conversation_id", conversationID))
			return all, nil
		}
		return nil, nil
	}
	return all[skipCount:], nil
}

// AddMessage appends a message to the recent window. In-memory only; durable
// persistence of conversation messages is the executor's responsibility.
func (m *Manager) AddMessage(msg types.Message) {
	m.recentMessages = append(m.recentMessages, msg)
	m.totalProcessedMessages++
}

// RecentMessages returns the current recent window.
func (m *Manager) RecentMessages() []types.Message {
	return m.recentMessages
}

// BuildContext renders the compacted state into a message sequence:
// a single system message carrying the prompt plus the global narrative and
// the chronological segment summaries, followed by the verbatim recent
// messages. The ordering (broadest context first, recent turns last) is a
// hard contract; models weight the tail of the prompt most heavily.
func (m *Manager) BuildContext(systemPrompt string) []types.Message {
	var sb strings.Builder
	sb.WriteString(systemPrompt)

	if m.globalSummary != nil {
		sb.WriteString("\n\n=== LONG-TERM MEMORY ===\n")
		sb.WriteString(m.globalSummary.Summary)
	}

	if len(m.segments) > 0 {
		sb.WriteString("\n\n=== RECENT ACTIVITY SUMMARY ===\n")
		for _, segment := range m.segments {
			sb.WriteString("- ")
			sb.WriteString(segment.Summary)
			sb.WriteString("\n")
		}
	}

	contextMessages := make([]types.Message, 0, 1+len(m.recentMessages))
	contextMessages = append(contextMessages, types.Message{
		Role:    types.RoleSystem,
		Content: sb.String(),
	})
	contextMessages = append(contextMessages, m.recentMessages...)
	return contextMessages
}

// SummaryStats returns the token weight of the global summary and the live
// segment summaries, falling back to a fresh estimate when a record carries
// no persisted count.
func (m *Manager) SummaryStats() SummaryStats {
	stats := SummaryStats{SegmentCount: len(m.segments)}

	if m.globalSummary != nil {
		stats.GlobalSummaryTokens = m.globalSummary.SummaryTokens
		if stats.GlobalSummaryTokens == 0 {
			stats.GlobalSummaryTokens = token.Estimate(m.globalSummary.Summary)
		}
	}

	for _, segment := range m.segments {
		if segment.SummaryTokens > 0 {
			stats.SegmentSummaryTokens += segment.SummaryTokens
		} else {
			stats.SegmentSummaryTokens += token.Estimate(segment.Summary)
		}
	}
	return stats
}

// triggerTokens estimates the compaction-trigger cost of one message:
// content, tool calls, and reasoning. ToolCallID is deliberately omitted
// here — it is cheap — but the builder's final overflow pass does count it.
func triggerTokens(msg types.Message) int {
	tokens := token.Estimate(msg.Content)
	if msg.ToolCalls != "" {
		tokens += token.Estimate(msg.ToolCalls)
	}
	if msg.ReasoningContent != "" {
		tokens += token.Estimate(msg.ReasoningContent)
	}
	return tokens
}

// CompressIfNeeded checks the recent window against the compaction trigger
// and compacts when needed. Returns whether compaction occurred. Summarizer
// and store errors propagate to the caller; nothing fails silently.
func (m *Manager) CompressIfNeeded(ctx context.Context) (bool, error) {
	recentTokens := 0
	for _, msg := range m.recentMessages {
		recentTokens += triggerTokens(msg)
	}

	historyRatio := safeContextRatio - m.config.GlobalSummaryRatio - m.config.SegmentSummaryRatio
	if historyRatio < minHistoryRatio {
		historyRatio = minHistoryRatio
	}
	thresholdTokens := int(float64(m.config.MaxContextTokens) * historyRatio)

	shouldSegment := len(m.recentMessages) > m.config.RecentMessageCount ||
		recentTokens > thresholdTokens
	if !shouldSegment {
		return false, nil
	}

	m.logger.Info("triggering sliding window compression",
		zap.Int("messages", len(m.recentMessages)),
		zap.Int("tokens", recentTokens),
		zap.Int("threshold", thresholdTokens))

	if err := m.createSegmentSummary(ctx); err != nil {
		return false, err
	}

	if len(m.segments) > m.config.MaxSegmentSummaries {
		if err := m.mergeToGlobalSummary(ctx); err != nil {
			return false, err
		}
	}
	return true, nil
}

// adjustSummarizeCount walks the keep/summarize boundary backward while the
// first kept message is a tool result, so a tool result is never kept while
// the call that produced it is summarized. Shrinks the summarized block,
// down to a floor of zero.
func (m *Manager) adjustSummarizeCount(count int) int {
	for count > 0 && count < len(m.recentMessages) &&
		m.recentMessages[count].Role == types.RoleTool {
		count--
	}
	return count
}

// createSegmentSummary evicts the oldest part of the recent window into a
// new ConversationSegment. Keeps the most recent RecentMessageCount/2
// messages for continuity.
func (m *Manager) createSegmentSummary(ctx context.Context) error {
	if len(m.recentMessages) == 0 {
		return nil
	}

	keepCount := m.config.RecentMessageCount / 2
	if keepCount > len(m.recentMessages) {
		keepCount = len(m.recentMessages)
	}
	if len(m.recentMessages) <= keepCount {
		return nil
	}

	summarizeCount := m.adjustSummarizeCount(len(m.recentMessages) - keepCount)
	if summarizeCount == 0 {
		return nil
	}

	toSummarize := make([]types.Message, summarizeCount)
	copy(toSummarize, m.recentMessages[:summarizeCount])

	summaryText, err := m.generateSegmentSummary(ctx, toSummarize)
	if err != nil {
		return types.NewError(types.ErrCompressionFailed, "segment summarization").WithCause(err)
	}

	lastIndex := -1
	if m.globalSummary != nil {
		lastIndex = m.globalSummary.CoversUpToIndex
	}
	segmentIndex := 0
	if n := len(m.segments); n > 0 {
		lastIndex = m.segments[n-1].EndMessageIndex
		segmentIndex = m.segments[n-1].SegmentIndex + 1
	}

	segment := types.ConversationSegment{
		ID:                uuid.NewString(),
		ConversationID:    m.conversationID,
		SegmentIndex:      segmentIndex,
		StartMessageIndex: lastIndex + 1,
		EndMessageIndex:   lastIndex + summarizeCount,
		Summary:           summaryText,
		SummaryTokens:     token.Estimate(summaryText),
		CreatedAt:         time.Now().Unix(),
	}

	if err := m.store.SaveSegment(ctx, &segment); err != nil {
		return err
	}

	m.recentMessages = m.recentMessages[summarizeCount:]
	m.segments = append(m.segments, segment)

	m.logger.Info("created segment summary",
		zap.Int("segment_index", segment.SegmentIndex),
		zap.Int("start", segment.StartMessageIndex),
		zap.Int("end", segment.EndMessageIndex))

	m.sink.Emit(telemetry.EventSegmentSummaryCreated, map[string]any{
		"conversation_id": m.conversationID,
		"segment_index":   segment.SegmentIndex,
		"summary":         segment.Summary,
		"tokens":          segment.SummaryTokens,
	})
	return nil
}

// mergeToGlobalSummary folds the oldest MaxSegmentSummaries/2 segments into
// the global summary. Half the cap, not everything: merging is itself a
// summarizer call, and amortizing it keeps merge frequency proportional to
// segment churn.
func (m *Manager) mergeToGlobalSummary(ctx context.Context) error {
	mergeCount := m.config.MaxSegmentSummaries / 2
	if mergeCount <= 0 {
		mergeCount = 1
	}
	if mergeCount > len(m.segments) {
		mergeCount = len(m.segments)
	}
	if mergeCount == 0 {
		return nil
	}

	toMerge := make([]types.ConversationSegment, mergeCount)
	copy(toMerge, m.segments[:mergeCount])
	newCoversUpTo := toMerge[len(toMerge)-1].EndMessageIndex

	var prompt strings.Builder
	if m.globalSummary != nil {
		prompt.WriteString("Current Global Summary:\n")
		prompt.WriteString(m.globalSummary.Summary)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("New Activity Segments to Merge:\n")
	for _, segment := range toMerge {
		prompt.WriteString("- ")
		prompt.WriteString(segment.Summary)
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n\nTask: Integrate the new activity segments into the global summary. " +
		"Maintain a coherent narrative of the user's goals, key decisions, and progress. " +
		"Remove obsolete details. Preserve exact user-provided literals (URLs, file paths, " +
		"host:port, identifiers, commands) and include them verbatim in a 'Key User Inputs' section.")

	summaryText, err := m.summarizer.Complete(ctx, mergeSummarizerSystemPrompt, prompt.String())
	if err != nil {
		return types.NewError(types.ErrCompressionFailed, "global summary merge").WithCause(err)
	}

	newSummary := types.GlobalSummary{
		ID:              uuid.NewString(),
		ConversationID:  m.conversationID,
		Summary:         summaryText,
		SummaryTokens:   token.Estimate(summaryText),
		CoversUpToIndex: newCoversUpTo,
		UpdatedAt:       time.Now().Unix(),
	}

	if err := m.store.UpsertGlobalSummary(ctx, &newSummary); err != nil {
		return err
	}

	ids := make([]string, 0, len(toMerge))
	for _, segment := range toMerge {
		ids = append(ids, segment.ID)
	}
	if err := m.store.DeleteSegments(ctx, ids); err != nil {
		return err
	}

	m.globalSummary = &newSummary
	m.segments = m.segments[mergeCount:]

	m.logger.Info("merged segments into global summary",
		zap.Int("merged", len(toMerge)),
		zap.Int("covers_up_to", newCoversUpTo))

	m.sink.Emit(telemetry.EventGlobalSummaryUpdated, map[string]any{
		"conversation_id": m.conversationID,
		"summary":         newSummary.Summary,
		"tokens":          newSummary.SummaryTokens,
	})
	return nil
}

// generateSegmentSummary assembles a bounded summarization prompt from the
// evicted messages and asks the summarizer for a segment summary. Tool
// outputs are condensed to structured digests where recognized; everything
// is trimmed so the prompt itself stays small.
func (m *Manager) generateSegmentSummary(ctx context.Context, messages []types.Message) (string, error) {
	var content strings.Builder
	for _, msg := range messages {
		msgContent := msg.Content
		if msg.Role == types.RoleTool {
			if condensed, ok := textutil.CondenseToolOutput(msg.Content); ok {
				msgContent = condensed
			} else {
				msgContent = textutil.TrimText(msg.Content, toolTrimLines, toolTrimChars)
			}
		} else if len(msg.Content) > plainTrimChars {
			msgContent = textutil.TrimText(msg.Content, plainTrimLines, plainTrimChars)
		}

		fmt.Fprintf(&content, "%s: %s\n", msg.Role, msgContent)
		if msg.ToolCalls != "" {
			fmt.Fprintf(&content, "[Tool Calls: %s]\n", msg.ToolCalls)
		}
	}

	body := content.String()
	if len(body) > summaryInputMaxChars {
		body = textutil.Condense(body, summaryInputMaxChars)
	}

	prompt := segmentSummaryInstructions + "\n\n" + body
	return m.summarizer.Complete(ctx, segmentSummarizerSystemPrompt, prompt)
}

// ExportHistory renders the entire stored conversation as human-readable
// text for audit and backup. Unrelated to the budget logic: this always
// reads the full log, not the compacted window.
func (m *Manager) ExportHistory(ctx context.Context) (string, error) {
	all, err := m.store.GetMessages(ctx, m.conversationID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Conversation History: %s ===\n", m.conversationID)
	fmt.Fprintf(&sb, "Total Messages: %d\n", len(all))
	fmt.Fprintf(&sb, "Exported At: %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))

	for idx, msg := range all {
		ts := ""
		if !msg.Timestamp.IsZero() {
			ts = msg.Timestamp.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&sb, "--- Message #%d [%s at %s] ---\n", idx+1, msg.Role, ts)
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// GlobalSummary returns the current global summary, or nil.
func (m *Manager) GlobalSummary() *types.GlobalSummary {
	return m.globalSummary
}

// Segments returns the live segments in chronological order.
func (m *Manager) Segments() []types.ConversationSegment {
	return m.segments
}
