// Package builder assembles the full system prompt for one execution from
// named layers, delegates history management to the sliding window, and
// enforces the final token budget.
package builder

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate/contextmem/checkpoint"
	"github.com/aegisgate/contextmem/llm"
	"github.com/aegisgate/contextmem/store"
	"github.com/aegisgate/contextmem/telemetry"
	"github.com/aegisgate/contextmem/textutil"
	"github.com/aegisgate/contextmem/token"
	"github.com/aegisgate/contextmem/types"
	"github.com/aegisgate/contextmem/window"
)

// safeContextRatio caps total prompt input (system + history) at 85% of the
// model window.
const safeContextRatio = 0.85

// HistoryArchiver persists the exported conversation transcript somewhere the
// agent's tools can read it back. Optional: when absent, export is skipped.
type HistoryArchiver interface {
	Archive(ctx context.Context, executionID, content string) error
}

// Deps carries the builder's collaborators. Store, Checkpoints, and
// Summarizer are required; the rest have documented no-op or host defaults.
type Deps struct {
	Store       store.MessageStore
	Checkpoints checkpoint.Store
	Summarizer  llm.CompletionClient

	// Environment defaults to HostResolver{}.
	Environment EnvironmentResolver
	// Todos is optional; nil disables todo rendering.
	Todos TodoProvider
	// Archiver is optional; nil disables history export.
	Archiver HistoryArchiver
	// Sink is optional; nil drops telemetry.
	Sink telemetry.Sink
	// Logger is optional; nil logs nowhere.
	Logger *zap.Logger

	// DefaultPolicy is applied to build requests that carry a zero Policy.
	// The zero value falls back to DefaultPolicy().
	DefaultPolicy Policy

	// WindowConfig tunes the sliding window. MaxContextTokens is overridden
	// per build from the provider resolution.
	WindowConfig window.Config
	// ProviderMaxContext overrides the built-in per-provider defaults.
	ProviderMaxContext map[string]int
}

// Builder builds execution contexts. Safe for concurrent use across
// different execution ids; builds for the same execution id must be
// serialized by the caller.
type Builder struct {
	store       store.MessageStore
	checkpoints checkpoint.Store
	summarizer  llm.CompletionClient
	env         EnvironmentResolver
	todos       TodoProvider
	archiver    HistoryArchiver
	sink        telemetry.Sink
	logger      *zap.Logger

	defaultPolicy      Policy
	windowConfig       window.Config
	providerMaxContext map[string]int
}

// New constructs a Builder from deps.
func New(deps Deps) (*Builder, error) {
	if deps.Store == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "builder requires a message store")
	}
	if deps.Checkpoints == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "builder requires a checkpoint store")
	}
	if deps.Summarizer == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "builder requires a summarizer")
	}
	if deps.Environment == nil {
		deps.Environment = HostResolver{}
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.NopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.DefaultPolicy == (Policy{}) {
		deps.DefaultPolicy = DefaultPolicy()
	}
	if deps.WindowConfig == (window.Config{}) {
		deps.WindowConfig = window.DefaultConfig()
	}
	return &Builder{
		store:              deps.Store,
		checkpoints:        deps.Checkpoints,
		summarizer:         deps.Summarizer,
		env:                deps.Environment,
		todos:              deps.Todos,
		archiver:           deps.Archiver,
		sink:               deps.Sink,
		logger:             deps.Logger.With(zap.String("component", "context_builder")),
		defaultPolicy:      deps.DefaultPolicy,
		windowConfig:       deps.WindowConfig,
		providerMaxContext: deps.ProviderMaxContext,
	}, nil
}

// BuildInput is one build request. ExecutionID doubles as the conversation id
// in the message store.
type BuildInput struct {
	ExecutionID           string
	BaseSystemPrompt      string
	InjectedAbilityPrompt string
	Task                  string
	Provider              string
	SelectedTools         []string
	DocumentAttachments   []DocumentAttachment
	// Policy selects and caps the prompt layers. The zero value falls back
	// to the builder's configured default policy.
	Policy Policy
}

// BuildResult is the assembled prompt plus the budget-compliant history.
type BuildResult struct {
	SystemPrompt    string
	HistoryMessages []types.Message
}

// Build assembles the system prompt layers in fixed order, compacts history
// through the sliding window, and enforces the final token budget. A build
// never fails for "prompt too large": it degrades information (older turns
// first) and always returns a budget-compliant prompt.
func (b *Builder) Build(ctx context.Context, input BuildInput) (*BuildResult, error) {
	policy := input.Policy
	if policy == (Policy{}) {
		policy = b.defaultPolicy
	}
	input.Policy = policy
	systemPrompt := input.BaseSystemPrompt

	if policy.IncludeAbilityInstructions && input.InjectedAbilityPrompt != "" {
		systemPrompt += trimLayer(input.InjectedAbilityPrompt, policy.LayerMaxChars)
	}

	systemPrompt += executionIDMarker(input.ExecutionID)

	if policy.IncludeTaskMainline {
		systemPrompt = injectTaskMainline(systemPrompt, input.Task)
	}

	var todos []TodoItem
	if b.todos != nil && (policy.IncludeRunState || policy.IncludeTodos) {
		items, err := b.todos.Todos(ctx, input.ExecutionID)
		if err != nil {
			b.logger.Warn("todo provider failed, continuing without todos", zap.Error(err))
		} else {
			todos = items
		}
	}

	if policy.IncludeRunState {
		state, err := b.refreshRunState(ctx, input)
		if err != nil {
			return nil, err
		}
		systemPrompt += "\n\n[RunState]\n" + renderRunState(state, todos, policy)
	}

	if policy.IncludeTodos {
		systemPrompt += trimLayer(renderTodosBlock(todos), policy.LayerMaxChars)
	}

	env, err := b.env.Resolve(ctx, input.ExecutionID)
	if err != nil {
		b.logger.Warn("environment resolution failed, skipping environment layers", zap.Error(err))
		env = Environment{}
	}

	if policy.IncludeWorkingDir {
		systemPrompt += workingDirBlock(env)
	}

	if policy.IncludeContextStorage {
		systemPrompt += contextStorageBlock(env)
	}

	if policy.IncludeDocumentAttachments {
		systemPrompt += trimLayer(documentAttachmentsBlock(input.DocumentAttachments), policy.LayerMaxChars)
	}

	maxContext := b.resolveMaxContext(input.Provider)

	windowConfig := b.windowConfig
	windowConfig.MaxContextTokens = maxContext
	manager, err := window.NewManager(ctx, input.ExecutionID, windowConfig, b.store, b.summarizer, b.sink, b.logger)
	if err != nil {
		return nil, err
	}

	// Compression failure is non-fatal: an over-budget history is recovered
	// by the overflow pass below, while an aborted build is not recoverable.
	if _, err := manager.CompressIfNeeded(ctx); err != nil {
		b.logger.Warn("sliding window compression failed, continuing with uncompacted history",
			zap.String("execution_id", input.ExecutionID), zap.Error(err))
	}

	if policy.Scope == ScopeAgent && b.archiver != nil {
		if content, err := manager.ExportHistory(ctx); err != nil {
			b.logger.Warn("history export failed", zap.Error(err))
		} else if err := b.archiver.Archive(ctx, input.ExecutionID, content); err != nil {
			b.logger.Warn("history archival failed", zap.Error(err))
		}
	}

	contextMessages := manager.BuildContext(systemPrompt)
	finalSystemPrompt, history := splitContextMessages(systemPrompt, contextMessages)

	systemTokens := token.Estimate(finalSystemPrompt)
	history = enforceBudget(history, maxContext, systemTokens)

	historyTokens := 0
	for _, msg := range history {
		historyTokens += messageTokens(msg)
	}
	stats := manager.SummaryStats()
	usedTokens := systemTokens + historyTokens
	b.sink.Emit(telemetry.EventContextBuilt, map[string]any{
		"execution_id":           input.ExecutionID,
		"system_tokens":          systemTokens,
		"history_tokens":         historyTokens,
		"global_summary_tokens":  stats.GlobalSummaryTokens,
		"segment_summary_tokens": stats.SegmentSummaryTokens,
		"history_count":          len(history),
		"usage_percent":          float64(usedTokens) / float64(maxContext) * 100,
	})

	return &BuildResult{
		SystemPrompt:    finalSystemPrompt,
		HistoryMessages: history,
	}, nil
}

// refreshRunState loads or initializes the run-state checkpoint, refreshes it
// from the current request, and persists it.
func (b *Builder) refreshRunState(ctx context.Context, input BuildInput) (types.RunState, error) {
	brief := input.Task
	if len(brief) > input.Policy.TaskBriefMaxChars {
		brief = textutil.Condense(brief, input.Policy.TaskBriefMaxChars)
	}
	initial := types.RunState{
		Task:            input.Task,
		TaskBrief:       brief,
		SelectedTools:   input.SelectedTools,
		LastUpdatedAtMs: time.Now().UnixMilli(),
	}
	state, err := b.checkpoints.LoadOrInit(ctx, input.ExecutionID, initial)
	if err != nil {
		return types.RunState{}, err
	}
	state.Task = input.Task
	state.TaskBrief = brief
	state.SelectedTools = input.SelectedTools
	state.LastUpdatedAtMs = time.Now().UnixMilli()
	if err := b.checkpoints.Save(ctx, input.ExecutionID, state); err != nil {
		return types.RunState{}, err
	}
	return state, nil
}

// resolveMaxContext looks up the provider's context length: configured
// override first, then the built-in default table.
func (b *Builder) resolveMaxContext(provider string) int {
	if n, ok := b.providerMaxContext[provider]; ok && n > 0 {
		return n
	}
	return llm.MaxContextLength(provider)
}

// splitContextMessages separates the window's output into the final system
// prompt and the history tail.
func splitContextMessages(fallbackSystemPrompt string, contextMessages []types.Message) (string, []types.Message) {
	if len(contextMessages) > 0 && contextMessages[0].Role == types.RoleSystem {
		return contextMessages[0].Content, contextMessages[1:]
	}
	return fallbackSystemPrompt, contextMessages
}

// messageTokens estimates the full prompt cost of one history message. All
// four components count here, including tool_call_id, unlike the window's
// compaction trigger.
func messageTokens(msg types.Message) int {
	tokens := token.Estimate(msg.Content)
	if msg.ToolCalls != "" {
		tokens += token.Estimate(msg.ToolCalls)
	}
	if msg.ToolCallID != "" {
		tokens += token.Estimate(msg.ToolCallID)
	}
	if msg.ReasoningContent != "" {
		tokens += token.Estimate(msg.ReasoningContent)
	}
	return tokens
}

// enforceBudget evicts history messages from the oldest end until system plus
// history fits within safeContextRatio of the model window. This pass runs on
// every build even when the window already compacted, because layer growth
// (documents, run state) is only accounted for here.
func enforceBudget(history []types.Message, maxContext, systemTokens int) []types.Message {
	safeLimit := int(float64(maxContext) * safeContextRatio)
	available := safeLimit - systemTokens

	total := 0
	for _, msg := range history {
		total += messageTokens(msg)
	}
	for len(history) > 0 && total > available {
		total -= messageTokens(history[0])
		history = history[1:]
	}
	return history
}
