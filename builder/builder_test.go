package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisgate/contextmem/checkpoint"
	"github.com/aegisgate/contextmem/store"
	"github.com/aegisgate/contextmem/token"
	"github.com/aegisgate/contextmem/types"
)

// --- mocks ---

type mockSummarizer struct {
	result string
	err    error
}

func (m *mockSummarizer) Complete(_ context.Context, _, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.result != "" {
		return m.result, nil
	}
	return "summary of events", nil
}

type mockTodos struct {
	items []TodoItem
	err   error
}

func (m *mockTodos) Todos(_ context.Context, _ string) ([]TodoItem, error) {
	return m.items, m.err
}

type mockArchiver struct {
	calls   int
	content string
}

func (m *mockArchiver) Archive(_ context.Context, _, content string) error {
	m.calls++
	m.content = content
	return nil
}

type recordingSink struct {
	events   []string
	payloads []map[string]any
}

func (s *recordingSink) Emit(event string, payload map[string]any) {
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
}

// --- helpers ---

func newTestBuilder(t *testing.T, mutate func(*Deps)) (*Builder, store.MessageStore) {
	t.Helper()
	s := store.NewMemoryStore()
	deps := Deps{
		Store:       s,
		Checkpoints: checkpoint.NewMemoryStore(),
		Summarizer:  &mockSummarizer{},
		Environment: StaticResolver{Env: Environment{
			Kind: "sandbox", OS: "linux",
			WorkingDir: "/workspace", ContextDir: "/ctx",
		}},
	}
	if mutate != nil {
		mutate(&deps)
	}
	b, err := New(deps)
	require.NoError(t, err)
	return b, s
}

func basicInput() BuildInput {
	return BuildInput{
		ExecutionID:      "exec-1",
		BaseSystemPrompt: "You are a security testing assistant.",
		Task:             "enumerate the admin panel on http://10.0.0.5:8080",
		Provider:         "openai",
		SelectedTools:    []string{"shell", "http_request"},
		Policy:           DefaultPolicy(),
	}
}

// contentOfTokens produces ASCII text whose estimate is roughly n tokens.
func contentOfTokens(n int) string {
	// estimate(ascii) = ceil(len * 0.4 * 1.2) = ceil(len * 0.48)
	return strings.Repeat("x", n*100/48)
}

// --- construction ---

func TestNew_RequiresCoreCollaborators(t *testing.T) {
	t.Parallel()
	_, err := New(Deps{Checkpoints: checkpoint.NewMemoryStore(), Summarizer: &mockSummarizer{}})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))

	_, err = New(Deps{Store: store.NewMemoryStore(), Summarizer: &mockSummarizer{}})
	require.Error(t, err)

	_, err = New(Deps{Store: store.NewMemoryStore(), Checkpoints: checkpoint.NewMemoryStore()})
	require.Error(t, err)
}

// --- layer assembly ---

func TestBuild_LayerOrderAndMarkers(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.Todos = &mockTodos{items: []TodoItem{{Content: "scan ports", Status: "pending"}}}
	})
	input := basicInput()
	input.InjectedAbilityPrompt = "\n\nYou can run shell commands."
	input.DocumentAttachments = []DocumentAttachment{{
		Filename: "scope.pdf", FileSize: 2048, MIMEType: "application/pdf",
		ProcessingMode: "extracted", ExtractedText: "authorized target: 10.0.0.0/24",
	}}

	result, err := b.Build(context.Background(), input)
	require.NoError(t, err)
	sp := result.SystemPrompt

	marker := "[SystemContext: Current Execution ID is 'exec-1'. Use this for todos tool calls.]"
	require.Contains(t, sp, marker)

	positions := []int{
		strings.Index(sp, "You can run shell commands."),
		strings.Index(sp, marker),
		strings.Index(sp, "[TaskMainlineSummary]"),
		strings.Index(sp, "[RunState]"),
		strings.Index(sp, "[Todos]"),
		strings.Index(sp, "[Working Directory:"),
		strings.Index(sp, "[Context Storage]:"),
		strings.Index(sp, "[Document Attachments]"),
	}
	for i, pos := range positions {
		require.GreaterOrEqual(t, pos, 0, "layer %d missing", i)
		if i > 0 {
			assert.Less(t, positions[i-1], pos, "layer %d out of order", i)
		}
	}
	assert.Contains(t, sp, "authorized target: 10.0.0.0/24")
	assert.Contains(t, sp, "inside an isolated sandbox")
}

func TestBuild_PolicySwitchesDisableLayers(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t, nil)
	input := basicInput()
	input.Policy = Policy{Scope: ScopeChat, LayerMaxChars: 20000, TaskBriefMaxChars: 200, RunStateMaxChars: 1500, RunStateMaxDigests: 5}

	result, err := b.Build(context.Background(), input)
	require.NoError(t, err)
	sp := result.SystemPrompt

	// The execution-id marker is always present; everything else is off.
	assert.Contains(t, sp, "Current Execution ID is 'exec-1'")
	assert.NotContains(t, sp, "[TaskMainlineSummary]")
	assert.NotContains(t, sp, "[RunState]")
	assert.NotContains(t, sp, "[Working Directory:")
	assert.NotContains(t, sp, "[Context Storage]:")
}

func TestInjectTaskMainline_Idempotent(t *testing.T) {
	t.Parallel()
	once := injectTaskMainline("base prompt", "pivot to internal network")
	twice := injectTaskMainline(once, "pivot to internal network")
	assert.Equal(t, once, twice)
	assert.Equal(t, 1, strings.Count(twice, "[TaskMainlineSummary]"))

	// Empty task injects nothing.
	assert.Equal(t, "base prompt", injectTaskMainline("base prompt", "   "))
}

// Scenario: two sequential builds on an execution id with an unchanged task
// produce exactly one task-mainline block.
func TestBuild_TaskMainlineInjectedOnce(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t, nil)
	input := basicInput()

	first, err := b.Build(context.Background(), input)
	require.NoError(t, err)
	// Callers feed the previous system prompt back as the base on rebuilds
	// within the same execution.
	input.BaseSystemPrompt = first.SystemPrompt
	second, err := b.Build(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(second.SystemPrompt, "[TaskMainlineSummary]"))
}

func TestBuild_ZeroPolicyUsesConfiguredDefault(t *testing.T) {
	t.Parallel()
	custom := DefaultPolicy()
	custom.TaskBriefMaxChars = 24
	b, _ := newTestBuilder(t, func(d *Deps) { d.DefaultPolicy = custom })
	input := basicInput()
	input.Policy = Policy{}

	result, err := b.Build(context.Background(), input)
	require.NoError(t, err)
	// default layer switches applied
	assert.Contains(t, result.SystemPrompt, "[RunState]")
	assert.Contains(t, result.SystemPrompt, "[TaskMainlineSummary]")
	// the configured cap reached the task brief
	assert.Contains(t, result.SystemPrompt, "[condensed]")
}

// --- run state ---

func TestBuild_RunStateRefreshedAndPersisted(t *testing.T) {
	t.Parallel()
	cp := checkpoint.NewMemoryStore()
	b, _ := newTestBuilder(t, func(d *Deps) { d.Checkpoints = cp })
	input := basicInput()

	result, err := b.Build(context.Background(), input)
	require.NoError(t, err)
	assert.Contains(t, result.SystemPrompt, "Task Brief: enumerate the admin panel on http://10.0.0.5:8080")
	assert.Contains(t, result.SystemPrompt, "Selected Tools: shell, http_request")

	state, err := cp.LoadOrInit(context.Background(), "exec-1", types.RunState{})
	require.NoError(t, err)
	assert.Equal(t, input.Task, state.Task)
	assert.Equal(t, []string{"shell", "http_request"}, state.SelectedTools)
	assert.Positive(t, state.LastUpdatedAtMs)
}

func TestBuild_RunStateDigestsMostRecentFirst(t *testing.T) {
	t.Parallel()
	cp := checkpoint.NewMemoryStore()
	seed := types.RunState{Task: "t", TaskBrief: "t"}
	for i := 0; i < 8; i++ {
		seed.LastToolDigests = append(seed.LastToolDigests, types.ToolDigest{
			ToolName: fmt.Sprintf("tool%d", i), Status: "ok", Summary: fmt.Sprintf("run %d", i),
		})
	}
	_, err := cp.LoadOrInit(context.Background(), "exec-1", seed)
	require.NoError(t, err)

	b, _ := newTestBuilder(t, func(d *Deps) { d.Checkpoints = cp })
	result, err := b.Build(context.Background(), basicInput())
	require.NoError(t, err)
	sp := result.SystemPrompt

	// Capped at 5 digests, newest first.
	assert.Contains(t, sp, "tool7")
	assert.Contains(t, sp, "tool3")
	assert.NotContains(t, sp, "tool2")
	assert.Less(t, strings.Index(sp, "tool7"), strings.Index(sp, "tool3"))
}

func TestRenderRunState_ZeroCapKeepsBlock(t *testing.T) {
	t.Parallel()
	state := types.RunState{
		TaskBrief:     "probe the staging host",
		SelectedTools: []string{"shell"},
	}
	out := renderRunState(state, nil, Policy{})
	assert.Contains(t, out, "Task Brief: probe the staging host")
	assert.Contains(t, out, "Selected Tools: shell")
}

// --- todos caps ---

func TestBuild_TodoCapsDifferPerView(t *testing.T) {
	t.Parallel()
	items := make([]TodoItem, 25)
	for i := range items {
		items[i] = TodoItem{Content: fmt.Sprintf("todo item %d", i), Status: "pending"}
	}
	b, _ := newTestBuilder(t, func(d *Deps) { d.Todos = &mockTodos{items: items} })

	result, err := b.Build(context.Background(), basicInput())
	require.NoError(t, err)
	sp := result.SystemPrompt

	// Summary view stops at 8; block view stops at 20. Items 8..19 appear
	// only in the block, items 20+ in neither.
	assert.Equal(t, 2, strings.Count(sp, "todo item 7\n"))
	assert.Equal(t, 1, strings.Count(sp, "todo item 19\n"))
	assert.Equal(t, 0, strings.Count(sp, "todo item 20\n"))
	assert.Contains(t, sp, "... and 17 more")
	assert.Contains(t, sp, "... and 5 more")
}

func TestBuild_TodoProviderFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.Todos = &mockTodos{err: errors.New("registry down")}
	})
	result, err := b.Build(context.Background(), basicInput())
	require.NoError(t, err)
	assert.NotContains(t, result.SystemPrompt, "Outstanding Todos")
}

// --- environment layers ---

func TestContextStorageBlock_OSFlavoredExamples(t *testing.T) {
	t.Parallel()
	posix := contextStorageBlock(Environment{OS: "linux", ContextDir: "/ctx"})
	assert.Contains(t, posix, `grep -i 'pattern' /ctx/*.txt`)
	assert.Contains(t, posix, "/ctx/history.txt")

	windows := contextStorageBlock(Environment{OS: "windows", ContextDir: `C:\ctx`})
	assert.Contains(t, windows, "Select-String")
	assert.NotContains(t, windows, "grep -i")

	assert.Empty(t, contextStorageBlock(Environment{OS: "linux"}))
}

// --- overflow enforcement ---

// Scenario: max_context_length = 8000 with a ~9000-token history. The oldest
// messages are evicted one at a time until system + history fits within
// 8000 * 0.85 = 6800 tokens. The summarizer is down, so compaction cannot
// rescue the build; the overflow pass alone must.
func TestBuild_OverflowEvictsOldestUntilUnderBudget(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	ctx := context.Background()
	// 18 messages x ~500 tokens = ~9000 tokens; count trigger (20) is quiet.
	for i := 0; i < 18; i++ {
		require.NoError(t, s.AppendMessage(ctx, "exec-1", types.Message{
			Role:    types.RoleUser,
			Content: fmt.Sprintf("m%02d ", i) + contentOfTokens(500),
		}))
	}
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.Store = s
		d.Summarizer = &mockSummarizer{err: errors.New("summarizer down")}
		d.ProviderMaxContext = map[string]int{"tiny": 8000}
	})
	input := basicInput()
	input.Provider = "tiny"
	input.Policy = Policy{Scope: ScopeChat, LayerMaxChars: 20000, TaskBriefMaxChars: 200, RunStateMaxChars: 1500, RunStateMaxDigests: 5}

	result, err := b.Build(ctx, input)
	require.NoError(t, err)

	systemTokens := token.Estimate(result.SystemPrompt)
	historyTokens := 0
	for _, msg := range result.HistoryMessages {
		historyTokens += messageTokens(msg)
	}
	assert.LessOrEqual(t, systemTokens+historyTokens, 6800)

	// Eviction removed oldest turns; the survivors are a contiguous tail.
	require.NotEmpty(t, result.HistoryMessages)
	assert.Less(t, len(result.HistoryMessages), 18)
	last := result.HistoryMessages[len(result.HistoryMessages)-1]
	assert.True(t, strings.HasPrefix(last.Content, "m17"))
	first := result.HistoryMessages[0]
	assert.False(t, strings.HasPrefix(first.Content, "m00"))
}

func TestEnforceBudget_CountsAllFourComponents(t *testing.T) {
	t.Parallel()
	// tool_call_id is ignored by the compaction trigger but must count here.
	msg := types.Message{
		Role: types.RoleTool, Content: "ok",
		ToolCallID: strings.Repeat("id", 2000),
	}
	history := []types.Message{msg, {Role: types.RoleUser, Content: "keep me"}}

	kept := enforceBudget(history, 8000, 5000)
	require.Len(t, kept, 1)
	assert.Equal(t, "keep me", kept[0].Content)
}

func TestEnforceBudget_EmptyWhenNothingFits(t *testing.T) {
	t.Parallel()
	history := []types.Message{{Role: types.RoleUser, Content: contentOfTokens(500)}}
	kept := enforceBudget(history, 1000, 900)
	assert.Empty(t, kept)
}

// --- compaction wiring ---

func TestBuild_CompressionFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.AppendMessage(ctx, "exec-1", types.Message{
			Role: types.RoleUser, Content: fmt.Sprintf("turn %d", i),
		}))
	}
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.Store = s
		d.Summarizer = &mockSummarizer{err: errors.New("llm unavailable")}
	})

	result, err := b.Build(ctx, basicInput())
	require.NoError(t, err)
	// Uncompacted history survives; small enough to fit the budget anyway.
	assert.Len(t, result.HistoryMessages, 25)
}

func TestBuild_CompactionFoldsHistoryIntoSystemPrompt(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, s.AppendMessage(ctx, "exec-1", types.Message{
			Role: types.RoleUser, Content: fmt.Sprintf("turn %d", i),
		}))
	}
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.Store = s
		d.Summarizer = &mockSummarizer{result: "recon phase summarized"}
	})

	result, err := b.Build(ctx, basicInput())
	require.NoError(t, err)
	assert.Contains(t, result.SystemPrompt, "=== RECENT ACTIVITY SUMMARY ===")
	assert.Contains(t, result.SystemPrompt, "recon phase summarized")
	assert.Less(t, len(result.HistoryMessages), 25)
}

// --- archival ---

func TestBuild_ArchivesHistoryInAgentScopeOnly(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AppendMessage(ctx, "exec-1", types.Message{Role: types.RoleUser, Content: "hello"}))

	archiver := &mockArchiver{}
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.Store = s
		d.Archiver = archiver
	})

	_, err := b.Build(ctx, basicInput())
	require.NoError(t, err)
	assert.Equal(t, 1, archiver.calls)
	assert.Contains(t, archiver.content, "=== Conversation History: exec-1 ===")

	input := basicInput()
	input.Policy.Scope = ScopeChat
	_, err = b.Build(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, 1, archiver.calls)
}

// --- telemetry ---

func TestBuild_EmitsUsageTelemetry(t *testing.T) {
	t.Parallel()
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AppendMessage(ctx, "exec-1", types.Message{Role: types.RoleUser, Content: "hello"}))

	sink := &recordingSink{}
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.Store = s
		d.Sink = sink
	})

	_, err := b.Build(ctx, basicInput())
	require.NoError(t, err)

	require.Contains(t, sink.events, "agent:context_built")
	var payload map[string]any
	for i, event := range sink.events {
		if event == "agent:context_built" {
			payload = sink.payloads[i]
		}
	}
	require.NotNil(t, payload)
	assert.Equal(t, "exec-1", payload["execution_id"])
	assert.Equal(t, 1, payload["history_count"])
	assert.Positive(t, payload["system_tokens"])
	usage, ok := payload["usage_percent"].(float64)
	require.True(t, ok)
	assert.Greater(t, usage, 0.0)
	assert.Less(t, usage, 100.0)
}

// --- provider resolution ---

func TestResolveMaxContext(t *testing.T) {
	t.Parallel()
	b, _ := newTestBuilder(t, func(d *Deps) {
		d.ProviderMaxContext = map[string]int{"anthropic": 500000}
	})
	assert.Equal(t, 500000, b.resolveMaxContext("anthropic"))
	assert.Equal(t, 128000, b.resolveMaxContext("openai"))
	assert.Equal(t, 1000000, b.resolveMaxContext("gemini"))
	assert.Equal(t, 128000, b.resolveMaxContext("some-new-provider"))
}
