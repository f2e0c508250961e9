package types

import "time"

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents one conversation message. Messages are immutable once
// appended to the store; the store's insertion order is the single source of
// truth for message index.
//
// ToolCalls carries the serialized tool invocation payload as the provider
// returned it. ReasoningContent carries chain-of-thought text from models
// that expose it. Both are optional and empty for most messages.
type Message struct {
	Role             Role      `json:"role"`
	Content          string    `json:"content,omitempty"`
	ToolCalls        string    `json:"tool_calls,omitempty"`
	ToolCallID       string    `json:"tool_call_id,omitempty"`
	ReasoningContent string    `json:"reasoning_content,omitempty"`
	Timestamp        time.Time `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		Timestamp:  time.Now(),
	}
}

// WithToolCalls attaches a serialized tool-call payload to the message.
func (m Message) WithToolCalls(toolCalls string) Message {
	m.ToolCalls = toolCalls
	return m
}

// WithReasoning attaches reasoning content to the message.
func (m Message) WithReasoning(reasoning string) Message {
	m.ReasoningContent = reasoning
	return m
}
