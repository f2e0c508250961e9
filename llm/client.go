// Package llm defines the completion-client boundary of the module and the
// per-provider context-length defaults.
//
// The module never talks to a model directly; it receives a CompletionClient
// and treats summarization quality as a black box.
package llm

import "context"

// CompletionClient produces a completion for a prompt. Implementations wrap
// whatever provider SDK the host application uses. systemPrompt may be empty,
// in which case the provider's default behavior applies.
//
// Calls carry no timeout of their own; callers are expected to bound the
// whole operation through ctx.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleteFunc adapts a plain function to CompletionClient.
type CompleteFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Complete implements CompletionClient.
func (f CompleteFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
