package llm

import "strings"

// defaultMaxContext is the fallback for providers we have no entry for.
// Most current frontier models advertise at least 128k.
const defaultMaxContext = 128000

// providerMaxContext lists the advertised context window per provider.
// Configuration overrides take precedence; this table is the last resort.
var providerMaxContext = map[string]int{
	"openai":     128000,
	"anthropic":  200000,
	"gemini":     1000000,
	"deepseek":   128000,
	"moonshot":   128000,
	"groq":       32000,
	"ollama":     8192,
	"openrouter": 128000,
}

// MaxContextLength returns the default context window for a provider.
// Provider matching is case-insensitive; unknown providers get the
// conservative default.
func MaxContextLength(provider string) int {
	if n, ok := providerMaxContext[strings.ToLower(provider)]; ok {
		return n
	}
	return defaultMaxContext
}
