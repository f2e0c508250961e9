package textutil

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Snippet caps for condensed tool outputs. stderr gets a tighter cap than
// stdout; interactive sessions get a slightly wider one because prompts and
// command echoes inflate the line count.
const (
	stdoutSnipLines = 8
	stdoutSnipChars = 500
	stderrSnipLines = 6
	stderrSnipChars = 400
	ttySnipLines    = 10
	ttySnipChars    = 600
)

// CondenseToolOutput recognizes the structured JSON payloads produced by the
// shell and interactive-shell tools and reduces them to a one-line digest of
// command, completion status, and short output snippets. It returns ok=false
// for anything it does not recognize, in which case the caller falls back to
// plain-text trimming.
func CondenseToolOutput(raw string) (string, bool) {
	var value map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return "", false
	}

	// shell tool output
	if hasKeys(value, "command", "stdout", "stderr") {
		command := jsonString(value["command"])
		exitCode := "unknown"
		if raw, ok := value["exit_code"]; ok {
			var code int64
			if err := json.Unmarshal(raw, &code); err == nil {
				exitCode = strconv.FormatInt(code, 10)
			}
		}
		completed := jsonBool(value["completed"], true)
		outputStored := jsonBool(value["output_stored"], false)
		stdoutSnip := TrimText(jsonString(value["stdout"]), stdoutSnipLines, stdoutSnipChars)
		stderrSnip := TrimText(jsonString(value["stderr"]), stderrSnipLines, stderrSnipChars)
		return fmt.Sprintf(
			"shell: command=%q exit_code=%s completed=%t output_stored=%t stdout_snip=%q stderr_snip=%q",
			command, exitCode, completed, outputStored, stdoutSnip, stderrSnip,
		), true
	}

	// interactive_shell output
	if hasKeys(value, "session_id", "output", "completed") {
		command := jsonString(value["command"])
		completed := jsonBool(value["completed"], false)
		truncated := jsonBool(value["truncated"], false)
		outputSnip := TrimText(jsonString(value["output"]), ttySnipLines, ttySnipChars)
		return fmt.Sprintf(
			"interactive_shell: command=%q completed=%t truncated=%t output_snip=%q",
			command, completed, truncated, outputSnip,
		), true
	}

	return "", false
}

func hasKeys(m map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func jsonString(raw json.RawMessage) string {
	var s string
	if raw == nil || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func jsonBool(raw json.RawMessage, def bool) bool {
	var b bool
	if raw == nil || json.Unmarshal(raw, &b) != nil {
		return def
	}
	return b
}
