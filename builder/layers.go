package builder

import (
	"fmt"
	"strings"

	"github.com/aegisgate/contextmem/textutil"
	"github.com/aegisgate/contextmem/types"
)

const taskMainlineMarker = "[TaskMainlineSummary]"

// executionIDMarker is appended to every system prompt. Downstream tools
// parse this exact format to self-reference the execution.
func executionIDMarker(executionID string) string {
	return fmt.Sprintf("\n\n[SystemContext: Current Execution ID is '%s'. Use this for todos tool calls.]", executionID)
}

// injectTaskMainline appends the task-mainline block unless one is already
// present. Idempotent: repeated builds within the same execution must not
// grow the system prompt.
func injectTaskMainline(systemPrompt, task string) string {
	if strings.Contains(systemPrompt, taskMainlineMarker) {
		return systemPrompt
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return systemPrompt
	}
	return systemPrompt + fmt.Sprintf(
		"\n\n%s\nTask mainline:\n- Current task: %s\n- Constraint: stay on the current task; avoid unrelated actions.",
		taskMainlineMarker, task)
}

// renderRunState renders the run-state block: task brief, selected tools,
// an optional compact todo summary, and the most recent tool digests.
func renderRunState(state types.RunState, todos []TodoItem, policy Policy) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task Brief: %s\n", state.TaskBrief)
	if len(state.SelectedTools) > 0 {
		fmt.Fprintf(&sb, "Selected Tools: %s\n", strings.Join(state.SelectedTools, ", "))
	}
	if summary := renderTodosSummary(todos); summary != "" {
		sb.WriteString(summary)
	}
	if n := len(state.LastToolDigests); n > 0 {
		sb.WriteString("Recent Tool Digests:\n")
		limit := policy.RunStateMaxDigests
		// most recent first
		for i := n - 1; i >= 0 && n-1-i < limit; i-- {
			digest := state.LastToolDigests[i]
			fmt.Fprintf(&sb, "- [%s] %s: %s\n", digest.Status, digest.ToolName, digest.Summary)
		}
	}
	out := sb.String()
	if policy.RunStateMaxChars > 0 && len(out) > policy.RunStateMaxChars {
		out = textutil.Condense(out, policy.RunStateMaxChars)
	}
	return out
}

// workingDirBlock reports the execution environment and base path.
func workingDirBlock(env Environment) string {
	if env.WorkingDir == "" {
		return ""
	}
	location := "on the host machine"
	if env.Kind == "sandbox" {
		location = "inside an isolated sandbox"
	}
	return fmt.Sprintf(
		"\n\n[Working Directory: Your working directory is '%s' (%s, %s). When performing file operations, executing scripts, or any file system related tasks, use this directory as your base path unless explicitly specified otherwise by the user.]",
		env.WorkingDir, location, env.OS)
}

// contextStorageBlock tells the model where large tool outputs and the
// history transcript live, with OS-appropriate example commands.
func contextStorageBlock(env Environment) string {
	dir := env.ContextDir
	if dir == "" {
		return ""
	}

	var examples string
	if env.OS == "windows" {
		examples = fmt.Sprintf(
			"Examples:\n"+
				"- shell(command=\"Get-ChildItem %s\")  (list all stored files)\n"+
				"- shell(command=\"Select-String -Pattern 'pattern' -Path %s\\*.txt\")  (search across files)\n"+
				"- shell(command=\"Get-Content %s\\http_response_*.txt -Tail 100\")  (view HTTP output)\n"+
				"- shell(command=\"Select-String -Pattern 'keyword' -Path %s\\history.txt\")  (search history)",
			dir, dir, dir, dir)
	} else {
		examples = fmt.Sprintf(
			"Examples:\n"+
				"- shell(command=\"ls -lh %s\")  (list all stored files)\n"+
				"- shell(command=\"grep -i 'pattern' %s/*.txt\")  (search across files)\n"+
				"- shell(command=\"tail -n 100 %s/http_response_*.txt\")  (view HTTP output)\n"+
				"- shell(command=\"cat %s/history.txt | grep 'keyword'\")  (search history)",
			dir, dir, dir, dir)
	}

	return fmt.Sprintf(
		"\n\n[Context Storage]: All large tool outputs are automatically stored at '%s'.\n"+
			"- Tool outputs exceeding threshold are saved as files (not truncated)\n"+
			"- Applies to: shell commands, HTTP responses, and other tools\n"+
			"- Your conversation history is at '%s/history.txt'\n"+
			"- Use the shell tool to access these files\n\n%s\n\n"+
			"All files are centralized in one directory for easy management and search.",
		dir, dir, examples)
}

// DocumentAttachment describes one document attached to the execution.
type DocumentAttachment struct {
	Filename       string
	FileSize       int64
	MIMEType       string
	ProcessingMode string
	ContainerPath  string
	ExtractedText  string
}

const documentExcerptMaxChars = 1200

// documentAttachmentsBlock renders filename/size/MIME/mode plus a bounded
// excerpt of the extracted text for each attachment.
func documentAttachmentsBlock(attachments []DocumentAttachment) string {
	if len(attachments) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n[Document Attachments]\n")
	for i, doc := range attachments {
		fmt.Fprintf(&sb, "\nDocument #%d:\n- Filename: %s\n- Size: %d bytes\n- MIME Type: %s\n- Processing Mode: %s\n",
			i+1, doc.Filename, doc.FileSize, doc.MIMEType, doc.ProcessingMode)
		if doc.ContainerPath != "" {
			fmt.Fprintf(&sb, "- Container Path: %s\n", doc.ContainerPath)
		}
		if doc.ExtractedText != "" {
			excerpt := doc.ExtractedText
			if len(excerpt) > documentExcerptMaxChars {
				excerpt = textutil.Condense(excerpt, documentExcerptMaxChars)
			}
			sb.WriteString("- Extracted Text (truncated):\n")
			sb.WriteString(excerpt)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// trimLayer bounds one layer to maxChars before it is concatenated.
func trimLayer(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	return textutil.Condense(text, maxChars)
}
