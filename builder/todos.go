package builder

import (
	"context"
	"fmt"
	"strings"
)

// Two distinct caps for todo rendering. The run-state block is a tight
// summary view; the standalone todos block has more room.
const (
	runStateSummaryCap = 8
	todosBlockCap      = 20
)

// TodoItem is one outstanding item from the agent's todo list.
type TodoItem struct {
	Content string
	Status  string
}

// TodoProvider supplies the current todo list for an execution. Optional:
// when absent, todo rendering degrades to a no-op.
type TodoProvider interface {
	Todos(ctx context.Context, executionID string) ([]TodoItem, error)
}

// renderTodosSummary renders the compact todo view embedded in the run-state
// block, capped at runStateSummaryCap items.
func renderTodosSummary(todos []TodoItem) string {
	if len(todos) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Outstanding Todos:\n")
	for i, todo := range todos {
		if i >= runStateSummaryCap {
			fmt.Fprintf(&sb, "... and %d more\n", len(todos)-runStateSummaryCap)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s\n", todo.Status, todo.Content)
	}
	return sb.String()
}

// renderTodosBlock renders the standalone todos layer, capped at
// todosBlockCap items.
func renderTodosBlock(todos []TodoItem) string {
	if len(todos) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\n[Todos]\n")
	for i, todo := range todos {
		if i >= todosBlockCap {
			fmt.Fprintf(&sb, "... and %d more\n", len(todos)-todosBlockCap)
			break
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, todo.Status, todo.Content)
	}
	return sb.String()
}
