package supervisor

import (
	"strings"

	"github.com/veritas-kanban/core/internal/model"
)

// instructionsParagraph is the fixed paragraph appended to every prompt,
// in the teacher's own "run non-interactively" preamble idiom
// (internal/config/config.go's DefaultPreamble).
const instructionsParagraph = "You are running non-interactively against a single task. " +
	"Do not ask questions or wait for confirmation — if something is unclear, make your best " +
	"judgement and proceed. Work only within the task's worktree."

// buildPrompt assembles the agent prompt from a task's title, optional
// description, and the fixed instructions paragraph (spec.md §4.6 step 4).
func buildPrompt(task *model.Task) string {
	var sb strings.Builder
	sb.WriteString("# " + task.Title + "\n\n")
	if task.Description != "" {
		sb.WriteString(task.Description + "\n\n")
	}
	sb.WriteString("## Instructions\n\n")
	sb.WriteString(instructionsParagraph + "\n")
	return sb.String()
}

// stdinClosingAgents is the set of agent types whose CLI reads the whole
// prompt from stdin up front and expects EOF, rather than an interactive
// stdin stream (spec.md §4.6 step 6).
var stdinClosingAgents = map[string]bool{
	"claude-code": true,
	"amp":         true,
}
