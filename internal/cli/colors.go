package cli

import "github.com/fatih/color"

// Color helpers replacing the teacher's hand-rolled ANSI escapes with
// fatih/color, per the supplemented ambient CLI surface.
var (
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	dim    = color.New(color.Faint)
)

// taskStateDisplay returns the symbol and printer for a task status,
// matching the teacher's stateDisplay shape but keyed by the core's
// model.TaskStatus instead of engine concern states.
func taskStateDisplay(status string) (symbol string, c *color.Color) {
	switch status {
	case "in-progress":
		return "⟳", yellow
	case "blocked":
		return "⊘", red
	case "review":
		return "◎", cyan
	case "done", "archived":
		return "✓", green
	case "todo":
		return "◯", dim
	default:
		return "·", dim
	}
}
