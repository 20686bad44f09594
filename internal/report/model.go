// Package report turns a scenario's recorded event stream into the Report
// model (this file), a linear fold from events to that model
// (parse.go/difftext.go), and a Markdown renderer over the model
// (render.go/colorize.go/trace.go).
package report

// Status is an overview/cleanup item's outcome.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Report is the root of the rendered model: one entry per scenario that
// recorded at least one event.
type Report struct {
	Scenarios []*Scenario
}

// Scenario is the parsed view of one ScenarioStart..ScenarioEnd event span.
type Scenario struct {
	Name           string
	Overview       []*OverviewItem
	Details        []Detail
	Cleanup        []*CleanupItem
	CleanupSkipped bool
}

// Detail is either a *BDDSection or a standalone *Action: a scenario's
// details list interleaves narrative sections with top-level actions in
// recorded order.
type Detail interface {
	isDetail()
}

// BDDSection groups every action that ran while it was the current BDD
// annotation.
type BDDSection struct {
	Keyword     string
	Description string
	Actions     []*Action
}

func (*BDDSection) isDetail() {}

// Action is one ActionStart..ActionEnd span outside the cleanup phase.
type Action struct {
	Name     string
	Attempts *int
	Commands []*Command
	Err      *ActionError
}

func (*Action) isDetail() {}

// OverviewItem is one row of the scenario overview table.
type OverviewItem struct {
	Name   string
	Status Status
}

// Command is one CommandRun/CommandResult pair attached to an action.
type Command struct {
	Cmd    string
	Args   []string
	Stdin  *Text
	Stdout *Text
	Stderr *Text
}

// Text is a string with an optional language tag, used for anything that
// may render as a syntax-highlighted code fence.
type Text struct {
	Content  string
	Language string
}

// ActionError is a failed action's final error, after the "timed out"
// cause-unwrapping rule (see buildActionError in parse.go) has already
// been applied.
type ActionError struct {
	Message Text
	Stack   string
}

// CleanupItem is one action that ran during the reverting phase.
type CleanupItem struct {
	Action  string
	Status  Status
	Command CleanupCommand
}

// CleanupCommand is the single command a cleanup item ran, with its
// combined stdout/stderr output.
type CleanupCommand struct {
	Cmd    string
	Args   []string
	Output string
}
