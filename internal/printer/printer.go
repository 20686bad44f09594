// Package printer renders a report.Report as plain terminal tables, for
// callers that want a quick pass/fail summary without the full Markdown
// report.
package printer

import (
	"fmt"
	"io"

	"github.com/aquasecurity/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/hashmap-kz/kscenario/internal/report"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5EA3FF"))

// PrintOverview writes one "# | Action | Status" table per scenario,
// followed by a cleanup table unless cleanup was skipped.
func PrintOverview(w io.Writer, rpt *report.Report) {
	for _, sc := range rpt.Scenarios {
		fmt.Fprintln(w, headerStyle.Render(sc.Name))
		printOverviewTable(w, sc)
		printCleanupTable(w, sc)
		fmt.Fprintln(w)
	}
}

func printOverviewTable(w io.Writer, sc *report.Scenario) {
	if len(sc.Overview) == 0 {
		return
	}
	t := table.New(w)
	t.SetHeaders("#", "Action", "Status")
	t.SetRowLines(false)
	for i, item := range sc.Overview {
		t.AddRow(fmt.Sprintf("%d", i+1), item.Name, statusGlyph(item.Status))
	}
	t.Render()
}

func printCleanupTable(w io.Writer, sc *report.Scenario) {
	if sc.CleanupSkipped {
		fmt.Fprintln(w, "cleanup: skipped")
		return
	}
	if len(sc.Cleanup) == 0 {
		return
	}
	t := table.New(w)
	t.SetHeaders("#", "Cleanup action", "Status")
	t.SetRowLines(false)
	for i, item := range sc.Cleanup {
		t.AddRow(fmt.Sprintf("%d", i+1), item.Action, statusGlyph(item.Status))
	}
	t.Render()
}

func statusGlyph(s report.Status) string {
	switch s {
	case report.StatusSuccess:
		return "OK"
	case report.StatusFailure:
		return "FAIL"
	default:
		return "..."
	}
}
