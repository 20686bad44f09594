package report

import (
	"fmt"
	"strconv"
	"strings"
)

// Render turns a Report into Markdown per §4.8. Scenarios with no overview
// rows and no detail entries render nothing, so a report over an empty
// event stream is the empty string (§8 boundary behavior).
func Render(r *Report, workspaceRoot string) string {
	return render(r, workspaceRoot, nil)
}

// renderWithPlaceholders is Render's colorization-aware sibling: every
// heredoc stdin block is swapped for an opaque placeholder token so the
// colorizer can run the whole document through one highlighter pass and
// the stdin text through another, then splice the results back together
// without the two highlighting passes fighting over the same bytes.
func renderWithPlaceholders(r *Report, workspaceRoot string) (string, []Text) {
	var stdins []Text
	out := render(r, workspaceRoot, &stdins)
	return out, stdins
}

func render(r *Report, workspaceRoot string, stdins *[]Text) string {
	var b strings.Builder
	for _, sc := range r.Scenarios {
		if len(sc.Overview) == 0 && len(sc.Details) == 0 {
			continue
		}
		renderScenario(&b, sc, workspaceRoot, stdins)
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusEmoji(s Status) string {
	switch s {
	case StatusSuccess:
		return "✅"
	case StatusFailure:
		return "❌"
	default:
		return "⏳"
	}
}

func renderScenario(b *strings.Builder, sc *Scenario, workspaceRoot string, stdins *[]Text) {
	fmt.Fprintf(b, "# %s\n\n", sc.Name)

	b.WriteString("## Scenario Overview\n\n")
	b.WriteString("| # | Action | Status |\n")
	b.WriteString("|---|---|---|\n")
	for i, item := range sc.Overview {
		fmt.Fprintf(b, "| %d | %s | %s |\n", i+1, item.Name, statusEmoji(item.Status))
	}
	b.WriteString("\n")

	b.WriteString("## Scenario Details\n\n")
	for _, detail := range sc.Details {
		switch d := detail.(type) {
		case *BDDSection:
			renderBDDSection(b, d, workspaceRoot, stdins)
		case *Action:
			renderAction(b, d, workspaceRoot, stdins)
		}
	}

	renderCleanup(b, sc)
}

func renderBDDSection(b *strings.Builder, section *BDDSection, workspaceRoot string, stdins *[]Text) {
	fmt.Fprintf(b, "### %s: %s\n\n", section.Keyword, section.Description)
	for _, act := range section.Actions {
		renderAction(b, act, workspaceRoot, stdins)
	}
}

func renderAction(b *strings.Builder, act *Action, workspaceRoot string, stdins *[]Text) {
	emoji := statusEmoji(StatusSuccess)
	suffix := ""
	if act.Err != nil {
		emoji = statusEmoji(StatusFailure)
		if act.Attempts != nil {
			suffix = fmt.Sprintf(" (Failed after %d attempts)", *act.Attempts)
		}
	}
	fmt.Fprintf(b, "**%s %s**%s\n\n", emoji, act.Name, suffix)

	for _, cmd := range act.Commands {
		renderCommand(b, cmd, stdins)
	}

	if act.Err != nil {
		b.WriteString("Error:\n\n")
		fmt.Fprintf(b, "```%s\n%s\n```\n\n", act.Err.Message.Language, act.Err.Message.Content)
		if act.Err.Stack != "" {
			rendered := RenderTrace(act.Err.Stack, workspaceRoot)
			if rendered != "" {
				fmt.Fprintf(b, "```trace\n%s\n```\n\n", rendered)
			}
		}
	}
}

func renderCommand(b *strings.Builder, cmd *Command, stdins *[]Text) {
	if cmd.Stdin != nil {
		stdinText := cmd.Stdin.Content
		if stdins != nil {
			*stdins = append(*stdins, *cmd.Stdin)
			stdinText = stdinPlaceholder(len(*stdins) - 1)
		}
		fmt.Fprintf(b, "```shell\n%s %s <<EOF\n%s\nEOF\n```\n\n", cmd.Cmd, strings.Join(cmd.Args, " "), stdinText)
	} else {
		fmt.Fprintf(b, "```shell\n%s %s\n```\n\n", cmd.Cmd, strings.Join(cmd.Args, " "))
	}
	if cmd.Stdout != nil && strings.TrimSpace(cmd.Stdout.Content) != "" {
		fmt.Fprintf(b, "stdout:\n\n```%s\n%s\n```\n\n", cmd.Stdout.Language, cmd.Stdout.Content)
	}
	if cmd.Stderr != nil && strings.TrimSpace(cmd.Stderr.Content) != "" {
		fmt.Fprintf(b, "stderr:\n\n```%s\n%s\n```\n\n", cmd.Stderr.Language, cmd.Stderr.Content)
	}
}

func renderCleanup(b *strings.Builder, sc *Scenario) {
	if sc.CleanupSkipped {
		b.WriteString("## Cleanup (skipped)\n\n")
		b.WriteString("Cleanup was skipped because the scenario failed and preserve-on-failure is set.\n\n")
		return
	}
	if len(sc.Cleanup) == 0 {
		return
	}

	b.WriteString("## Cleanup\n\n")
	b.WriteString("| # | Action | Status |\n")
	b.WriteString("|---|---|---|\n")
	for i, item := range sc.Cleanup {
		fmt.Fprintf(b, "| %d | %s | %s |\n", i+1, item.Action, statusEmoji(item.Status))
	}
	b.WriteString("\n")

	b.WriteString("```shellsession\n")
	for i, item := range sc.Cleanup {
		fmt.Fprintf(b, "$ %s %s\n", item.Command.Cmd, strings.Join(item.Command.Args, " "))
		if item.Command.Output != "" {
			b.WriteString(item.Command.Output)
			b.WriteString("\n")
		}
		if i != len(sc.Cleanup)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("```\n\n")
}

// stdinPlaceholder formats the opaque placeholder token substituted for a
// heredoc stdin block during separate highlighting (§4.8's colorization
// rule), keeping plain-render/ANSI-render line correspondence exact.
func stdinPlaceholder(n int) string {
	return "\x00KSTDIN:" + strconv.Itoa(n) + "\x00"
}
