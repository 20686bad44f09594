package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hashmap-kz/kscenario/internal/printer"
	"github.com/hashmap-kz/kscenario/internal/recorder"
	"github.com/hashmap-kz/kscenario/internal/report"
)

type reportOptions struct {
	eventsFile    string
	color         bool
	workspaceRoot string
	overviewOnly  bool
}

func newReportCmd() *cobra.Command {
	opts := reportOptions{}

	cmd := &cobra.Command{
		Use:   "report --events FILE",
		Short: "Render a recorded event stream as a Markdown report",
		Long: heredoc.Doc(`
			report reads a YAML event stream recorded by a scenario run
			(internal/recorder.Recorder.YAML, or KEST_SHOW_EVENTS=1) and
			renders it the same way a failed test would print it.
		`),
		Example: heredoc.Doc(`
			# Render a recorded run to stdout
			kscenario report --events run.yaml

			# With ANSI highlighting
			kscenario report --events run.yaml --color

			# Just the pass/fail tables
			kscenario report --events run.yaml --overview-only
		`),
		RunE: func(_ *cobra.Command, _ []string) error {
			return runReport(opts)
		},
	}

	f := cmd.Flags()
	f.SortFlags = false
	f.StringVar(&opts.eventsFile, "events", "", "Path to a recorded YAML event stream.")
	//nolint:errcheck
	_ = cmd.MarkFlagRequired("events")
	f.BoolVar(&opts.color, "color", false, "Render with ANSI highlighting.")
	f.StringVar(&opts.workspaceRoot, "workspace-root", "", "Workspace root used to resolve stack-trace frames.")
	f.BoolVar(&opts.overviewOnly, "overview-only", false, "Print only the overview/cleanup tables, not the full Markdown report.")

	return cmd
}

func runReport(opts reportOptions) error {
	raw, err := os.ReadFile(opts.eventsFile)
	if err != nil {
		return fmt.Errorf("reading events file: %w", err)
	}

	var events []recorder.Event
	if err := yaml.Unmarshal(raw, &events); err != nil {
		return fmt.Errorf("parsing events file: %w", err)
	}

	rpt := report.Parse(events)

	if opts.overviewOnly {
		printer.PrintOverview(os.Stdout, rpt)
		return nil
	}

	if opts.color {
		out, err := report.RenderColorized(rpt, opts.workspaceRoot)
		if err != nil {
			return fmt.Errorf("rendering colorized report: %w", err)
		}
		fmt.Println(out)
		return nil
	}

	fmt.Println(report.Render(rpt, opts.workspaceRoot))
	return nil
}
