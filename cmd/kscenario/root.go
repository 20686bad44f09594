package main

import (
	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
)

// newRootCmd keeps the SilenceErrors/SilenceUsage/hidden-help pattern the
// teacher's own root command used.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kscenario",
		Short: "Render a recorded scenario event stream as a Markdown report.",
		Long: heredoc.Doc(`
			kscenario is the CLI companion to the kscenario scenario-testing
			engine. The engine itself is a Go library, imported from test
			files; this binary only renders an already-recorded event stream
			(produced by internal/recorder.Recorder.YAML) into a report.
		`),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})
	rootCmd.AddCommand(newReportCmd())
	return rootCmd
}
