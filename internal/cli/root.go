// Package cli contains the Cobra command tree for feedbackctl.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zombar/feedbackanalyzer/internal/output"
)

// options are the persistent flags shared by all commands
type options struct {
	config  string
	noColor bool
	json    bool
}

// NewRootCmd builds the feedbackctl command tree
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "feedbackctl",
		Short: "Analyze customer feedback surveys offline",
		Long: `feedbackctl runs the feedback analysis engine on local JSON files:
sentiment, topics, urgency, churn risk, NPS and recommendations for a survey,
or NPS and score trends across several surveys.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				output.SetNoColor(true)
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.config, "config", "", "Config file path (YAML)")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "Output as JSON")

	root.AddCommand(newAnalyzeCmd(opts), newTrendCmd(opts))
	return root
}

// Execute runs the command tree and exits non-zero on error
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
