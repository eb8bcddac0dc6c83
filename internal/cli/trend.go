package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/output"
)

func newTrendCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Report NPS and score trends across surveys",
		Long: `Read a JSON array of per-survey metrics
  [{"survey_id": "...", "date": "2024-01-31T00:00:00Z", "response_count": 40, "nps_score": 12, "avg_score": 7.4}]
and report how NPS and average score moved from the earliest to the latest survey.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var metrics []analyzer.SurveyMetrics
			if err := readJSON(cmd, file, &metrics); err != nil {
				return err
			}
			sort.SliceStable(metrics, func(i, j int) bool {
				return metrics[i].Date.Before(metrics[j].Date)
			})

			report := analyzer.GetTrend(metrics)

			if opts.json {
				if report == nil {
					return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
						"trend":   nil,
						"message": "At least two surveys are needed for a trend",
					})
				}
				return writeJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprint(cmd.OutOrStdout(), output.TrendReport(report))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Metrics JSON file (- for stdin)")
	cmd.MarkFlagRequired("file")
	return cmd
}
