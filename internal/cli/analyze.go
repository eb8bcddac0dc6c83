package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zombar/feedbackanalyzer/internal/analyzer"
	"github.com/zombar/feedbackanalyzer/internal/config"
	"github.com/zombar/feedbackanalyzer/internal/output"
)

func newAnalyzeCmd(opts *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a survey JSON file",
		Long: `Analyze a survey file of the form
  {"survey_id": "...", "survey_type": "nps", "responses": [{"customer_id": "...", "text": "...", "overall_score": 9}]}
and print the survey report. Use - to read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.config)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			var in analyzer.SurveyInput
			if err := readJSON(cmd, file, &in); err != nil {
				return err
			}
			if in.SurveyType == "" {
				in.SurveyType = analyzer.SurveyTypeNPS
			}

			a := analyzer.New()
			a.SetConcurrency(cfg.AnalysisConcurrency)
			result := a.AnalyzeSurvey(cmd.Context(), in)

			if opts.json {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprint(cmd.OutOrStdout(), output.SurveyReport(result))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Survey JSON file (- for stdin)")
	cmd.MarkFlagRequired("file")
	return cmd
}

// readJSON decodes path, or stdin for "-", into v
func readJSON(cmd *cobra.Command, path string, v interface{}) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
