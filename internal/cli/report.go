package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/migration-auditor/internal/report"
)

func newReportCommand(opts *rootOptions) *cobra.Command {
	var (
		certifier string
		outputDir string
		summary   bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the HTML report from the stage records",
		Long: `Reads the records written by the audit stages and renders the final HTML
report. Only the repositories record is required; checks whose stage has not
run are shown as having no data.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(_ context.Context, cmd *cobra.Command, a *app) error {
			if cmd.Flags().Changed("certifier") {
				a.cfg.Report.Certifier = certifier
			}
			if cmd.Flags().Changed("output-dir") {
				a.cfg.Report.OutputDir = outputDir
			}
			out := cmd.OutOrStdout()
			if !summary {
				out = io.Discard
			}
			return a.renderReport(out)
		}),
	}

	cmd.Flags().StringVar(&certifier, "certifier", "", "name printed on the report as the person certifying the audit")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "directory the report is written to (overrides report.output_dir)")
	cmd.Flags().BoolVar(&summary, "summary", true, "print the console summary table")
	return cmd
}

// renderReport writes the HTML report and prints the console summary to out.
func (a *app) renderReport(out io.Writer) error {
	data, err := report.Load(a.store)
	if err != nil {
		return err
	}
	data.Certifier = a.cfg.Report.Certifier

	path, err := report.WriteHTML(data, a.cfg.Report.OutputDir, a.cfg.Report.FileName)
	if err != nil {
		return err
	}
	a.logger.Info("Report written", "path", path)

	return report.WriteSummary(out, data)
}
