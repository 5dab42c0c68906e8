package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/migration-auditor/internal/report"
)

// checkResult is one row of the connectivity table.
type checkResult struct {
	host   string
	detail string
	err    error
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify credentials and connectivity for both hosts",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app) error {
			results := []checkResult{a.checkSource(ctx), a.checkTarget(ctx)}
			if err := writeCheckTable(cmd.OutOrStdout(), results); err != nil {
				return err
			}

			var errs []error
			for _, r := range results {
				if r.err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", r.host, r.err))
				}
			}
			return errors.Join(errs...)
		}),
	}
}

func (a *app) checkSource(ctx context.Context) checkResult {
	res := checkResult{host: "Azure DevOps"}
	client, err := a.sourceClient(ctx)
	if err != nil {
		res.err = err
		return res
	}
	if err := client.ValidateCredentials(ctx); err != nil {
		res.err = err
		return res
	}
	res.detail = fmt.Sprintf("project %s/%s reachable", client.Organization(), client.Project())
	return res
}

func (a *app) checkTarget(ctx context.Context) checkResult {
	res := checkResult{host: "GitHub"}
	client, err := a.targetClient()
	if err != nil {
		res.err = err
		return res
	}
	login, err := client.TestAuthentication(ctx)
	if err != nil {
		res.err = err
		return res
	}
	res.detail = "authenticated as " + login

	rate, err := client.CheckRateLimit(ctx)
	if err != nil {
		a.logger.Warn("Could not read GitHub rate limit", "error", err)
		return res
	}
	if rate == nil {
		return res
	}
	res.detail += fmt.Sprintf(", %d/%d requests left until %s",
		rate.Remaining, rate.Limit, rate.Reset.Format("15:04:05"))
	return res
}

func writeCheckTable(out io.Writer, results []checkResult) error {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status, detail := "✔ OK", r.detail
		if r.err != nil {
			status, detail = "❌ Failed", r.err.Error()
		}
		rows = append(rows, []string{r.host, status, detail})
	}
	return report.WriteTable(out, []string{"Host", "Status", "Detail"}, rows)
}
