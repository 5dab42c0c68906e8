package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// WriteSummary prints the per-repository verdicts and the totals as console tables.
func WriteSummary(out io.Writer, d *Data) error {
	rows := d.Rows()

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []string{
			r.Repo,
			r.GitHub,
			statusLabel(r.Branches, models.StageBranches),
			statusLabel(r.Commits, models.StageCommits),
			statusLabel(r.Tags, models.StageTags),
			statusLabel(r.Workflows, models.StageWorkflows),
		})
	}
	if err := WriteTable(out, []string{"Repository", "GitHub", "Branches", "Commits", "Tags", "Workflows"}, cells); err != nil {
		return fmt.Errorf("failed to render repository table: %w", err)
	}

	totals := d.Totals(rows)
	if _, err := fmt.Fprintf(out, "\n%s\n", totals); err != nil {
		return err
	}

	if d.Manifest == nil || len(d.Manifest.Stages) == 0 {
		return nil
	}
	stages := make([][]string, 0, len(d.Manifest.Stages))
	for _, s := range d.Manifest.Stages {
		stages = append(stages, []string{s.Stage, strconv.Itoa(s.Units), strconv.Itoa(s.Succeeded), strconv.Itoa(s.Failed)})
	}
	if err := WriteTable(out, []string{"Stage", "Units", "Succeeded", "Failed"}, stages); err != nil {
		return fmt.Errorf("failed to render stage table: %w", err)
	}
	return nil
}

// renderTable writes one console table. Shared with the check command.
func WriteTable(out io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(out)
	cols := make([]any, len(header))
	for i, h := range header {
		cols[i] = h
	}
	table.Header(cols...)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
