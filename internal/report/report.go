// Package report renders the persisted audit records as the final HTML
// report and as a console summary.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
	"github.com/kuhlman-labs/migration-auditor/internal/storage"
)

// Status is the verdict of one check for one repository.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
	StatusNoData Status = "no_data"
)

// Data is everything the report shows. Only Repositories is required; a
// stage that has not run leaves its slice nil and its column shows no data.
type Data struct {
	Certifier   string
	GeneratedAt time.Time

	Repositories *models.RepositoryReport
	Branches     []models.BranchComparison
	Commits      []models.CommitComparison
	Tags         []models.TagComparison
	Workflows    []models.WorkflowCheck
	Manifest     *models.RunManifest
}

// Load reads every record from store.
func Load(store *storage.Store) (*Data, error) {
	repos, err := store.LoadRepositoryReport()
	if err != nil {
		return nil, err
	}
	d := &Data{Repositories: repos, GeneratedAt: time.Now()}

	if d.Branches, err = optional(store.LoadBranchComparisons()); err != nil {
		return nil, err
	}
	if d.Commits, err = optional(store.LoadCommitComparisons()); err != nil {
		return nil, err
	}
	if d.Tags, err = optional(store.LoadTagComparisons()); err != nil {
		return nil, err
	}
	if d.Workflows, err = optional(store.LoadWorkflowChecks()); err != nil {
		return nil, err
	}
	manifest, err := store.LoadManifest()
	switch {
	case err == nil:
		d.Manifest = manifest
	case !errors.Is(err, storage.ErrRecordNotFound):
		return nil, err
	}
	return d, nil
}

func optional[T any](records []T, err error) ([]T, error) {
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, nil
	}
	return records, err
}

// Row is one matched repository with its per-check status and details.
type Row struct {
	Repo      string
	GitHub    string
	Branches  Status
	Commits   Status
	Tags      Status
	Workflows Status

	BranchDetail   *models.BranchComparison
	CommitDetail   *models.CommitComparison
	TagDetail      *models.TagComparison
	WorkflowDetail *models.WorkflowCheck
}

// OK reports whether every check that ran passed.
func (r Row) OK() bool {
	for _, s := range []Status{r.Branches, r.Commits, r.Tags, r.Workflows} {
		if s == StatusFailed {
			return false
		}
	}
	return true
}

// Rows joins the stage records to the matched repositories by name.
// Records are keyed case-insensitively since stage outputs may use either
// host's spelling.
func (d *Data) Rows() []Row {
	branches := index(d.Branches, func(r models.BranchComparison) string { return r.Repo })
	commits := index(d.Commits, func(r models.CommitComparison) string { return r.Repo })
	tags := index(d.Tags, func(r models.TagComparison) string { return r.Repo })
	workflows := index(d.Workflows, func(r models.WorkflowCheck) string { return r.Repo })

	rows := make([]Row, 0, len(d.Repositories.Matched))
	for _, m := range d.Repositories.Matched {
		key := strings.ToLower(m.Name())
		row := Row{
			Repo:      m.Name(),
			GitHub:    m.GitHub.FullName(),
			Branches:  StatusNoData,
			Commits:   StatusNoData,
			Tags:      StatusNoData,
			Workflows: StatusNoData,
		}
		if b, ok := branches[key]; ok {
			row.BranchDetail = b
			row.Branches = verdict(b.Complete())
		}
		if c, ok := commits[key]; ok && len(c.Branches) > 0 {
			row.CommitDetail = c
			row.Commits = verdict(c.Matches())
		}
		if t, ok := tags[key]; ok {
			row.TagDetail = t
			row.Tags = verdict(t.Complete())
		}
		if w, ok := workflows[strings.ToLower(m.GitHub.Repo)]; ok {
			row.WorkflowDetail = w
			row.Workflows = verdict(w.OK)
		}
		rows = append(rows, row)
	}
	return rows
}

// Totals counts rows per status for each check.
type Totals struct {
	Matched      int
	OnlyInAzure  int
	OnlyInGitHub int
	FullyOK      int
	Failed       map[string]int
}

func (d *Data) Totals(rows []Row) Totals {
	t := Totals{
		Matched:      len(d.Repositories.Matched),
		OnlyInAzure:  len(d.Repositories.OnlyInAzure),
		OnlyInGitHub: len(d.Repositories.OnlyInGitHub),
		Failed:       map[string]int{},
	}
	for _, r := range rows {
		if r.OK() {
			t.FullyOK++
		}
		for stage, s := range map[string]Status{
			models.StageBranches:  r.Branches,
			models.StageCommits:   r.Commits,
			models.StageTags:      r.Tags,
			models.StageWorkflows: r.Workflows,
		} {
			if s == StatusFailed {
				t.Failed[stage]++
			}
		}
	}
	return t
}

func verdict(ok bool) Status {
	if ok {
		return StatusOK
	}
	return StatusFailed
}

func index[T any](records []T, key func(T) string) map[string]*T {
	out := make(map[string]*T, len(records))
	for i := range records {
		out[strings.ToLower(key(records[i]))] = &records[i]
	}
	return out
}

// joinOrDash renders a name list for a table cell.
func joinOrDash(names []string) string {
	if len(names) == 0 {
		return "—"
	}
	return strings.Join(names, ", ")
}

func statusLabel(s Status, check string) string {
	switch s {
	case StatusOK:
		switch check {
		case models.StageBranches:
			return "✔ Complete"
		case models.StageCommits:
			return "✔ Match"
		case models.StageTags:
			return "✔ Same tags"
		default:
			return "✔ Present"
		}
	case StatusFailed:
		switch check {
		case models.StageBranches:
			return "⚠ Incomplete"
		case models.StageCommits:
			return "❌ Differences"
		case models.StageTags:
			return "❌ Tags differ"
		default:
			return "❌ Missing files"
		}
	default:
		return "❔ No data"
	}
}

func (t Totals) String() string {
	return fmt.Sprintf("%d matched, %d fully migrated, %d only in Azure DevOps, %d only in GitHub",
		t.Matched, t.FullyOK, t.OnlyInAzure, t.OnlyInGitHub)
}
