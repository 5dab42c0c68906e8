package compare

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// ErrNameCollision is returned when two repositories on the same host differ
// only by case, which makes case-insensitive matching ambiguous.
var ErrNameCollision = errors.New("repository name collision")

// MatchRepositories pairs source and target repositories whose names are equal
// ignoring case. Every input repository ends up in exactly one of the three
// output lists. Lists are sorted by name.
func MatchRepositories(source []models.SourceRepository, target []models.TargetRepository) (*models.RepositoryReport, error) {
	srcByKey := make(map[string]models.SourceRepository, len(source))
	for _, r := range source {
		key := strings.ToLower(r.RepoName)
		if prev, ok := srcByKey[key]; ok {
			return nil, fmt.Errorf("%w on Azure DevOps: %q and %q", ErrNameCollision, prev.RepoName, r.RepoName)
		}
		srcByKey[key] = r
	}

	dstByKey := make(map[string]models.TargetRepository, len(target))
	for _, r := range target {
		key := strings.ToLower(r.Repo)
		if prev, ok := dstByKey[key]; ok {
			return nil, fmt.Errorf("%w on GitHub: %q and %q", ErrNameCollision, prev.FullName(), r.FullName())
		}
		dstByKey[key] = r
	}

	report := &models.RepositoryReport{
		Matched:      []models.MatchedRepository{},
		OnlyInAzure:  []models.SourceRepository{},
		OnlyInGitHub: []models.TargetRepository{},
	}

	for key, src := range srcByKey {
		if dst, ok := dstByKey[key]; ok {
			report.Matched = append(report.Matched, models.MatchedRepository{Azure: src, GitHub: dst})
		} else {
			report.OnlyInAzure = append(report.OnlyInAzure, src)
		}
	}
	for key, dst := range dstByKey {
		if _, ok := srcByKey[key]; !ok {
			report.OnlyInGitHub = append(report.OnlyInGitHub, dst)
		}
	}

	slices.SortFunc(report.Matched, func(a, b models.MatchedRepository) int {
		return compareFold(a.Azure.RepoName, b.Azure.RepoName)
	})
	slices.SortFunc(report.OnlyInAzure, func(a, b models.SourceRepository) int {
		return compareFold(a.RepoName, b.RepoName)
	})
	slices.SortFunc(report.OnlyInGitHub, func(a, b models.TargetRepository) int {
		return compareFold(a.Repo, b.Repo)
	})

	return report, nil
}

// compareFold orders case-insensitively, breaking ties by exact comparison so
// the order is total.
func compareFold(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
