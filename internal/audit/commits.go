package audit

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kuhlman-labs/migration-auditor/internal/compare"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// commitUnit is one (repository, branch pair) of the commits stage.
type commitUnit struct {
	repo models.MatchedRepository
	pair models.BranchPair
}

func (u commitUnit) name() string {
	return u.repo.Name() + "@" + u.pair.Label
}

type branchResult struct {
	repo    string
	commits models.BranchCommits
}

// RunCommits compares the history of every branch pair recorded by the
// branches stage and saves commits_comparison.json. Failed pairs are left
// out of their repository's record, and a repository with no compared pair
// gets no record at all.
func (s *Service) RunCommits(ctx context.Context) ([]models.CommitComparison, error) {
	matched, err := s.loadMatched()
	if err != nil {
		return nil, err
	}
	branches, err := s.store.LoadBranchComparisons()
	if err != nil {
		return nil, fmt.Errorf("failed to load branch pairs: %w", err)
	}

	pairs := make(map[string][]models.BranchPair, len(branches))
	for _, b := range branches {
		pairs[strings.ToLower(b.Repo)] = b.BranchPairs
	}

	var units []commitUnit
	records := make(map[string]*models.CommitComparison)
	for _, m := range matched {
		repoPairs, ok := pairs[strings.ToLower(m.Name())]
		if !ok {
			// Branch stage failed for this repository.
			s.logger.Debug("No branch comparison, skipping commits", "repo", m.Name())
			continue
		}
		records[m.Name()] = &models.CommitComparison{Repo: m.Name(), Branches: []models.BranchCommits{}}
		for _, p := range repoPairs {
			units = append(units, commitUnit{repo: m, pair: p})
		}
	}

	results := runUnits(ctx, s, models.StageCommits, units, commitUnit.name,
		func(ctx context.Context, u commitUnit) (branchResult, error) {
			bc, err := s.compareCommits(ctx, u)
			return branchResult{repo: u.repo.Name(), commits: bc}, err
		})

	for _, r := range results {
		rec := records[r.repo]
		rec.Branches = append(rec.Branches, r.commits)
	}

	out := make([]models.CommitComparison, 0, len(records))
	for _, rec := range records {
		if len(rec.Branches) == 0 {
			s.logger.Debug("No branch pair compared, skipping commits record", "repo", rec.Repo)
			continue
		}
		slices.SortFunc(rec.Branches, func(a, b models.BranchCommits) int {
			return strings.Compare(a.Branch, b.Branch)
		})
		out = append(out, *rec)
	}
	sortByRepo(out, func(r models.CommitComparison) string { return r.Repo })

	if err := s.store.SaveCommitComparisons(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) compareCommits(ctx context.Context, u commitUnit) (models.BranchCommits, error) {
	id := u.repo.Identity()

	azure, err := s.source.ListCommits(ctx, id.SourceID, u.pair.Azure)
	if err != nil {
		return models.BranchCommits{}, fmt.Errorf("azure commits on %s: %w", u.pair.Azure, err)
	}
	gh, err := s.target.ListCommits(ctx, id.TargetOwner, id.TargetName, u.pair.GitHub)
	if err != nil {
		return models.BranchCommits{}, fmt.Errorf("github commits on %s: %w", u.pair.GitHub, err)
	}

	p := compare.Exact(azure, gh)
	return models.BranchCommits{
		Branch:          u.pair.Label,
		AzureBranch:     u.pair.Azure,
		GitHubBranch:    u.pair.GitHub,
		SharedCommits:   p.Shared,
		MissingInGitHub: p.OnlySource,
		ExtraInGitHub:   p.OnlyTarget,
	}, nil
}
