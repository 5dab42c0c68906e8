package audit

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kuhlman-labs/migration-auditor/internal/compare"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// RunBranches compares the branches of every matched repository and saves
// branches_comparison.json. The branch pairs it records drive the commits stage.
func (s *Service) RunBranches(ctx context.Context) ([]models.BranchComparison, error) {
	matched, err := s.loadMatched()
	if err != nil {
		return nil, err
	}

	records := runUnits(ctx, s, models.StageBranches, matched, models.MatchedRepository.Name,
		func(ctx context.Context, m models.MatchedRepository) (models.BranchComparison, error) {
			return s.compareBranches(ctx, m)
		})
	sortByRepo(records, func(r models.BranchComparison) string { return r.Repo })

	if err := s.store.SaveBranchComparisons(records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) compareBranches(ctx context.Context, m models.MatchedRepository) (models.BranchComparison, error) {
	id := m.Identity()

	azure, err := s.source.ListBranches(ctx, id.SourceID)
	if err != nil {
		return models.BranchComparison{}, fmt.Errorf("azure branches: %w", err)
	}
	gh, err := s.target.ListBranches(ctx, id.TargetOwner, id.TargetName)
	if err != nil {
		return models.BranchComparison{}, fmt.Errorf("github branches: %w", err)
	}

	p := compare.Branches(azure, gh, *s.opts.Aliases)
	return models.BranchComparison{
		Repo:           id.SourceName,
		AzureBranches:  compare.SortedUnique(azure),
		GitHubBranches: compare.SortedUnique(gh),
		SharedBranches: p.Shared,
		OnlyInAzure:    p.OnlySource,
		OnlyInGitHub:   p.OnlyTarget,
		BranchPairs:    compare.PairBranches(azure, gh, *s.opts.Aliases),
	}, nil
}

// sortByRepo orders records case-insensitively by repository name.
func sortByRepo[T any](records []T, repo func(T) string) {
	slices.SortFunc(records, func(a, b T) int {
		ra, rb := repo(a), repo(b)
		if c := strings.Compare(strings.ToLower(ra), strings.ToLower(rb)); c != 0 {
			return c
		}
		return strings.Compare(ra, rb)
	})
}
