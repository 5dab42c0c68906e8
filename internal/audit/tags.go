package audit

import (
	"context"
	"fmt"

	"github.com/kuhlman-labs/migration-auditor/internal/compare"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// RunTags compares tag names of every matched repository and saves tags_comparison.json.
func (s *Service) RunTags(ctx context.Context) ([]models.TagComparison, error) {
	matched, err := s.loadMatched()
	if err != nil {
		return nil, err
	}

	records := runUnits(ctx, s, models.StageTags, matched, models.MatchedRepository.Name,
		func(ctx context.Context, m models.MatchedRepository) (models.TagComparison, error) {
			id := m.Identity()
			azure, err := s.source.ListTags(ctx, id.SourceID)
			if err != nil {
				return models.TagComparison{}, fmt.Errorf("azure tags: %w", err)
			}
			gh, err := s.target.ListTags(ctx, id.TargetOwner, id.TargetName)
			if err != nil {
				return models.TagComparison{}, fmt.Errorf("github tags: %w", err)
			}

			p := compare.Exact(azure, gh)
			return models.TagComparison{
				Repo:         id.SourceName,
				AzureTags:    compare.SortedUnique(azure),
				GitHubTags:   compare.SortedUnique(gh),
				SharedTags:   p.Shared,
				OnlyInAzure:  p.OnlySource,
				OnlyInGitHub: p.OnlyTarget,
			}, nil
		})
	sortByRepo(records, func(r models.TagComparison) string { return r.Repo })

	if err := s.store.SaveTagComparisons(records); err != nil {
		return nil, err
	}
	return records, nil
}
