package audit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuhlman-labs/migration-auditor/internal/compare"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// RunRepositories lists both hosts concurrently, matches repositories by
// case-insensitive name and saves repos_output.json. The stage is a single
// unit and any failure is fatal: every later stage depends on this record.
func (s *Service) RunRepositories(ctx context.Context) (*models.RepositoryReport, error) {
	started := time.Now().UTC()
	unit := s.opts.Owner
	s.opts.Observer.StageStarted(models.StageRepositories, 1)
	s.logger.Info("Stage started", "stage", models.StageRepositories, "owner", s.opts.Owner)

	report, err := s.matchRepositories(ctx)
	s.opts.Observer.UnitFinished(models.StageRepositories, unit, err)

	summary := models.StageSummary{
		Stage:      models.StageRepositories,
		Units:      1,
		Failures:   []models.UnitFailure{},
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		summary.Failed = 1
		summary.Failures = append(summary.Failures, models.UnitFailure{Unit: unit, Error: err.Error()})
		s.recordStage(summary)
		return nil, err
	}
	summary.Succeeded = 1
	s.recordStage(summary)

	s.logger.Info("Repositories matched",
		"matched", len(report.Matched),
		"only_in_azure", len(report.OnlyInAzure),
		"only_in_github", len(report.OnlyInGitHub))
	return report, nil
}

func (s *Service) matchRepositories(ctx context.Context) (*models.RepositoryReport, error) {
	var source []models.SourceRepository
	var target []models.TargetRepository

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		source, err = s.source.ListRepositories(gctx)
		if err != nil {
			return fmt.Errorf("failed to list Azure DevOps repositories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		target, err = s.target.ListRepositories(gctx, s.opts.Owner, s.opts.OwnerType)
		if err != nil {
			return fmt.Errorf("failed to list GitHub repositories of %s: %w", s.opts.Owner, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report, err := compare.MatchRepositories(source, target)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveRepositoryReport(report); err != nil {
		return nil, err
	}
	return report, nil
}
