// Package audit runs the comparison stages: it fetches from both hosts,
// partitions the results and persists one record file per stage.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kuhlman-labs/migration-auditor/internal/compare"
	"github.com/kuhlman-labs/migration-auditor/internal/github"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
	"github.com/kuhlman-labs/migration-auditor/internal/storage"
	"github.com/kuhlman-labs/migration-auditor/internal/worker"
)

// SourceHost is the Azure DevOps side of the audit.
type SourceHost interface {
	ListRepositories(ctx context.Context) ([]models.SourceRepository, error)
	ListBranches(ctx context.Context, repoID string) ([]string, error)
	ListTags(ctx context.Context, repoID string) ([]string, error)
	ListCommits(ctx context.Context, repoID, branch string) ([]string, error)
}

// TargetHost is the GitHub side of the audit.
type TargetHost interface {
	ListRepositories(ctx context.Context, owner string, ownerType github.OwnerType) ([]models.TargetRepository, error)
	ListBranches(ctx context.Context, owner, repo string) ([]string, error)
	ListTags(ctx context.Context, owner, repo string) ([]string, error)
	ListCommits(ctx context.Context, owner, repo, branch string) ([]string, error)
	ListWorkflowFiles(ctx context.Context, owner, repo, dir string) ([]string, bool, error)
	GetFileContent(ctx context.Context, owner, repo, path string) ([]byte, error)
}

// Observer receives progress events. The CLI renders them as progress bars.
type Observer interface {
	StageStarted(stage string, units int)
	UnitFinished(stage, unit string, err error)
	StageFinished(summary models.StageSummary)
}

type nopObserver struct{}

func (nopObserver) StageStarted(string, int)           {}
func (nopObserver) UnitFinished(string, string, error) {}
func (nopObserver) StageFinished(models.StageSummary)  {}

// Options configures a Service.
type Options struct {
	Owner     string
	OwnerType github.OwnerType

	Workers        int
	ParallelStages bool
	// Aliases is the branch alias relation. Nil selects master/main; an
	// empty relation disables aliasing.
	Aliases *compare.Aliases

	WorkflowPath      string
	RequiredWorkflows []string
	ValidateWorkflows bool

	Observer Observer
	Logger   *slog.Logger
}

// Service runs audit stages against one source project and one target owner.
type Service struct {
	source SourceHost
	target TargetHost
	store  *storage.Store
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	manifest *models.RunManifest
}

// NewService creates a Service. A previous manifest may be passed so that a
// single-stage invocation keeps the summaries of the other stages.
func NewService(source SourceHost, target TargetHost, store *storage.Store, opts Options, previous *models.RunManifest) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.OwnerType == "" {
		opts.OwnerType = github.OwnerTypeAuto
	}
	if opts.Aliases == nil {
		defaults := compare.DefaultAliases()
		opts.Aliases = &defaults
	}

	runID := uuid.NewString()
	manifest := &models.RunManifest{RunID: runID, StartedAt: time.Now().UTC(), Stages: []models.StageSummary{}}
	if previous != nil {
		for _, s := range previous.Stages {
			manifest.Record(s)
		}
	}

	return &Service{
		source:   source,
		target:   target,
		store:    store,
		opts:     opts,
		logger:   opts.Logger.With("run_id", runID),
		manifest: manifest,
	}
}

// RunID identifies this invocation in logs and in the manifest.
func (s *Service) RunID() string {
	return s.manifest.RunID
}

// Manifest returns a snapshot of the run manifest.
func (s *Service) Manifest() models.RunManifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *s.manifest
	m.Stages = append([]models.StageSummary{}, s.manifest.Stages...)
	return m
}

// SaveManifest stamps the finish time and persists the manifest.
func (s *Service) SaveManifest() error {
	s.mu.Lock()
	s.manifest.FinishedAt = time.Now().UTC()
	m := *s.manifest
	s.mu.Unlock()
	return s.store.SaveManifest(&m)
}

// RunAll executes every stage. Tags, commits and workflows run concurrently
// when ParallelStages is set; the first stage error aborts the run.
func (s *Service) RunAll(ctx context.Context) error {
	if _, err := s.RunRepositories(ctx); err != nil {
		return err
	}
	if _, err := s.RunBranches(ctx); err != nil {
		return err
	}

	later := []func(context.Context) error{
		func(ctx context.Context) error { _, err := s.RunCommits(ctx); return err },
		func(ctx context.Context) error { _, err := s.RunTags(ctx); return err },
		func(ctx context.Context) error { _, err := s.RunWorkflows(ctx); return err },
	}

	if !s.opts.ParallelStages {
		for _, run := range later {
			if err := run(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range later {
		g.Go(func() error { return run(gctx) })
	}
	return g.Wait()
}

// loadMatched reads the repos stage output that every later stage fans out over.
func (s *Service) loadMatched() ([]models.MatchedRepository, error) {
	report, err := s.store.LoadRepositoryReport()
	if err != nil {
		return nil, fmt.Errorf("failed to load matched repositories: %w", err)
	}
	return report.Matched, nil
}

// runUnits fans fn out over units on the worker pool, records the stage
// summary and returns the successful values.
func runUnits[U, R any](ctx context.Context, s *Service, stage string, units []U, name func(U) string, fn func(context.Context, U) (R, error)) []R {
	started := time.Now().UTC()
	s.opts.Observer.StageStarted(stage, len(units))
	s.logger.Info("Stage started", "stage", stage, "units", len(units))

	outcomes := worker.Run(ctx, worker.Config{
		Workers: s.opts.Workers,
		Logger:  s.logger,
		Stage:   stage,
		OnComplete: func(unit string, err error) {
			s.opts.Observer.UnitFinished(stage, unit, err)
		},
	}, units, name, fn)

	values, failures := worker.Split(outcomes)
	summary := models.StageSummary{
		Stage:      stage,
		Units:      len(units),
		Succeeded:  len(values),
		Failed:     len(failures),
		Failures:   make([]models.UnitFailure, 0, len(failures)),
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
	for _, f := range failures {
		summary.Failures = append(summary.Failures, models.UnitFailure{Unit: f.Unit, Error: f.Err.Error()})
	}
	s.recordStage(summary)
	return values
}

func (s *Service) recordStage(summary models.StageSummary) {
	s.mu.Lock()
	s.manifest.Record(summary)
	s.mu.Unlock()
	s.opts.Observer.StageFinished(summary)
	s.logger.Info("Stage finished",
		"stage", summary.Stage,
		"units", summary.Units,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))
}
