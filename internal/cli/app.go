package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/migration-auditor/internal/audit"
	"github.com/kuhlman-labs/migration-auditor/internal/azuredevops"
	"github.com/kuhlman-labs/migration-auditor/internal/compare"
	"github.com/kuhlman-labs/migration-auditor/internal/config"
	"github.com/kuhlman-labs/migration-auditor/internal/github"
	"github.com/kuhlman-labs/migration-auditor/internal/logging"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
	"github.com/kuhlman-labs/migration-auditor/internal/storage"
)

// app is the per-invocation state shared by every command.
type app struct {
	cfg    *config.Config
	log    *logging.Logger
	logger *slog.Logger
	store  *storage.Store
}

// newApp loads configuration, applies flag overrides, and opens the logger and the record store.
func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(config.Options{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.DataDir = opts.dataDir
	}
	if cmd.Flags().Changed("workers") {
		cfg.Audit.Workers = opts.workers
	}

	log := logging.NewLogger(cfg.Logging, logging.Options{Verbose: opts.verbose, Console: cmd.ErrOrStderr()})
	slog.SetDefault(log.Logger)

	store, err := storage.NewStore(cfg.Storage.DataDir, log.Logger)
	if err != nil {
		_ = log.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, logger: log.Logger, store: store}, nil
}

func (a *app) close() {
	_ = a.log.Close()
}

// withApp adapts fn into a cobra RunE that owns the app lifecycle.
func withApp(opts *rootOptions, fn func(ctx context.Context, cmd *cobra.Command, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), cmd, a)
	}
}

func (a *app) sourceClient(ctx context.Context) (*azuredevops.Client, error) {
	if err := a.cfg.ValidateSource(); err != nil {
		return nil, err
	}
	src := a.cfg.Source
	client, err := azuredevops.NewClient(ctx, azuredevops.ClientConfig{
		BaseURL:             src.BaseURL,
		Organization:        src.Organization,
		Project:             src.Project,
		PersonalAccessToken: src.Token,
		RefsPageSize:        src.RefsPageSize,
		CommitsPageSize:     src.CommitsPageSize,
		PageDelay:           src.PageDelay,
		RequestTimeout:      src.RequestTimeout,
		MaxRetries:          src.MaxRetries,
		Logger:              a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure DevOps client: %w", err)
	}
	a.logger.Debug("Azure DevOps client initialized",
		"organization", client.Organization(),
		"project", client.Project())
	return client, nil
}

func (a *app) targetClient() (*github.Client, error) {
	if err := a.cfg.ValidateTarget(); err != nil {
		return nil, err
	}
	tgt := a.cfg.Target
	clientCfg := github.ClientConfig{
		BaseURL:     tgt.BaseURL,
		Token:       tgt.Token,
		Timeout:     tgt.RequestTimeout,
		PageSize:    tgt.PageSize,
		PageDelay:   tgt.PageDelay,
		RetryConfig: github.RetryConfigFromMaxRetries(tgt.MaxRetries),
		Logger:      a.logger,
	}
	if tgt.UsesGitHubApp() {
		clientCfg.Token = ""
		clientCfg.AppID = tgt.AppID
		clientCfg.AppPrivateKey = tgt.AppPrivateKey
		clientCfg.AppInstallationID = tgt.AppInstallationID
	}

	client, err := github.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	a.logger.Debug("GitHub client initialized",
		"base_url", client.BaseURL(),
		"has_app_auth", tgt.UsesGitHubApp())
	return client, nil
}

// newService builds the audit service. The workflows stage only talks to
// GitHub, so it passes needSource=false and runs without Azure DevOps credentials.
func (a *app) newService(ctx context.Context, needSource bool, observer audit.Observer) (*audit.Service, error) {
	if needSource {
		if err := a.cfg.Validate(); err != nil {
			return nil, err
		}
	}

	target, err := a.targetClient()
	if err != nil {
		return nil, err
	}
	var source audit.SourceHost
	if needSource {
		client, err := a.sourceClient(ctx)
		if err != nil {
			return nil, err
		}
		source = client
	}

	previous, err := a.store.LoadManifest()
	if err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			a.logger.Warn("Ignoring unreadable run manifest", "error", err)
		}
		previous = nil
	}

	aliases := compare.NewAliases(a.cfg.AliasGroups()...)
	opts := audit.Options{
		Owner:             a.cfg.Target.Owner,
		OwnerType:         github.OwnerType(a.cfg.Target.OwnerType),
		Workers:           a.cfg.Audit.Workers,
		ParallelStages:    a.cfg.Audit.ParallelStages,
		Aliases:           &aliases,
		WorkflowPath:      a.cfg.Workflows.Path,
		RequiredWorkflows: a.cfg.Workflows.Required,
		ValidateWorkflows: a.cfg.Workflows.Validate,
		Observer:          observer,
		Logger:            a.logger,
	}
	return audit.NewService(source, target, a.store, opts, previous), nil
}

// finish persists the manifest even when the stage failed so the report can
// show how far the run got.
func (a *app) finish(svc *audit.Service, runErr error) error {
	if err := svc.SaveManifest(); err != nil {
		a.logger.Error("Failed to save run manifest", "error", err)
		if runErr == nil {
			return err
		}
	}
	m := svc.Manifest()
	for _, s := range m.Stages {
		if s.Failed > 0 && ranIn(m, s) {
			a.logger.Warn("Stage finished with excluded units",
				"stage", s.Stage,
				"failed", s.Failed,
				"manifest", a.store.Path(storage.FileManifest))
		}
	}
	return runErr
}

// ranIn reports whether s was produced by the run m describes rather than
// carried over from an earlier invocation.
func ranIn(m models.RunManifest, s models.StageSummary) bool {
	return !s.StartedAt.Before(m.StartedAt)
}

// failedUnits counts units excluded by the run m describes.
func failedUnits(m models.RunManifest) int {
	total := 0
	for _, s := range m.Stages {
		if ranIn(m, s) {
			total += s.Failed
		}
	}
	return total
}
