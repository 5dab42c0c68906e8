package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kuhlman-labs/migration-auditor/internal/audit"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// stage describes one single-stage sub-command.
type stage struct {
	name       string
	short      string
	needSource bool
	run        func(ctx context.Context, svc *audit.Service) error
}

var (
	stageRepositories = stage{
		name:       "repos",
		short:      "Match repositories by name across both hosts",
		needSource: true,
		run: func(ctx context.Context, svc *audit.Service) error {
			_, err := svc.RunRepositories(ctx)
			return err
		},
	}
	stageBranches = stage{
		name:       models.StageBranches,
		short:      "Compare branches of every matched repository",
		needSource: true,
		run: func(ctx context.Context, svc *audit.Service) error {
			_, err := svc.RunBranches(ctx)
			return err
		},
	}
	stageCommits = stage{
		name:       models.StageCommits,
		short:      "Compare commit history of every paired branch",
		needSource: true,
		run: func(ctx context.Context, svc *audit.Service) error {
			_, err := svc.RunCommits(ctx)
			return err
		},
	}
	stageTags = stage{
		name:       models.StageTags,
		short:      "Compare tags of every matched repository",
		needSource: true,
		run: func(ctx context.Context, svc *audit.Service) error {
			_, err := svc.RunTags(ctx)
			return err
		},
	}
	stageWorkflows = stage{
		name:  models.StageWorkflows,
		short: "Check every matched GitHub repository for the required workflow files",
		run: func(ctx context.Context, svc *audit.Service) error {
			_, err := svc.RunWorkflows(ctx)
			return err
		},
	}
)

func newStageCommand(opts *rootOptions, st stage) *cobra.Command {
	return &cobra.Command{
		Use:   st.name,
		Short: st.short,
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app) error {
			svc, err := a.newService(ctx, st.needSource, newProgressObserver(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			a.logger.Info("Running stage", "stage", st.name, "run_id", svc.RunID())
			return a.finish(svc, st.run(ctx, svc))
		}),
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		parallel  bool
		noReport  bool
		certifier string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage and render the report",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(ctx context.Context, cmd *cobra.Command, a *app) error {
			if cmd.Flags().Changed("parallel-stages") {
				a.cfg.Audit.ParallelStages = parallel
			}
			if cmd.Flags().Changed("certifier") {
				a.cfg.Report.Certifier = certifier
			}

			svc, err := a.newService(ctx, true, newProgressObserver(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			if err := a.store.WriteSchemas(); err != nil {
				a.logger.Warn("Failed to write record schemas", "error", err)
			}

			a.logger.Info("Starting audit",
				"run_id", svc.RunID(),
				"organization", a.cfg.Source.Organization,
				"project", a.cfg.Source.Project,
				"owner", a.cfg.Target.Owner,
				"workers", a.cfg.Audit.Workers,
				"parallel_stages", a.cfg.Audit.ParallelStages)

			if err := a.finish(svc, svc.RunAll(ctx)); err != nil {
				return err
			}
			a.logger.Info("Audit finished", "run_id", svc.RunID(), "failed_units", failedUnits(svc.Manifest()))

			if noReport {
				return nil
			}
			return a.renderReport(cmd.OutOrStdout())
		}),
	}

	cmd.Flags().BoolVar(&parallel, "parallel-stages", false, "run the commits, tags and workflows stages concurrently")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "skip the HTML report and console summary")
	cmd.Flags().StringVar(&certifier, "certifier", "", "name printed on the report as the person certifying the audit")
	return cmd
}
