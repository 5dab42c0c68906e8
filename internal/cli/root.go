// Package cli wires configuration, logging, both host clients and the audit
// stages into the migration-auditor command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	exitCodeErr       = 1
	exitCodeInterrupt = 2
)

// rootOptions hold the persistent flags. A flag overrides configuration only
// when it was set on the command line.
type rootOptions struct {
	configFile string
	envFile    string
	verbose    bool
	dataDir    string
	workers    int
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, &rootOptions{})
}

func newRootCommand(version string, opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "migration-auditor",
		Short: "Audit an Azure DevOps to GitHub migration",
		Long: `Compares the repositories, branches, commits, tags and required workflow
files of an Azure DevOps project with the GitHub owner they were migrated to,
and renders the result as an HTML report.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default is migration-auditor.yaml in . or ./configs)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.dataDir, "data-dir", "", "directory holding the stage records (overrides storage.data_dir)")
	flags.IntVarP(&opts.workers, "workers", "w", 0, "concurrent units per stage (overrides audit.workers)")

	root.AddCommand(
		newRunCommand(opts),
		newStageCommand(opts, stageRepositories),
		newStageCommand(opts, stageBranches),
		newStageCommand(opts, stageCommits),
		newStageCommand(opts, stageTags),
		newStageCommand(opts, stageWorkflows),
		newReportCommand(opts),
		newCheckCommand(opts),
	)
	return root
}

// Execute runs the command tree. The first SIGINT or SIGTERM cancels the
// context so in-flight stages stop dispatching units; a second one exits.
func Execute(version string) {
	ctx, cancel := context.WithCancel(context.Background())
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(signalChan)
		cancel()
	}()

	go func() {
		select {
		case <-signalChan:
			fmt.Fprintln(os.Stderr, "Interrupted, finishing in-flight requests (press Ctrl+C again to exit now)")
			cancel()
		case <-ctx.Done():
			return
		}
		<-signalChan
		os.Exit(exitCodeInterrupt)
	}()

	if err := NewRootCommand(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeErr)
	}
}
