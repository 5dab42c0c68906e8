package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
	"github.com/kuhlman-labs/migration-auditor/internal/storage"
)

// isolateEnv keeps the developer's shell and .env out of config loading.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"AZURE_ORG", "AZURE_PROJECT", "AZURE_TOKEN", "GITHUB_OWNER", "GITHUB_TOKEN", "MAX_WORKERS"} {
		t.Setenv(name, "")
	}
	return filepath.Join(t.TempDir(), "missing.env")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "migration-auditor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seedRecords(t *testing.T, dir string) {
	t.Helper()
	store, err := storage.NewStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, store.SaveRepositoryReport(&models.RepositoryReport{
		Matched: []models.MatchedRepository{{
			Azure:  models.SourceRepository{RepoID: "1", RepoName: "billing", Org: "contoso", Project: "core"},
			GitHub: models.TargetRepository{Repo: "billing", Owner: "acme"},
		}},
		OnlyInAzure:  []models.SourceRepository{},
		OnlyInGitHub: []models.TargetRepository{{Repo: "web", Owner: "acme"}},
	}))
	require.NoError(t, store.SaveTagComparisons([]models.TagComparison{{
		Repo:         "billing",
		AzureTags:    []string{"v1"},
		GitHubTags:   []string{"v1"},
		SharedTags:   []string{"v1"},
		OnlyInAzure:  []string{},
		OnlyInGitHub: []string{},
	}}))
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand("test")
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "repos", "branches", "commits", "tags", "workflows", "report", "check"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "verbose", "data-dir", "workers"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestNewApp_FlagOverrides(t *testing.T) {
	envFile := isolateEnv(t)
	dataDir := filepath.Join(t.TempDir(), "records")
	cfgPath := writeConfig(t, "logging:\n  output_file: \"\"\naudit:\n  workers: 12\n")

	opts := &rootOptions{}
	root := newRootCommand("test", opts)
	root.SetErr(io.Discard)
	cmd, _, err := root.Find([]string{"report"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", cfgPath, "--env-file", envFile, "--data-dir", dataDir, "--workers", "3",
	}))

	a, err := newApp(cmd, opts)
	require.NoError(t, err)
	defer a.close()

	assert.Equal(t, dataDir, a.cfg.Storage.DataDir)
	assert.Equal(t, 3, a.cfg.Audit.Workers)
	assert.DirExists(t, dataDir)
}

func TestReportCommand(t *testing.T) {
	envFile := isolateEnv(t)
	dataDir := t.TempDir()
	reportDir := filepath.Join(t.TempDir(), "reports")
	seedRecords(t, dataDir)
	cfgPath := writeConfig(t, "logging:\n  output_file: \"\"\nreport:\n  certifier: Release Team\n")

	out, err := execute(t, "report", "--config", cfgPath, "--env-file", envFile,
		"--data-dir", dataDir, "--output-dir", reportDir)
	require.NoError(t, err)

	html, err := os.ReadFile(filepath.Join(reportDir, "final_report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Release Team")
	assert.Contains(t, string(html), "acme/web")

	assert.Contains(t, out, "billing")
	assert.Contains(t, out, "1 matched, 1 fully migrated, 0 only in Azure DevOps, 1 only in GitHub")
}

func TestReportCommand_CertifierFlag(t *testing.T) {
	envFile := isolateEnv(t)
	dataDir := t.TempDir()
	reportDir := t.TempDir()
	seedRecords(t, dataDir)
	cfgPath := writeConfig(t, "logging:\n  output_file: \"\"\n")

	out, err := execute(t, "report", "--config", cfgPath, "--env-file", envFile,
		"--data-dir", dataDir, "-o", reportDir, "--certifier", "Jordan Lee", "--summary=false")
	require.NoError(t, err)
	assert.Empty(t, out)

	html, err := os.ReadFile(filepath.Join(reportDir, "final_report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Jordan Lee")
}

func TestReportCommand_RequiresRepositories(t *testing.T) {
	envFile := isolateEnv(t)
	cfgPath := writeConfig(t, "logging:\n  output_file: \"\"\n")

	_, err := execute(t, "report", "--config", cfgPath, "--env-file", envFile,
		"--data-dir", t.TempDir(), "-o", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrRecordNotFound))
}

func TestStageCommand_RequiresConfiguration(t *testing.T) {
	envFile := isolateEnv(t)
	cfgPath := writeConfig(t, "logging:\n  output_file: \"\"\n")

	_, err := execute(t, "branches", "--config", cfgPath, "--env-file", envFile, "--data-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_ORG")
}

func TestCheckCommand(t *testing.T) {
	envFile := isolateEnv(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"login": "octocat", "type": "User"})
	})
	mux.HandleFunc("/api/v3/rate_limit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resources": map[string]any{
				"core": map[string]any{"limit": 5000, "remaining": 4990, "reset": 1767225600},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfgPath := writeConfig(t, "logging:\n  output_file: \"\"\n"+
		"target:\n  base_url: "+srv.URL+"/\n  owner: acme\n  token: test-token\n  max_retries: 0\n")

	out, err := execute(t, "check", "--config", cfgPath, "--env-file", envFile, "--data-dir", t.TempDir())

	// Azure DevOps is not configured, GitHub is.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Azure DevOps")
	assert.NotContains(t, err.Error(), "GitHub:")
	assert.Contains(t, out, "octocat")
	assert.Contains(t, out, "4990/5000")
}

func TestProgressObserver(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressObserver(&buf)

	p.StageStarted(models.StageBranches, 3)
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.UnitFinished(models.StageBranches, "repo", nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, p.completed(models.StageBranches))

	p.StageFinished(models.StageSummary{Stage: models.StageBranches, Units: 3, Succeeded: 3})
	assert.Contains(t, buf.String(), "Comparing branches")

	// Events for a stage that never started are ignored.
	p.UnitFinished(models.StageTags, "repo", nil)
	assert.Zero(t, p.completed(models.StageTags))
}

func TestRanIn(t *testing.T) {
	m := models.RunManifest{RunID: "r", StartedAt: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	old := models.StageSummary{Stage: models.StageTags, Failed: 2, StartedAt: m.StartedAt.AddDate(0, 0, -1)}
	current := models.StageSummary{Stage: models.StageBranches, Failed: 1, StartedAt: m.StartedAt}
	m.Stages = []models.StageSummary{current, old}

	assert.True(t, ranIn(m, current))
	assert.False(t, ranIn(m, old))
	assert.Equal(t, 1, failedUnits(m))
}
