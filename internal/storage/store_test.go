package storage

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "data"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return store
}

func sampleReport() *models.RepositoryReport {
	return &models.RepositoryReport{
		Matched: []models.MatchedRepository{{
			Azure:  models.SourceRepository{RepoID: "1f0c", RepoName: "billing", Org: "contoso", Project: "Platform"},
			GitHub: models.TargetRepository{Repo: "billing", Owner: "acme"},
		}},
		OnlyInAzure:  []models.SourceRepository{{RepoID: "9a1b", RepoName: "legacy", Org: "contoso", Project: "Platform"}},
		OnlyInGitHub: []models.TargetRepository{},
	}
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore("", nil)
	assert.Error(t, err)
}

func TestStore_RepositoryReportRoundTrip(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveRepositoryReport(sampleReport()))

	got, err := store.LoadRepositoryReport()
	require.NoError(t, err)
	assert.Equal(t, sampleReport(), got)

	raw, err := os.ReadFile(store.Path(FileRepositories))
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Contains(t, generic, "only_in_github")
	assert.Equal(t, []any{}, generic["only_in_github"])
}

func TestStore_MissingRecord(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadRepositoryReport()
	assert.True(t, errors.Is(err, ErrRecordNotFound))

	_, err = store.LoadTagComparisons()
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestStore_RejectsUnknownFields(t *testing.T) {
	store := newTestStore(t)
	data := `{"matched":[],"only_in_azure":[],"only_in_github":[],"extra":true}`
	require.NoError(t, os.WriteFile(store.Path(FileRepositories), []byte(data), 0o600))

	_, err := store.LoadRepositoryReport()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra")
}

func TestStore_RejectsTrailingData(t *testing.T) {
	store := newTestStore(t)
	data := `[] []`
	require.NoError(t, os.WriteFile(store.Path(FileTags), []byte(data), 0o600))

	_, err := store.LoadTagComparisons()
	assert.Error(t, err)
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	store := newTestStore(t)

	bad := &models.RepositoryReport{Matched: []models.MatchedRepository{}, OnlyInAzure: nil, OnlyInGitHub: []models.TargetRepository{}}
	assert.Error(t, store.SaveRepositoryReport(bad))

	data := `{"matched":null,"only_in_azure":[],"only_in_github":[]}`
	require.NoError(t, os.WriteFile(store.Path(FileRepositories), []byte(data), 0o600))
	_, err := store.LoadRepositoryReport()
	assert.Error(t, err)

	check := models.WorkflowCheck{
		Repo:          "billing",
		Owner:         "acme",
		RequiredFiles: []string{"x.yml"},
		MissingFiles:  []string{"x.yml"},
		PresentFiles:  []string{},
		OK:            true,
	}
	assert.Error(t, store.SaveWorkflowChecks([]models.WorkflowCheck{check}))
}

func TestStore_ListRecordsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	tags := []models.TagComparison{{
		Repo:         "billing",
		AzureTags:    []string{"v1", "v2"},
		GitHubTags:   []string{"v1"},
		SharedTags:   []string{"v1"},
		OnlyInAzure:  []string{"v2"},
		OnlyInGitHub: []string{},
	}}
	require.NoError(t, store.SaveTagComparisons(tags))
	gotTags, err := store.LoadTagComparisons()
	require.NoError(t, err)
	assert.Equal(t, tags, gotTags)

	require.NoError(t, store.SaveCommitComparisons(nil))
	gotCommits, err := store.LoadCommitComparisons()
	require.NoError(t, err)
	assert.NotNil(t, gotCommits)
	assert.Empty(t, gotCommits)
}

func TestStore_OverwriteLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveBranchComparisons(nil))
	require.NoError(t, store.SaveBranchComparisons(nil))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{FileBranches}, names)
}

func TestStore_ManifestRoundTrip(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	m := &models.RunManifest{RunID: "run-1", StartedAt: started, FinishedAt: started.Add(time.Minute)}
	m.Record(models.StageSummary{
		Stage:     models.StageTags,
		Units:     2,
		Succeeded: 1,
		Failed:    1,
		Failures:  []models.UnitFailure{{Unit: "payments", Error: "boom"}},
	})
	require.NoError(t, store.SaveManifest(m))

	got, err := store.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	summary, ok := got.Stage(models.StageTags)
	require.True(t, ok)
	assert.Equal(t, []models.UnitFailure{{Unit: "payments", Error: "boom"}}, summary.Failures)
	assert.True(t, got.StartedAt.Equal(started))
}

func TestStore_WriteSchemas(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.WriteSchemas())

	for _, file := range []string{FileRepositories, FileBranches, FileCommits, FileTags, FileWorkflows, FileManifest} {
		path := filepath.Join(store.Dir(), SchemaDir, SchemaFileName(file))
		data, err := os.ReadFile(path)
		require.NoError(t, err, file)

		var schema map[string]any
		require.NoError(t, json.Unmarshal(data, &schema), file)
		assert.Equal(t, file, schema["title"])
	}
}

func TestSchema_RepositoryReportRequiresContractFields(t *testing.T) {
	schema, err := Schema(FileRepositories)
	require.NoError(t, err)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	for _, field := range []string{"matched", "only_in_azure", "only_in_github", "repo_id", "repo_name", "owner"} {
		assert.Contains(t, string(data), `"`+field+`"`)
	}

	_, err = Schema("unknown.json")
	assert.Error(t, err)
}

func TestSchemaFileName(t *testing.T) {
	assert.Equal(t, "repos_output.schema.json", SchemaFileName(FileRepositories))
}
