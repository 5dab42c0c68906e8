package azuredevops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"

	"github.com/kuhlman-labs/migration-auditor/internal/ado"
	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

const (
	refsHeadsPrefix = "refs/heads/"
	refsTagsPrefix  = "refs/tags/"

	DefaultRefsPageSize    = 5000
	DefaultCommitsPageSize = 1000
	DefaultPageDelay       = 200 * time.Millisecond
	DefaultRequestTimeout  = 60 * time.Second
	DefaultMaxRetries      = 3
)

// gitAPI is the subset of git.Client the auditor calls.
type gitAPI interface {
	GetRepositories(context.Context, git.GetRepositoriesArgs) (*[]git.GitRepository, error)
	GetRefs(context.Context, git.GetRefsArgs) (*git.GetRefsResponseValue, error)
	GetCommits(context.Context, git.GetCommitsArgs) (*[]git.GitCommitRef, error)
}

// projectAPI is the subset of core.Client used for the connectivity check.
type projectAPI interface {
	GetProject(context.Context, core.GetProjectArgs) (*core.TeamProject, error)
}

// Client reads repositories, refs and commit history from one Azure DevOps project.
// It is safe for concurrent use.
type Client struct {
	git      gitAPI
	projects projectAPI

	organization string
	project      string

	refsPageSize    int
	commitsPageSize int
	pageDelay       time.Duration
	requestTimeout  time.Duration
	maxRetries      int
	newBackOff      func() backoff.BackOff

	logger *slog.Logger
}

// ClientConfig contains configuration for creating an ADO client
type ClientConfig struct {
	// BaseURL overrides https://dev.azure.com for Azure DevOps Server.
	BaseURL string
	// Organization is a name or an organization URL; a project segment in
	// the URL is used when Project is empty.
	Organization        string
	Project             string
	PersonalAccessToken string

	RefsPageSize    int
	CommitsPageSize int
	PageDelay       time.Duration
	RequestTimeout  time.Duration
	MaxRetries      int
	Logger          *slog.Logger
}

// Validate checks if the configuration is valid
func (c ClientConfig) Validate() error {
	if c.Organization == "" {
		return fmt.Errorf("organization is required")
	}
	if c.PersonalAccessToken == "" {
		return fmt.Errorf("personal access token is required")
	}
	if _, err := ado.ParseOrganization(c.Organization); err != nil {
		return err
	}
	return nil
}

// NewClient opens a PAT connection and creates the git and core service clients.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, _ := ado.ParseOrganization(cfg.Organization)
	baseURL := cfg.BaseURL
	if strings.TrimSuffix(baseURL, "/") == ado.DefaultBaseURL {
		baseURL = ""
	}
	orgURL := loc.OrganizationURL(baseURL)

	connection := azuredevops.NewPatConnection(orgURL, cfg.PersonalAccessToken)

	gitClient, err := git.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create git client: %w", err)
	}
	coreClient, err := core.NewClient(ctx, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to create core client: %w", err)
	}

	if cfg.Project == "" {
		cfg.Project = loc.Project
	}
	cfg.Organization = loc.Organization
	return newClient(gitClient, coreClient, cfg), nil
}

// newClient applies defaults; tests pass fakes for the service clients.
func newClient(g gitAPI, p projectAPI, cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		git:             g,
		projects:        p,
		organization:    cfg.Organization,
		project:         cfg.Project,
		refsPageSize:    cfg.RefsPageSize,
		commitsPageSize: cfg.CommitsPageSize,
		pageDelay:       cfg.PageDelay,
		requestTimeout:  cfg.RequestTimeout,
		maxRetries:      cfg.MaxRetries,
		logger:          logger.With("host", "azure_devops"),
	}
	if c.refsPageSize <= 0 {
		c.refsPageSize = DefaultRefsPageSize
	}
	if c.commitsPageSize <= 0 {
		c.commitsPageSize = DefaultCommitsPageSize
	}
	if c.pageDelay < 0 {
		c.pageDelay = 0
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = DefaultRequestTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	c.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 10 * time.Second
		return b
	}
	return c
}

func (c *Client) Organization() string { return c.organization }
func (c *Client) Project() string      { return c.project }

// ValidateCredentials checks the PAT by reading the configured project.
func (c *Client) ValidateCredentials(ctx context.Context) error {
	err := c.do(ctx, "GetProject", func(ctx context.Context) error {
		_, err := c.projects.GetProject(ctx, core.GetProjectArgs{ProjectId: &c.project})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to validate credentials for %s/%s: %w", c.organization, c.project, err)
	}
	return nil
}

// ListRepositories returns every Git repository in the project.
func (c *Client) ListRepositories(ctx context.Context) ([]models.SourceRepository, error) {
	var repos *[]git.GitRepository
	err := c.do(ctx, "GetRepositories", func(ctx context.Context) error {
		var err error
		repos, err = c.git.GetRepositories(ctx, git.GetRepositoriesArgs{Project: &c.project})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories in %s/%s: %w", c.organization, c.project, err)
	}

	out := []models.SourceRepository{}
	if repos == nil {
		return out, nil
	}
	for _, r := range *repos {
		if r.Id == nil || r.Name == nil {
			c.logger.Warn("Skipping repository without id or name")
			continue
		}
		project := c.project
		if r.Project != nil && r.Project.Name != nil {
			project = *r.Project.Name
		}
		out = append(out, models.SourceRepository{
			RepoID:   r.Id.String(),
			RepoName: *r.Name,
			Org:      c.organization,
			Project:  project,
		})
	}

	c.logger.Info("Listed Azure DevOps repositories", "project", c.project, "count", len(out))
	return out, nil
}

// ListBranches returns branch names with the refs/heads/ prefix removed.
func (c *Client) ListBranches(ctx context.Context, repoID string) ([]string, error) {
	return c.listRefs(ctx, repoID, "heads/", refsHeadsPrefix)
}

// ListTags returns tag names with the refs/tags/ prefix removed.
func (c *Client) ListTags(ctx context.Context, repoID string) ([]string, error) {
	return c.listRefs(ctx, repoID, "tags/", refsTagsPrefix)
}

// listRefs pages through GetRefs following the continuation token until the
// service stops returning one. A 404 means the repository has no refs.
func (c *Client) listRefs(ctx context.Context, repoID, filter, prefix string) ([]string, error) {
	names := []string{}
	seen := make(map[string]bool)
	token := ""
	top := c.refsPageSize

	for page := 1; ; page++ {
		args := git.GetRefsArgs{
			RepositoryId: &repoID,
			Project:      &c.project,
			Filter:       &filter,
			Top:          &top,
		}
		if token != "" {
			t := token
			args.ContinuationToken = &t
		}

		var resp *git.GetRefsResponseValue
		err := c.do(ctx, "GetRefs", func(ctx context.Context) error {
			var err error
			resp, err = c.git.GetRefs(ctx, args)
			return err
		})
		if err != nil {
			if isExpectedEmpty(err) {
				c.logger.Debug("No refs found", "repo_id", repoID, "filter", filter)
				return []string{}, nil
			}
			return nil, fmt.Errorf("failed to list refs %s for %s: %w", filter, repoID, err)
		}
		if resp == nil {
			break
		}

		for _, ref := range resp.Value {
			if ref.Name == nil {
				continue
			}
			name := strings.TrimPrefix(*ref.Name, prefix)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}

		c.logger.Debug("Fetched refs page",
			"repo_id", repoID,
			"filter", filter,
			"page", page,
			"items", len(resp.Value))

		next := resp.ContinuationToken
		if next == "" || next == token {
			break
		}
		token = next
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}

	return names, nil
}

// ListCommits returns the commit IDs reachable from branch, newest first.
// The SDK does not expose the commit continuation header, so pages advance
// with $skip and the loop ends on a short page.
func (c *Client) ListCommits(ctx context.Context, repoID, branch string) ([]string, error) {
	ids := []string{}
	seen := make(map[string]bool)
	top := c.commitsPageSize
	branchName := branch

	for skip := 0; ; {
		s := skip
		criteria := &git.GitQueryCommitsCriteria{
			ItemVersion: &git.GitVersionDescriptor{
				Version:     &branchName,
				VersionType: &git.GitVersionTypeValues.Branch,
			},
			Top:  &top,
			Skip: &s,
		}

		var page *[]git.GitCommitRef
		err := c.do(ctx, "GetCommits", func(ctx context.Context) error {
			var err error
			page, err = c.git.GetCommits(ctx, git.GetCommitsArgs{
				RepositoryId:   &repoID,
				Project:        &c.project,
				SearchCriteria: criteria,
			})
			return err
		})
		if err != nil {
			if isExpectedEmpty(err) {
				c.logger.Debug("No commits found", "repo_id", repoID, "branch", branch)
				return []string{}, nil
			}
			return nil, fmt.Errorf("failed to list commits on %s for %s: %w", branch, repoID, err)
		}
		if page == nil || len(*page) == 0 {
			break
		}

		for _, commit := range *page {
			if commit.CommitId != nil && !seen[*commit.CommitId] {
				seen[*commit.CommitId] = true
				ids = append(ids, *commit.CommitId)
			}
		}

		if len(*page) < top {
			break
		}
		skip += len(*page)
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// do runs one request under the per-request timeout, retrying throttling and
// server errors with exponential backoff.
func (c *Client) do(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		err := fn(reqCtx)
		if err == nil {
			return nil
		}
		err = wrapError(operation, err)
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("Azure DevOps request failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"error", err)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	return backoff.Retry(op, b)
}

// sleep waits the inter-page courtesy delay.
func (c *Client) sleep(ctx context.Context) error {
	if c.pageDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.pageDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
