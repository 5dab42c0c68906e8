package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
)

const refsHeadsPrefix = "refs/heads/"

// nameSet collects names in first-seen order without duplicates
type nameSet struct {
	names []string
	seen  map[string]bool
}

func newNameSet() *nameSet {
	return &nameSet{names: []string{}, seen: make(map[string]bool)}
}

func (s *nameSet) add(name string) {
	if name == "" || s.seen[name] {
		return
	}
	s.seen[name] = true
	s.names = append(s.names, name)
}

// ListBranches returns every branch of owner/repo. The matching-refs
// listing is the primary source; /branches is always queried as well and
// the two are unioned, since either can miss branches on large repositories.
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]string, error) {
	set := newNameSet()

	primary, err := c.listBranchRefs(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	for _, name := range primary {
		set.add(name)
	}

	fallback, err := c.listBranchesEndpoint(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	for _, name := range fallback {
		set.add(name)
	}

	c.logger.Debug("Listed branches",
		"repo", owner+"/"+repo,
		"matching_refs", len(primary),
		"branches_endpoint", len(fallback),
		"total", len(set.names))
	return set.names, nil
}

// listBranchRefs pages git/matching-refs/heads/ following the Link header
func (c *Client) listBranchRefs(ctx context.Context, owner, repo string) ([]string, error) {
	set := newNameSet()
	page := 1
	for {
		var refs []*github.Reference
		resp, err := c.DoWithRetry(ctx, "ListMatchingRefs", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			refs, resp, err = c.rest.Git.ListMatchingRefs(ctx, owner, repo, &github.ReferenceListOptions{
				Ref:         "heads/",
				ListOptions: github.ListOptions{Page: page, PerPage: c.pageSize},
			})
			return resp, err
		})
		if err != nil {
			if isExpectedEmpty(err, false) {
				c.logger.Debug("No branch refs", "repo", owner+"/"+repo, "status", StatusCode(err))
				return set.names, nil
			}
			return nil, fmt.Errorf("failed to list branch refs of %s/%s: %w", owner, repo, err)
		}

		for _, ref := range refs {
			set.add(strings.TrimPrefix(ref.GetRef(), refsHeadsPrefix))
		}

		if resp == nil || resp.NextPage == 0 {
			return set.names, nil
		}
		page = resp.NextPage
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// listBranchesEndpoint pages /branches by page number until a short page
func (c *Client) listBranchesEndpoint(ctx context.Context, owner, repo string) ([]string, error) {
	set := newNameSet()
	for page := 1; ; page++ {
		var branches []*github.Branch
		_, err := c.DoWithRetry(ctx, "ListBranches", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			branches, resp, err = c.rest.Repositories.ListBranches(ctx, owner, repo, &github.BranchListOptions{
				ListOptions: github.ListOptions{Page: page, PerPage: c.pageSize},
			})
			return resp, err
		})
		if err != nil {
			if isExpectedEmpty(err, false) {
				return set.names, nil
			}
			return nil, fmt.Errorf("failed to list branches of %s/%s: %w", owner, repo, err)
		}

		for _, b := range branches {
			set.add(b.GetName())
		}

		if len(branches) < c.pageSize {
			return set.names, nil
		}
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// ListCommits returns the SHAs reachable from branch. An empty repository
// (409) or unknown branch yields an empty list.
func (c *Client) ListCommits(ctx context.Context, owner, repo, branch string) ([]string, error) {
	set := newNameSet()
	page := 1
	for {
		var commits []*github.RepositoryCommit
		resp, err := c.DoWithRetry(ctx, "ListCommits", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			commits, resp, err = c.rest.Repositories.ListCommits(ctx, owner, repo, &github.CommitsListOptions{
				SHA:         branch,
				ListOptions: github.ListOptions{Page: page, PerPage: c.pageSize},
			})
			return resp, err
		})
		if err != nil {
			if isExpectedEmpty(err, true) {
				c.logger.Debug("No commits", "repo", owner+"/"+repo, "branch", branch, "status", StatusCode(err))
				return set.names, nil
			}
			return nil, fmt.Errorf("failed to list commits on %s of %s/%s: %w", branch, owner, repo, err)
		}

		for _, commit := range commits {
			set.add(commit.GetSHA())
		}

		if resp == nil || resp.NextPage == 0 {
			return set.names, nil
		}
		page = resp.NextPage
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

// ListTags returns every tag name of owner/repo
func (c *Client) ListTags(ctx context.Context, owner, repo string) ([]string, error) {
	set := newNameSet()
	page := 1
	for {
		var tags []*github.RepositoryTag
		resp, err := c.DoWithRetry(ctx, "ListTags", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			tags, resp, err = c.rest.Repositories.ListTags(ctx, owner, repo, &github.ListOptions{Page: page, PerPage: c.pageSize})
			return resp, err
		})
		if err != nil {
			if isExpectedEmpty(err, false) {
				return set.names, nil
			}
			return nil, fmt.Errorf("failed to list tags of %s/%s: %w", owner, repo, err)
		}

		for _, tag := range tags {
			set.add(tag.GetName())
		}

		if resp == nil || resp.NextPage == 0 {
			return set.names, nil
		}
		page = resp.NextPage
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}
}
