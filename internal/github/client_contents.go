package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v75/github"
)

// ListWorkflowFiles lists the regular files directly under dir in the
// default branch. exists is false when the path is missing or is not a
// directory.
func (c *Client) ListWorkflowFiles(ctx context.Context, owner, repo, dir string) (files []string, exists bool, err error) {
	var file *github.RepositoryContent
	var entries []*github.RepositoryContent

	_, err = c.DoWithRetry(ctx, "GetContents", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		file, entries, resp, err = c.rest.Repositories.GetContents(ctx, owner, repo, dir, nil)
		return resp, err
	})
	if err != nil {
		if IsNotFoundError(err) {
			c.logger.Debug("Workflow directory not found", "repo", owner+"/"+repo, "path", dir)
			return []string{}, false, nil
		}
		return nil, false, fmt.Errorf("failed to list %s in %s/%s: %w", dir, owner, repo, err)
	}
	if file != nil {
		c.logger.Debug("Workflow path is a file", "repo", owner+"/"+repo, "path", dir)
		return []string{}, false, nil
	}

	files = []string{}
	for _, entry := range entries {
		if entry.GetType() == "file" {
			files = append(files, entry.GetName())
		}
	}
	return files, true, nil
}

// GetFileContent returns the decoded content of a file on the default branch.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path string) ([]byte, error) {
	var file *github.RepositoryContent

	_, err := c.DoWithRetry(ctx, "GetFileContent", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		file, _, resp, err = c.rest.Repositories.GetContents(ctx, owner, repo, path, nil)
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in %s/%s: %w", path, owner, repo, err)
	}
	if file == nil {
		return nil, fmt.Errorf("%s in %s/%s is a directory", path, owner, repo)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s in %s/%s: %w", path, owner, repo, err)
	}
	return []byte(content), nil
}
