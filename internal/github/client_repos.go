package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

// OwnerType selects which repository listing endpoint applies to an owner.
type OwnerType string

const (
	OwnerTypeOrg  OwnerType = "org"
	OwnerTypeUser OwnerType = "user"
	OwnerTypeAuto OwnerType = "auto"
)

// ResolveOwnerType asks GraphQL whether login is an organization or a user.
func (c *Client) ResolveOwnerType(ctx context.Context, login string) (OwnerType, error) {
	var query struct {
		RepositoryOwner *struct {
			Typename githubv4.String `graphql:"__typename"`
			Login    githubv4.String
		} `graphql:"repositoryOwner(login: $login)"`
	}
	variables := map[string]any{
		"login": githubv4.String(login),
	}

	if err := c.QueryWithRetry(ctx, "ResolveOwnerType", &query, variables); err != nil {
		return "", fmt.Errorf("failed to resolve owner type of %s: %w", login, err)
	}
	if query.RepositoryOwner == nil {
		return "", fmt.Errorf("owner %s: %w", login, ErrNotFound)
	}

	switch query.RepositoryOwner.Typename {
	case "Organization":
		return OwnerTypeOrg, nil
	case "User":
		return OwnerTypeUser, nil
	default:
		return "", fmt.Errorf("owner %s has unsupported type %q", login, query.RepositoryOwner.Typename)
	}
}

// ListRepositories lists every repository of owner. OwnerTypeAuto is
// resolved through GraphQL first.
func (c *Client) ListRepositories(ctx context.Context, owner string, ownerType OwnerType) ([]models.TargetRepository, error) {
	if ownerType == "" || ownerType == OwnerTypeAuto {
		resolved, err := c.ResolveOwnerType(ctx, owner)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("Resolved owner type", "owner", owner, "owner_type", resolved)
		ownerType = resolved
	}

	// /users/{owner}/repos only returns public repositories, even for the
	// owner's own token; /user/repos includes the private ones.
	self := ownerType == OwnerTypeUser && c.isAuthenticatedUser(ctx, owner)

	c.logger.Info("Listing repositories", "owner", owner, "owner_type", ownerType, "authenticated_owner", self)

	out := []models.TargetRepository{}
	page := 1
	for {
		var repos []*github.Repository
		resp, err := c.DoWithRetry(ctx, "ListRepositories", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			listOpts := github.ListOptions{Page: page, PerPage: c.pageSize}
			switch {
			case self:
				repos, resp, err = c.rest.Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
					Affiliation: "owner",
					ListOptions: listOpts,
				})
			case ownerType == OwnerTypeUser:
				repos, resp, err = c.rest.Repositories.ListByUser(ctx, owner, &github.RepositoryListByUserOptions{
					Type:        "owner",
					ListOptions: listOpts,
				})
			default:
				repos, resp, err = c.rest.Repositories.ListByOrg(ctx, owner, &github.RepositoryListByOrgOptions{
					Type:        "all",
					ListOptions: listOpts,
				})
			}
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", owner, err)
		}

		for _, r := range repos {
			if r.GetName() == "" {
				continue
			}
			repoOwner := r.GetOwner().GetLogin()
			if repoOwner == "" {
				repoOwner = owner
			}
			out = append(out, models.TargetRepository{Repo: r.GetName(), Owner: repoOwner})
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		page = resp.NextPage
		if err := c.sleep(ctx); err != nil {
			return nil, err
		}
	}

	c.logger.Info("Repository listing complete", "owner", owner, "total_repos", len(out))
	return out, nil
}

// isAuthenticatedUser reports whether the token belongs to login. App
// installation tokens cannot read /user, which counts as false.
func (c *Client) isAuthenticatedUser(ctx context.Context, login string) bool {
	user, _, err := c.rest.Users.Get(ctx, "")
	if err != nil {
		c.logger.Debug("Could not read authenticated user", "error", err)
		return false
	}
	return strings.EqualFold(user.GetLogin(), login)
}
