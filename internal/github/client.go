package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v75/github"
	"github.com/jferrl/go-githubauth"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const (
	DefaultPageSize  = 100
	DefaultPageDelay = 150 * time.Millisecond
	DefaultTimeout   = 60 * time.Second
)

// Client wraps GitHub REST and GraphQL clients with rate limiting and retry logic.
// One Client is shared by every worker of a run.
type Client struct {
	rest        *github.Client
	graphql     *githubv4.Client
	baseURL     string
	pageSize    int
	pageDelay   time.Duration
	usesApp     bool
	rateLimiter *RateLimiter
	retryer     *Retryer
	logger      *slog.Logger
}

// ClientConfig configures the GitHub client
type ClientConfig struct {
	BaseURL string
	Token   string

	// GitHub App installation auth, used instead of Token when AppID is set.
	// AppPrivateKey is either a PEM block or a path to one.
	AppID             int64
	AppPrivateKey     string
	AppInstallationID int64

	Timeout            time.Duration
	PageSize           int
	PageDelay          time.Duration
	MinRequestInterval time.Duration
	RetryConfig        RetryConfig
	Logger             *slog.Logger
}

// Validate checks that exactly one usable credential is configured
func (c ClientConfig) Validate() error {
	if c.PageSize < 0 || c.PageSize > 100 {
		return fmt.Errorf("github page size must be between 1 and 100, got %d", c.PageSize)
	}
	if c.AppID != 0 {
		if c.AppPrivateKey == "" || c.AppInstallationID == 0 {
			return fmt.Errorf("github app auth requires app_private_key and app_installation_id")
		}
		return nil
	}
	if c.Token == "" {
		return fmt.Errorf("github token is required")
	}
	return nil
}

// instanceType is the kind of GitHub deployment behind a base URL
type instanceType int

const (
	instanceGitHub instanceType = iota // github.com
	instanceGHEC                       // Enterprise Cloud with data residency
	instanceGHES                       // Enterprise Server
)

func (t instanceType) String() string {
	switch t {
	case instanceGHEC:
		return "ghec"
	case instanceGHES:
		return "ghes"
	default:
		return "github.com"
	}
}

// GitHubAPIURL is the standard GitHub.com API URL
const GitHubAPIURL = "https://api.github.com"

func isDotCom(baseURL string) bool {
	return baseURL == "" || strings.TrimSuffix(baseURL, "/") == GitHubAPIURL
}

// detectInstanceType determines the type of GitHub instance from the base URL
func detectInstanceType(baseURL string) instanceType {
	if isDotCom(baseURL) {
		return instanceGitHub
	}
	// Data residency tenants live under .ghe.com, e.g. https://api.octocorp.ghe.com
	if strings.Contains(baseURL, ".ghe.com") {
		return instanceGHEC
	}
	return instanceGHES
}

// buildGraphQLURL builds the GraphQL endpoint for the instance
func buildGraphQLURL(baseURL string) string {
	switch detectInstanceType(baseURL) {
	case instanceGitHub:
		return GitHubAPIURL + "/graphql"
	case instanceGHEC:
		domain := strings.TrimPrefix(baseURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		domain = strings.TrimPrefix(domain, "api.")
		domain = strings.TrimSuffix(domain, "/")
		return fmt.Sprintf("https://api.%s/graphql", domain)
	default:
		url := strings.TrimSuffix(baseURL, "/")
		url = strings.TrimSuffix(url, "/api/v3")
		url = strings.TrimSuffix(url, "/api")
		return url + "/api/graphql"
	}
}

// NewClient creates a GitHub client. Requests flow through
// oauth2 (PAT or app installation token) -> secondary rate limit waiter
// -> go-github / githubv4.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = DefaultRetryConfig()
	}
	logger := cfg.Logger.With("host", "github")

	ts, err := tokenSource(cfg)
	if err != nil {
		return nil, err
	}

	authTransport := &oauth2.Transport{
		Source: oauth2.ReuseTokenSource(nil, ts),
		Base:   http.DefaultTransport,
	}
	httpClient, err := github_ratelimit.NewRateLimitWaiterClient(authTransport,
		github_ratelimit.WithLimitDetectedCallback(func(cb *github_ratelimit.CallbackContext) {
			attrs := []any{}
			if cb.Request != nil {
				attrs = append(attrs, "path", cb.Request.URL.Path)
			}
			if cb.SleepUntil != nil {
				attrs = append(attrs, "sleep_until", *cb.SleepUntil)
			}
			logger.Warn("Secondary rate limit detected, pausing requests", attrs...)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit transport: %w", err)
	}
	httpClient.Timeout = cfg.Timeout

	restClient := github.NewClient(httpClient)
	if !isDotCom(cfg.BaseURL) {
		restClient, err = restClient.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, WrapError(err, "NewClient", cfg.BaseURL)
		}
	}

	graphqlURL := buildGraphQLURL(cfg.BaseURL)
	var graphqlClient *githubv4.Client
	if isDotCom(cfg.BaseURL) {
		graphqlClient = githubv4.NewClient(httpClient)
	} else {
		graphqlClient = githubv4.NewEnterpriseClient(graphqlURL, httpClient)
	}

	logger.Debug("GitHub client configured",
		"base_url", cfg.BaseURL,
		"graphql_url", graphqlURL,
		"instance_type", detectInstanceType(cfg.BaseURL),
		"app_auth", cfg.AppID != 0)

	rateLimiter := NewRateLimiter(cfg.MinRequestInterval, logger)

	return &Client{
		rest:        restClient,
		graphql:     graphqlClient,
		baseURL:     cfg.BaseURL,
		pageSize:    cfg.PageSize,
		pageDelay:   max(cfg.PageDelay, 0),
		usesApp:     cfg.AppID != 0,
		rateLimiter: rateLimiter,
		retryer:     NewRetryer(cfg.RetryConfig, rateLimiter, logger),
		logger:      logger,
	}, nil
}

// tokenSource picks the PAT or a GitHub App installation token source
func tokenSource(cfg ClientConfig) (oauth2.TokenSource, error) {
	if cfg.AppID == 0 {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}), nil
	}

	key, err := loadPrivateKey(cfg.AppPrivateKey)
	if err != nil {
		return nil, err
	}
	appSrc, err := githubauth.NewApplicationTokenSource(cfg.AppID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create github app token source: %w", err)
	}

	var opts []githubauth.InstallationTokenSourceOpt
	if !isDotCom(cfg.BaseURL) {
		opts = append(opts, githubauth.WithEnterpriseURL(cfg.BaseURL))
	}
	return githubauth.NewInstallationTokenSource(cfg.AppInstallationID, appSrc, opts...), nil
}

func loadPrivateKey(value string) ([]byte, error) {
	if strings.Contains(value, "-----BEGIN") {
		return []byte(value), nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("failed to read github app private key: %w", err)
	}
	return data, nil
}

// BaseURL returns the base URL of the GitHub instance
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DoWithRetry executes a REST API operation with retry logic, recording the
// rate limit budget from each response.
func (c *Client) DoWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) (*github.Response, error)) (*github.Response, error) {
	var resp *github.Response

	err := c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		start := time.Now()
		var err error
		resp, err = fn(ctx)
		duration := time.Since(start)
		c.rateLimiter.Observe(resp)

		if err != nil {
			wrapped := WrapError(err, operation, c.baseURL)
			c.logger.Debug("GitHub API call failed",
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", wrapped)
			return wrapped
		}

		attrs := []any{"operation", operation, "duration_ms", duration.Milliseconds()}
		if resp != nil && resp.Rate.Limit > 0 {
			attrs = append(attrs,
				"status_code", resp.StatusCode,
				"rate_limit_remaining", resp.Rate.Remaining)
		}
		c.logger.Debug("GitHub API call completed", attrs...)
		return nil
	})
	return resp, err
}

// QueryWithRetry executes a GraphQL query with retry logic
func (c *Client) QueryWithRetry(ctx context.Context, operation string, query any, variables map[string]any) error {
	return c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		start := time.Now()
		err := c.graphql.Query(ctx, query, variables)
		if err != nil {
			wrapped := WrapError(err, operation, c.baseURL)
			c.logger.Debug("GitHub GraphQL query failed",
				"operation", operation,
				"duration_ms", time.Since(start).Milliseconds(),
				"error", wrapped)
			return wrapped
		}
		c.logger.Debug("GitHub GraphQL query completed",
			"operation", operation,
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	})
}

// CheckRateLimit fetches and logs the current core rate limit
func (c *Client) CheckRateLimit(ctx context.Context) (*github.Rate, error) {
	var limits *github.RateLimits
	_, err := c.DoWithRetry(ctx, "GetRateLimits", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		limits, resp, err = c.rest.RateLimit.Get(ctx)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if limits == nil || limits.Core == nil {
		return nil, nil
	}

	c.rateLimiter.UpdateLimits(limits.Core.Remaining, limits.Core.Limit, limits.Core.Reset.Time)
	c.logger.Info("Rate limit status",
		"remaining", limits.Core.Remaining,
		"limit", limits.Core.Limit,
		"reset", limits.Core.Reset.Time)
	return limits.Core, nil
}

// TestAuthentication verifies the credentials and returns who they belong
// to. App installation tokens cannot read /user, so they list one
// installation repository instead.
func (c *Client) TestAuthentication(ctx context.Context) (string, error) {
	if c.usesApp {
		var repos *github.ListRepositories
		_, err := c.DoWithRetry(ctx, "ListInstallationRepos", func(ctx context.Context) (*github.Response, error) {
			var resp *github.Response
			var err error
			repos, resp, err = c.rest.Apps.ListRepos(ctx, &github.ListOptions{PerPage: 1})
			return resp, err
		})
		if err != nil {
			return "", fmt.Errorf("github app authentication failed: %w", err)
		}
		identity := fmt.Sprintf("app installation (%d repositories)", repos.GetTotalCount())
		c.logger.Info("Authentication successful", "identity", identity)
		return identity, nil
	}

	var user *github.User
	_, err := c.DoWithRetry(ctx, "GetAuthenticatedUser", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		user, resp, err = c.rest.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("github authentication failed: %w", err)
	}

	c.logger.Info("Authentication successful",
		"user", user.GetLogin(),
		"type", user.GetType())
	return user.GetLogin(), nil
}

// sleep waits the inter-page courtesy delay
func (c *Client) sleep(ctx context.Context) error {
	return sleepContext(ctx, c.pageDelay)
}
