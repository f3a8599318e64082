package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// GitHub is a GitHub REST client authenticated per call with a user token.
type GitHub struct {
	baseURL string
	client  *http.Client
}

// NewGitHub creates a client. An empty baseURL selects the public API; a nil
// client selects one with DefaultTimeout.
func NewGitHub(baseURL string, client *http.Client) *GitHub {
	return &GitHub{baseURL: baseURL, client: defaultClient(client)}
}

func (g *GitHub) api(token string) (*github.Client, error) {
	c := github.NewClient(g.client).WithAuthToken(token)
	if g.baseURL != "" {
		u, err := url.Parse(strings.TrimRight(g.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		c.BaseURL = u
	}
	return c, nil
}

// ListHooks returns every webhook of owner/repo, following pagination.
func (g *GitHub) ListHooks(ctx context.Context, token, owner, repo string) ([]*github.Hook, error) {
	c, err := g.api(token)
	if err != nil {
		return nil, err
	}
	opts := &github.ListOptions{PerPage: 100}
	var all []*github.Hook
	for {
		hooks, resp, err := c.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, hooks...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateHook installs a webhook on owner/repo.
func (g *GitHub) CreateHook(ctx context.Context, token, owner, repo string, hook *github.Hook) (*github.Hook, error) {
	c, err := g.api(token)
	if err != nil {
		return nil, err
	}
	created, _, err := c.Repositories.CreateHook(ctx, owner, repo, hook)
	return created, err
}

// CreateIssue opens an issue on owner/repo.
func (g *GitHub) CreateIssue(ctx context.Context, token, owner, repo string, issue *github.IssueRequest) (*github.Issue, error) {
	c, err := g.api(token)
	if err != nil {
		return nil, err
	}
	created, _, err := c.Issues.Create(ctx, owner, repo, issue)
	return created, err
}
