package poller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/go-github/v66/github"

	"github.com/roach88/area/internal/tasks"
)

// githubEvents maps triggers onto the repository webhook event feeding them.
var githubEvents = map[string]string{
	"push_event":           "push",
	"pull_request_to_main": "pull_request",
	"ci_cd_pipeline":       "workflow_run",
}

// HookClient is the part of the GitHub API the hook ensurer needs.
type HookClient interface {
	ListHooks(ctx context.Context, token, owner, repo string) ([]*github.Hook, error)
	CreateHook(ctx context.Context, token, owner, repo string, hook *github.Hook) (*github.Hook, error)
}

// GitHubHooks makes sure every GitHub task's repository delivers the
// task's event to the webhook listener.
type GitHubHooks struct {
	client  HookClient
	hookURL string
	secret  string
}

// NewGitHubHooks creates the github Worker. hookURL is the public URL of
// the webhook listener; secret signs deliveries.
func NewGitHubHooks(client HookClient, hookURL, secret string) *GitHubHooks {
	return &GitHubHooks{client: client, hookURL: hookURL, secret: secret}
}

// Service implements Worker.
func (g *GitHubHooks) Service() string { return "github" }

// Handle installs the webhook unless an equivalent one exists.
func (g *GitHubHooks) Handle(ctx context.Context, task tasks.ServiceTask) error {
	event, ok := githubEvents[task.Trigger]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTrigger, task.Trigger)
	}
	if len(task.TriggerArgs) < 2 {
		return fmt.Errorf("task %d: owner and repository name are required", task.ID)
	}
	owner, repo := task.TriggerArgs[0], task.TriggerArgs[1]

	want := &github.Hook{
		Active: github.Bool(true),
		Events: []string{event},
		Config: &github.HookConfig{
			URL:         github.String(g.hookURL),
			ContentType: github.String("json"),
			InsecureSSL: github.String("0"),
		},
	}
	if g.secret != "" {
		want.Config.Secret = github.String(g.secret)
	}

	hooks, err := g.client.ListHooks(ctx, task.OAuthToken, owner, repo)
	if err != nil {
		return fmt.Errorf("list hooks of %s/%s: %w", owner, repo, err)
	}
	for _, h := range hooks {
		if sameHook(h, want) {
			slog.Debug("webhook already installed", "repo", owner+"/"+repo, "event", event)
			return nil
		}
	}

	created, err := g.client.CreateHook(ctx, task.OAuthToken, owner, repo, want)
	if err != nil {
		return fmt.Errorf("create %s hook on %s/%s: %w", event, owner, repo, err)
	}
	slog.Info("webhook installed", "repo", owner+"/"+repo, "event", event, "hook_id", created.GetID())
	return nil
}

// sameHook compares delivery URL, content type, TLS verification and the
// event set. The secret is write-only on GitHub and never compared.
func sameHook(have, want *github.Hook) bool {
	hc, wc := have.GetConfig(), want.GetConfig()
	if hc.GetURL() != wc.GetURL() ||
		hc.GetContentType() != wc.GetContentType() ||
		hc.GetInsecureSSL() != wc.GetInsecureSSL() {
		return false
	}
	a := slices.Clone(have.Events)
	b := slices.Clone(want.Events)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}
