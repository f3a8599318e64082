package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/roach88/area/internal/ir"
)

// handleGitHubWebhook translates a signed GitHub delivery into an inbound
// event and runs the pipeline. Deliveries no trigger cares about are
// acknowledged with status "ignored".
func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	sig := r.Header.Get(github.SHA256SignatureHeader)
	if err := github.ValidateSignature(sig, body, []byte(s.webhookSecret)); err != nil || !strings.HasPrefix(sig, "sha256=") {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid signature")
		return
	}

	kind := github.WebHookType(r)
	ev, ok, err := translateGitHub(kind, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid "+kind+" payload: "+err.Error())
		return
	}
	if !ok {
		slog.Debug("github delivery ignored", "event", kind)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	s.dispatch(w, r, ev)
}

// translateGitHub maps a delivery onto the canonical event. Fingerprint
// params hold the owner, repository and short branch name, matching the
// trigger arguments of GitHub tasks.
func translateGitHub(kind string, body []byte) (ir.InboundEvent, bool, error) {
	switch kind {
	case "push", "pull_request", "workflow_run":
	default:
		return ir.InboundEvent{}, false, nil
	}
	payload, err := github.ParseWebHook(kind, body)
	if err != nil {
		return ir.InboundEvent{}, false, err
	}

	switch p := payload.(type) {
	case *github.PushEvent:
		repo := p.GetRepo()
		ev := githubEvent("push_event", repo.GetOwner().GetLogin(), repo.GetName(), strings.TrimPrefix(p.GetRef(), "refs/heads/"))
		if c := p.GetHeadCommit(); c != nil {
			ev.ContextParams = map[string]string{
				"commit_msg":   c.GetMessage(),
				"author":       c.GetAuthor().GetName(),
				"author_email": c.GetAuthor().GetEmail(),
				"timestamp":    formatTimestamp(c.GetTimestamp()),
				"commit_url":   c.GetURL(),
			}
		}
		return ev, true, nil

	case *github.PullRequestEvent:
		pr := p.GetPullRequest()
		if pr.GetBase().GetRef() != "main" {
			return ir.InboundEvent{}, false, nil
		}
		ev := githubEvent("pull_request_to_main", p.GetRepo().GetOwner().GetLogin(), p.GetRepo().GetName(), pr.GetBase().GetRef())
		email := pr.GetUser().GetEmail()
		if email == "" {
			email = "none"
		}
		ev.ContextParams = map[string]string{
			"title":                  pr.GetTitle(),
			"author":                 pr.GetUser().GetLogin(),
			"author_email":           email,
			"timestamp":              formatTimestamp(pr.GetCreatedAt()),
			"pull_request_url":       pr.GetHTMLURL(),
			"action_on_pull_request": p.GetAction(),
		}
		return ev, true, nil

	case *github.WorkflowRunEvent:
		run := p.GetWorkflowRun()
		if run.GetHeadBranch() != "main" || run.GetStatus() != "completed" {
			return ir.InboundEvent{}, false, nil
		}
		if c := run.GetConclusion(); c != "success" && c != "failure" {
			return ir.InboundEvent{}, false, nil
		}
		ev := githubEvent("ci_cd_pipeline", p.GetRepo().GetOwner().GetLogin(), p.GetRepo().GetName(), run.GetHeadBranch())
		ev.ContextParams = map[string]string{
			"workflow_name": run.GetName(),
			"status":        run.GetStatus(),
			"conclusion":    run.GetConclusion(),
			"run_url":       run.GetHTMLURL(),
		}
		return ev, true, nil
	}
	return ir.InboundEvent{}, false, nil
}

func githubEvent(trigger, owner, repo, branch string) ir.InboundEvent {
	return ir.InboundEvent{
		TriggerName: trigger,
		Service:     "github",
		Params: map[string]string{
			"owner":  owner,
			"repo":   repo,
			"branch": branch,
		},
		ContextParams: map[string]string{},
	}
}

func formatTimestamp(ts github.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339)
}
