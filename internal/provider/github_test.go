package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-github/v66/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHub_HooksAndIssues(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octocat/hello/hooks", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_abc", r.Header.Get("Authorization"))
		if r.URL.Query().Get("page") == "" {
			w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?page=2>; rel="next"`, r.Host, r.URL.Path))
			_, _ = w.Write([]byte(`[{"id":1,"name":"web","active":true,"events":["push"],
				"config":{"url":"https://area.example/api/v1/webhook","content_type":"json","insecure_ssl":"0"}}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":3,"name":"web","active":true,"events":["workflow_run"],"config":{"url":"https://ci.example/hook"}}]`))
	})
	mux.HandleFunc("POST /repos/octocat/hello/hooks", func(w http.ResponseWriter, r *http.Request) {
		var hook github.Hook
		require.NoError(t, json.NewDecoder(r.Body).Decode(&hook))
		assert.Equal(t, []string{"pull_request"}, hook.Events)
		assert.Equal(t, "s3cret", hook.GetConfig().GetSecret())
		hook.ID = github.Int64(2)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(hook)
	})
	mux.HandleFunc("POST /repos/octocat/hello/issues", func(w http.ResponseWriter, r *http.Request) {
		var issue github.IssueRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&issue))
		assert.Equal(t, "push on main", issue.GetTitle())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":12,"html_url":"https://github.com/octocat/hello/issues/12"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	gh := NewGitHub(srv.URL+"/", nil)
	ctx := context.Background()

	hooks, err := gh.ListHooks(ctx, "gho_abc", "octocat", "hello")
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, "json", hooks[0].GetConfig().GetContentType())
	assert.Equal(t, int64(3), hooks[1].GetID())

	created, err := gh.CreateHook(ctx, "gho_abc", "octocat", "hello", &github.Hook{
		Active: github.Bool(true),
		Events: []string{"pull_request"},
		Config: &github.HookConfig{
			URL:         github.String("https://area.example/api/v1/webhook"),
			ContentType: github.String("json"),
			Secret:      github.String("s3cret"),
			InsecureSSL: github.String("0"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), created.GetID())

	issue, err := gh.CreateIssue(ctx, "gho_abc", "octocat", "hello", &github.IssueRequest{Title: github.String("push on main")})
	require.NoError(t, err)
	assert.Equal(t, 12, issue.GetNumber())
	assert.Equal(t, "https://github.com/octocat/hello/issues/12", issue.GetHTMLURL())
}

func TestGitHub_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	_, err := NewGitHub(srv.URL, nil).ListHooks(context.Background(), "t", "octocat", "missing")
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusForbidden))

	var ge *github.ErrorResponse
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Not Found", ge.Message)
}
