package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// Default Reddit endpoints.
const (
	DefaultRedditAuthURL = "https://www.reddit.com"
	DefaultRedditAPIURL  = "https://oauth.reddit.com"
)

var postIDPattern = regexp.MustCompile(`comments/([a-zA-Z0-9]+)/`)

// PostID extracts the id of a post from its URL. Anything that is not a
// post URL is returned unchanged, so a bare id passes through.
func PostID(postURL string) string {
	if m := postIDPattern.FindStringSubmatch(postURL); m != nil {
		return m[1]
	}
	return postURL
}

// RedditConfig holds the script-app credentials of the posting account.
type RedditConfig struct {
	AuthURL      string
	APIURL       string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// Reddit posts as a single script account, authenticated with the OAuth2
// password grant. The access token is cached until it expires.
type Reddit struct {
	oauth     *oauth2.Config
	apiURL    string
	username  string
	password  string
	userAgent string
	client    *http.Client

	mu    sync.Mutex
	token *oauth2.Token
}

// NewReddit creates a client.
func NewReddit(cfg RedditConfig, client *http.Client) *Reddit {
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = DefaultRedditAuthURL
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultRedditAPIURL
	}
	return &Reddit{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(authURL, "/") + "/api/v1/access_token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL:    strings.TrimRight(apiURL, "/"),
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: fmt.Sprintf("Area/0.1 (by /u/%s)", cfg.Username),
		client:    defaultClient(client),
	}
}

func (r *Reddit) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token.Valid() {
		return r.token.AccessToken, nil
	}
	tok, err := r.oauth.PasswordCredentialsToken(context.WithValue(ctx, oauth2.HTTPClient, r.client), r.username, r.password)
	if err != nil {
		return "", fmt.Errorf("reddit: password grant: %w", err)
	}
	r.token = tok
	return tok.AccessToken, nil
}

// redditResponse is the envelope returned with api_type=json.
type redditResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			URL    string `json:"url"`
			Things []struct {
				Data struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func (r *Reddit) post(ctx context.Context, path string, form url.Values) (redditResponse, error) {
	var resp redditResponse
	token, err := r.accessToken(ctx)
	if err != nil {
		return resp, err
	}
	h := bearer(token)
	h.Set("User-Agent", r.userAgent)
	form.Set("api_type", "json")

	if err := do(ctx, r.client, request{
		provider: "reddit",
		method:   http.MethodPost,
		url:      r.apiURL + path,
		header:   h,
		form:     form,
	}, &resp); err != nil {
		return resp, err
	}
	if len(resp.JSON.Errors) > 0 {
		parts := make([]string, 0, len(resp.JSON.Errors))
		for _, e := range resp.JSON.Errors {
			parts = append(parts, fmt.Sprintf("%v", e))
		}
		return resp, errors.New("reddit: " + strings.Join(parts, "; "))
	}
	return resp, nil
}

// SendMessage sends a private message to a redditor.
func (r *Reddit) SendMessage(ctx context.Context, to, subject, text string) error {
	_, err := r.post(ctx, "/api/compose", url.Values{
		"to":      {to},
		"subject": {subject},
		"text":    {text},
	})
	return err
}

// Submit creates a self post and returns its fullname.
func (r *Reddit) Submit(ctx context.Context, subreddit, title, text string) (string, error) {
	resp, err := r.post(ctx, "/api/submit", url.Values{
		"sr":    {subreddit},
		"kind":  {"self"},
		"title": {title},
		"text":  {text},
	})
	return resp.JSON.Data.Name, err
}

// Comment replies to the post with the given id and returns the comment's
// fullname.
func (r *Reddit) Comment(ctx context.Context, postID, text string) (string, error) {
	resp, err := r.post(ctx, "/api/comment", url.Values{
		"thing_id": {"t3_" + postID},
		"text":     {text},
	})
	if err != nil {
		return "", err
	}
	if len(resp.JSON.Data.Things) > 0 {
		return resp.JSON.Data.Things[0].Data.Name, nil
	}
	return "", nil
}
