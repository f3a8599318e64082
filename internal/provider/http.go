package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"google.golang.org/api/googleapi"
)

// DefaultTimeout bounds every provider request made with the default client.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of a failed response is kept in an APIError.
const maxErrorBody = 4 << 10

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider string
	Method   string
	URL      string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s %s: status %d: %s", e.Provider, e.Method, e.URL, e.Status, e.Body)
}

// IsStatus reports whether err is a provider response with the given
// status, whether it came from an APIError or one of the SDK clients.
func IsStatus(err error, status int) bool {
	var (
		ae *APIError
		he *github.ErrorResponse
		ge *googleapi.Error
	)
	switch {
	case errors.As(err, &ae):
		return ae.Status == status
	case errors.As(err, &he):
		return he.Response != nil && he.Response.StatusCode == status
	case errors.As(err, &ge):
		return ge.Code == status
	}
	return false
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// request describes one provider call.
type request struct {
	provider string
	method   string
	url      string
	header   http.Header
	json     any
	form     url.Values

	// basic auth, sent when user is set
	user, password string
}

// do performs r and decodes a JSON response into out when out is non-nil.
func do(ctx context.Context, client *http.Client, r request, out any) error {
	var body io.Reader
	contentType := ""
	switch {
	case r.json != nil:
		b, err := json.Marshal(r.json)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", r.provider, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", r.provider, err)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.user != "" {
		req.SetBasicAuth(r.user, r.password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", r.provider, r.method, r.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Provider: r.provider,
			Method:   r.method,
			URL:      r.url,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(b)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", r.provider, err)
	}
	return nil
}
