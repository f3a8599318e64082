package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/area/internal/tasks"
)

// CoreAPI lists tasks through the HTTP surface of a remote area server.
type CoreAPI struct {
	baseURL string
	client  *http.Client
}

// NewCoreAPI creates a Source for the server at baseURL, e.g.
// http://localhost:8080/api/v1.
func NewCoreAPI(baseURL string, client *http.Client) *CoreAPI {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoreAPI{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// ListForService calls GET /tasks?service=<service>.
func (c *CoreAPI) ListForService(ctx context.Context, service string) ([]tasks.ServiceTask, error) {
	u := c.baseURL + "/tasks?" + url.Values{"service": {service}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", service, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s tasks: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("list %s tasks: status %d: %s", service, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var items []tasks.ServiceTask
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("list %s tasks: decode: %w", service, err)
	}
	return items, nil
}
