// Package probe issues the single HTTP request a readiness check needs.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one probe request.
const DefaultTimeout = 5 * time.Second

// Prober performs a GET and reports the status code.
type Prober interface {
	Get(ctx context.Context, baseURL, path string) (int, error)
}

// HTTPProber implements Prober over net/http.
type HTTPProber struct {
	client *http.Client
}

var _ Prober = (*HTTPProber)(nil)

// NewHTTPProber returns a prober whose requests time out after timeout.
// A non-positive timeout selects DefaultTimeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// Get requests baseURL joined with path and returns the status code. The
// body is drained and discarded.
func (p *HTTPProber) Get(ctx context.Context, baseURL, path string) (int, error) {
	url := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request for %s: %w", url, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// IsSuccess reports whether status is in the 2xx range.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
