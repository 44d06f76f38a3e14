package common

import (
	_ "embed"
	"io"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// maxErrorBody caps how much of an error response body is kept for logging.
const maxErrorBody = 4096

// Doer sends a single HTTP request. *http.Client satisfies it; tests swap in
// httptest clients or fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper and stamps the User-Agent header.
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// Version is the release embedded at build time.
func Version() string {
	return strings.TrimSpace(version)
}

// UserAgent returns the User-Agent sent to the Solax and CANTAO APIs.
func UserAgent() string {
	return "CantaoSolax/" + Version()
}

// HTTPClient returns a default http client with a default user-agent set
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			transport: http.DefaultTransport,
			userAgent: UserAgent(),
		},
		Timeout: timeout,
	}
}

// ReadErrorBody reads at most a few KiB of resp.Body for diagnostics. Read
// errors are ignored since the body is only used for logging.
func ReadErrorBody(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(b))
}
