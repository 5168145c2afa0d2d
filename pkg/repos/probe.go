package repos

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Prober checks whether a repository page still exists.
type Prober interface {
	// Probe returns the HTTP status code of the page at url.
	Probe(ctx context.Context, url string) (int, error)
}

// Available reports whether a probe status means the repository exists.
// Redirects count, since renamed repositories redirect.
func Available(status int) bool {
	return status >= 200 && status < 400
}

// HTTPProber issues HEAD requests without following redirects. Requests
// share one rate limiter across all callers.
type HTTPProber struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPProber returns a prober allowing rps requests per second with the
// given burst. A nil client gets a default with a 30s timeout.
func NewHTTPProber(client *http.Client, rps float64, burst int) *HTTPProber {
	c := &http.Client{Timeout: 30 * time.Second}
	if client != nil {
		copied := *client
		c = &copied
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &HTTPProber{
		client:  c,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (p *HTTPProber) Probe(ctx context.Context, url string) (int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
