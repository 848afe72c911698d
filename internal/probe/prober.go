package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Prober issues the host liveness request. Any 2xx within the timeout
// counts as success; everything else (including the timeout itself) is an
// expected failure routed into the heartbeat classifier, not an application
// error.
type Prober struct {
	client *http.Client
	url    string
}

// New builds a prober for the host's liveness URL with a bounded timeout.
func New(url string, timeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// Probe performs one liveness request. The context cancels the request on
// timeout instead of letting it block.
func (p *Prober) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe host: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe host: unexpected status %d", resp.StatusCode)
	}
	return nil
}
