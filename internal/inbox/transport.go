package inbox

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/baluhost/balupi/internal/handshake"
)

// HTTPTransport uploads queued files to the host's inbox endpoint. Each
// request carries the same HMAC proof scheme the handshake uses, so the
// host accepts uploads only from its trusted sentinel. A 2xx response is
// the transfer acknowledgment.
type HTTPTransport struct {
	client  *http.Client
	baseURL string
	secret  []byte
}

// NewHTTPTransport binds the host inbox URL and the shared secret.
func NewHTTPTransport(baseURL, secret string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
	}
}

// Send uploads one file. Re-sending a file the host already stored is
// accepted by the receiver, which is what makes the relocator's
// at-least-once semantics converge.
func (t *HTTPTransport) Send(ctx context.Context, localPath, relPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read queued file: %w", err)
	}

	target, err := url.JoinPath(t.baseURL, relPath)
	if err != nil {
		return fmt.Errorf("build upload url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("parse upload url: %w", err)
	}

	timestamp := time.Now().Unix()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(handshake.HeaderTimestamp, fmt.Sprintf("%d", timestamp))
	req.Header.Set(handshake.HeaderProof,
		handshake.ComputeProof(t.secret, http.MethodPut, parsed.Path, timestamp, data))

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", relPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("upload %s: status %d", relPath, resp.StatusCode)
	}
	return nil
}
