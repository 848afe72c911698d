package naming

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client switches a shared hostname between the host and the sentinel via
// the Pi-hole v6 admin API. SetRecord is an idempotent upsert: stale records
// for either candidate IP are removed before the target record is written,
// and writing a record that already exists is accepted.
type Client struct {
	logger   *zap.Logger
	http     *http.Client
	baseURL  string
	password string
	hostname string
	// candidateIPs are all addresses the hostname may have pointed at;
	// stale entries for these are cleared on every switch.
	candidateIPs []string

	mu  sync.Mutex
	sid string
}

// NewClient builds a Pi-hole client for one managed hostname.
func NewClient(logger *zap.Logger, baseURL, password, hostname string, candidateIPs []string) *Client {
	return &Client{
		logger:       logger,
		http:         &http.Client{Timeout: 10 * time.Second},
		baseURL:      strings.TrimRight(baseURL, "/") + "/api",
		password:     password,
		hostname:     hostname,
		candidateIPs: candidateIPs,
	}
}

// SetRecord points the managed hostname at targetIP.
func (c *Client) SetRecord(ctx context.Context, targetIP string) error {
	for _, ip := range c.candidateIPs {
		if ip == "" || ip == targetIP {
			continue
		}
		if err := c.removeHost(ctx, ip); err != nil {
			// Stale record may simply not exist; the upsert below is what counts.
			c.logger.Debug("Stale record removal failed",
				zap.String("ip", ip), zap.Error(err))
		}
	}

	if err := c.putHost(ctx, targetIP); err != nil {
		return fmt.Errorf("set naming record %s -> %s: %w", c.hostname, targetIP, err)
	}

	c.logger.Info("Naming record switched",
		zap.String("hostname", c.hostname),
		zap.String("target_ip", targetIP))
	return nil
}

func (c *Client) putHost(ctx context.Context, ip string) error {
	return c.do(ctx, http.MethodPut, "/config/dns/hosts/"+hostEntry(ip, c.hostname), nil)
}

func (c *Client) removeHost(ctx context.Context, ip string) error {
	err := c.do(ctx, http.MethodDelete, "/config/dns/hosts/"+hostEntry(ip, c.hostname), nil)
	if err != nil && strings.Contains(err.Error(), "status 404") {
		return nil
	}
	return err
}

func hostEntry(ip, hostname string) string {
	return url.PathEscape(ip + " " + hostname)
}

// do issues an authenticated request, re-authenticating once on 401.
func (c *Client) do(ctx context.Context, method, path string, body any) error {
	sid, err := c.session(ctx, false)
	if err != nil {
		return err
	}

	status, err := c.request(ctx, method, path, sid, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if sid, err = c.session(ctx, true); err != nil {
			return err
		}
		if status, err = c.request(ctx, method, path, sid, body); err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return fmt.Errorf("pihole %s %s: status %d", method, path, status)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path, sid string, body any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal pihole request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build pihole request: %w", err)
	}
	req.Header.Set("sid", sid)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pihole request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// session returns the cached session ID, authenticating when missing or
// when refresh is forced.
func (c *Client) session(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sid != "" && !refresh {
		return c.sid, nil
	}

	payload, _ := json.Marshal(map[string]string{"password": c.password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build pihole auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pihole auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pihole auth: status %d", resp.StatusCode)
	}

	var body struct {
		Session struct {
			SID string `json:"sid"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode pihole auth response: %w", err)
	}
	if body.Session.SID == "" {
		return "", fmt.Errorf("pihole auth: empty session id")
	}

	c.sid = body.Session.SID
	return c.sid, nil
}
