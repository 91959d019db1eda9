// Package confirm talks to the external open-port confirmation service.
package confirm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/internal/metrics"
)

const confirmPath = "/v1/openport/confirm"

// QuotaRecorder receives the rate-limit headers of every response.
type QuotaRecorder interface {
	RecordHeaders(ctx context.Context, h http.Header) error
}

// Config holds the confirmation service settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client asks the confirmation service whether a public ip:port is reachable
// from the internet.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	quota      QuotaRecorder
	logger     *logging.Logger
}

// New constructs a Client. quota may be nil.
func New(cfg Config, quota QuotaRecorder, logger *logging.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		quota:  quota,
		logger: logger,
	}
}

type confirmRequest struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type confirmResponse struct {
	Open bool `json:"open"`
}

// ConfirmOpenPort reports whether the service could reach ip:port.
func (c *Client) ConfirmOpenPort(ctx context.Context, ip string, port int) (bool, error) {
	if c == nil {
		return false, fmt.Errorf("confirm client not configured")
	}

	body, err := json.Marshal(confirmRequest{IP: ip, Port: port})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+confirmPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		metrics.ConfirmRequests.WithLabelValues("error").Inc()
		return false, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	// Quota headers are present on every response, including 429s.
	c.recordQuota(ctx, resp.Header)

	if resp.StatusCode != http.StatusOK {
		metrics.ConfirmRequests.WithLabelValues("error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("confirm response status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result confirmResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		metrics.ConfirmRequests.WithLabelValues("error").Inc()
		return false, fmt.Errorf("decode response: %w", err)
	}

	if result.Open {
		metrics.ConfirmRequests.WithLabelValues("open").Inc()
	} else {
		metrics.ConfirmRequests.WithLabelValues("closed").Inc()
	}
	return result.Open, nil
}

func (c *Client) recordQuota(ctx context.Context, h http.Header) {
	if c.quota == nil {
		return
	}
	if err := c.quota.RecordHeaders(ctx, h); err != nil {
		c.logger.WarnContext(ctx, "failed to record confirmation quota", logging.Error(err))
	}
}
