package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/openport/common/logging"
)

type recordingQuota struct {
	mu      sync.Mutex
	headers []http.Header
	err     error
}

func (r *recordingQuota) RecordHeaders(ctx context.Context, h http.Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.headers = append(r.headers, h.Clone())
	return r.err
}

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/openport/confirm" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		var req confirmRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.IP != "1.2.3.4" || req.Port != 443 {
			t.Errorf("unexpected request: %+v", req)
		}

		w.Header().Set("X-RateLimit-Reset", "1700003600")
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNew(t *testing.T) {
	c := New(Config{BaseURL: "http://confirm:8080"}, nil, nil)

	require.NotNil(t, c)
	assert.Equal(t, "http://confirm:8080", c.baseURL)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestConfirmOpenPort(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{"open", http.StatusOK, `{"open":true}`, true, false},
		{"closed", http.StatusOK, `{"open":false}`, false, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":"quota exceeded"}`, false, true},
		{"server error", http.StatusInternalServerError, `oops`, false, true},
		{"malformed body", http.StatusOK, `not json`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, tt.status, tt.body)
			quota := &recordingQuota{}
			c := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, quota, logging.Discard())

			got, err := c.ConfirmOpenPort(context.Background(), "1.2.3.4", 443)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)

			require.Len(t, quota.headers, 1, "quota headers are recorded on every response")
			assert.Equal(t, "1700003600", quota.headers[0].Get("X-RateLimit-Reset"))
			assert.Equal(t, "42", quota.headers[0].Get("X-RateLimit-Remaining"))
		})
	}
}

func TestConfirmOpenPort_SendsToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"open":true}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Token: "secret"}, nil, logging.Discard())
	_, err := c.ConfirmOpenPort(context.Background(), "1.2.3.4", 443)

	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
}

func TestConfirmOpenPort_QuotaErrorDoesNotFailConfirm(t *testing.T) {
	server := newServer(t, http.StatusOK, `{"open":true}`)
	quota := &recordingQuota{err: errors.New("redis down")}
	c := New(Config{BaseURL: server.URL}, quota, logging.Discard())

	got, err := c.ConfirmOpenPort(context.Background(), "1.2.3.4", 443)

	require.NoError(t, err)
	assert.True(t, got)
}

func TestConfirmOpenPort_Unreachable(t *testing.T) {
	quota := &recordingQuota{}
	c := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, quota, logging.Discard())

	got, err := c.ConfirmOpenPort(context.Background(), "1.2.3.4", 443)

	assert.Error(t, err)
	assert.False(t, got)
	assert.Empty(t, quota.headers)
}

func TestConfirmOpenPort_NilClient(t *testing.T) {
	var c *Client
	_, err := c.ConfirmOpenPort(context.Background(), "1.2.3.4", 443)
	assert.EqualError(t, err, "confirm client not configured")
}
