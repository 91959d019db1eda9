// Package netinfo reads and maintains the host's public address record.
package netinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKey   = "sys:network:info"
	DefaultField = "publicIp"
)

var (
	// ErrNotFound is returned when no public address has been recorded.
	ErrNotFound = errors.New("public ip not recorded")

	// ErrMalformed is returned when the stored record cannot be parsed.
	ErrMalformed = errors.New("malformed public ip record")
)

// Store is the shared network-info hash. The public address field holds a
// JSON-encoded string, e.g. "\"1.2.3.4\"".
type Store struct {
	client redis.Cmdable
	key    string
	field  string
}

// NewStore creates a Store reading key/field.
func NewStore(client redis.Cmdable, key, field string) *Store {
	if key == "" {
		key = DefaultKey
	}
	if field == "" {
		field = DefaultField
	}
	return &Store{client: client, key: key, field: field}
}

// PublicIP returns the recorded public address.
func (s *Store) PublicIP(ctx context.Context) (string, error) {
	raw, err := s.client.HGet(ctx, s.key, s.field).Result()
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read public ip: %w", err)
	}

	var ip string
	if err := json.Unmarshal([]byte(raw), &ip); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("%w: %q is not an ip address", ErrMalformed, ip)
	}
	return ip, nil
}

// SetPublicIP records ip as the current public address.
func (s *Store) SetPublicIP(ctx context.Context, ip string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid public ip %q", ip)
	}
	data, err := json.Marshal(ip)
	if err != nil {
		return fmt.Errorf("marshal public ip: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, s.field, string(data)).Err(); err != nil {
		return fmt.Errorf("write public ip: %w", err)
	}
	return nil
}
