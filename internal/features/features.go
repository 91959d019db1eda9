// Package features answers runtime feature-gate queries.
package features

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/openport/common/logging"
)

const (
	// DefaultKey is the Redis hash holding runtime overrides.
	DefaultKey = "sys:features"

	// AlarmOpenPort gates the open-port confirmation pipeline.
	AlarmOpenPort = "alarm_openport"
)

// Provider resolves feature flags. Runtime overrides stored in Redis win
// over the configured defaults; a missing or unreadable override falls back
// to the default.
type Provider struct {
	client   redis.Cmdable
	key      string
	defaults map[string]bool
	logger   *logging.Logger
}

// NewProvider creates a Provider. client may be nil, in which case only the
// defaults are consulted.
func NewProvider(client redis.Cmdable, key string, defaults map[string]bool, logger *logging.Logger) *Provider {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		d[strings.ToLower(k)] = v
	}
	return &Provider{client: client, key: key, defaults: d, logger: logger}
}

// IsFeatureOn reports whether the named feature is enabled.
func (p *Provider) IsFeatureOn(ctx context.Context, name string) bool {
	name = strings.ToLower(name)
	def := p.defaults[name]
	if p.client == nil {
		return def
	}

	val, err := p.client.HGet(ctx, p.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return def
	}
	if err != nil {
		p.logger.WarnContext(ctx, "feature flag lookup failed, using default",
			"feature", name, "default", def, logging.Error(err))
		return def
	}

	on, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		p.logger.WarnContext(ctx, "ignoring malformed feature flag override",
			"feature", name, "value", val)
		return def
	}
	return on
}

// Set stores a runtime override.
func (p *Provider) Set(ctx context.Context, name string, on bool) error {
	if p.client == nil {
		return errors.New("feature overrides require redis")
	}
	return p.client.HSet(ctx, p.key, strings.ToLower(name), strconv.FormatBool(on)).Err()
}
