package cmd

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/openport/common/logging"
	natsclient "github.com/telhawk-systems/openport/common/messaging/nats"
	"github.com/telhawk-systems/openport/internal/config"
	"github.com/telhawk-systems/openport/internal/ratelimit"
)

func newLogger(c *config.Config) *logging.Logger {
	return logging.New(logging.ParseLevel(c.Logging.Level), c.Logging.Format).
		With(logging.Service("openport"))
}

func newRedis(c *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if c.Redis.MaxRetries != 0 {
		opts.MaxRetries = c.Redis.MaxRetries
	}
	if c.Redis.PoolSize > 0 {
		opts.PoolSize = c.Redis.PoolSize
	}
	return redis.NewClient(opts), nil
}

func newNATS(c *config.Config, logger *logging.Logger) (*natsclient.Client, error) {
	nc := natsclient.DefaultConfig()
	nc.URL = c.NATS.URL
	nc.MaxReconnects = c.NATS.MaxReconnects
	if c.NATS.ReconnectWait > 0 {
		nc.ReconnectWait = c.NATS.ReconnectWait
	}
	if c.NATS.Timeout > 0 {
		nc.Timeout = c.NATS.Timeout
	}
	nc.Token = c.NATS.Token
	return natsclient.NewClient(nc, logger)
}

func ledgerConfig(c *config.Config) ratelimit.Config {
	return ratelimit.Config{
		Capacity:     c.Ledger.Capacity,
		TrimInterval: c.Ledger.TrimInterval,
	}
}
