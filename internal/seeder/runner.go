package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/common/messaging"
)

// Config controls a seeding run.
type Config struct {
	Subject  string
	Count    int
	Interval time.Duration
	Seed     int64
	Hosts    []string
	Ports    []int
	Subnet   string
}

// Runner publishes generated events.
type Runner struct {
	cfg       Config
	gen       *Generator
	publisher messaging.Publisher
	logger    *logging.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, publisher messaging.Publisher, logger *logging.Logger) *Runner {
	if cfg.Subject == "" {
		cfg.Subject = messaging.SubjectFlowsOutPort
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		cfg:       cfg,
		gen:       NewGenerator(cfg.Seed, cfg.Hosts, cfg.Ports, cfg.Subnet),
		publisher: publisher,
		logger:    logger,
	}
}

// Run publishes cfg.Count events and returns how many were sent. It stops
// at the first publish failure or when ctx is done.
func (r *Runner) Run(ctx context.Context) (int, error) {
	r.logger.InfoContext(ctx, "starting flow seeder",
		logging.Subject(r.cfg.Subject),
		"count", r.cfg.Count,
		"interval", r.cfg.Interval.String())

	sent := 0
	for i := 0; i < r.cfg.Count; i++ {
		event := r.gen.Flow(time.Now())
		data, err := json.Marshal(event)
		if err != nil {
			return sent, fmt.Errorf("marshal flow event: %w", err)
		}
		if err := r.publisher.Publish(ctx, r.cfg.Subject, data); err != nil {
			return sent, fmt.Errorf("publish flow event %d: %w", i, err)
		}
		sent++

		r.logger.DebugContext(ctx, "flow event published",
			logging.Host(event.Flow.LocalHost),
			logging.Port(event.Flow.DestPort),
			logging.Protocol(event.Flow.Protocol))

		if r.cfg.Interval > 0 && i < r.cfg.Count-1 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(r.cfg.Interval):
			}
		}
	}

	r.logger.InfoContext(ctx, "flow seeding complete", "sent", sent)
	return sent, nil
}
