package netinfo

import (
	"context"
	"time"

	"github.com/telhawk-systems/openport/common/logging"
	"github.com/telhawk-systems/openport/internal/metrics"
)

// Refresher periodically rediscovers the public address and records it in
// the shared store.
type Refresher struct {
	prober   Prober
	store    *Store
	interval time.Duration
	logger   *logging.Logger
	stop     chan struct{}
	stopped  chan struct{}
}

// NewRefresher creates a refresher. Call Start in a goroutine.
func NewRefresher(prober Prober, store *Store, interval time.Duration, logger *logging.Logger) *Refresher {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Refresher{
		prober:   prober,
		store:    store,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called or ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	defer close(r.stopped)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on start
	r.Refresh(ctx)

	for {
		select {
		case <-ticker.C:
			r.Refresh(ctx)
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the loop to exit and waits for it.
func (r *Refresher) Stop() {
	close(r.stop)
	<-r.stopped
}

// Refresh probes once and stores the result. Failures keep the previous
// record in place.
func (r *Refresher) Refresh(ctx context.Context) {
	ip, err := r.prober.Probe(ctx)
	if err != nil {
		metrics.PublicIPRefreshes.WithLabelValues("probe_error").Inc()
		r.logger.WarnContext(ctx, "public ip discovery failed", logging.Error(err))
		return
	}
	if err := r.store.SetPublicIP(ctx, ip); err != nil {
		metrics.PublicIPRefreshes.WithLabelValues("store_error").Inc()
		r.logger.WarnContext(ctx, "failed to record public ip", logging.Error(err))
		return
	}
	metrics.PublicIPRefreshes.WithLabelValues("ok").Inc()
	r.logger.DebugContext(ctx, "public ip refreshed", logging.Host(ip))
}
